package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// openAIModel is one entry of the OpenAI-compatible /v1/models listing.
type openAIModel struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

func (s *Server) handleListModels(c *gin.Context) {
	_, forceRefresh := c.GetQuery("refresh")
	descriptors := s.catalog.List(c.Request.Context(), forceRefresh)

	data := make([]openAIModel, 0, len(descriptors))
	for _, d := range descriptors {
		data = append(data, openAIModel{ID: d.ID, Object: "model", OwnedBy: string(d.Source)})
	}

	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

// groupedProvider is one provider option within a grouped model listing.
type groupedProvider struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	IsFree bool   `json:"is_free"`
}

// groupedModelResponse is one entry of the grouped /v1/models/grouped listing.
type groupedModelResponse struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Capabilities []string          `json:"capabilities"`
	Providers    []groupedProvider `json:"providers"`
}

func (s *Server) handleListModelsGrouped(c *gin.Context) {
	_, forceRefresh := c.GetQuery("refresh")
	grouped := s.catalog.ListGrouped(c.Request.Context(), forceRefresh)

	out := make([]groupedModelResponse, 0, len(grouped))
	for _, g := range grouped {
		providers := make([]groupedProvider, 0, len(g.Providers))
		for _, p := range g.Providers {
			providers = append(providers, groupedProvider{ID: p.ModelID, Source: string(p.Source), IsFree: true})
		}
		out = append(out, groupedModelResponse{
			ID:           g.DisplayName,
			Name:         g.DisplayName,
			Capabilities: []string{"chat"},
			Providers:    providers,
		})
	}

	c.JSON(http.StatusOK, gin.H{"models": out})
}
