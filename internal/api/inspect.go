package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eternisai/multiai-gateway/internal/ginerr"
)

func (s *Server) handleExportInspect(c *gin.Context) {
	if s.inspector == nil {
		ginerr.AbortWithNotFound(c, "transaction inspector not available", nil)
		return
	}
	raw, err := s.inspector.ExportHAR()
	if err != nil {
		ginerr.AbortWithInternal(c, "failed to export HAR document: "+err.Error(), nil)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

func (s *Server) handleClearInspect(c *gin.Context) {
	if s.inspector == nil {
		ginerr.AbortWithNotFound(c, "transaction inspector not available", nil)
		return
	}
	s.inspector.Clear()
	c.Status(http.StatusNoContent)
}
