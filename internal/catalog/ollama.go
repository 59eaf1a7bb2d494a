package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaAdapter enumerates locally-installed Ollama models via GET
// /api/tags. All enumerated models are free and always considered
// configured (no credential required), per spec.md §4.3.
type OllamaAdapter struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewOllamaAdapter constructs an adapter against baseURL (e.g.
// "http://localhost:11434"). A zero-value HTTPClient uses http.DefaultClient.
func NewOllamaAdapter(baseURL string, httpClient *http.Client) *OllamaAdapter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaAdapter{BaseURL: strings.TrimRight(baseURL, "/"), HTTPClient: httpClient}
}

func (a *OllamaAdapter) Source() Source { return SourceOllama }

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (a *OllamaAdapter) Fetch(ctx context.Context) ([]ModelDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama tags request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags request: status %d", resp.StatusCode)
	}

	var parsed ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode ollama tags response: %w", err)
	}

	now := time.Now().UTC()
	out := make([]ModelDescriptor, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		out = append(out, ModelDescriptor{
			ID:           "ollama/" + m.Name,
			DisplayName:  m.Name,
			Source:       SourceOllama,
			Capabilities: []string{"chat"},
			IsFree:       true,
			DiscoveredAt: now,
		})
	}
	return out, nil
}
