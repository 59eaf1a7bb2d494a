package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// OpenRouterAdapter fetches OpenRouter's remote model catalog. A model is
// admitted as free iff pricing.prompt == 0 and pricing.completion == 0
// (spec.md §4.3); paid models are filtered out here, not downstream.
type OpenRouterAdapter struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewOpenRouterAdapter(baseURL, apiKey string, httpClient *http.Client) *OpenRouterAdapter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenRouterAdapter{BaseURL: strings.TrimRight(baseURL, "/"), APIKey: apiKey, HTTPClient: httpClient}
}

func (a *OpenRouterAdapter) Source() Source { return SourceOpenRouter }

type openRouterModelsResponse struct {
	Data []struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Pricing struct {
			Prompt     string `json:"prompt"`
			Completion string `json:"completion"`
		} `json:"pricing"`
	} `json:"data"`
}

func (a *OpenRouterAdapter) Fetch(ctx context.Context) ([]ModelDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	if a.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.APIKey)
	}

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openrouter models request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openrouter models request: status %d", resp.StatusCode)
	}

	var parsed openRouterModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode openrouter models response: %w", err)
	}

	now := time.Now().UTC()
	out := make([]ModelDescriptor, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		if !isZeroPrice(m.Pricing.Prompt) || !isZeroPrice(m.Pricing.Completion) {
			continue
		}
		out = append(out, ModelDescriptor{
			ID:           "openrouter/" + m.ID,
			DisplayName:  m.Name,
			Source:       SourceOpenRouter,
			Capabilities: []string{"chat"},
			IsFree:       true,
			DiscoveredAt: now,
		})
	}
	return out, nil
}

func isZeroPrice(v string) bool {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return false
	}
	return f == 0
}
