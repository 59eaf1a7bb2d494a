package catalog

import (
	"context"
	"strings"
	"time"
)

// OpenCodeZenAdapter exposes a fixed, config-loaded allow-list of
// beta-free model ids (spec.md §4.3). Listing requires no credential and
// no network call; a credential is only required when the model is
// actually used (internal/upstream enforces that separately).
type OpenCodeZenAdapter struct {
	AllowList []string
}

func NewOpenCodeZenAdapter(allowList []string) *OpenCodeZenAdapter {
	return &OpenCodeZenAdapter{AllowList: allowList}
}

func (a *OpenCodeZenAdapter) Source() Source { return SourceOpenCodeZen }

func (a *OpenCodeZenAdapter) Fetch(ctx context.Context) ([]ModelDescriptor, error) {
	now := time.Now().UTC()
	out := make([]ModelDescriptor, 0, len(a.AllowList))
	for _, id := range a.AllowList {
		out = append(out, ModelDescriptor{
			ID:           "open_code_zen/" + id,
			DisplayName:  displayNameFromID(id),
			Source:       SourceOpenCodeZen,
			Capabilities: []string{"chat"},
			IsFree:       true,
			DiscoveredAt: now,
		})
	}
	return out, nil
}

func displayNameFromID(id string) string {
	parts := strings.Split(id, "/")
	return parts[len(parts)-1]
}
