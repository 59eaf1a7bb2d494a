package upstream

import (
	"strings"
	"sync"

	"github.com/eternisai/multiai-gateway/internal/catalog"
)

// Route describes how to reach one source's chat-completions endpoint
// (spec.md §6's upstream routing table).
type Route struct {
	Endpoint    string
	RequiresKey bool
}

// DefaultRoutes returns spec.md §6's fixed endpoint table.
func DefaultRoutes() map[catalog.Source]Route {
	return map[catalog.Source]Route{
		catalog.SourceOllama:      {Endpoint: "http://localhost:11434/v1/chat/completions", RequiresKey: false},
		catalog.SourceOpenCodeZen: {Endpoint: "https://zen.opencode.ai/v1/chat/completions", RequiresKey: true},
		catalog.SourceOpenRouter:  {Endpoint: "https://openrouter.ai/api/v1/chat/completions", RequiresKey: true},
	}
}

// Credentials holds per-source API keys, swappable at runtime via the
// settings endpoint (spec.md §6's PUT /api/settings).
type Credentials struct {
	mu   sync.RWMutex
	keys map[catalog.Source]string
}

func NewCredentials() *Credentials {
	return &Credentials{keys: make(map[catalog.Source]string)}
}

func (c *Credentials) Set(src catalog.Source, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[src] = key
}

func (c *Credentials) Get(src catalog.Source) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keys[src]
}

// Configured reports whether a credential is present for src. ollama never
// requires one.
func (c *Credentials) Configured(src catalog.Source) bool {
	if src == catalog.SourceOllama {
		return true
	}
	return c.Get(src) != ""
}

// stripProviderPrefix removes a "source/" prefix from a model id before
// forwarding it upstream.
func stripProviderPrefix(modelID string, src catalog.Source) string {
	prefix := string(src) + "/"
	return strings.TrimPrefix(modelID, prefix)
}
