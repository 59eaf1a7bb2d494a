// Package inspect implements the Transaction Inspector (spec.md §4.10): an
// opt-in, bounded ring buffer of captured Upstream Call request/response
// pairs, with an LRU eviction policy and a HAR 1.2 export endpoint.
package inspect

import (
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

var redactedHeaderNames = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
}

// Transaction records one Upstream Call's request/response shape for
// inspection (spec.md §4.10's field list).
type Transaction struct {
	ID                string
	RequestID         string
	Model             string
	Source            string
	StartedAt         time.Time
	EndedAt           time.Time
	TTFB              time.Duration
	RequestMethod     string
	RequestURL        string
	RequestHeaders    http.Header
	ResponseStatus    int
	ResponseHeaders   http.Header
	ResponseSnippet   string
	PromptTokens      int
	CompletionTokens  int
}

// Inspector is a bounded, opt-in capture buffer. When disabled, Record is
// a single boolean check with no further cost (spec.md §4.10).
type Inspector struct {
	enabled bool
	cache   *lru.Cache[string, *Transaction]
}

// New constructs an Inspector with the given ring-buffer capacity
// (spec.md's inspector.max_transactions, default 1000).
func New(maxTransactions int, enabled bool) *Inspector {
	cache, _ := lru.New[string, *Transaction](maxTransactions)
	return &Inspector{enabled: enabled, cache: cache}
}

// Enabled reports whether capture is currently on.
func (i *Inspector) Enabled() bool { return i.enabled }

// SetEnabled toggles capture at runtime.
func (i *Inspector) SetEnabled(enabled bool) { i.enabled = enabled }

// Record stores tx, redacting credential headers first. A no-op when
// disabled.
func (i *Inspector) Record(tx *Transaction) {
	if !i.enabled {
		return
	}
	tx.RequestHeaders = redact(tx.RequestHeaders)
	i.cache.Add(tx.ID, tx)
}

// List returns all currently-buffered transactions, most recently added
// first.
func (i *Inspector) List() []*Transaction {
	keys := i.cache.Keys()
	out := make([]*Transaction, 0, len(keys))
	for idx := len(keys) - 1; idx >= 0; idx-- {
		if tx, ok := i.cache.Peek(keys[idx]); ok {
			out = append(out, tx)
		}
	}
	return out
}

// Get retrieves a single transaction by id without affecting LRU recency.
func (i *Inspector) Get(id string) (*Transaction, bool) {
	return i.cache.Peek(id)
}

// Clear empties the buffer (spec.md's DELETE /v1/inspect).
func (i *Inspector) Clear() {
	i.cache.Purge()
}

func redact(h http.Header) http.Header {
	if h == nil {
		return nil
	}
	out := make(http.Header, len(h))
	for name, values := range h {
		if redactedHeaderNames[strings.ToLower(name)] {
			out[name] = []string{"[redacted]"}
			continue
		}
		out[name] = values
	}
	return out
}
