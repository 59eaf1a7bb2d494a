// Package catalog implements the Free-Model Scanner (spec.md §4.3): a
// unified, TTL-cached view over three upstream model sources. Each source
// is refreshed independently behind a singleflight group so concurrent
// cache misses collapse into a single fetch, and a fetch failure retains
// the previous snapshot instead of emptying the catalog.
package catalog

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/eternisai/multiai-gateway/internal/logger"
)

// Source identifies one of the three upstream providers this catalog scans.
type Source string

const (
	SourceOllama      Source = "ollama"
	SourceOpenCodeZen Source = "open_code_zen"
	SourceOpenRouter  Source = "openrouter"
)

// sourcePriority orders the flat listing: ollama < open_code_zen < openrouter.
var sourcePriority = map[Source]int{
	SourceOllama:      0,
	SourceOpenCodeZen: 1,
	SourceOpenRouter:  2,
}

// groupPriority orders provider options within a grouped listing:
// open_code_zen first, then openrouter, then ollama.
var groupPriority = map[Source]int{
	SourceOpenCodeZen: 0,
	SourceOpenRouter:  1,
	SourceOllama:      2,
}

// ModelDescriptor represents one discovered free model (spec.md §3).
type ModelDescriptor struct {
	ID           string
	DisplayName  string
	Source       Source
	Capabilities []string
	IsFree       bool
	DiscoveredAt time.Time
}

// ProviderOption is one source's offering of a canonically-named model.
type ProviderOption struct {
	ModelID string
	Source  Source
}

// GroupedModel groups entries sharing a canonical display name across
// sources into a single model with multiple provider options.
type GroupedModel struct {
	DisplayName string
	Providers   []ProviderOption
}

// Adapter fetches the current set of models from one upstream source. It
// must return only models that are free to use; is_free filtering for
// sources that mix free and paid tiers (openrouter) happens inside the
// adapter.
type Adapter interface {
	Source() Source
	Fetch(ctx context.Context) ([]ModelDescriptor, error)
}

type snapshot struct {
	models    []ModelDescriptor
	fetchedAt time.Time
}

type sourceEntry struct {
	adapter Adapter
	sf      singleflight.Group
	snap    atomic.Pointer[snapshot]
}

// Catalog is the scanner's read path: callers take read-only snapshots via
// List/ListGrouped while refreshes happen in the background or on demand.
type Catalog struct {
	ttl     time.Duration
	log     *logger.Logger
	entries map[Source]*sourceEntry
}

// New constructs a Catalog over the given adapters, one per source.
func New(ttl time.Duration, log *logger.Logger, adapters ...Adapter) *Catalog {
	c := &Catalog{ttl: ttl, log: log, entries: make(map[Source]*sourceEntry, len(adapters))}
	for _, a := range adapters {
		c.entries[a.Source()] = &sourceEntry{adapter: a}
	}
	return c
}

// List returns the flat listing ordered by (source priority, display_name).
// forceRefresh bypasses the per-source TTL cache.
func (c *Catalog) List(ctx context.Context, forceRefresh bool) []ModelDescriptor {
	var out []ModelDescriptor
	for _, src := range []Source{SourceOllama, SourceOpenCodeZen, SourceOpenRouter} {
		entry, ok := c.entries[src]
		if !ok {
			continue
		}
		c.ensureFresh(ctx, src, entry, forceRefresh)
		snap := entry.snap.Load()
		if snap == nil {
			continue
		}
		for _, m := range snap.models {
			if m.IsFree {
				out = append(out, m)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if sourcePriority[out[i].Source] != sourcePriority[out[j].Source] {
			return sourcePriority[out[i].Source] < sourcePriority[out[j].Source]
		}
		return out[i].DisplayName < out[j].DisplayName
	})
	return out
}

// ListGrouped groups the flat listing by canonical display name.
func (c *Catalog) ListGrouped(ctx context.Context, forceRefresh bool) []GroupedModel {
	flat := c.List(ctx, forceRefresh)

	groups := make(map[string]*GroupedModel)
	var order []string
	for _, m := range flat {
		key := canonicalName(m.DisplayName)
		g, ok := groups[key]
		if !ok {
			g = &GroupedModel{DisplayName: m.DisplayName}
			groups[key] = g
			order = append(order, key)
		}
		g.Providers = append(g.Providers, ProviderOption{ModelID: m.ID, Source: m.Source})
	}

	out := make([]GroupedModel, 0, len(order))
	for _, key := range order {
		g := groups[key]
		sort.SliceStable(g.Providers, func(i, j int) bool {
			return groupPriority[g.Providers[i].Source] < groupPriority[g.Providers[j].Source]
		})
		out = append(out, *g)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out
}

func canonicalName(displayName string) string {
	return strings.ToLower(strings.TrimSpace(displayName))
}

// Sources returns the configured adapters' sources, for callers that run a
// periodic refresh goroutine per source.
func (c *Catalog) Sources() []Source {
	out := make([]Source, 0, len(c.entries))
	for src := range c.entries {
		out = append(out, src)
	}
	return out
}

// RefreshSource force-refreshes a single source's snapshot, for the
// background catalog refresher (one goroutine per source adapter).
func (c *Catalog) RefreshSource(ctx context.Context, src Source) {
	entry, ok := c.entries[src]
	if !ok {
		return
	}
	c.ensureFresh(ctx, src, entry, true)
}

// ensureFresh refreshes a source's snapshot if it is missing, stale, or a
// refresh is forced. Concurrent callers for the same source collapse into
// one underlying fetch via singleflight. A failed fetch logs and leaves
// the previous snapshot (if any) in place.
func (c *Catalog) ensureFresh(ctx context.Context, src Source, entry *sourceEntry, forceRefresh bool) {
	snap := entry.snap.Load()
	stale := snap == nil || forceRefresh || time.Since(snap.fetchedAt) > c.ttl
	if !stale {
		return
	}

	_, _, _ = entry.sf.Do(string(src), func() (any, error) {
		models, err := entry.adapter.Fetch(ctx)
		if err != nil {
			if c.log != nil {
				c.log.Error("catalog source fetch failed",
					slog.String("source", string(src)), slog.String("error", err.Error()))
			}
			return nil, err
		}
		entry.snap.Store(&snapshot{models: models, fetchedAt: time.Now()})
		return nil, nil
	})
}
