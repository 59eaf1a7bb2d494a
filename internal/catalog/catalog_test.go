package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeAdapter struct {
	src     Source
	calls   int32
	models  []ModelDescriptor
	failNow bool
}

func (f *fakeAdapter) Source() Source { return f.src }

func (f *fakeAdapter) Fetch(ctx context.Context) ([]ModelDescriptor, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.failNow {
		return nil, errors.New("fetch failed")
	}
	return f.models, nil
}

func TestCatalog_FlatListingOrderedBySourcePriorityThenName(t *testing.T) {
	ollama := &fakeAdapter{src: SourceOllama, models: []ModelDescriptor{
		{ID: "ollama/zeta", DisplayName: "Zeta", Source: SourceOllama, IsFree: true},
	}}
	zen := &fakeAdapter{src: SourceOpenCodeZen, models: []ModelDescriptor{
		{ID: "open_code_zen/alpha", DisplayName: "Alpha", Source: SourceOpenCodeZen, IsFree: true},
	}}
	router := &fakeAdapter{src: SourceOpenRouter, models: []ModelDescriptor{
		{ID: "openrouter/beta", DisplayName: "Beta", Source: SourceOpenRouter, IsFree: true},
	}}

	c := New(time.Minute, nil, ollama, zen, router)
	got := c.List(context.Background(), false)

	if len(got) != 3 {
		t.Fatalf("want 3 models, got %d", len(got))
	}
	wantOrder := []string{"ollama/zeta", "open_code_zen/alpha", "openrouter/beta"}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Fatalf("position %d: want %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestCatalog_NonFreeModelsExcluded(t *testing.T) {
	router := &fakeAdapter{src: SourceOpenRouter, models: []ModelDescriptor{
		{ID: "openrouter/paid", DisplayName: "Paid", Source: SourceOpenRouter, IsFree: false},
		{ID: "openrouter/free", DisplayName: "Free", Source: SourceOpenRouter, IsFree: true},
	}}
	c := New(time.Minute, nil, router)

	got := c.List(context.Background(), false)
	if len(got) != 1 || got[0].ID != "openrouter/free" {
		t.Fatalf("want only the free model, got %v", got)
	}
}

func TestCatalog_CachesWithinTTL(t *testing.T) {
	adapter := &fakeAdapter{src: SourceOllama, models: []ModelDescriptor{
		{ID: "ollama/a", DisplayName: "A", Source: SourceOllama, IsFree: true},
	}}
	c := New(time.Hour, nil, adapter)

	c.List(context.Background(), false)
	c.List(context.Background(), false)
	c.List(context.Background(), false)

	if got := atomic.LoadInt32(&adapter.calls); got != 1 {
		t.Fatalf("want exactly 1 fetch within TTL, got %d", got)
	}
}

func TestCatalog_ForceRefreshBypassesCache(t *testing.T) {
	adapter := &fakeAdapter{src: SourceOllama, models: []ModelDescriptor{
		{ID: "ollama/a", DisplayName: "A", Source: SourceOllama, IsFree: true},
	}}
	c := New(time.Hour, nil, adapter)

	c.List(context.Background(), false)
	c.List(context.Background(), true)

	if got := atomic.LoadInt32(&adapter.calls); got != 2 {
		t.Fatalf("want 2 fetches with one forced refresh, got %d", got)
	}
}

func TestCatalog_RefreshesAfterTTLExpires(t *testing.T) {
	adapter := &fakeAdapter{src: SourceOllama, models: []ModelDescriptor{
		{ID: "ollama/a", DisplayName: "A", Source: SourceOllama, IsFree: true},
	}}
	c := New(10*time.Millisecond, nil, adapter)

	c.List(context.Background(), false)
	time.Sleep(20 * time.Millisecond)
	c.List(context.Background(), false)

	if got := atomic.LoadInt32(&adapter.calls); got != 2 {
		t.Fatalf("want 2 fetches after TTL expiry, got %d", got)
	}
}

func TestCatalog_FailedFetchRetainsPreviousSnapshot(t *testing.T) {
	adapter := &fakeAdapter{src: SourceOllama, models: []ModelDescriptor{
		{ID: "ollama/a", DisplayName: "A", Source: SourceOllama, IsFree: true},
	}}
	c := New(5*time.Millisecond, nil, adapter)

	first := c.List(context.Background(), false)
	if len(first) != 1 {
		t.Fatalf("want 1 model on first fetch, got %d", len(first))
	}

	adapter.failNow = true
	time.Sleep(10 * time.Millisecond)
	second := c.List(context.Background(), false)

	if len(second) != 1 || second[0].ID != "ollama/a" {
		t.Fatalf("want previous snapshot retained on fetch failure, got %v", second)
	}
}

func TestCatalog_GroupedListingGroupsAcrossSourcesAndOrdersProviders(t *testing.T) {
	ollama := &fakeAdapter{src: SourceOllama, models: []ModelDescriptor{
		{ID: "ollama/llama-3", DisplayName: "Llama 3", Source: SourceOllama, IsFree: true},
	}}
	zen := &fakeAdapter{src: SourceOpenCodeZen, models: []ModelDescriptor{
		{ID: "open_code_zen/llama-3", DisplayName: "Llama 3", Source: SourceOpenCodeZen, IsFree: true},
	}}
	router := &fakeAdapter{src: SourceOpenRouter, models: []ModelDescriptor{
		{ID: "openrouter/llama-3", DisplayName: "Llama 3", Source: SourceOpenRouter, IsFree: true},
	}}

	c := New(time.Minute, nil, ollama, zen, router)
	groups := c.ListGrouped(context.Background(), false)

	if len(groups) != 1 {
		t.Fatalf("want 1 grouped model, got %d", len(groups))
	}
	g := groups[0]
	if len(g.Providers) != 3 {
		t.Fatalf("want 3 provider options, got %d", len(g.Providers))
	}
	wantOrder := []Source{SourceOpenCodeZen, SourceOpenRouter, SourceOllama}
	for i, src := range wantOrder {
		if g.Providers[i].Source != src {
			t.Fatalf("provider position %d: want %s, got %s", i, src, g.Providers[i].Source)
		}
	}
}
