// Package fanout implements the Fanout Router (spec.md §4.8): it turns one
// client call into N parallel Streaming Client invocations and merges their
// results, succeeding as long as at least one model completes.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/eternisai/multiai-gateway/internal/catalog"
	"github.com/eternisai/multiai-gateway/internal/upstream"
)

var (
	ErrEmptySelection  = errors.New("model_selection must be non-empty")
	ErrTooManyModels   = errors.New("model_selection exceeds the configured maximum")
	ErrDuplicateModel  = errors.New("model_selection contains a duplicate model id")
	ErrAllModelsFailed = errors.New("all models in the selection failed")
)

// ModelSelection is one entry of a client call's ordered model list.
type ModelSelection struct {
	ModelID string
	Source  catalog.Source
}

// PerModelRecord tracks one model's in-flight or terminal state within a
// Dispatch call.
type PerModelRecord struct {
	Model   string
	Source  catalog.Source
	Loading bool
	Content string
	Error   error
	TTFTMs  int64
	TotalMs int64

	mu sync.Mutex
}

func (r *PerModelRecord) appendChunk(content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Content += content
}

func (r *PerModelRecord) complete(res upstream.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Loading = false
	r.TTFTMs = res.TTFTMs
	r.TotalMs = res.TotalMs
}

func (r *PerModelRecord) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Loading = false
	r.Error = err
}

// Snapshot returns a concurrency-safe copy of the record's current fields.
func (r *PerModelRecord) Snapshot() PerModelRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return PerModelRecord{Model: r.Model, Source: r.Source, Loading: r.Loading, Content: r.Content, Error: r.Error, TTFTMs: r.TTFTMs, TotalMs: r.TotalMs}
}

// Request describes one client call to be fanned out.
type Request struct {
	ClientRequestID string
	Models          []ModelSelection
	Messages        []upstream.ChatMessage
	CancelToken     <-chan struct{}
}

// Streamer is the subset of upstream.Client's surface the router depends
// on, so tests can inject a fake without spinning up real HTTP servers.
type Streamer interface {
	Stream(ctx context.Context, req upstream.Request)
}

// Router dispatches N concurrent Streaming Client invocations per call.
type Router struct {
	streamer  Streamer
	maxModels int
}

// New constructs a Router bounded at maxModels concurrent models per call.
func New(streamer Streamer, maxModels int) *Router {
	return &Router{streamer: streamer, maxModels: maxModels}
}

// Validate checks the preconditions from spec.md §4.8 before dispatch:
// non-empty, within the configured cap, and no duplicate model ids.
func (req Request) Validate(maxModels int) error {
	if len(req.Models) == 0 {
		return ErrEmptySelection
	}
	if len(req.Models) > maxModels {
		return fmt.Errorf("%w: got %d, max %d", ErrTooManyModels, len(req.Models), maxModels)
	}
	seen := make(map[string]bool, len(req.Models))
	for _, m := range req.Models {
		if seen[m.ModelID] {
			return fmt.Errorf("%w: %s", ErrDuplicateModel, m.ModelID)
		}
		seen[m.ModelID] = true
	}
	return nil
}

// Dispatch runs all N models concurrently to completion and returns their
// per-model aggregation records. It resolves once every record is terminal,
// succeeding as long as at least one model completed; it never aborts a
// sibling model because another one failed.
func (r *Router) Dispatch(ctx context.Context, req Request) ([]*PerModelRecord, error) {
	if err := req.Validate(r.maxModels); err != nil {
		return nil, err
	}

	records := make([]*PerModelRecord, len(req.Models))
	// Plain errgroup with no derived context: a failing model must never
	// cancel its siblings, only sync.WaitGroup-style completion tracking
	// is wanted here (Go always returns nil; failures live in the record).
	var g errgroup.Group

	for i, sel := range req.Models {
		rec := &PerModelRecord{Model: sel.ModelID, Source: sel.Source, Loading: true}
		records[i] = rec

		sel, rec := sel, rec
		g.Go(func() error {
			r.streamer.Stream(ctx, upstream.Request{
				RequestID:   uuid.NewString(),
				Model:       sel.ModelID,
				Source:      sel.Source,
				Messages:    req.Messages,
				CancelToken: req.CancelToken,
				OnChunk:     rec.appendChunk,
				OnComplete:  rec.complete,
				OnError:     rec.fail,
			})
			return nil
		})
	}

	_ = g.Wait()

	succeeded := 0
	for _, rec := range records {
		if rec.Error == nil {
			succeeded++
		}
	}
	if succeeded == 0 {
		// Surface the first model's error verbatim (spec.md §7) so the API
		// layer maps the real gwerrors kind/status instead of a generic 500.
		for _, rec := range records {
			if rec.Error != nil {
				return records, rec.Error
			}
		}
		return records, ErrAllModelsFailed
	}
	return records, nil
}

// StreamOne runs a single model and forwards its chunks directly, for the
// single-model streaming-egress path (spec.md §4.8 mode 1) where the
// gateway pipes chunks 1:1 to the client instead of aggregating.
func (r *Router) StreamOne(ctx context.Context, sel ModelSelection, messages []upstream.ChatMessage, cancel <-chan struct{}, onChunk func(string), onComplete func(upstream.Result), onError func(error)) {
	r.streamer.Stream(ctx, upstream.Request{
		RequestID:   uuid.NewString(),
		Model:       sel.ModelID,
		Source:      sel.Source,
		Messages:    messages,
		CancelToken: cancel,
		OnChunk:     onChunk,
		OnComplete:  onComplete,
		OnError:     onError,
	})
}
