package fanout

import (
	"context"
	"errors"
	"testing"

	"github.com/eternisai/multiai-gateway/internal/catalog"
	"github.com/eternisai/multiai-gateway/internal/upstream"
)

// fakeStreamer resolves each Stream call according to a per-model script,
// so tests can exercise success and partial-failure scenarios without real
// HTTP servers.
type fakeStreamer struct {
	results map[string]streamOutcome
}

type streamOutcome struct {
	content string
	err     error
}

func (f *fakeStreamer) Stream(ctx context.Context, req upstream.Request) {
	outcome := f.results[req.Model]
	if outcome.err != nil {
		req.OnError(outcome.err)
		return
	}
	req.OnChunk(outcome.content)
	req.OnComplete(upstream.Result{Content: outcome.content, TotalMs: 10, TTFTMs: 5})
}

func TestDispatch_ValidatesEmptySelection(t *testing.T) {
	r := New(&fakeStreamer{}, 3)
	_, err := r.Dispatch(context.Background(), Request{})
	if !errors.Is(err, ErrEmptySelection) {
		t.Fatalf("want ErrEmptySelection, got %v", err)
	}
}

func TestDispatch_ValidatesTooManyModels(t *testing.T) {
	r := New(&fakeStreamer{}, 2)
	req := Request{Models: []ModelSelection{
		{ModelID: "a", Source: catalog.SourceOllama},
		{ModelID: "b", Source: catalog.SourceOllama},
		{ModelID: "c", Source: catalog.SourceOllama},
	}}
	_, err := r.Dispatch(context.Background(), req)
	if !errors.Is(err, ErrTooManyModels) {
		t.Fatalf("want ErrTooManyModels, got %v", err)
	}
}

func TestDispatch_ValidatesDuplicateModels(t *testing.T) {
	r := New(&fakeStreamer{}, 3)
	req := Request{Models: []ModelSelection{
		{ModelID: "a", Source: catalog.SourceOllama},
		{ModelID: "a", Source: catalog.SourceOllama},
	}}
	_, err := r.Dispatch(context.Background(), req)
	if !errors.Is(err, ErrDuplicateModel) {
		t.Fatalf("want ErrDuplicateModel, got %v", err)
	}
}

func TestDispatch_AllSucceed(t *testing.T) {
	streamer := &fakeStreamer{results: map[string]streamOutcome{
		"a": {content: "alpha"},
		"b": {content: "beta"},
	}}
	r := New(streamer, 3)
	req := Request{Models: []ModelSelection{
		{ModelID: "a", Source: catalog.SourceOllama},
		{ModelID: "b", Source: catalog.SourceOpenRouter},
	}}

	records, err := r.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("want 2 records, got %d", len(records))
	}
	for _, rec := range records {
		if rec.Error != nil || rec.Loading {
			t.Fatalf("want terminal success record, got %+v", rec.Snapshot())
		}
	}
}

func TestDispatch_PartialFailureStillSucceeds(t *testing.T) {
	boom := errors.New("boom")
	streamer := &fakeStreamer{results: map[string]streamOutcome{
		"a": {content: "alpha"},
		"b": {err: boom},
	}}
	r := New(streamer, 3)
	req := Request{Models: []ModelSelection{
		{ModelID: "a", Source: catalog.SourceOllama},
		{ModelID: "b", Source: catalog.SourceOpenRouter},
	}}

	records, err := r.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("expected overall success with one failing model, got %v", err)
	}

	var failed, succeeded int
	for _, rec := range records {
		s := rec.Snapshot()
		if s.Error != nil {
			failed++
		} else {
			succeeded++
		}
	}
	if failed != 1 || succeeded != 1 {
		t.Fatalf("want 1 failed and 1 succeeded, got failed=%d succeeded=%d", failed, succeeded)
	}
}

func TestDispatch_AllFailedReturnsError(t *testing.T) {
	boom := errors.New("boom")
	streamer := &fakeStreamer{results: map[string]streamOutcome{
		"a": {err: boom},
		"b": {err: boom},
	}}
	r := New(streamer, 3)
	req := Request{Models: []ModelSelection{
		{ModelID: "a", Source: catalog.SourceOllama},
		{ModelID: "b", Source: catalog.SourceOpenRouter},
	}}

	_, err := r.Dispatch(context.Background(), req)
	if !errors.Is(err, boom) {
		t.Fatalf("want the first model's error (boom), got %v", err)
	}
}

func TestStreamOne_ForwardsChunksDirectly(t *testing.T) {
	streamer := &fakeStreamer{results: map[string]streamOutcome{"a": {content: "hi"}}}
	r := New(streamer, 3)

	var got string
	var completed upstream.Result
	r.StreamOne(context.Background(), ModelSelection{ModelID: "a", Source: catalog.SourceOllama}, nil, nil,
		func(c string) { got += c },
		func(res upstream.Result) { completed = res },
		func(error) { t.Fatal("unexpected error callback") },
	)

	if got != "hi" {
		t.Fatalf("want hi, got %q", got)
	}
	if completed.Content != "hi" {
		t.Fatalf("want completion content hi, got %q", completed.Content)
	}
}
