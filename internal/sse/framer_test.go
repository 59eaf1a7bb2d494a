package sse

import (
	"strings"
	"testing"
)

type recorder struct {
	chunks []string
	done   int
	errs   []string
}

func newRecorder() (*recorder, *Framer) {
	r := &recorder{}
	f := &Framer{
		OnChunk: func(content string) { r.chunks = append(r.chunks, content) },
		OnDone:  func() { r.done++ },
		OnError: func(message string) { r.errs = append(r.errs, message) },
	}
	return r, f
}

func TestFramer_SingleBufferMultipleEvents(t *testing.T) {
	r, f := newRecorder()

	stream := `data: {"choices":[{"delta":{"content":"Hel"}}]}

data: {"choices":[{"delta":{"content":"lo"}}]}

data: [DONE]

`
	f.Feed([]byte(stream))

	if got := strings.Join(r.chunks, ""); got != "Hello" {
		t.Fatalf("want Hello, got %q", got)
	}
	if r.done != 1 {
		t.Fatalf("want 1 done event, got %d", r.done)
	}
}

func TestFramer_SplitAcrossFeedCalls(t *testing.T) {
	r, f := newRecorder()

	whole := `data: {"choices":[{"delta":{"content":"Hel"}}]}` + "\n\n" + `data: {"choices":[{"delta":{"content":"lo"}}]}` + "\n\n" + `data: [DONE]` + "\n\n"

	for i := 0; i < len(whole); i++ {
		f.Feed([]byte{whole[i]})
	}

	if got := strings.Join(r.chunks, ""); got != "Hello" {
		t.Fatalf("want Hello, got %q", got)
	}
	if r.done != 1 {
		t.Fatalf("want 1 done event, got %d", r.done)
	}
}

func TestFramer_MidJSONSplitAcrossTwoBuffers(t *testing.T) {
	r, f := newRecorder()

	part1 := `data: {"choices":[{"delta":{"content":"He`
	part2 := `llo"}}]}` + "\n\n"

	f.Feed([]byte(part1))
	if len(r.chunks) != 0 {
		t.Fatalf("expected no emission before event completes, got %v", r.chunks)
	}

	f.Feed([]byte(part2))
	if len(r.chunks) != 1 || r.chunks[0] != "Hello" {
		t.Fatalf("want single emission Hello, got %v", r.chunks)
	}
}

func TestFramer_MalformedJSONDropped(t *testing.T) {
	r, f := newRecorder()

	stream := "data: {not json}\n\n" + `data: {"choices":[{"delta":{"content":"ok"}}]}` + "\n\n"
	f.Feed([]byte(stream))

	if got := strings.Join(r.chunks, ""); got != "ok" {
		t.Fatalf("want ok, got %q", got)
	}
}

func TestFramer_EmptyChoicesIgnored(t *testing.T) {
	r, f := newRecorder()

	f.Feed([]byte(`data: {"choices":[]}` + "\n\n"))

	if len(r.chunks) != 0 || len(r.errs) != 0 {
		t.Fatalf("expected no callbacks for empty choices, got chunks=%v errs=%v", r.chunks, r.errs)
	}
}

func TestFramer_ErrorObject(t *testing.T) {
	r, f := newRecorder()

	f.Feed([]byte(`data: {"error":{"message":"rate limited"}}` + "\n\n"))

	if len(r.errs) != 1 || r.errs[0] != "rate limited" {
		t.Fatalf("want single error 'rate limited', got %v", r.errs)
	}
}

func TestFramer_CommentLinesIgnored(t *testing.T) {
	r, f := newRecorder()

	stream := ": keepalive\n\n" + `data: {"choices":[{"delta":{"content":"x"}}]}` + "\n\n"
	f.Feed([]byte(stream))

	if got := strings.Join(r.chunks, ""); got != "x" {
		t.Fatalf("want x, got %q", got)
	}
}

func TestFramer_MultiLineDataConcatenated(t *testing.T) {
	r, f := newRecorder()

	// Two "data:" lines within one event: JSON split across lines joined by \n.
	stream := "data: {\"choices\":[{\"delta\":\ndata: {\"content\":\"joined\"}}]}\n\n"
	f.Feed([]byte(stream))

	if got := strings.Join(r.chunks, ""); got != "joined" {
		t.Fatalf("want joined, got %q", got)
	}
}

func TestFramer_EventFieldIgnored(t *testing.T) {
	r, f := newRecorder()

	stream := "event: message\n" + `data: {"choices":[{"delta":{"content":"y"}}]}` + "\n\n"
	f.Feed([]byte(stream))

	if got := strings.Join(r.chunks, ""); got != "y" {
		t.Fatalf("want y, got %q", got)
	}
}

func TestWriter_RoundTrip(t *testing.T) {
	var buf strings.Builder
	w := NewWriter(&buf)

	if err := w.WriteChunk("Hel"); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteChunk("lo"); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteDone(); err != nil {
		t.Fatal(err)
	}

	r, f := newRecorder()
	f.Feed([]byte(buf.String()))

	if got := strings.Join(r.chunks, ""); got != "Hello" {
		t.Fatalf("want Hello after round trip, got %q", got)
	}
	if r.done != 1 {
		t.Fatalf("want 1 done event after round trip, got %d", r.done)
	}
}
