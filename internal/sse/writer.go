package sse

import (
	"encoding/json"
	"io"

	ginsse "github.com/gin-contrib/sse"
)

// Writer serializes chat-completion chunks into the egress SSE wire format
// (spec.md §4.1) and writes them to an underlying io.Writer (typically the
// gin response writer, flushed after every event by the caller), using
// gin-contrib/sse's wire encoder instead of hand-rolled framing.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

type deltaChunk struct {
	Choices []deltaChoice `json:"choices"`
}

type deltaChoice struct {
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
}

type errorEvent struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// WriteChunk emits one content delta as a `data:` event.
func (w *Writer) WriteChunk(content string) error {
	chunk := deltaChunk{Choices: []deltaChoice{{}}}
	chunk.Choices[0].Delta.Content = content

	payload, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	// Data is passed as a string so Encode writes it verbatim (a []byte
	// would be JSON-encoded as base64); the leading space yields "data: ".
	return ginsse.Encode(w.w, ginsse.Event{Data: " " + string(payload)})
}

// WriteError emits a mid-stream error event. The caller is responsible for
// closing the stream immediately afterward, per spec.md §4.1.
func (w *Writer) WriteError(message string) error {
	var evt errorEvent
	evt.Error.Message = message

	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return ginsse.Encode(w.w, ginsse.Event{Data: " " + string(payload)})
}

// WriteDone emits the terminal `[DONE]` sentinel.
func (w *Writer) WriteDone() error {
	return ginsse.Encode(w.w, ginsse.Event{Data: " [DONE]"})
}
