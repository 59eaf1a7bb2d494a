package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eternisai/multiai-gateway/internal/catalog"
	"github.com/eternisai/multiai-gateway/internal/fanout"
	"github.com/eternisai/multiai-gateway/internal/ginerr"
	"github.com/eternisai/multiai-gateway/internal/sse"
	"github.com/eternisai/multiai-gateway/internal/upstream"
)

// chatMessage mirrors the OpenAI chat message shape on the wire.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionRequest is the body accepted by POST /v1/chat/completions
// (spec.md §6).
type chatCompletionRequest struct {
	Model    string        `json:"model" binding:"required"`
	Messages []chatMessage `json:"messages" binding:"required"`
	Stream   bool          `json:"stream"`
}

// estimatedCostPerRequest is the pluggable cost estimator spec.md §9 leaves
// unspecified beyond "check before admission, record on completion". Every
// model this gateway routes to is a free-tier model by construction (C3
// filters for zero pricing), so a flat near-zero estimate keeps the ledger
// exercised without pretending to meter a cost the upstream doesn't charge.
const estimatedCostPerRequest = 0.0001

// validMessageRoles are the only roles a Client Call message may carry
// (spec.md §3's Client Call invariant).
var validMessageRoles = map[string]bool{"system": true, "user": true, "assistant": true}

// validateMessages rejects a Client Call whose messages don't satisfy
// spec.md §3: every role must be one of system/user/assistant, and content
// must be non-empty.
func validateMessages(messages []chatMessage) error {
	for i, m := range messages {
		if !validMessageRoles[m.Role] {
			return fmt.Errorf("messages[%d]: invalid role %q", i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return fmt.Errorf("messages[%d]: content must not be empty", i)
		}
	}
	return nil
}

func resolveModelSelection(modelID string) (fanout.ModelSelection, bool) {
	idx := strings.IndexByte(modelID, '/')
	if idx < 0 {
		return fanout.ModelSelection{}, false
	}
	src := catalog.Source(modelID[:idx])
	switch src {
	case catalog.SourceOllama, catalog.SourceOpenCodeZen, catalog.SourceOpenRouter:
		return fanout.ModelSelection{ModelID: modelID, Source: src}, true
	default:
		return fanout.ModelSelection{}, false
	}
}

func (s *Server) handleChatCompletions(c *gin.Context) {
	var req chatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ginerr.AbortWithBadRequest(c, "invalid request body: "+err.Error(), nil)
		return
	}

	sel, ok := resolveModelSelection(req.Model)
	if !ok {
		ginerr.AbortWithBadRequest(c, "unknown or malformed model id: "+req.Model, nil)
		return
	}

	if err := validateMessages(req.Messages); err != nil {
		ginerr.AbortWithBadRequest(c, err.Error(), nil)
		return
	}

	if err := s.ledger.Check(estimatedCostPerRequest); err != nil {
		ginerr.AbortWithGatewayError(c, err)
		return
	}

	messages := make([]upstream.ChatMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = upstream.ChatMessage{Role: m.Role, Content: m.Content}
	}

	clientRequestID := c.GetHeader("X-Client-Request-ID")
	if clientRequestID == "" {
		clientRequestID = uuid.NewString()
	}
	cancel := c.Request.Context().Done()

	if req.Stream {
		s.streamSingleModel(c, sel, messages, cancel)
		return
	}
	s.completeSingleModel(c, sel, messages, cancel, clientRequestID)
}

func (s *Server) streamSingleModel(c *gin.Context, sel fanout.ModelSelection, messages []upstream.ChatMessage, cancel <-chan struct{}) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		ginerr.AbortWithInternal(c, "streaming not supported", nil)
		return
	}
	writer := sse.NewWriter(c.Writer)

	done := make(chan struct{})
	var handlerErr error

	s.router.StreamOne(c.Request.Context(), sel, messages, cancel,
		func(content string) {
			_ = writer.WriteChunk(content)
			flusher.Flush()
		},
		func(res upstream.Result) {
			_ = writer.WriteDone()
			flusher.Flush()
			requestsTotal.WithLabelValues("chat_completions_stream", "success").Inc()
			modelRequestsTotal.WithLabelValues(sel.ModelID, string(sel.Source), "success").Inc()
			_ = s.ledger.Record(estimatedCostPerRequest)
			close(done)
		},
		func(err error) {
			handlerErr = err
			_ = writer.WriteError(err.Error())
			flusher.Flush()
			requestsTotal.WithLabelValues("chat_completions_stream", "error").Inc()
			modelRequestsTotal.WithLabelValues(sel.ModelID, string(sel.Source), "error").Inc()
			close(done)
		},
	)

	<-done
	if handlerErr != nil && s.log != nil {
		s.log.Error("chat completion stream failed", "model", sel.ModelID, "error", handlerErr.Error())
	}
}

// chatCompletionResponse is the non-streaming OpenAI-compatible response
// shape (spec.md §6: "choices[0].message.content").
type chatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Model   string                 `json:"model"`
	Choices []chatCompletionChoice `json:"choices"`
}

type chatCompletionChoice struct {
	Index   int         `json:"index"`
	Message chatMessage `json:"message"`
}

func (s *Server) completeSingleModel(c *gin.Context, sel fanout.ModelSelection, messages []upstream.ChatMessage, cancel <-chan struct{}, requestID string) {
	records, err := s.router.Dispatch(c.Request.Context(), fanout.Request{
		ClientRequestID: requestID,
		Models:          []fanout.ModelSelection{sel},
		Messages:        messages,
		CancelToken:     cancel,
	})
	if err != nil {
		requestsTotal.WithLabelValues("chat_completions", "error").Inc()
		ginerr.AbortWithGatewayError(c, err)
		return
	}

	rec := records[0].Snapshot()
	if rec.Error != nil {
		requestsTotal.WithLabelValues("chat_completions", "error").Inc()
		modelRequestsTotal.WithLabelValues(sel.ModelID, string(sel.Source), "error").Inc()
		ginerr.AbortWithGatewayError(c, rec.Error)
		return
	}

	requestsTotal.WithLabelValues("chat_completions", "success").Inc()
	modelRequestsTotal.WithLabelValues(sel.ModelID, string(sel.Source), "success").Inc()
	_ = s.ledger.Record(estimatedCostPerRequest)

	c.JSON(http.StatusOK, chatCompletionResponse{
		ID:     uuid.NewString(),
		Object: "chat.completion",
		Model:  sel.ModelID,
		Choices: []chatCompletionChoice{{
			Index:   0,
			Message: chatMessage{Role: "assistant", Content: rec.Content},
		}},
	})
}
