// Package upstream implements the Streaming Client (spec.md §4.7): a
// single upstream streaming call wrapped with the full resilience
// pipeline — circuit breaker gate, SSE parsing, retry-with-backoff, and
// telemetry — grounded on the pack's ResilientClient attempt loop.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/eternisai/multiai-gateway/internal/breaker"
	"github.com/eternisai/multiai-gateway/internal/catalog"
	"github.com/eternisai/multiai-gateway/internal/gwerrors"
	"github.com/eternisai/multiai-gateway/internal/retry"
	"github.com/eternisai/multiai-gateway/internal/sse"
	"github.com/eternisai/multiai-gateway/internal/telemetry"
)

// ChatMessage is one turn of the client's conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one Streaming Client invocation.
type Request struct {
	RequestID   string
	Model       string
	Source      catalog.Source
	Messages    []ChatMessage
	OnChunk     func(content string)
	OnComplete  func(Result)
	OnError     func(err error)
	CancelToken <-chan struct{}
}

// Result is delivered to OnComplete when a stream finishes successfully.
type Result struct {
	Content string
	TotalMs int64
	TTFTMs  int64
}

// Client wraps breaker, retry, telemetry, and the SSE framer around plain
// HTTP calls to the three upstream providers.
type Client struct {
	httpClient  *http.Client
	breaker     *breaker.Breaker
	retry       *retry.Policy
	telemetry   *telemetry.Logger
	credentials *Credentials
	routes      map[catalog.Source]Route
	now         func() time.Time
	after       func(time.Duration) <-chan time.Time
}

// WithClock overrides the clock and sleep function (for deterministic tests).
func (c *Client) WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) *Client {
	c.now = now
	c.after = after
	return c
}

// New constructs a Client. httpClient defaults to http.DefaultClient if nil.
func New(httpClient *http.Client, b *breaker.Breaker, r *retry.Policy, tel *telemetry.Logger, creds *Credentials) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient:  httpClient,
		breaker:     b,
		retry:       r,
		telemetry:   tel,
		credentials: creds,
		routes:      DefaultRoutes(),
		now:         time.Now,
		after:       time.After,
	}
}

// Stream runs the attempt loop described in spec.md §4.7 and invokes
// exactly one of req.OnComplete or req.OnError when terminal.
func (c *Client) Stream(ctx context.Context, req Request) {
	if c.breaker.IsOpen(req.Model) {
		err := gwerrors.NewCircuitOpenError(req.Model, c.breaker.ResetTime(req.Model))
		c.enqueueError(req, 0, err)
		req.OnError(err)
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if req.CancelToken != nil {
		go func() {
			select {
			case <-req.CancelToken:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	for attempt := 1; ; attempt++ {
		startedAt := c.now()
		content, ttft, err := c.attempt(ctx, req, startedAt)

		if err == nil {
			total := c.now().Sub(startedAt)
			c.breaker.RecordSuccess(req.Model)
			c.enqueueSuccess(req, attempt, ttft, total)
			req.OnComplete(Result{Content: content, TotalMs: total.Milliseconds(), TTFTMs: ttft.Milliseconds()})
			return
		}

		if isAbort(err) {
			req.OnError(err)
			return
		}

		c.enqueueError(req, attempt, err)

		if gwerrors.CountsTowardBreaker(err) {
			c.breaker.RecordFailure(req.Model)
		}

		if !c.retry.ShouldRetry(err, attempt) {
			req.OnError(err)
			return
		}

		select {
		case <-ctx.Done():
			req.OnError(gwerrors.NewAbortError(req.Model, string(req.Source)))
			return
		case <-c.after(c.retry.Delay(attempt)):
		}
	}
}

func isAbort(err error) bool {
	_, ok := err.(*gwerrors.AbortError)
	return ok
}

func (c *Client) enqueueSuccess(req Request, attempt int, ttft, total time.Duration) {
	if c.telemetry == nil {
		return
	}
	c.telemetry.Enqueue(telemetry.Event{
		Type:  telemetry.EventStreamingSuccess,
		Model: req.Model, Source: string(req.Source),
		DurationMs: total.Milliseconds(),
		Fields: map[string]any{
			"attempt_number": attempt,
			"ttft_ms":        ttft.Milliseconds(),
			"total_ms":       total.Milliseconds(),
		},
	})
}

func (c *Client) enqueueError(req Request, attempt int, err error) {
	if c.telemetry == nil {
		return
	}
	fields := map[string]any{"attempt_number": attempt}
	if ge, ok := err.(gwerrors.GatewayError); ok {
		if raw, marshalErr := ge.MarshalTelemetry(); marshalErr == nil {
			fields["error_json"] = string(raw)
		}
	} else {
		fields["error_json"] = err.Error()
	}
	c.telemetry.Enqueue(telemetry.Event{
		Type:  telemetry.EventStreamingError,
		Model: req.Model, Source: string(req.Source),
		Fields: fields,
	})
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

func (c *Client) buildBody(req Request) ([]byte, error) {
	return json.Marshal(chatCompletionRequest{
		Model:    stripProviderPrefix(req.Model, req.Source),
		Messages: req.Messages,
		Stream:   true,
	})
}

// attempt performs one HTTP POST + SSE read cycle, returning accumulated
// content and time-to-first-token on success.
func (c *Client) attempt(ctx context.Context, req Request, startedAt time.Time) (content string, ttft time.Duration, err error) {
	route, ok := c.routes[req.Source]
	if !ok {
		return "", 0, gwerrors.NewConfigurationError("no route configured for source "+string(req.Source), req.Model, string(req.Source))
	}
	if route.RequiresKey && !c.credentials.Configured(req.Source) {
		return "", 0, gwerrors.NewConfigurationError("missing credential for source "+string(req.Source), req.Model, string(req.Source))
	}

	body, err := c.buildBody(req)
	if err != nil {
		return "", 0, gwerrors.NewConfigurationError(err.Error(), req.Model, string(req.Source))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, route.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", 0, gwerrors.NewNetworkError(err.Error(), req.Model, string(req.Source))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if route.RequiresKey {
		httpReq.Header.Set("Authorization", "Bearer "+c.credentials.Get(req.Source))
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", 0, gwerrors.NewAbortError(req.Model, string(req.Source))
		}
		return "", 0, gwerrors.NewNetworkError(err.Error(), req.Model, string(req.Source))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", 0, gwerrors.NewRateLimitError(readBodySnippet(resp.Body), req.Model, string(req.Source), nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, gwerrors.NewUpstreamError(readBodySnippet(resp.Body), req.Model, string(req.Source), resp.StatusCode)
	}

	return c.readStream(ctx, req, resp.Body, startedAt, &ttft)
}

func (c *Client) readStream(ctx context.Context, req Request, body io.Reader, startedAt time.Time, ttft *time.Duration) (string, time.Duration, error) {
	var (
		builder    strings.Builder
		firstChunk sync.Once
		frameErr   error
		doneSeen   bool
	)

	framer := &sse.Framer{
		OnChunk: func(text string) {
			firstChunk.Do(func() { *ttft = time.Since(startedAt) })
			builder.WriteString(text)
			if req.OnChunk != nil {
				req.OnChunk(text)
			}
		},
		OnDone: func() { doneSeen = true },
		OnError: func(message string) {
			frameErr = gwerrors.NewUpstreamError(message, req.Model, string(req.Source), 0)
		},
	}

	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return builder.String(), *ttft, gwerrors.NewAbortError(req.Model, string(req.Source))
		default:
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			framer.Feed(buf[:n])
			if frameErr != nil {
				return builder.String(), *ttft, frameErr
			}
			if doneSeen {
				return builder.String(), *ttft, nil
			}
		}
		if readErr != nil {
			framer.Close()
			if readErr == io.EOF {
				if doneSeen || builder.Len() > 0 {
					return builder.String(), *ttft, nil
				}
				return builder.String(), *ttft, gwerrors.NewUpstreamError("stream ended before completion marker", req.Model, string(req.Source), 0)
			}
			if ctx.Err() != nil {
				return builder.String(), *ttft, gwerrors.NewAbortError(req.Model, string(req.Source))
			}
			return builder.String(), *ttft, gwerrors.NewNetworkError(readErr.Error(), req.Model, string(req.Source))
		}
	}
}

func readBodySnippet(r io.Reader) string {
	buf := make([]byte, 512)
	n, _ := io.ReadFull(r, buf)
	if n == 0 {
		return "upstream error"
	}
	return fmt.Sprintf("%s", buf[:n])
}
