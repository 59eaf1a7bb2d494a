// Package gwerrors defines the tagged error taxonomy shared by the streaming
// client, the fanout router, and the telemetry logger. Every variant carries
// its own retryability so the retry policy and the circuit breaker never
// need to re-derive it from a status code.
package gwerrors

import (
	"encoding/json"
	"time"
)

// Kind identifies an error variant for telemetry serialization and for
// switch-based handling in callers that need to special-case one kind.
type Kind string

const (
	KindNetwork       Kind = "network_error"
	KindRateLimit     Kind = "rate_limit_error"
	KindUpstream      Kind = "upstream_error"
	KindCircuitOpen   Kind = "circuit_open_error"
	KindAbort         Kind = "abort_error"
	KindConfiguration Kind = "configuration_error"
	KindSpendingCap   Kind = "spending_cap_error"
)

// GatewayError is satisfied by every tagged variant in this package.
type GatewayError interface {
	error
	Kind() Kind
	Retryable() bool
	// MarshalTelemetry renders a flat JSON object suitable for a telemetry event.
	// Never includes raw message content.
	MarshalTelemetry() ([]byte, error)
}

type base struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Model     string    `json:"model,omitempty"`
	Source    string    `json:"source,omitempty"`
}

func newBase(message, model, source string) base {
	return base{Message: message, Timestamp: time.Now().UTC(), Model: model, Source: source}
}

func (b base) Error() string { return b.Message }

// NetworkError represents a transport failure: DNS, TCP/TLS, or a timed-out
// read. Always retryable.
type NetworkError struct {
	base
	overrideRetryable *bool
}

func NewNetworkError(message, model, source string) *NetworkError {
	return &NetworkError{base: newBase(message, model, source)}
}

func (e *NetworkError) Kind() Kind { return KindNetwork }

func (e *NetworkError) Retryable() bool {
	if e.overrideRetryable != nil {
		return *e.overrideRetryable
	}
	return true
}

// WithRetryable overrides the default retryability for this instance.
func (e *NetworkError) WithRetryable(retryable bool) *NetworkError {
	e.overrideRetryable = &retryable
	return e
}

func (e *NetworkError) MarshalTelemetry() ([]byte, error) {
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		base
	}{e.Kind(), e.base})
}

// RateLimitError represents an upstream 429 or an explicit rate-limit signal.
// Retryable by default. It carries an optional RetryAfter; the retry
// policy's backoff delay does not read it.
type RateLimitError struct {
	base
	RetryAfter        *time.Duration `json:"retry_after_ms,omitempty"`
	overrideRetryable *bool
}

func NewRateLimitError(message, model, source string, retryAfter *time.Duration) *RateLimitError {
	return &RateLimitError{base: newBase(message, model, source), RetryAfter: retryAfter}
}

func (e *RateLimitError) Kind() Kind { return KindRateLimit }

func (e *RateLimitError) Retryable() bool {
	if e.overrideRetryable != nil {
		return *e.overrideRetryable
	}
	return true
}

func (e *RateLimitError) WithRetryable(retryable bool) *RateLimitError {
	e.overrideRetryable = &retryable
	return e
}

func (e *RateLimitError) MarshalTelemetry() ([]byte, error) {
	var retryAfterMs *int64
	if e.RetryAfter != nil {
		ms := e.RetryAfter.Milliseconds()
		retryAfterMs = &ms
	}
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		base
		RetryAfterMs *int64 `json:"retry_after_ms,omitempty"`
	}{e.Kind(), e.base, retryAfterMs})
}

// UpstreamError represents a non-2xx upstream response with a parsed error
// message. Retryable iff the status code is >= 500.
type UpstreamError struct {
	base
	StatusCode        int `json:"status_code"`
	overrideRetryable *bool
}

func NewUpstreamError(message, model, source string, statusCode int) *UpstreamError {
	return &UpstreamError{base: newBase(message, model, source), StatusCode: statusCode}
}

func (e *UpstreamError) Kind() Kind { return KindUpstream }

func (e *UpstreamError) Retryable() bool {
	if e.overrideRetryable != nil {
		return *e.overrideRetryable
	}
	return e.StatusCode >= 500
}

func (e *UpstreamError) WithRetryable(retryable bool) *UpstreamError {
	e.overrideRetryable = &retryable
	return e
}

func (e *UpstreamError) MarshalTelemetry() ([]byte, error) {
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		base
		StatusCode int `json:"status_code"`
	}{e.Kind(), e.base, e.StatusCode})
}

// CircuitOpenError means the breaker refused the request outright. Never
// retryable by the retry policy (the caller already failed fast).
type CircuitOpenError struct {
	base
	ResetAt time.Time `json:"reset_at"`
}

func NewCircuitOpenError(model string, resetAt time.Time) *CircuitOpenError {
	return &CircuitOpenError{
		base:    newBase("circuit open for model "+model, model, ""),
		ResetAt: resetAt,
	}
}

func (e *CircuitOpenError) Kind() Kind      { return KindCircuitOpen }
func (e *CircuitOpenError) Retryable() bool { return false }

func (e *CircuitOpenError) MarshalTelemetry() ([]byte, error) {
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		base
		ResetAt time.Time `json:"reset_at"`
	}{e.Kind(), e.base, e.ResetAt})
}

// AbortError represents client-initiated cancellation. Never retryable and
// never counted against the circuit breaker.
type AbortError struct {
	base
}

func NewAbortError(model, source string) *AbortError {
	return &AbortError{base: newBase("aborted", model, source)}
}

func (e *AbortError) Kind() Kind      { return KindAbort }
func (e *AbortError) Retryable() bool { return false }

func (e *AbortError) MarshalTelemetry() ([]byte, error) {
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		base
	}{e.Kind(), e.base})
}

// ConfigurationError means the selected source is missing or has invalid
// credentials. Never retryable.
type ConfigurationError struct {
	base
}

func NewConfigurationError(message, model, source string) *ConfigurationError {
	return &ConfigurationError{base: newBase(message, model, source)}
}

func (e *ConfigurationError) Kind() Kind      { return KindConfiguration }
func (e *ConfigurationError) Retryable() bool { return false }

func (e *ConfigurationError) MarshalTelemetry() ([]byte, error) {
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		base
	}{e.Kind(), e.base})
}

// SpendingCapError means the ledger rejected the request pre-flight. Never
// retryable.
type SpendingCapError struct {
	base
	Window string `json:"window"` // "daily" or "monthly"
}

func NewSpendingCapError(message, window string) *SpendingCapError {
	return &SpendingCapError{base: newBase(message, "", ""), Window: window}
}

func (e *SpendingCapError) Kind() Kind      { return KindSpendingCap }
func (e *SpendingCapError) Retryable() bool { return false }

func (e *SpendingCapError) MarshalTelemetry() ([]byte, error) {
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		base
		Window string `json:"window"`
	}{e.Kind(), e.base, e.Window})
}

// CountsTowardBreaker reports whether err should be recorded as a failure by
// the circuit breaker (spec.md §4.4): rate limits, 5xx upstream errors, and
// network errors count; configuration, spending-cap, and abort errors don't.
func CountsTowardBreaker(err error) bool {
	switch e := err.(type) {
	case *RateLimitError:
		return true
	case *UpstreamError:
		return e.StatusCode >= 500
	case *NetworkError:
		return true
	default:
		return false
	}
}
