// Package ginerr carries the teacher's per-status gin response helper
// pattern (internal/errors/*.go): every helper responds with an APIError
// body, and AbortWithGatewayError maps the gateway's own tagged error
// taxonomy (gwerrors) to an HTTP status and records the error kind in it.
package ginerr

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eternisai/multiai-gateway/internal/gwerrors"
)

// APIError is the standardized JSON error body for every non-2xx response.
type APIError struct {
	Error   string         `json:"error"`
	Kind    gwerrors.Kind  `json:"kind,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// NewAPIError builds an APIError with the given message and optional details.
func NewAPIError(message string, details map[string]any) *APIError {
	return &APIError{Error: message, Details: details}
}

// AbortWithBadRequest sends a 400 response and aborts the request.
func AbortWithBadRequest(c *gin.Context, message string, details map[string]any) {
	c.AbortWithStatusJSON(http.StatusBadRequest, NewAPIError(message, details))
}

// AbortWithNotFound sends a 404 response and aborts the request.
func AbortWithNotFound(c *gin.Context, message string, details map[string]any) {
	c.AbortWithStatusJSON(http.StatusNotFound, NewAPIError(message, details))
}

// AbortWithInternal sends a 500 response and aborts the request.
func AbortWithInternal(c *gin.Context, message string, details map[string]any) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, NewAPIError(message, details))
}

// statusFor maps a gwerrors.Kind to the HTTP status it should surface as.
func statusFor(kind gwerrors.Kind) int {
	switch kind {
	case gwerrors.KindRateLimit:
		return http.StatusTooManyRequests
	case gwerrors.KindCircuitOpen:
		return http.StatusServiceUnavailable
	case gwerrors.KindConfiguration:
		return http.StatusUnprocessableEntity
	case gwerrors.KindSpendingCap:
		return http.StatusPaymentRequired
	case gwerrors.KindAbort:
		return http.StatusRequestTimeout
	case gwerrors.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AbortWithGatewayError renders any gwerrors.GatewayError as the response
// status its kind maps to (spec.md §7's propagation rules) and aborts.
func AbortWithGatewayError(c *gin.Context, err error) {
	ge, ok := err.(gwerrors.GatewayError)
	if !ok {
		AbortWithInternal(c, err.Error(), nil)
		return
	}
	if circuitErr, ok := err.(*gwerrors.CircuitOpenError); ok {
		seconds := int(time.Until(circuitErr.ResetAt).Seconds())
		if seconds < 0 {
			seconds = 0
		}
		c.Header("Retry-After", strconv.Itoa(seconds))
	}
	body := NewAPIError(ge.Error(), nil)
	body.Kind = ge.Kind()
	c.AbortWithStatusJSON(statusFor(ge.Kind()), body)
}
