package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTPSink posts a flushed batch as a JSON array to a configured endpoint.
// A nil endpoint (spec.md §6's telemetry.endpoint=null) means telemetry is
// collected in-process but never sent; callers should pass a nil Sink to
// New in that case rather than constructing an HTTPSink.
type HTTPSink struct {
	endpoint   string
	httpClient *http.Client
}

func NewHTTPSink(endpoint string, httpClient *http.Client) *HTTPSink {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPSink{endpoint: endpoint, httpClient: httpClient}
}

func (s *HTTPSink) Send(ctx context.Context, events []Event) error {
	body, err := json.Marshal(events)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telemetry sink returned status %d", resp.StatusCode)
	}
	return nil
}
