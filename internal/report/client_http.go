package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"metalgrid.io/fleetd/internal/neighbor"
)

// httpClient POSTs event batches as JSON to the controller endpoint.
type httpClient struct {
	endpoint string
	client   *http.Client
}

// eventEnvelope is the wire format accepted by the controller's discovery
// ingest endpoint.
type eventEnvelope struct {
	Events []neighbor.Event `json:"events"`
}

func newHTTPClient(endpoint string, timeout time.Duration) *httpClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *httpClient) Publish(ctx context.Context, events []neighbor.Event) error {
	body, err := json.Marshal(eventEnvelope{Events: events})
	if err != nil {
		return fmt.Errorf("failed to encode event batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver event batch: %w", err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("controller rejected event batch: %s", resp.Status)
	}
	return nil
}

func (c *httpClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
