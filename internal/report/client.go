// Package report batches binding-table change events and forwards them to
// the controller with bounded retry and backpressure.
package report

import (
	"context"
	"fmt"

	"metalgrid.io/fleetd/internal/config"
	"metalgrid.io/fleetd/internal/neighbor"
)

// Client delivers one batch of discovery events to the controller boundary.
// Publish must be safe to retry: the reporter re-invokes it with the same
// batch until it succeeds or the retry ceiling is hit.
type Client interface {
	Publish(ctx context.Context, events []neighbor.Event) error
	Close() error
}

// NewClient builds the configured client implementation.
func NewClient(cfg config.ClientConfig) (Client, error) {
	switch cfg.Type {
	case "http":
		return newHTTPClient(cfg.Endpoint, cfg.Timeout), nil
	case "log":
		return newLogClient(), nil
	default:
		return nil, fmt.Errorf("unsupported report client type: %s", cfg.Type)
	}
}
