package report

import (
	"context"

	"github.com/sirupsen/logrus"

	"metalgrid.io/fleetd/internal/neighbor"
	"metalgrid.io/fleetd/pkg/log"
)

// logClient writes each event to the agent log instead of a controller.
// Useful to check that capture and tracking work before wiring an upstream.
type logClient struct {
	log *logrus.Entry
}

func newLogClient() *logClient {
	return &logClient{log: log.Component("report")}
}

func (c *logClient) Publish(_ context.Context, events []neighbor.Event) error {
	for _, ev := range events {
		entry := c.log.WithFields(logrus.Fields{
			"kind":      ev.Kind,
			"mac":       ev.MAC,
			"ip":        ev.IP,
			"vid":       ev.VID,
			"interface": ev.Interface,
		})
		if ev.SupersededMAC != nil {
			entry = entry.WithField("superseded_mac", *ev.SupersededMAC)
		}
		entry.Info("discovery event")
	}
	return nil
}

func (c *logClient) Close() error { return nil }
