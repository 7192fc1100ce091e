package discovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/sirupsen/logrus"

	"metalgrid.io/fleetd/internal/capture"
	"metalgrid.io/fleetd/internal/ethernet"
	"metalgrid.io/fleetd/internal/neighbor"
	"metalgrid.io/fleetd/internal/report"
)

// readErrorBackoff is how long a capture task pauses after a non-timeout
// read failure before trying again.
const readErrorBackoff = time.Second

// Source supplies captured frames for one interface. capture.Handle
// satisfies it; tests substitute their own.
type Source interface {
	ReadPacket() ([]byte, gopacket.CaptureInfo, error)
	Close() error
}

// Monitor owns the capture tasks and the sweep task.
type Monitor struct {
	cfg      Config
	table    *neighbor.Table
	reporter *report.Reporter
	sources  map[string]Source
	stats    map[string]*InterfaceStats
	log      *logrus.Entry
}

// New creates a monitor over the given per-interface sources.
func New(cfg Config, table *neighbor.Table, reporter *report.Reporter, sources map[string]Source, logger *logrus.Entry) *Monitor {
	stats := make(map[string]*InterfaceStats, len(sources))
	for name := range sources {
		stats[name] = &InterfaceStats{}
	}
	return &Monitor{
		cfg:      cfg,
		table:    table,
		reporter: reporter,
		sources:  sources,
		stats:    stats,
		log:      logger,
	}
}

// Run starts one capture goroutine per interface and the sweep goroutine,
// then blocks until all of them have observed cancellation and returned.
func (m *Monitor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for name, src := range m.sources {
		wg.Add(1)
		go func(name string, src Source) {
			defer wg.Done()
			m.captureLoop(ctx, name, src)
		}(name, src)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.sweepLoop(ctx)
	}()

	wg.Wait()
}

// Status returns a copy of the per-interface counters.
func (m *Monitor) Status() map[string]InterfaceStatus {
	out := make(map[string]InterfaceStatus, len(m.stats))
	for name, st := range m.stats {
		out[name] = InterfaceStatus{
			Frames:       st.Frames.Load(),
			Observations: st.Observations.Load(),
			DecodeErrors: st.DecodeErrors.Load(),
			ReadErrors:   st.ReadErrors.Load(),
		}
	}
	return out
}

// captureLoop pulls frames from one interface until cancelled. Cancellation
// is only honoured between frames; a frame being decoded is always carried
// through to the table.
func (m *Monitor) captureLoop(ctx context.Context, name string, src Source) {
	log := m.log.WithField("interface", name)
	st := m.stats[name]
	log.Info("capture task started")

	for {
		if ctx.Err() != nil {
			log.Info("capture task stopped")
			return
		}

		data, ci, err := src.ReadPacket()
		if err != nil {
			if errors.Is(err, capture.ErrTimeout) {
				continue
			}
			st.ReadErrors.Add(1)
			log.WithError(err).Debug("frame read failed")
			select {
			case <-ctx.Done():
			case <-time.After(readErrorBackoff):
			}
			continue
		}

		st.Frames.Add(1)
		m.handleFrame(name, st, data, ci.Timestamp)
	}
}

// handleFrame decodes one frame and, when it carries a usable ARP packet,
// upserts the observation and enqueues the resulting event. Malformed
// frames are counted and dropped; they never terminate the task.
func (m *Monitor) handleFrame(iface string, st *InterfaceStats, data []byte, ts time.Time) {
	frame, err := ethernet.DecodeEthernet(data)
	if err != nil {
		st.DecodeErrors.Add(1)
		return
	}

	var vid uint16
	switch frame.EthernetType {
	case ethernet.TypeVLAN:
		vlan, err := frame.ExtractVLAN()
		if err != nil {
			st.DecodeErrors.Add(1)
			return
		}
		if vlan.EthernetType != ethernet.TypeARP {
			return
		}
		vid = vlan.ID
	case ethernet.TypeARP:
	default:
		return
	}

	pkt, err := frame.ExtractARP()
	if err != nil {
		st.DecodeErrors.Add(1)
		return
	}

	obs, ok := observationFrom(pkt, vid, iface)
	if !ok {
		return
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	st.Observations.Add(1)
	m.reporter.Enqueue(m.table.Upsert(obs, ts))
}

// sweepLoop periodically expires stale bindings and enforces the table
// size cap, forwarding the resulting events to the reporter.
func (m *Monitor) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			events := m.table.Sweep(now, m.cfg.NeighborTTL)
			events = append(events, m.table.EnforceMaxSize(now, m.cfg.MaxTableSize)...)
			for _, ev := range events {
				m.reporter.Enqueue(ev)
			}
			if len(events) > 0 {
				m.log.WithField("expired", len(events)).Debug("sweep evicted bindings")
			}
		}
	}
}
