package report

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"metalgrid.io/fleetd/internal/neighbor"
)

// Config tunes batching, rate limiting and retry behaviour.
type Config struct {
	// QueueSize bounds the outbound queue; when full, the oldest pending
	// event is dropped so producers never block.
	QueueSize int
	// BatchSize triggers an early flush once this many events are pending.
	BatchSize int
	// FlushInterval is the periodic flush cadence.
	FlushInterval time.Duration
	// RetryLimit is the total number of delivery attempts per batch.
	RetryLimit int
	// RefreshRateLimit is the minimum gap between reported refresh events
	// for the same identity.
	RefreshRateLimit time.Duration
	// PublishTimeout bounds a single Publish call.
	PublishTimeout time.Duration
}

// Counters is a point-in-time snapshot of reporter statistics.
type Counters struct {
	Sent           uint64
	QueueDropped   uint64
	BatchesDropped uint64
	Suppressed     uint64
}

// Reporter owns the outbound event queue. Enqueue is safe from any
// goroutine and never blocks; Run drains the queue in batches.
type Reporter struct {
	cfg    Config
	client Client
	log    *logrus.Entry

	mu    sync.Mutex
	queue []neighbor.Event
	// notify wakes Run without requiring it to poll; capacity 1 so a
	// pending wakeup is never duplicated.
	notify chan struct{}

	// lastRefresh tracks when a refresh for an identity was last reported.
	// Only touched from Run.
	lastRefresh map[neighbor.Key]time.Time

	sent           atomic.Uint64
	queueDropped   atomic.Uint64
	batchesDropped atomic.Uint64
	suppressed     atomic.Uint64
}

// New creates a reporter delivering through client.
func New(cfg Config, client Client, logger *logrus.Entry) *Reporter {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	return &Reporter{
		cfg:         cfg,
		client:      client,
		log:         logger,
		notify:      make(chan struct{}, 1),
		lastRefresh: make(map[neighbor.Key]time.Time),
	}
}

// Enqueue adds an event to the outbound queue. Under saturation the oldest
// pending event is dropped: liveness of the capture path wins over
// completeness of reporting.
func (r *Reporter) Enqueue(ev neighbor.Event) {
	r.mu.Lock()
	if len(r.queue) >= r.cfg.QueueSize {
		copy(r.queue, r.queue[1:])
		r.queue = r.queue[:len(r.queue)-1]
		r.queueDropped.Add(1)
	}
	r.queue = append(r.queue, ev)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Run flushes the queue on a timer or when a batch worth of events is
// pending, until ctx is cancelled. A flush in progress is never abandoned
// mid-way; cancellation is honoured between flush attempts.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final best-effort flush so events observed just before
			// shutdown are not silently lost.
			r.flush(context.Background())
			return
		case <-ticker.C:
			r.flush(ctx)
		case <-r.notify:
			if r.pending() >= r.cfg.BatchSize {
				r.flush(ctx)
			}
		}
	}
}

// Counters returns current statistics.
func (r *Reporter) Counters() Counters {
	return Counters{
		Sent:           r.sent.Load(),
		QueueDropped:   r.queueDropped.Load(),
		BatchesDropped: r.batchesDropped.Load(),
		Suppressed:     r.suppressed.Load(),
	}
}

func (r *Reporter) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

func (r *Reporter) take() []neighbor.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := r.queue
	r.queue = nil
	return events
}

func (r *Reporter) flush(ctx context.Context) {
	batch := r.filter(r.take(), time.Now())
	if len(batch) == 0 {
		return
	}

	if err := r.publish(ctx, batch); err != nil {
		// Bounded data loss: the batch is dropped, never retried forever.
		r.batchesDropped.Add(1)
		r.log.WithError(err).WithField("events", len(batch)).
			Warn("dropping event batch after exhausting retries")
		return
	}
	r.sent.Add(uint64(len(batch)))
}

// filter applies the per-identity refresh rate limit. New, moved and
// expired events always pass through.
func (r *Reporter) filter(events []neighbor.Event, now time.Time) []neighbor.Event {
	out := make([]neighbor.Event, 0, len(events))
	for _, ev := range events {
		switch ev.Kind {
		case neighbor.EventRefresh:
			if last, ok := r.lastRefresh[ev.Key()]; ok && now.Sub(last) < r.cfg.RefreshRateLimit {
				r.suppressed.Add(1)
				continue
			}
			r.lastRefresh[ev.Key()] = now
		case neighbor.EventExpired:
			delete(r.lastRefresh, ev.Key())
		}
		out = append(out, ev)
	}
	r.pruneLastRefresh(now)
	return out
}

// pruneLastRefresh discards rate-limit state for identities outside the
// suppression window. An expired event can be shed by the bounded queue
// before it reaches filter, so the map cannot rely on expiry events alone
// to stay bounded.
func (r *Reporter) pruneLastRefresh(now time.Time) {
	for key, last := range r.lastRefresh {
		if now.Sub(last) >= r.cfg.RefreshRateLimit {
			delete(r.lastRefresh, key)
		}
	}
}

func (r *Reporter) publish(ctx context.Context, batch []neighbor.Event) error {
	b := backoff.ExponentialBackOff{
		InitialInterval:     backoff.DefaultInitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         r.cfg.FlushInterval,
	}
	b.Reset()

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.PublishTimeout)
		defer cancel()
		return struct{}{}, r.client.Publish(callCtx, batch)
	}, backoff.WithBackOff(&b), backoff.WithMaxTries(uint(r.cfg.RetryLimit)))
	return err
}
