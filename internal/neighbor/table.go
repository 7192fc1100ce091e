package neighbor

import (
	"sort"
	"sync"
	"time"
)

// Table is the in-memory neighbour table. All mutation goes through Upsert,
// Sweep and EnforceMaxSize under a single lock; readers get copies via
// Snapshot so nobody holds the lock during I/O.
type Table struct {
	mu      sync.Mutex
	entries map[Key]*Binding
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[Key]*Binding)}
}

// Upsert applies one observation at time now and returns the resulting
// event. A stale observation (now before the binding's last-seen) is
// accepted but never moves last-seen backward.
func (t *Table) Upsert(obs Observation, now time.Time) Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := Key{IP: obs.IP, VID: obs.VID}
	b, ok := t.entries[key]
	if !ok {
		b = &Binding{
			MAC:       obs.MAC,
			IP:        obs.IP,
			VID:       obs.VID,
			Interface: obs.Interface,
			FirstSeen: now,
			LastSeen:  now,
		}
		t.entries[key] = b
		return newEvent(EventNew, b, now)
	}

	if now.After(b.LastSeen) {
		b.LastSeen = now
	}
	b.Interface = obs.Interface

	if b.MAC == obs.MAC {
		return newEvent(EventRefresh, b, now)
	}

	// MAC change for a known identity: update in place, keep FirstSeen.
	prev := b.MAC
	b.SupersededMAC = &prev
	b.MAC = obs.MAC
	return newEvent(EventMoved, b, now)
}

// Sweep removes every binding older than ttl and returns one expired event
// per removed binding.
func (t *Table) Sweep(now time.Time, ttl time.Duration) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	var events []Event
	for key, b := range t.entries {
		if now.Sub(b.LastSeen) > ttl {
			delete(t.entries, key)
			events = append(events, newEvent(EventExpired, b, now))
		}
	}
	return events
}

// EnforceMaxSize evicts the oldest-last-seen bindings until the table holds
// at most limit entries, returning expired events stamped at time now for
// each eviction. A storm of spoofed or scanned addresses therefore cannot
// grow the table without bound. A limit of zero or less disables the cap.
func (t *Table) EnforceMaxSize(now time.Time, limit int) []Event {
	if limit <= 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	excess := len(t.entries) - limit
	if excess <= 0 {
		return nil
	}

	all := make([]*Binding, 0, len(t.entries))
	for _, b := range t.entries {
		all = append(all, b)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].LastSeen.Before(all[j].LastSeen)
	})

	events := make([]Event, 0, excess)
	for _, b := range all[:excess] {
		delete(t.entries, b.Key())
		events = append(events, newEvent(EventExpired, b, now))
	}
	return events
}

// Snapshot returns a copy of every live binding.
func (t *Table) Snapshot() []Binding {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Binding, 0, len(t.entries))
	for _, b := range t.entries {
		out = append(out, *b)
	}
	return out
}

// Len returns the number of live bindings.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func newEvent(kind EventKind, b *Binding, ts time.Time) Event {
	ev := Event{
		Kind:      kind,
		MAC:       b.MAC,
		IP:        b.IP,
		VID:       b.VID,
		Interface: b.Interface,
		Timestamp: ts,
	}
	if kind == EventMoved {
		ev.SupersededMAC = b.SupersededMAC
	}
	return ev
}
