// Package neighbor maintains the live neighbour binding table built from
// passive ARP observations: which MAC currently answers for which IP on
// which VLAN, and when it was first and last seen.
package neighbor

import (
	"net/netip"
	"time"

	"metalgrid.io/fleetd/internal/ethernet"
)

// EventKind classifies a change to the binding table.
type EventKind string

const (
	// EventNew is the first observation of an (IP, VLAN) identity.
	EventNew EventKind = "new"
	// EventRefresh is a repeated observation with an unchanged MAC.
	EventRefresh EventKind = "refresh"
	// EventMoved is an observation with a different MAC for a known
	// (IP, VLAN) identity.
	EventMoved EventKind = "moved"
	// EventExpired is an eviction by TTL sweep or table-size pressure.
	EventExpired EventKind = "expired"
)

// Key identifies a binding. The MAC is an attribute of the binding rather
// than part of the key: a MAC change for the same (IP, VLAN) replaces the
// existing entry and is reported as a move, so the table holds at most one
// live binding per identity.
type Key struct {
	IP  netip.Addr
	VID uint16
}

// Observation is one valid ARP sighting delivered by a capture task.
type Observation struct {
	MAC       ethernet.MAC
	IP        netip.Addr
	VID       uint16
	Interface string
}

// Binding is a tracked (IP, VLAN) → MAC association.
type Binding struct {
	MAC       ethernet.MAC
	IP        netip.Addr
	VID       uint16
	Interface string
	FirstSeen time.Time
	LastSeen  time.Time
	// SupersededMAC holds the previous MAC after a move. The pointed-to
	// value is never mutated once set, so snapshots may share it.
	SupersededMAC *ethernet.MAC
}

// Key returns the binding's identity.
func (b *Binding) Key() Key { return Key{IP: b.IP, VID: b.VID} }

// Event is the structured discovery event forwarded to the controller.
type Event struct {
	Kind          EventKind     `json:"kind"`
	MAC           ethernet.MAC  `json:"mac"`
	IP            netip.Addr    `json:"ip"`
	VID           uint16        `json:"vid"`
	Interface     string        `json:"interface"`
	Timestamp     time.Time     `json:"timestamp"`
	SupersededMAC *ethernet.MAC `json:"superseded_mac,omitempty"`
}

// Key returns the identity the event refers to.
func (e *Event) Key() Key { return Key{IP: e.IP, VID: e.VID} }
