// Package discovery runs the passive discovery engine: one capture task per
// monitored interface feeding ARP observations into the neighbour table,
// plus a periodic sweep evicting stale bindings. It never transmits.
package discovery

import (
	"net/netip"
	"sync/atomic"
	"time"

	"metalgrid.io/fleetd/internal/ethernet"
	"metalgrid.io/fleetd/internal/neighbor"
)

// Config tunes the discovery engine.
type Config struct {
	// NeighborTTL is the age after which an unseen binding expires.
	NeighborTTL time.Duration
	// SweepInterval is the cadence of the TTL sweep task.
	SweepInterval time.Duration
	// MaxTableSize caps the table after each sweep; zero disables the cap.
	MaxTableSize int
}

// InterfaceStats are live counters for one capture task, read by an
// external supervisor to spot persistently failing interfaces.
type InterfaceStats struct {
	Frames       atomic.Uint64
	Observations atomic.Uint64
	DecodeErrors atomic.Uint64
	ReadErrors   atomic.Uint64
}

// InterfaceStatus is a point-in-time copy of InterfaceStats.
type InterfaceStatus struct {
	Frames       uint64
	Observations uint64
	DecodeErrors uint64
	ReadErrors   uint64
}

// observationFrom converts a decoded ARP packet into a table observation.
// Only IPv4-over-Ethernet request/reply packets with a specified sender IP
// qualify; anything else (exotic address lengths, ARP probes with a zero
// sender address, unknown opcodes) is skipped rather than treated as
// malformed.
func observationFrom(pkt *ethernet.ARPPacket, vid uint16, iface string) (neighbor.Observation, bool) {
	if pkt.Op != ethernet.OpRequest && pkt.Op != ethernet.OpReply {
		return neighbor.Observation{}, false
	}
	if !pkt.IsEthernetIPv4() {
		return neighbor.Observation{}, false
	}
	if !pkt.SenderIP.Is4() || pkt.SenderIP == netip.IPv4Unspecified() {
		return neighbor.Observation{}, false
	}

	var mac ethernet.MAC
	copy(mac[:], pkt.SenderHW)
	return neighbor.Observation{
		MAC:       mac,
		IP:        pkt.SenderIP,
		VID:       vid,
		Interface: iface,
	}, true
}
