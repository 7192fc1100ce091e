// Package capture provides the raw frame sources the discovery engine reads
// from: an AF_PACKET ring buffer (via gopacket) and a plain raw socket.
// The rest of the agent only consumes byte buffers through the Handle
// interface and never opens sockets itself.
package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket"
)

// Type selects a capture implementation.
type Type string

const (
	// TypeAFPacket uses a TPacket v3 memory-mapped ring.
	TypeAFPacket Type = "afpacket"
	// TypeRawSocket uses a plain AF_PACKET SOCK_RAW socket.
	TypeRawSocket Type = "rawsocket"
)

// ErrTimeout is returned by ReadPacket when no frame arrived within the
// configured poll timeout. Callers use it to re-check for cancellation
// without treating the read as failed.
var ErrTimeout = errors.New("capture: read timed out")

// Options configures a capture handle.
type Options struct {
	// BufferSize is the total ring/receive buffer size in bytes.
	BufferSize int
	// SnapLen is the maximum captured frame length.
	SnapLen int
	// PollTimeout bounds how long a ReadPacket call may block.
	PollTimeout time.Duration
	// Filter is an optional pcap filter expression compiled to classic BPF
	// and attached to the socket.
	Filter string
	// FanoutID, when non-zero, joins the handle to a PACKET_FANOUT group so
	// several processes can share one interface.
	FanoutID uint16
}

// DefaultOptions returns options suitable for passive ARP capture.
func DefaultOptions() *Options {
	return &Options{
		// Large enough for at least one TPacket block at this snap
		// length on 4K and 64K page systems.
		BufferSize:  16 * 1024 * 1024,
		SnapLen:     65536,
		PollTimeout: time.Second,
	}
}

// Stats are cumulative counters for one handle.
type Stats struct {
	Received uint64
	Dropped  uint64
	Errors   uint64
}

// Handle is a single-interface frame source. ReadPacket blocks until a frame
// arrives or the poll timeout elapses, in which case it returns ErrTimeout.
type Handle interface {
	Open(iface string, opts *Options) error
	ReadPacket() ([]byte, gopacket.CaptureInfo, error)
	Stats() (*Stats, error)
	Close() error
}

// NewHandle creates an unopened handle of the given type.
func NewHandle(t Type) (Handle, error) {
	switch t {
	case TypeAFPacket:
		return newAFPacketHandle(), nil
	case TypeRawSocket:
		return newRawSocketHandle(), nil
	default:
		return nil, fmt.Errorf("unsupported capture type: %s", t)
	}
}
