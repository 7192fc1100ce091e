package capture

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"golang.org/x/sys/unix"
)

// rawSocketHandle reads frames from a plain AF_PACKET SOCK_RAW socket bound
// to one interface. Slower than the ring buffer but has no mmap requirement,
// which matters in tight containers.
type rawSocketHandle struct {
	fd    int
	iface string
	opts  *Options

	received atomic.Uint64
	errors   atomic.Uint64
}

func newRawSocketHandle() Handle {
	return &rawSocketHandle{fd: -1}
}

// htons converts a short to network byte order.
func htons(v uint16) uint16 { return v<<8 | v>>8 }

func (h *rawSocketHandle) Open(iface string, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}
	h.iface = iface
	h.opts = opts

	ifc, err := net.InterfaceByName(iface)
	if err != nil {
		return fmt.Errorf("failed to get interface %s: %w", iface, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return fmt.Errorf("failed to create raw socket: %w", err)
	}

	sll := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  ifc.Index,
	}
	if err := unix.Bind(fd, sll); err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to bind to %s: %w", iface, err)
	}

	if opts.PollTimeout > 0 {
		tv := unix.NsecToTimeval(opts.PollTimeout.Nanoseconds())
		if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
			unix.Close(fd)
			return fmt.Errorf("failed to set receive timeout: %w", err)
		}
	}

	if opts.Filter != "" {
		if err := attachFilter(fd, opts.Filter, opts.SnapLen); err != nil {
			unix.Close(fd)
			return err
		}
	}

	h.fd = fd
	return nil
}

func attachFilter(fd int, filter string, snapLen int) error {
	rawBPF, err := compileBPF(filter, snapLen)
	if err != nil {
		return err
	}

	filters := make([]unix.SockFilter, len(rawBPF))
	for i, ins := range rawBPF {
		filters[i] = unix.SockFilter{
			Code: ins.Op,
			Jt:   ins.Jt,
			Jf:   ins.Jf,
			K:    ins.K,
		}
	}
	prog := unix.SockFprog{
		Len:    uint16(len(filters)),
		Filter: &filters[0],
	}
	if err := unix.SetsockoptSockFprog(fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &prog); err != nil {
		return fmt.Errorf("failed to attach BPF filter: %w", err)
	}
	return nil
}

func (h *rawSocketHandle) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	var ci gopacket.CaptureInfo
	if h.fd < 0 {
		return nil, ci, errors.New("handle not opened")
	}

	buf := make([]byte, h.opts.SnapLen)
	n, _, err := unix.Recvfrom(h.fd, buf, 0)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
			return nil, ci, ErrTimeout
		}
		h.errors.Add(1)
		return nil, ci, err
	}

	h.received.Add(1)
	ci = gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: n,
		Length:        n,
	}
	return buf[:n], ci, nil
}

func (h *rawSocketHandle) Stats() (*Stats, error) {
	if h.fd < 0 {
		return nil, errors.New("handle not opened")
	}
	return &Stats{
		Received: h.received.Load(),
		Errors:   h.errors.Load(),
	}, nil
}

func (h *rawSocketHandle) Close() error {
	if h.fd >= 0 {
		err := unix.Close(h.fd)
		h.fd = -1
		return err
	}
	return nil
}
