package capture

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
)

// afpacketHandle reads frames from a TPacket v3 memory-mapped ring.
type afpacketHandle struct {
	tpacket *afpacket.TPacket
	iface   string
	opts    *Options

	received atomic.Uint64
	errors   atomic.Uint64
}

func newAFPacketHandle() Handle {
	return &afpacketHandle{}
}

func (h *afpacketHandle) Open(iface string, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}
	h.iface = iface
	h.opts = opts

	ifc, err := net.InterfaceByName(iface)
	if err != nil {
		return fmt.Errorf("failed to get interface %s: %w", iface, err)
	}

	frameSize, blockSize, numBlocks, err := computeFrameSizeAndBlocks(opts)
	if err != nil {
		return err
	}

	tpacket, err := afpacket.NewTPacket(
		afpacket.OptInterface(ifc.Name),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		// The kernel strips 802.1Q tags before delivery; have TPacket
		// reinsert them so VLAN membership survives into decoding.
		afpacket.OptAddVLANHeader(true),
		afpacket.OptPollTimeout(opts.PollTimeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return fmt.Errorf("failed to create TPacket on %s: %w", iface, err)
	}
	h.tpacket = tpacket

	if opts.FanoutID > 0 {
		if err := tpacket.SetFanout(afpacket.FanoutHashWithDefrag, opts.FanoutID); err != nil {
			h.Close()
			return fmt.Errorf("failed to set fanout: %w", err)
		}
	}

	if opts.Filter != "" {
		rawBPF, err := compileBPF(opts.Filter, opts.SnapLen)
		if err != nil {
			h.Close()
			return err
		}
		if err := tpacket.SetBPF(rawBPF); err != nil {
			h.Close()
			return fmt.Errorf("failed to attach BPF filter: %w", err)
		}
	}

	return nil
}

// computeFrameSizeAndBlocks derives ring geometry from the snap length and
// total buffer size, keeping frames page-aligned.
func computeFrameSizeAndBlocks(opts *Options) (frameSize, blockSize, numBlocks int, err error) {
	pageSize := os.Getpagesize()
	if opts.SnapLen < pageSize {
		frameSize = pageSize / (pageSize / opts.SnapLen)
	} else {
		frameSize = (opts.SnapLen/pageSize + 1) * pageSize
	}
	blockSize = frameSize * 128
	numBlocks = opts.BufferSize / blockSize

	if numBlocks < 1 {
		return 0, 0, 0, fmt.Errorf("buffer size %d too small for frame size %d", opts.BufferSize, frameSize)
	}
	return frameSize, blockSize, numBlocks, nil
}

func (h *afpacketHandle) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	var ci gopacket.CaptureInfo
	if h.tpacket == nil {
		return nil, ci, errors.New("handle not opened")
	}

	data, ci, err := h.tpacket.ReadPacketData()
	if err != nil {
		if errors.Is(err, afpacket.ErrTimeout) {
			return nil, ci, ErrTimeout
		}
		h.errors.Add(1)
		return nil, ci, err
	}

	h.received.Add(1)
	return data, ci, nil
}

func (h *afpacketHandle) Stats() (*Stats, error) {
	if h.tpacket == nil {
		return nil, errors.New("handle not opened")
	}

	out := &Stats{
		Received: h.received.Load(),
		Errors:   h.errors.Load(),
	}
	if _, v3, err := h.tpacket.SocketStats(); err == nil {
		out.Dropped = uint64(v3.Drops())
	}
	return out, nil
}

func (h *afpacketHandle) Close() error {
	if h.tpacket != nil {
		h.tpacket.Close()
		h.tpacket = nil
	}
	return nil
}
