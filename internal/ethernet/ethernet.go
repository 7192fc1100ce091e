// Package ethernet implements decoding of raw link-layer frames into
// Ethernet, VLAN and ARP structures. All functions are pure and copy their
// results out of the input buffer, so decoded values may outlive the capture
// buffer and may be shared across goroutines.
package ethernet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

const (
	// minFrameLen is the fixed Ethernet header: two MACs plus the type field.
	minFrameLen = 14
	// vlanTagLen is the length of an 802.1Q tag.
	vlanTagLen = 4
)

const (
	// TypeLLC is the sentinel type assigned to IEEE 802.3 length-framed
	// frames after the length field has been consumed.
	TypeLLC uint16 = 0
	// TypeIPv4 is the ethernet type of a frame carrying an IPv4 packet.
	TypeIPv4 uint16 = 0x0800
	// TypeARP is the ethernet type of a frame carrying an ARP packet.
	TypeARP uint16 = 0x0806
	// TypeVLAN is the ethernet type of a frame carrying an 802.1Q VLAN tag;
	// the tag itself holds the inner type.
	TypeVLAN uint16 = 0x8100
	// TypeIPv6 is the ethernet type of a frame carrying an IPv6 packet.
	TypeIPv6 uint16 = 0x86dd

	// nonStdLenTypes is the threshold below which the type field is an
	// IEEE 802.3 payload length rather than an ethernet type.
	nonStdLenTypes uint16 = 0x0600
)

var (
	// ErrMalformedFrame is returned for a frame too short for its header or
	// shorter than its declared 802.3 length.
	ErrMalformedFrame = errors.New("malformed ethernet frame")
	// ErrNotVLAN is returned by ExtractVLAN on a frame that carries no tag.
	ErrNotVLAN = errors.New("ethernet frame not of type VLAN")
	// ErrMalformedVLAN is returned when the payload is too short to hold
	// a VLAN tag.
	ErrMalformedVLAN = errors.New("VLAN tag is malformed")
)

// MAC is an owned, comparable copy of a 6-byte hardware address.
type MAC [6]byte

// String formats the address in the usual colon-separated form.
func (m MAC) String() string { return net.HardwareAddr(m[:]).String() }

// HardwareAddr returns the address as a stdlib net.HardwareAddr.
func (m MAC) HardwareAddr() net.HardwareAddr {
	return net.HardwareAddr(append([]byte(nil), m[:]...))
}

// MarshalText implements encoding.TextMarshaler so MACs render as strings
// in JSON and YAML event payloads.
func (m MAC) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MAC) UnmarshalText(text []byte) error {
	hw, err := net.ParseMAC(string(text))
	if err != nil {
		return err
	}
	if len(hw) != 6 {
		return fmt.Errorf("hardware address %q is not 6 bytes", text)
	}
	copy(m[:], hw)
	return nil
}

// framing is the result of classifying the 16-bit type field.
type framing int

const (
	// framingStandard marks an Ethernet II frame: the field is a type.
	framingStandard framing = iota
	// framingLength marks an IEEE 802.3 frame: the field is a payload length
	// and the payload may carry trailing padding.
	framingLength
)

func classifyEtherType(v uint16) framing {
	if v < nonStdLenTypes {
		return framingLength
	}
	return framingStandard
}

// Frame is a decoded Ethernet frame with owned storage.
type Frame struct {
	SrcMAC       MAC
	DstMAC       MAC
	EthernetType uint16
	// Len is the declared payload length; set only for 802.3 length-framed
	// frames, where EthernetType is TypeLLC.
	Len     uint16
	Payload []byte
}

// DecodeEthernet parses a raw frame buffer.
//
// An empty buffer fails with io.ErrUnexpectedEOF, a buffer shorter than the
// fixed header with ErrMalformedFrame. A type field below 0x0600 marks an
// IEEE 802.3 length-framed frame: the field is the payload length, the
// logical type becomes TypeLLC, and the payload is truncated to the declared
// length. A payload shorter than declared fails with ErrMalformedFrame;
// trailing bytes beyond the declared length are padding and are discarded.
func DecodeEthernet(buf []byte) (*Frame, error) {
	if len(buf) < minFrameLen {
		if len(buf) == 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, ErrMalformedFrame
	}

	f := &Frame{}
	copy(f.DstMAC[:], buf[0:6])
	copy(f.SrcMAC[:], buf[6:12])
	f.EthernetType = binary.BigEndian.Uint16(buf[12:14])

	payload := buf[minFrameLen:]
	if classifyEtherType(f.EthernetType) == framingLength {
		f.Len = f.EthernetType
		f.EthernetType = TypeLLC

		if int(f.Len) > len(payload) {
			return nil, ErrMalformedFrame
		}
		payload = payload[:f.Len]
	}
	f.Payload = append([]byte(nil), payload...)

	return f, nil
}

// VLAN is a decoded 802.1Q tag.
type VLAN struct {
	Priority     uint8
	DropEligible bool
	ID           uint16
	EthernetType uint16
}

// ExtractVLAN decodes the VLAN tag at the start of the frame's payload.
// Returns ErrNotVLAN unless the frame type is TypeVLAN and ErrMalformedVLAN
// when fewer than 4 payload bytes remain.
func (f *Frame) ExtractVLAN() (*VLAN, error) {
	if f.EthernetType != TypeVLAN {
		return nil, ErrNotVLAN
	}
	if len(f.Payload) < vlanTagLen {
		return nil, ErrMalformedVLAN
	}

	v := &VLAN{
		// PCP is the top 3 bits, DEI the next one.
		Priority:     f.Payload[0] >> 5,
		DropEligible: f.Payload[0]&0x10 != 0,
		ID:           binary.BigEndian.Uint16(f.Payload[0:2]) & 0x0fff,
		EthernetType: binary.BigEndian.Uint16(f.Payload[2:4]),
	}
	return v, nil
}

// ExtractARP parses the ARP packet carried by the frame, skipping the VLAN
// tag first when one is present.
func (f *Frame) ExtractARP() (*ARPPacket, error) {
	buf := f.Payload
	if f.EthernetType == TypeVLAN {
		if len(buf) < vlanTagLen {
			return nil, ErrMalformedARPPacket
		}
		buf = buf[vlanTagLen:]
	}

	p := &ARPPacket{}
	if err := p.unmarshal(buf); err != nil {
		return nil, err
	}
	return p, nil
}
