package ethernet

import (
	"encoding/binary"
	"errors"
	"net"
	"net/netip"
)

// arpHeaderLen is the fixed ARP header: hardware/protocol types and lengths
// plus the operation code. The four variable-length addresses follow.
const arpHeaderLen = 8

const (
	// HardwareTypeEthernet is the ARP hardware type for Ethernet.
	HardwareTypeEthernet uint16 = 1
)

// ErrMalformedARPPacket is returned when the buffer is shorter than the ARP
// header plus the address fields it declares.
var ErrMalformedARPPacket = errors.New("malformed ARP packet")

// Operation is the ARP operation code.
type Operation uint16

const (
	// OpRequest is a who-has request.
	OpRequest Operation = 1
	// OpReply is an is-at reply.
	OpReply Operation = 2
)

func (op Operation) String() string {
	switch op {
	case OpRequest:
		return "request"
	case OpReply:
		return "reply"
	default:
		return "unknown"
	}
}

// ARPPacket is a decoded ARP packet. Address field sizes follow the declared
// hardware/protocol lengths; they are not forced to the 6-byte MAC / 4-byte
// IPv4 convention here. SenderIP and TargetIP are valid only when the
// declared protocol length is 4 or 16 bytes.
type ARPPacket struct {
	HardwareType    uint16
	ProtocolType    uint16
	HardwareAddrLen uint8
	ProtocolAddrLen uint8
	Op              Operation

	SenderHW net.HardwareAddr
	SenderIP netip.Addr
	TargetHW net.HardwareAddr
	TargetIP netip.Addr
}

// IsEthernetIPv4 reports whether the packet maps a 4-byte IPv4 address to a
// 6-byte Ethernet address, the only combination the binding table tracks.
func (p *ARPPacket) IsEthernetIPv4() bool {
	return p.HardwareType == HardwareTypeEthernet &&
		p.ProtocolType == TypeIPv4 &&
		p.HardwareAddrLen == 6 &&
		p.ProtocolAddrLen == 4
}

func (p *ARPPacket) unmarshal(buf []byte) error {
	if len(buf) < arpHeaderLen {
		return ErrMalformedARPPacket
	}

	p.HardwareType = binary.BigEndian.Uint16(buf[0:2])
	p.ProtocolType = binary.BigEndian.Uint16(buf[2:4])
	p.HardwareAddrLen = buf[4]
	p.ProtocolAddrLen = buf[5]
	p.Op = Operation(binary.BigEndian.Uint16(buf[6:8]))

	hlen := int(p.HardwareAddrLen)
	plen := int(p.ProtocolAddrLen)
	if len(buf) < arpHeaderLen+2*(hlen+plen) {
		return ErrMalformedARPPacket
	}

	off := arpHeaderLen
	p.SenderHW = append(net.HardwareAddr(nil), buf[off:off+hlen]...)
	off += hlen
	p.SenderIP, _ = netip.AddrFromSlice(buf[off : off+plen])
	off += plen
	p.TargetHW = append(net.HardwareAddr(nil), buf[off:off+hlen]...)
	off += hlen
	p.TargetIP, _ = netip.AddrFromSlice(buf[off : off+plen])

	return nil
}
