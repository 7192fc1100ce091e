package ethernet

import (
	"errors"
	"io"
	"testing"
)

func TestDecodeEthernetBasic(t *testing.T) {
	data := []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, // Dst MAC
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, // Src MAC
		0x08, 0x00, // EtherType: IPv4
		0x45, 0x00, // Payload (start of IP header)
	}

	frame, err := DecodeEthernet(data)
	if err != nil {
		t.Fatalf("DecodeEthernet failed: %v", err)
	}

	expectedDst := MAC{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	if frame.DstMAC != expectedDst {
		t.Errorf("Expected DstMAC %v, got %v", expectedDst, frame.DstMAC)
	}
	expectedSrc := MAC{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	if frame.SrcMAC != expectedSrc {
		t.Errorf("Expected SrcMAC %v, got %v", expectedSrc, frame.SrcMAC)
	}
	if frame.EthernetType != TypeIPv4 {
		t.Errorf("Expected EthernetType 0x0800, got 0x%04x", frame.EthernetType)
	}
	if len(frame.Payload) != 2 {
		t.Errorf("Expected payload length 2, got %d", len(frame.Payload))
	}
}

func TestDecodeEthernetEmptyBuffer(t *testing.T) {
	_, err := DecodeEthernet(nil)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestDecodeEthernetShortBuffer(t *testing.T) {
	// Every length from 1 to 13 is malformed, never a panic.
	for length := 1; length < 14; length++ {
		_, err := DecodeEthernet(make([]byte, length))
		if !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("len %d: expected ErrMalformedFrame, got %v", length, err)
		}
	}
}

func TestDecodeEthernetLengthFramed(t *testing.T) {
	// IEEE 802.3 frame: type field 0x0005 is a payload length, the two
	// trailing bytes are padding.
	data := []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55,
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
		0x00, 0x05, // length 5
		0x01, 0x02, 0x03, 0x04, 0x05, // declared payload
		0xDE, 0xAD, // padding
	}

	frame, err := DecodeEthernet(data)
	if err != nil {
		t.Fatalf("DecodeEthernet failed: %v", err)
	}
	if frame.EthernetType != TypeLLC {
		t.Errorf("Expected EthernetType LLC, got 0x%04x", frame.EthernetType)
	}
	if frame.Len != 5 {
		t.Errorf("Expected declared length 5, got %d", frame.Len)
	}
	if len(frame.Payload) != 5 {
		t.Errorf("Expected payload truncated to 5 bytes, got %d", len(frame.Payload))
	}
	if frame.Payload[4] != 0x05 {
		t.Errorf("Expected payload to end at declared length, got % x", frame.Payload)
	}
}

func TestDecodeEthernetLengthFramedTooShort(t *testing.T) {
	// Declared length exceeds the actual payload.
	data := []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55,
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
		0x00, 0x0A, // length 10
		0x01, 0x02, 0x03, // only 3 bytes present
	}

	_, err := DecodeEthernet(data)
	if !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Expected ErrMalformedFrame, got %v", err)
	}
}

func TestDecodeEthernetOwnsPayload(t *testing.T) {
	data := []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55,
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
		0x08, 0x00,
		0x45, 0x00,
	}

	frame, err := DecodeEthernet(data)
	if err != nil {
		t.Fatalf("DecodeEthernet failed: %v", err)
	}

	// Clobbering the capture buffer must not affect the decoded frame.
	for i := range data {
		data[i] = 0xFF
	}
	if frame.Payload[0] != 0x45 {
		t.Errorf("Payload aliases the capture buffer")
	}
	if frame.DstMAC[0] != 0x00 {
		t.Errorf("DstMAC aliases the capture buffer")
	}
}

func TestExtractVLAN(t *testing.T) {
	data := []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55,
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
		0x81, 0x00, // EtherType: VLAN
		0x70, 0x0A, // TCI: priority 3, DEI set, VLAN ID 10
		0x08, 0x06, // inner EtherType: ARP
	}

	frame, err := DecodeEthernet(data)
	if err != nil {
		t.Fatalf("DecodeEthernet failed: %v", err)
	}

	vlan, err := frame.ExtractVLAN()
	if err != nil {
		t.Fatalf("ExtractVLAN failed: %v", err)
	}
	if vlan.Priority != 3 {
		t.Errorf("Expected priority 3, got %d", vlan.Priority)
	}
	if !vlan.DropEligible {
		t.Errorf("Expected DEI set")
	}
	if vlan.ID != 10 {
		t.Errorf("Expected VLAN ID 10, got %d", vlan.ID)
	}
	if vlan.EthernetType != TypeARP {
		t.Errorf("Expected inner EtherType ARP, got 0x%04x", vlan.EthernetType)
	}
}

func TestExtractVLANNotVLAN(t *testing.T) {
	data := []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55,
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
		0x08, 0x00,
		0x45, 0x00,
	}

	frame, err := DecodeEthernet(data)
	if err != nil {
		t.Fatalf("DecodeEthernet failed: %v", err)
	}
	if _, err := frame.ExtractVLAN(); !errors.Is(err, ErrNotVLAN) {
		t.Errorf("Expected ErrNotVLAN, got %v", err)
	}
}

func TestExtractVLANShortPayload(t *testing.T) {
	data := []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55,
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
		0x81, 0x00,
		0x70, 0x0A, // only half a VLAN tag
	}

	frame, err := DecodeEthernet(data)
	if err != nil {
		t.Fatalf("DecodeEthernet failed: %v", err)
	}
	if _, err := frame.ExtractVLAN(); !errors.Is(err, ErrMalformedVLAN) {
		t.Errorf("Expected ErrMalformedVLAN, got %v", err)
	}
}

// TestDecodeVLANTaggedARPRequest walks the full decode chain for a
// VLAN-tagged ARP request the way a capture task does.
func TestDecodeVLANTaggedARPRequest(t *testing.T) {
	data := []byte{
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, // Dst MAC
		0x11, 0x22, 0x33, 0x44, 0x55, 0x66, // Src MAC
		0x81, 0x00, // EtherType: VLAN
		0x60, 0x2A, // TCI: priority 3, VLAN ID 42
		0x08, 0x06, // inner EtherType: ARP
		// ARP request
		0x00, 0x01, // hardware type: Ethernet
		0x08, 0x00, // protocol type: IPv4
		0x06,       // hardware addr len
		0x04,       // protocol addr len
		0x00, 0x01, // op: request
		0x11, 0x22, 0x33, 0x44, 0x55, 0x66, // sender MAC
		0x0A, 0x00, 0x00, 0x05, // sender IP: 10.0.0.5
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // target MAC
		0x0A, 0x00, 0x00, 0x01, // target IP: 10.0.0.1
	}

	frame, err := DecodeEthernet(data)
	if err != nil {
		t.Fatalf("DecodeEthernet failed: %v", err)
	}
	if frame.EthernetType != TypeVLAN {
		t.Fatalf("Expected EthernetType VLAN, got 0x%04x", frame.EthernetType)
	}

	vlan, err := frame.ExtractVLAN()
	if err != nil {
		t.Fatalf("ExtractVLAN failed: %v", err)
	}
	if vlan.ID != 42 {
		t.Errorf("Expected VLAN ID 42, got %d", vlan.ID)
	}
	if vlan.Priority != 3 {
		t.Errorf("Expected priority 3, got %d", vlan.Priority)
	}

	pkt, err := frame.ExtractARP()
	if err != nil {
		t.Fatalf("ExtractARP failed: %v", err)
	}
	if pkt.Op != OpRequest {
		t.Errorf("Expected ARP request, got %v", pkt.Op)
	}
	if got := pkt.SenderIP.String(); got != "10.0.0.5" {
		t.Errorf("Expected sender IP 10.0.0.5, got %s", got)
	}
	if got := pkt.SenderHW.String(); got != "11:22:33:44:55:66" {
		t.Errorf("Expected sender MAC 11:22:33:44:55:66, got %s", got)
	}
	if !pkt.IsEthernetIPv4() {
		t.Errorf("Expected an Ethernet/IPv4 packet")
	}
}
