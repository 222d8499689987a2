package rstp

import (
	"errors"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// -------------------------------------------------------------------------
// Ethernet / LLC Framing: 802.1D-2004 Section 7.12.3, 802.2
// -------------------------------------------------------------------------

const (
	// bpduLSAP is the LLC service access point reserved for spanning tree.
	bpduLSAP = 0x42

	// llcUI is the LLC Unnumbered Information control value.
	llcUI = 0x03
)

// BridgeGroupAddress is the destination of every BPDU.
var BridgeGroupAddress = net.HardwareAddr{0x01, 0x80, 0xC2, 0x00, 0x00, 0x00}

// ErrNotBPDUFrame indicates a frame that is not an LLC-encapsulated BPDU
// addressed to the bridge group address.
var ErrNotBPDUFrame = errors.New("not a bpdu frame")

// EncodeFrame wraps an encoded BPDU in an 802.3 header with the given
// source address and an LLC header. The 802.3 length field is derived
// from the LLC payload and short frames are padded to the Ethernet minimum.
func EncodeFrame(src net.HardwareAddr, bpdu []byte) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}

	err := gopacket.SerializeLayers(buf, opts,
		&layers.Ethernet{
			SrcMAC:       src,
			DstMAC:       BridgeGroupAddress,
			EthernetType: layers.EthernetTypeLLC,
		},
		&layers.LLC{
			DSAP:    bpduLSAP,
			SSAP:    bpduLSAP,
			Control: llcUI,
		},
		gopacket.Payload(bpdu),
	)
	if err != nil {
		return nil, fmt.Errorf("serialize bpdu frame: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeFrame validates the Ethernet and LLC headers of frame and returns
// the source address and the BPDU bytes that follow them.
func DecodeFrame(frame []byte) (net.HardwareAddr, []byte, error) {
	var (
		eth     layers.Ethernet
		llc     layers.LLC
		decoded []gopacket.LayerType
	)

	parser := gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &eth, &llc)
	if err := parser.DecodeLayers(frame, &decoded); err != nil {
		// The LLC layer names STP as its next layer; stopping there is expected.
		var unsupported gopacket.UnsupportedLayerType
		if !errors.As(err, &unsupported) {
			return nil, nil, fmt.Errorf("decode bpdu frame: %w", err)
		}
	}

	if len(decoded) < 2 || decoded[1] != layers.LayerTypeLLC {
		return nil, nil, fmt.Errorf("decode bpdu frame: no llc header: %w", ErrNotBPDUFrame)
	}
	if !macEqual(eth.DstMAC, BridgeGroupAddress) {
		return nil, nil, fmt.Errorf("decode bpdu frame: destination %s: %w", eth.DstMAC, ErrNotBPDUFrame)
	}
	if llc.DSAP != bpduLSAP || llc.SSAP != bpduLSAP || llc.Control != llcUI {
		return nil, nil, fmt.Errorf("decode bpdu frame: llc %#02x/%#02x/%#02x: %w",
			llc.DSAP, llc.SSAP, llc.Control, ErrNotBPDUFrame)
	}

	return eth.SrcMAC, llc.Payload, nil
}

func macEqual(a, b net.HardwareAddr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
