package netio

import (
	"errors"
)

// -------------------------------------------------------------------------
// Link Layer Constants: IEEE 802.1D-2004 Section 7.12.3, IEEE 802.2
// -------------------------------------------------------------------------

const (
	// ethPAll is ETH_P_ALL: the socket sees every protocol and the
	// attached filter selects BPDUs.
	ethPAll uint16 = 0x0003

	// llcSAPBPDU is the LLC SAP assigned to the spanning tree protocols.
	llcSAPBPDU = 0x42

	// maxLLCLength is the largest 802.3 length field; larger values in
	// that position are EtherTypes.
	maxLLCLength = 1500

	// frameBufSize covers any BPDU frame with room to spare.
	frameBufSize = 1518
)

// -------------------------------------------------------------------------
// Frame Metadata
// -------------------------------------------------------------------------

// FrameMeta describes where a frame was received.
type FrameMeta struct {
	// IfName is the interface the frame arrived on.
	IfName string

	// IfIndex is the kernel interface index.
	IfIndex int
}

// -------------------------------------------------------------------------
// PacketConn Interface
// -------------------------------------------------------------------------

// PacketConn sends and receives raw Ethernet frames on one interface.
//
// The interface is kept minimal so the receiver and host can be tested
// with mock connections and without CAP_NET_RAW.
type PacketConn interface {
	// ReadFrame reads one inbound frame into buf. Frames this host sent
	// are not returned.
	ReadFrame(buf []byte) (n int, meta FrameMeta, err error)

	// WriteFrame transmits a complete Ethernet frame.
	WriteFrame(frame []byte) error

	// Close releases the socket. A blocked ReadFrame returns
	// ErrSocketClosed.
	Close() error

	// IfName returns the interface the connection is bound to.
	IfName() string
}

// -------------------------------------------------------------------------
// Sentinel Errors
// -------------------------------------------------------------------------

var (
	// ErrSocketClosed indicates an operation on a closed socket.
	ErrSocketClosed = errors.New("socket closed")

	// ErrPortNotAttached indicates a host operation on a port number that
	// has no interface.
	ErrPortNotAttached = errors.New("port not attached")
)
