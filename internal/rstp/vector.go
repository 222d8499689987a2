package rstp

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"
	"net"
)

// -------------------------------------------------------------------------
// Bridge Identifier: 802.1D-2004 Section 9.2.5
// -------------------------------------------------------------------------

// BridgeID is the 8-octet bridge identifier: a 2-octet priority followed by
// the 6-octet bridge MAC address. Its big-endian byte order is also its
// numeric order, so a lexical byte compare ranks bridges correctly.
type BridgeID [8]byte

// NewBridgeID builds a BridgeID from a priority and a MAC address.
// Only the first six octets of mac are used.
func NewBridgeID(priority uint16, mac net.HardwareAddr) BridgeID {
	var id BridgeID
	binary.BigEndian.PutUint16(id[0:2], priority)
	copy(id[2:], mac)
	return id
}

// Priority returns the 2-octet priority component.
func (id BridgeID) Priority() uint16 {
	return binary.BigEndian.Uint16(id[0:2])
}

// MAC returns the address component.
func (id BridgeID) MAC() net.HardwareAddr {
	mac := make(net.HardwareAddr, 6)
	copy(mac, id[2:])
	return mac
}

// WithPriority returns a copy of id carrying a different priority.
func (id BridgeID) WithPriority(priority uint16) BridgeID {
	binary.BigEndian.PutUint16(id[0:2], priority)
	return id
}

// String formats the identifier the way bridge tooling prints it,
// e.g. "8000.0011223344aa".
func (id BridgeID) String() string {
	return fmt.Sprintf("%04x.%02x%02x%02x%02x%02x%02x",
		id.Priority(), id[2], id[3], id[4], id[5], id[6], id[7])
}

// CompareBridgeID orders two bridge identifiers. A negative result means a
// has the higher priority (lower numeric value).
func CompareBridgeID(a, b BridgeID) int {
	return bytes.Compare(a[:], b[:])
}

// -------------------------------------------------------------------------
// Port Identifier: 802.1D-2004 Section 9.2.7
// -------------------------------------------------------------------------

// PortID is the 2-octet port identifier: a 4-bit priority in the high
// nibble and a 12-bit port number.
type PortID uint16

// MaxPortNumber is the largest port number a PortID can carry.
const MaxPortNumber = 0x0FFF

// NewPortID builds a PortID from a priority (multiple of 16) and a port
// number in 1..MaxPortNumber.
func NewPortID(priority uint8, number uint16) PortID {
	return PortID(uint16(priority&0xF0)<<8 | number&MaxPortNumber)
}

// Priority returns the priority component (0..240).
func (p PortID) Priority() uint8 {
	return uint8(p >> 8 & 0xF0)
}

// Number returns the port number component.
func (p PortID) Number() uint16 {
	return uint16(p) & MaxPortNumber
}

// String formats the identifier as "priority.number" in hex, e.g. "80.001".
func (p PortID) String() string {
	return fmt.Sprintf("%02x.%03x", p.Priority(), p.Number())
}

// -------------------------------------------------------------------------
// Priority Vector: 802.1D-2004 Section 17.6
// -------------------------------------------------------------------------

// PriorityVector is the five-component vector used to rank competing claims
// to be root, designated bridge and designated port.
type PriorityVector struct {
	RootBridgeID       BridgeID
	RootPathCost       uint32
	DesignatedBridgeID BridgeID
	DesignatedPortID   PortID
	BridgePortID       PortID
}

// CompareVector orders two priority vectors lexicographically over
// (root bridge, root path cost, designated bridge, designated port, bridge
// port). A negative result means a is better than b.
func CompareVector(a, b PriorityVector) int {
	if c := CompareBridgeID(a.RootBridgeID, b.RootBridgeID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.RootPathCost, b.RootPathCost); c != 0 {
		return c
	}
	if c := CompareBridgeID(a.DesignatedBridgeID, b.DesignatedBridgeID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.DesignatedPortID, b.DesignatedPortID); c != 0 {
		return c
	}
	return cmp.Compare(a.BridgePortID, b.BridgePortID)
}

// String returns a compact diagnostic form of the vector.
func (v PriorityVector) String() string {
	return fmt.Sprintf("%s/%d/%s/%s/%s",
		v.RootBridgeID, v.RootPathCost, v.DesignatedBridgeID, v.DesignatedPortID, v.BridgePortID)
}

// -------------------------------------------------------------------------
// Timer Parameters: 802.1D-2004 Section 17.19.5
// -------------------------------------------------------------------------

// Times carries the timer parameters conveyed in BPDUs, in whole seconds.
type Times struct {
	MessageAge   uint16
	MaxAge       uint16
	HelloTime    uint16
	ForwardDelay uint16
}

// TimesDiffer reports whether any of the four timer parameters differ.
func TimesDiffer(a, b Times) bool {
	return a != b
}

// messageAgeIncrement is the age added to information relayed through
// this bridge: max(1, MaxAge/16).
func messageAgeIncrement(maxAge uint16) uint16 {
	return max(1, maxAge/16)
}
