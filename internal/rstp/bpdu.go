package rstp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// -------------------------------------------------------------------------
// BPDU Constants: 802.1D-2004 Clause 9
// -------------------------------------------------------------------------

const (
	// ProtocolID is the only protocol identifier value defined (9.3.1).
	ProtocolID uint16 = 0x0000

	// VersionSTP is the protocol version of Configuration and TCN BPDUs.
	VersionSTP uint8 = 0

	// VersionRSTP is the protocol version of RST BPDUs.
	VersionRSTP uint8 = 2

	// TCNSize is the length of a Topology Change Notification BPDU.
	TCNSize = 4

	// ConfigSize is the length of a Configuration BPDU.
	ConfigSize = 35

	// RSTSize is the length of an RST BPDU including Version 1 Length.
	RSTSize = 36

	// timeUnit is the wire encoding of one second (1/256 s units).
	timeUnit = 256

	// maxWireSeconds is the largest whole-second value a time field holds.
	maxWireSeconds = 0xFF
)

// BPDUType is the BPDU Type field (9.3.1-9.3.3).
type BPDUType uint8

const (
	BPDUTypeConfig BPDUType = 0x00
	BPDUTypeRST    BPDUType = 0x02
	BPDUTypeTCN    BPDUType = 0x80
)

// String returns the human-readable name of the BPDU type.
func (t BPDUType) String() string {
	switch t {
	case BPDUTypeConfig:
		return "Config"
	case BPDUTypeRST:
		return "RST"
	case BPDUTypeTCN:
		return "TCN"
	default:
		return fmt.Sprintf(unknownFmt, t)
	}
}

// -------------------------------------------------------------------------
// Flags: 802.1D-2004 Section 9.3.3, Figure 9-3
// -------------------------------------------------------------------------

// Flags is the BPDU flags octet.
type Flags uint8

const (
	FlagTopologyChange    Flags = 1 << 0
	FlagProposal          Flags = 1 << 1
	FlagLearning          Flags = 1 << 4
	FlagForwarding        Flags = 1 << 5
	FlagAgreement         Flags = 1 << 6
	FlagTopologyChangeAck Flags = 1 << 7

	flagRoleShift = 2
	flagRoleMask  = Flags(0x3) << flagRoleShift
)

// WireRole is the 2-bit Port Role field of an RST BPDU.
type WireRole uint8

const (
	WireRoleUnknown    WireRole = 0
	WireRoleAltBackup  WireRole = 1
	WireRoleRoot       WireRole = 2
	WireRoleDesignated WireRole = 3
)

var wireRoleNames = [4]string{"Unknown", "AlternateOrBackup", "Root", "Designated"}

// String returns the human-readable name of the encoded role.
func (r WireRole) String() string {
	return wireRoleNames[r&0x3]
}

// Has reports whether every bit of mask is set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// Role extracts the Port Role field.
func (f Flags) Role() WireRole {
	return WireRole((f & flagRoleMask) >> flagRoleShift)
}

// String lists the set flags and the role, e.g. "P|A|Designated".
func (f Flags) String() string {
	var parts []string
	for _, fl := range []struct {
		bit  Flags
		name string
	}{
		{FlagTopologyChange, "TC"},
		{FlagProposal, "P"},
		{FlagLearning, "L"},
		{FlagForwarding, "F"},
		{FlagAgreement, "A"},
		{FlagTopologyChangeAck, "TCA"},
	} {
		if f.Has(fl.bit) {
			parts = append(parts, fl.name)
		}
	}
	parts = append(parts, f.Role().String())
	return strings.Join(parts, "|")
}

// WithRole returns f with the Port Role field replaced.
func (f Flags) WithRole(r WireRole) Flags {
	return f&^flagRoleMask | Flags(r&0x3)<<flagRoleShift
}

// wireRole encodes a port role for transmission (17.21.20).
func wireRole(r Role) WireRole {
	switch r {
	case RoleAlternate, RoleBackup:
		return WireRoleAltBackup
	case RoleRoot:
		return WireRoleRoot
	case RoleDesignated:
		return WireRoleDesignated
	default:
		return WireRoleUnknown
	}
}

// -------------------------------------------------------------------------
// BPDU
// -------------------------------------------------------------------------

// BPDU is a decoded Bridge Protocol Data Unit. TCN BPDUs carry only the
// header fields; times are in whole seconds.
type BPDU struct {
	ProtocolID     uint16
	Version        uint8
	Type           BPDUType
	Flags          Flags
	RootID         BridgeID
	RootPathCost   uint32
	BridgeID       BridgeID
	PortID         PortID
	Times          Times
	Version1Length uint8
}

// Len returns the encoded length of the BPDU.
func (b *BPDU) Len() int {
	switch b.Type {
	case BPDUTypeTCN:
		return TCNSize
	case BPDUTypeRST:
		return RSTSize
	default:
		return ConfigSize
	}
}

// Vector returns the message priority vector carried by the BPDU as seen
// by the receiving port (17.19.14).
func (b *BPDU) Vector(receivingPort PortID) PriorityVector {
	return PriorityVector{
		RootBridgeID:       b.RootID,
		RootPathCost:       b.RootPathCost,
		DesignatedBridgeID: b.BridgeID,
		DesignatedPortID:   b.PortID,
		BridgePortID:       receivingPort,
	}
}

// -------------------------------------------------------------------------
// Codec Errors
// -------------------------------------------------------------------------

var (
	// ErrShortBPDU indicates the data is shorter than its BPDU type requires.
	ErrShortBPDU = errors.New("bpdu too short")

	// ErrInvalidProtocolID indicates a Protocol Identifier other than 0.
	ErrInvalidProtocolID = errors.New("invalid bpdu protocol identifier")

	// ErrUnknownBPDUType indicates a BPDU Type this bridge does not speak.
	ErrUnknownBPDUType = errors.New("unknown bpdu type")

	// ErrBPDUBufTooSmall indicates the caller-provided buffer is too small.
	ErrBPDUBufTooSmall = errors.New("buffer too small for bpdu")
)

const unmarshalErrPrefix = "unmarshal bpdu"

// -------------------------------------------------------------------------
// MarshalBPDU / UnmarshalBPDU
// -------------------------------------------------------------------------

// MarshalBPDU encodes b into buf and returns the number of bytes written.
//
// Wire format (9.3):
//
//	Bytes 0-1:   Protocol Identifier
//	Byte 2:      Protocol Version Identifier
//	Byte 3:      BPDU Type
//	Byte 4:      Flags
//	Bytes 5-12:  Root Identifier
//	Bytes 13-16: Root Path Cost
//	Bytes 17-24: Bridge Identifier
//	Bytes 25-26: Port Identifier
//	Bytes 27-34: Message Age, Max Age, Hello Time, Forward Delay (1/256 s,
//	             at most 255 s)
//	Byte 35:     Version 1 Length (RST only)
func MarshalBPDU(b *BPDU, buf []byte) (int, error) {
	n := b.Len()
	if len(buf) < n {
		return 0, fmt.Errorf("marshal bpdu: need %d bytes, got %d: %w", n, len(buf), ErrBPDUBufTooSmall)
	}

	binary.BigEndian.PutUint16(buf[0:2], b.ProtocolID)
	buf[2] = b.Version
	buf[3] = byte(b.Type)
	if b.Type == BPDUTypeTCN {
		return n, nil
	}

	buf[4] = byte(b.Flags)
	copy(buf[5:13], b.RootID[:])
	binary.BigEndian.PutUint32(buf[13:17], b.RootPathCost)
	copy(buf[17:25], b.BridgeID[:])
	binary.BigEndian.PutUint16(buf[25:27], uint16(b.PortID))
	binary.BigEndian.PutUint16(buf[27:29], wireTime(b.Times.MessageAge))
	binary.BigEndian.PutUint16(buf[29:31], wireTime(b.Times.MaxAge))
	binary.BigEndian.PutUint16(buf[31:33], wireTime(b.Times.HelloTime))
	binary.BigEndian.PutUint16(buf[33:35], wireTime(b.Times.ForwardDelay))
	if b.Type == BPDUTypeRST {
		buf[35] = b.Version1Length
	}

	return n, nil
}

// wireTime encodes whole seconds, saturating at maxWireSeconds.
func wireTime(seconds uint16) uint16 {
	return min(seconds, maxWireSeconds) * timeUnit
}

// UnmarshalBPDU decodes and validates buf (9.3.4). Trailing bytes beyond
// the BPDU type's length are ignored, as Ethernet padding precedes them.
func UnmarshalBPDU(buf []byte, b *BPDU) error {
	if len(buf) < TCNSize {
		return fmt.Errorf("%s: received %d bytes, minimum %d: %w",
			unmarshalErrPrefix, len(buf), TCNSize, ErrShortBPDU)
	}

	*b = BPDU{
		ProtocolID: binary.BigEndian.Uint16(buf[0:2]),
		Version:    buf[2],
		Type:       BPDUType(buf[3]),
	}
	if b.ProtocolID != ProtocolID {
		return fmt.Errorf("%s: protocol id %#04x: %w", unmarshalErrPrefix, b.ProtocolID, ErrInvalidProtocolID)
	}

	switch b.Type {
	case BPDUTypeTCN:
		return nil
	case BPDUTypeConfig:
		if len(buf) < ConfigSize {
			return fmt.Errorf("%s: config bpdu %d bytes, minimum %d: %w",
				unmarshalErrPrefix, len(buf), ConfigSize, ErrShortBPDU)
		}
	case BPDUTypeRST:
		if len(buf) < RSTSize {
			return fmt.Errorf("%s: rst bpdu %d bytes, minimum %d: %w",
				unmarshalErrPrefix, len(buf), RSTSize, ErrShortBPDU)
		}
		b.Version1Length = buf[35]
	default:
		return fmt.Errorf("%s: type %#02x: %w", unmarshalErrPrefix, uint8(b.Type), ErrUnknownBPDUType)
	}

	b.Flags = Flags(buf[4])
	copy(b.RootID[:], buf[5:13])
	b.RootPathCost = binary.BigEndian.Uint32(buf[13:17])
	copy(b.BridgeID[:], buf[17:25])
	b.PortID = PortID(binary.BigEndian.Uint16(buf[25:27]))
	b.Times = Times{
		MessageAge:   binary.BigEndian.Uint16(buf[27:29]) / timeUnit,
		MaxAge:       binary.BigEndian.Uint16(buf[29:31]) / timeUnit,
		HelloTime:    binary.BigEndian.Uint16(buf[31:33]) / timeUnit,
		ForwardDelay: binary.BigEndian.Uint16(buf[33:35]) / timeUnit,
	}

	return nil
}
