package rstp

import "fmt"

const unknownFmt = "Unknown(%d)"

// -------------------------------------------------------------------------
// Port Role: 802.1D-2004 Section 17.7
// -------------------------------------------------------------------------

// Role is a port's function in the active topology.
type Role uint8

const (
	// RoleDisabled is assigned to ports that are not operational.
	RoleDisabled Role = iota

	// RoleAlternate offers an alternate path to the root.
	RoleAlternate

	// RoleBackup backs up a designated port of this same bridge on a
	// shared segment.
	RoleBackup

	// RoleRoot is the port offering the best path to the root bridge.
	RoleRoot

	// RoleDesignated connects a segment to the root through this bridge.
	RoleDesignated

	// RoleNonStp marks administratively non-STP ports. They take no part
	// in the protocol and always learn and forward.
	RoleNonStp
)

var roleNames = [6]string{
	"Disabled",
	"Alternate",
	"Backup",
	"Root",
	"Designated",
	"NonStp",
}

// String returns the human-readable name of the role.
func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf(unknownFmt, r)
}

// -------------------------------------------------------------------------
// Information Provenance: 802.1D-2004 Section 17.19.10
// -------------------------------------------------------------------------

// InfoIs records where a port's portPriority came from.
type InfoIs uint8

const (
	InfoDisabled InfoIs = iota
	InfoMine
	InfoAged
	InfoReceived
)

var infoIsNames = [4]string{"Disabled", "Mine", "Aged", "Received"}

// String returns the human-readable name of the provenance tag.
func (i InfoIs) String() string {
	if int(i) < len(infoIsNames) {
		return infoIsNames[i]
	}
	return fmt.Sprintf(unknownFmt, i)
}

// rcvdInfo is the verdict of the rcvInfo classifier (17.21.8).
type rcvdInfo uint8

const (
	otherInfo rcvdInfo = iota
	superiorDesignatedInfo
	repeatedDesignatedInfo
	inferiorDesignatedInfo
	inferiorRootAlternateInfo
)

func (r rcvdInfo) String() string {
	switch r {
	case superiorDesignatedInfo:
		return "SuperiorDesignated"
	case repeatedDesignatedInfo:
		return "RepeatedDesignated"
	case inferiorDesignatedInfo:
		return "InferiorDesignated"
	case inferiorRootAlternateInfo:
		return "InferiorRootAlternate"
	default:
		return "Other"
	}
}

// -------------------------------------------------------------------------
// Administrative Enumerations
// -------------------------------------------------------------------------

// ForceVersion is the protocol version the bridge is limited to
// (17.13.4). Values below ForceRSTP make the bridge speak legacy STP only.
type ForceVersion uint8

const (
	// ForceSTP restricts the bridge to Configuration and TCN BPDUs.
	ForceSTP ForceVersion = 0

	// ForceRSTP is normal RSTP operation.
	ForceRSTP ForceVersion = 2
)

// String returns "stp" or "rstp".
func (v ForceVersion) String() string {
	switch v {
	case ForceSTP:
		return "stp"
	case ForceRSTP:
		return "rstp"
	default:
		return fmt.Sprintf(unknownFmt, v)
	}
}

// ParseForceVersion maps "stp"/"rstp" to a ForceVersion.
func ParseForceVersion(s string) (ForceVersion, error) {
	switch s {
	case "stp":
		return ForceSTP, nil
	case "rstp", "":
		return ForceRSTP, nil
	default:
		return 0, fmt.Errorf("force version %q: %w", s, ErrInvalidForceVersion)
	}
}

// PointToPoint is the administrative point-to-point setting (6.4.3).
type PointToPoint uint8

const (
	// PointToPointAuto derives the operational value from link duplex.
	PointToPointAuto PointToPoint = iota

	// PointToPointForceTrue always treats the link as point-to-point.
	PointToPointForceTrue

	// PointToPointForceFalse never treats the link as point-to-point.
	PointToPointForceFalse
)

var pointToPointNames = [3]string{"auto", "true", "false"}

// String returns "auto", "true" or "false".
func (p PointToPoint) String() string {
	if int(p) < len(pointToPointNames) {
		return pointToPointNames[p]
	}
	return fmt.Sprintf(unknownFmt, p)
}

// ParsePointToPoint maps "auto"/"true"/"false" to a PointToPoint value.
func ParsePointToPoint(s string) (PointToPoint, error) {
	switch s {
	case "auto", "":
		return PointToPointAuto, nil
	case "true":
		return PointToPointForceTrue, nil
	case "false":
		return PointToPointForceFalse, nil
	default:
		return 0, fmt.Errorf("point-to-point %q: %w", s, ErrInvalidPointToPoint)
	}
}

// FlushScope selects which filtering database entries a topology change
// removes.
type FlushScope uint8

const (
	// FlushThisPort removes entries learned on the changing port only.
	FlushThisPort FlushScope = iota

	// FlushOtherPorts removes entries learned on every port except the
	// changing one.
	FlushOtherPorts
)

// String returns the configuration spelling of the scope.
func (s FlushScope) String() string {
	switch s {
	case FlushThisPort:
		return "this_port"
	case FlushOtherPorts:
		return "other_ports"
	default:
		return fmt.Sprintf(unknownFmt, s)
	}
}

// ParseFlushScope maps "this_port"/"other_ports" to a FlushScope.
func ParseFlushScope(s string) (FlushScope, error) {
	switch s {
	case "this_port", "":
		return FlushThisPort, nil
	case "other_ports":
		return FlushOtherPorts, nil
	default:
		return 0, fmt.Errorf("flush strategy %q: %w", s, ErrInvalidFlushScope)
	}
}
