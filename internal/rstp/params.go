package rstp

import (
	"errors"
	"fmt"
	"net"
)

// -------------------------------------------------------------------------
// Protocol Parameters: 802.1D-2004 Section 17.13, Table 17-1
// -------------------------------------------------------------------------

const (
	// MigrateTime is the Protocol Migration and edge delay timer value.
	MigrateTime = 3

	DefaultBridgePriority uint16 = 0x8000
	DefaultPortPriority   uint8  = 0x80
	DefaultMaxAge         uint16 = 20
	DefaultHelloTime      uint16 = 2
	DefaultForwardDelay   uint16 = 15
	DefaultTxHoldCount    uint16 = 6

	minMaxAge       = 6
	maxMaxAge       = 40
	minHelloTime    = 1
	maxHelloTime    = 10
	minForwardDelay = 4
	maxForwardDelay = 30
	minTxHoldCount  = 1
	maxTxHoldCount  = 10

	bridgePriorityStep = 4096
	portPriorityStep   = 16
)

// Configuration errors.
var (
	// ErrInvalidBridgePriority indicates a bridge priority that is not a
	// multiple of 4096.
	ErrInvalidBridgePriority = errors.New("bridge priority must be a multiple of 4096")

	// ErrInvalidPortPriority indicates a port priority that is not a
	// multiple of 16 in 0..240.
	ErrInvalidPortPriority = errors.New("port priority must be a multiple of 16 in 0..240")

	// ErrInvalidTimes indicates timer parameters outside Table 17-1 or
	// violating 2*(ForwardDelay-1) >= MaxAge >= 2*(HelloTime+1).
	ErrInvalidTimes = errors.New("invalid bridge timer parameters")

	// ErrInvalidTxHoldCount indicates a TxHoldCount outside 1..10.
	ErrInvalidTxHoldCount = errors.New("tx hold count must be in 1..10")

	// ErrInvalidForceVersion indicates an unknown force version.
	ErrInvalidForceVersion = errors.New("force version must be stp or rstp")

	// ErrInvalidPointToPoint indicates an unknown point-to-point setting.
	ErrInvalidPointToPoint = errors.New("point-to-point must be auto, true or false")

	// ErrInvalidFlushScope indicates an unknown flush strategy.
	ErrInvalidFlushScope = errors.New("flush strategy must be this_port or other_ports")

	// ErrInvalidPortNumber indicates a port number outside 1..4095.
	ErrInvalidPortNumber = errors.New("port number must be in 1..4095")

	// ErrInvalidBridgeAddress indicates a missing or malformed bridge MAC.
	ErrInvalidBridgeAddress = errors.New("bridge address must be a 6-octet MAC")

	// ErrPortExists indicates AddPort was called with a number in use.
	ErrPortExists = errors.New("port already exists")

	// ErrPortNotFound indicates an operation on an unknown port number.
	ErrPortNotFound = errors.New("port not found")
)

// -------------------------------------------------------------------------
// Bridge Configuration
// -------------------------------------------------------------------------

// BridgeConfig holds the administrative parameters of one bridge instance.
type BridgeConfig struct {
	// Name identifies the instance in logs, metrics and the management API.
	Name string

	// Address is the bridge MAC used in the bridge identifier.
	Address net.HardwareAddr

	Priority     uint16
	ForceVersion ForceVersion
	MaxAge       uint16
	HelloTime    uint16
	ForwardDelay uint16
	TxHoldCount  uint16
	FlushScope   FlushScope
}

// DefaultBridgeConfig returns the Table 17-1 defaults for the given name
// and address.
func DefaultBridgeConfig(name string, addr net.HardwareAddr) BridgeConfig {
	return BridgeConfig{
		Name:         name,
		Address:      addr,
		Priority:     DefaultBridgePriority,
		ForceVersion: ForceRSTP,
		MaxAge:       DefaultMaxAge,
		HelloTime:    DefaultHelloTime,
		ForwardDelay: DefaultForwardDelay,
		TxHoldCount:  DefaultTxHoldCount,
		FlushScope:   FlushThisPort,
	}
}

// Times returns the configured bridgeTimes (MessageAge is always zero).
func (c BridgeConfig) Times() Times {
	return Times{MaxAge: c.MaxAge, HelloTime: c.HelloTime, ForwardDelay: c.ForwardDelay}
}

// Validate checks the configuration against 802.1D-2004 17.13 and 17.14.
func (c BridgeConfig) Validate() error {
	if len(c.Address) != 6 {
		return fmt.Errorf("bridge %q address %q: %w", c.Name, c.Address, ErrInvalidBridgeAddress)
	}
	if c.Priority%bridgePriorityStep != 0 {
		return fmt.Errorf("bridge %q priority %d: %w", c.Name, c.Priority, ErrInvalidBridgePriority)
	}
	if c.ForceVersion != ForceSTP && c.ForceVersion != ForceRSTP {
		return fmt.Errorf("bridge %q: %w", c.Name, ErrInvalidForceVersion)
	}
	if err := ValidateTimes(c.Times()); err != nil {
		return fmt.Errorf("bridge %q: %w", c.Name, err)
	}
	if c.TxHoldCount < minTxHoldCount || c.TxHoldCount > maxTxHoldCount {
		return fmt.Errorf("bridge %q tx hold count %d: %w", c.Name, c.TxHoldCount, ErrInvalidTxHoldCount)
	}
	if c.FlushScope != FlushThisPort && c.FlushScope != FlushOtherPorts {
		return fmt.Errorf("bridge %q: %w", c.Name, ErrInvalidFlushScope)
	}
	return nil
}

// ValidateTimes checks the ranges of Table 17-1 and the relationship
// 2*(ForwardDelay-1) >= MaxAge >= 2*(HelloTime+1) from 17.14.
func ValidateTimes(t Times) error {
	switch {
	case t.MaxAge < minMaxAge || t.MaxAge > maxMaxAge:
		return fmt.Errorf("max age %d outside %d..%d: %w", t.MaxAge, minMaxAge, maxMaxAge, ErrInvalidTimes)
	case t.HelloTime < minHelloTime || t.HelloTime > maxHelloTime:
		return fmt.Errorf("hello time %d outside %d..%d: %w", t.HelloTime, minHelloTime, maxHelloTime, ErrInvalidTimes)
	case t.ForwardDelay < minForwardDelay || t.ForwardDelay > maxForwardDelay:
		return fmt.Errorf("forward delay %d outside %d..%d: %w",
			t.ForwardDelay, minForwardDelay, maxForwardDelay, ErrInvalidTimes)
	case 2*(t.ForwardDelay-1) < t.MaxAge:
		return fmt.Errorf("max age %d exceeds 2*(forward delay-1)=%d: %w",
			t.MaxAge, 2*(t.ForwardDelay-1), ErrInvalidTimes)
	case t.MaxAge < 2*(t.HelloTime+1):
		return fmt.Errorf("max age %d below 2*(hello time+1)=%d: %w",
			t.MaxAge, 2*(t.HelloTime+1), ErrInvalidTimes)
	}
	return nil
}

// -------------------------------------------------------------------------
// Port Configuration
// -------------------------------------------------------------------------

// PortConfig holds the administrative parameters of one bridge port.
type PortConfig struct {
	// Number is the 12-bit port number, unique within the bridge.
	Number uint16

	// Name is the host interface name, used in logs and the management API.
	Name string

	Priority     uint8
	AdminEdge    bool
	AutoEdge     bool
	PointToPoint PointToPoint
	NonStp       bool
}

// DefaultPortConfig returns a port with default priority, auto edge
// detection and automatic point-to-point detection.
func DefaultPortConfig(number uint16, name string) PortConfig {
	return PortConfig{
		Number:       number,
		Name:         name,
		Priority:     DefaultPortPriority,
		AutoEdge:     true,
		PointToPoint: PointToPointAuto,
	}
}

// Validate checks the port number and priority.
func (c PortConfig) Validate() error {
	if c.Number == 0 || c.Number > MaxPortNumber {
		return fmt.Errorf("port %d: %w", c.Number, ErrInvalidPortNumber)
	}
	if c.Priority%portPriorityStep != 0 || c.Priority > 240 {
		return fmt.Errorf("port %d priority %d: %w", c.Number, c.Priority, ErrInvalidPortPriority)
	}
	if c.PointToPoint > PointToPointForceFalse {
		return fmt.Errorf("port %d: %w", c.Number, ErrInvalidPointToPoint)
	}
	return nil
}
