package netio

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/dantte-lp/gorstp/internal/rstp"
)

// ErrPortExists indicates AttachPort was called for a port number that is
// already attached.
var ErrPortExists = errors.New("port already attached")

// -------------------------------------------------------------------------
// Datapath abstraction
// -------------------------------------------------------------------------

// BridgePortState is the forwarding state of a port in the kernel bridge.
// Values follow the kernel's BR_STATE_* constants.
type BridgePortState uint8

// Kernel bridge port states.
const (
	PortStateDisabled   BridgePortState = 0
	PortStateListening  BridgePortState = 1
	PortStateLearning   BridgePortState = 2
	PortStateForwarding BridgePortState = 3
	PortStateBlocking   BridgePortState = 4
)

// String returns the kernel name of the state.
func (s BridgePortState) String() string {
	switch s {
	case PortStateDisabled:
		return "disabled"
	case PortStateListening:
		return "listening"
	case PortStateLearning:
		return "learning"
	case PortStateForwarding:
		return "forwarding"
	case PortStateBlocking:
		return "blocking"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// LinkInfo is a snapshot of one interface's attributes.
type LinkInfo struct {
	Index      int
	Name       string
	MAC        net.HardwareAddr
	Up         bool
	FullDuplex bool

	// Speed in Mb/s, 0 when unknown.
	Speed uint32
}

// Datapath programs the forwarding plane the protocol controls.
type Datapath interface {
	// Link looks up an interface by name.
	Link(name string) (LinkInfo, error)

	// SetLearning toggles address learning on the interface.
	SetLearning(ifIndex int, enable bool) error

	// SetPortState sets the bridge port state of the interface.
	SetPortState(ifIndex int, state BridgePortState) error

	// FlushFDB removes dynamic FDB entries learned on the interface and
	// returns how many were removed.
	FlushFDB(ifIndex int) (int, error)
}

// Dialer opens the BPDU socket of an interface.
type Dialer func(ifName string, ifIndex int) (PacketConn, error)

// ConnSink takes ownership of per-port sockets for reception. *Receiver
// implements it.
type ConnSink interface {
	Add(conn PacketConn) error
	Remove(ifName string)
}

// -------------------------------------------------------------------------
// Host: rstp.Host backed by a Datapath
// -------------------------------------------------------------------------

var (
	_ rstp.Host         = (*Host)(nil)
	_ rstp.PortAttacher = (*Host)(nil)
)

// Host connects one rstp.Bridge to the system. Each attached port has a
// BPDU socket registered with the ConnSink and is programmed through the
// Datapath. Host is safe for concurrent use.
type Host struct {
	bridge  string
	dp      Datapath
	dial    Dialer
	sink    ConnSink
	capture *Capture
	logger  *slog.Logger

	mu     sync.Mutex
	ports  map[uint16]*hostPort
	hwMode bool
}

// hostPort is the host-side state of an attached port.
type hostPort struct {
	conn       PacketConn
	info       LinkInfo
	learning   bool
	forwarding bool
}

// HostOption configures optional Host parameters.
type HostOption func(*Host)

// WithCapture records every transmitted frame to c.
func WithCapture(c *Capture) HostOption {
	return func(h *Host) {
		h.capture = c
	}
}

// NewHost creates a Host for the named bridge.
func NewHost(bridge string, dp Datapath, dial Dialer, sink ConnSink, logger *slog.Logger, opts ...HostOption) *Host {
	h := &Host{
		bridge: bridge,
		dp:     dp,
		dial:   dial,
		sink:   sink,
		logger: logger.With(slog.String("component", "netio.host"), slog.String("bridge", bridge)),
		ports:  make(map[uint16]*hostPort),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AttachPort resolves ifName, opens its BPDU socket and hands the socket
// to the sink.
func (h *Host) AttachPort(number uint16, ifName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.ports[number]; ok {
		return fmt.Errorf("attach port %d (%s): %w", number, ifName, ErrPortExists)
	}

	info, err := h.dp.Link(ifName)
	if err != nil {
		return fmt.Errorf("attach port %d (%s): %w", number, ifName, err)
	}

	conn, err := h.dial(ifName, info.Index)
	if err != nil {
		return fmt.Errorf("attach port %d (%s): %w", number, ifName, err)
	}
	if err := h.sink.Add(conn); err != nil {
		return errors.Join(
			fmt.Errorf("attach port %d (%s): %w", number, ifName, err),
			conn.Close(),
		)
	}

	hp := &hostPort{conn: conn, info: info}
	h.ports[number] = hp

	if h.hwMode {
		if err := h.applyStateLocked(number, hp); err != nil {
			h.logger.Warn("initial port state", slog.String("error", err.Error()))
		}
	}

	h.logger.Info("port attached",
		slog.Int("port", int(number)),
		slog.String("interface", ifName),
		slog.Int("ifindex", info.Index),
	)
	return nil
}

// DetachPort closes the port's socket and returns the interface to plain
// forwarding.
func (h *Host) DetachPort(number uint16) {
	h.mu.Lock()
	defer h.mu.Unlock()

	hp, ok := h.ports[number]
	if !ok {
		return
	}
	delete(h.ports, number)

	h.sink.Remove(hp.info.Name)
	if h.hwMode {
		if err := h.dp.SetPortState(hp.info.Index, PortStateForwarding); err != nil {
			h.logger.Warn("restore port state",
				slog.String("interface", hp.info.Name),
				slog.String("error", err.Error()),
			)
		}
	}

	h.logger.Info("port detached",
		slog.Int("port", int(number)),
		slog.String("interface", hp.info.Name),
	)
}

// TxFrame writes frame to the port's socket.
func (h *Host) TxFrame(port uint16, frame []byte) error {
	h.mu.Lock()
	hp, ok := h.ports[port]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("tx port %d: %w", port, ErrPortNotAttached)
	}

	if err := hp.conn.WriteFrame(frame); err != nil {
		return fmt.Errorf("tx port %d: %w", port, err)
	}
	if err := h.capture.Write(time.Now(), frame); err != nil {
		h.logger.Warn("capture failed", slog.String("error", err.Error()))
	}
	return nil
}

// Flush removes dynamic FDB entries of the port itself, or of every other
// attached port.
func (h *Host) Flush(port uint16, scope rstp.FlushScope) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	hp, ok := h.ports[port]
	if !ok {
		return fmt.Errorf("flush port %d: %w", port, ErrPortNotAttached)
	}

	var targets []*hostPort
	switch scope {
	case rstp.FlushThisPort:
		targets = []*hostPort{hp}
	case rstp.FlushOtherPorts:
		for n, other := range h.ports {
			if n != port {
				targets = append(targets, other)
			}
		}
	default:
		return fmt.Errorf("flush port %d: %w", port, rstp.ErrInvalidFlushScope)
	}

	var errs []error
	for _, t := range targets {
		removed, err := h.dp.FlushFDB(t.info.Index)
		if err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", t.info.Name, err))
			continue
		}
		h.logger.Debug("fdb flushed",
			slog.String("interface", t.info.Name),
			slog.String("scope", scope.String()),
			slog.Int("entries", removed),
		)
	}
	return errors.Join(errs...)
}

// PortAddress returns the interface MAC of the port.
func (h *Host) PortAddress(port uint16) net.HardwareAddr {
	h.mu.Lock()
	defer h.mu.Unlock()

	if hp, ok := h.ports[port]; ok {
		return hp.info.MAC
	}
	return nil
}

// LinkUp refreshes the cached link attributes of the port and reports
// its operational status. FullDuplex and Speed answer from that cache.
func (h *Host) LinkUp(port uint16) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	hp, ok := h.ports[port]
	if !ok {
		return false
	}

	info, err := h.dp.Link(hp.info.Name)
	if err != nil {
		h.logger.Warn("link lookup failed",
			slog.String("interface", hp.info.Name),
			slog.String("error", err.Error()),
		)
		hp.info.Up = false
		return false
	}
	hp.info = info
	return info.Up
}

// FullDuplex reports the cached duplex of the port.
func (h *Host) FullDuplex(port uint16) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if hp, ok := h.ports[port]; ok {
		return hp.info.FullDuplex
	}
	return false
}

// Speed reports the cached speed of the port in Mb/s.
func (h *Host) Speed(port uint16) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if hp, ok := h.ports[port]; ok {
		return hp.info.Speed
	}
	return 0
}

// SetLearning toggles learning on the interface and updates its bridge
// port state.
func (h *Host) SetLearning(port uint16, enable bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	hp, ok := h.ports[port]
	if !ok {
		return fmt.Errorf("set learning port %d: %w", port, ErrPortNotAttached)
	}
	hp.learning = enable
	if !h.hwMode {
		return nil
	}

	if err := h.dp.SetLearning(hp.info.Index, enable); err != nil {
		return fmt.Errorf("set learning %s: %w", hp.info.Name, err)
	}
	return h.applyStateLocked(port, hp)
}

// SetForwarding updates the bridge port state of the interface.
func (h *Host) SetForwarding(port uint16, enable bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	hp, ok := h.ports[port]
	if !ok {
		return fmt.Errorf("set forwarding port %d: %w", port, ErrPortNotAttached)
	}
	hp.forwarding = enable
	if !h.hwMode {
		return nil
	}
	return h.applyStateLocked(port, hp)
}

// SetHardwareMode hands port states to the protocol (enable) or puts
// every attached port into forwarding.
func (h *Host) SetHardwareMode(enable bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.hwMode = enable

	var errs []error
	for n, hp := range h.ports {
		if enable {
			if err := h.applyStateLocked(n, hp); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := h.dp.SetLearning(hp.info.Index, true); err != nil {
			errs = append(errs, fmt.Errorf("set learning %s: %w", hp.info.Name, err))
		}
		if err := h.dp.SetPortState(hp.info.Index, PortStateForwarding); err != nil {
			errs = append(errs, fmt.Errorf("set state %s: %w", hp.info.Name, err))
		}
	}

	h.logger.Info("hardware mode changed", slog.Bool("enabled", enable))
	return errors.Join(errs...)
}

// applyStateLocked programs the kernel state matching the port's
// learning and forwarding flags.
func (h *Host) applyStateLocked(number uint16, hp *hostPort) error {
	state := portState(hp.learning, hp.forwarding)
	if err := h.dp.SetPortState(hp.info.Index, state); err != nil {
		return fmt.Errorf("set state %s: %w", hp.info.Name, err)
	}
	h.logger.Debug("port state set",
		slog.Int("port", int(number)),
		slog.String("interface", hp.info.Name),
		slog.String("state", state.String()),
	)
	return nil
}

// portState maps the protocol's learning and forwarding flags onto a
// kernel bridge port state.
func portState(learning, forwarding bool) BridgePortState {
	switch {
	case forwarding:
		return PortStateForwarding
	case learning:
		return PortStateLearning
	default:
		return PortStateBlocking
	}
}
