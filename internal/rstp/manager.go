package rstp

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// -------------------------------------------------------------------------
// Manager Errors
// -------------------------------------------------------------------------

var (
	// ErrBridgeNotFound indicates no bridge exists with the given name.
	ErrBridgeNotFound = errors.New("bridge not found")

	// ErrBridgeExists indicates a bridge with the given name already exists.
	ErrBridgeExists = errors.New("bridge already exists")

	// ErrInterfaceInUse indicates the interface is already a port of a bridge.
	ErrInterfaceInUse = errors.New("interface already attached to a bridge")

	// ErrUnknownInterface indicates the interface is not a port of any bridge.
	ErrUnknownInterface = errors.New("interface not attached to any bridge")
)

// eventChSize is the buffer of the aggregated event channel.
const eventChSize = 64

// -------------------------------------------------------------------------
// Host wiring
// -------------------------------------------------------------------------

// HostFactory builds the Host for a new bridge.
type HostFactory func(cfg BridgeConfig) (Host, error)

// PortAttacher is implemented by hosts that map port numbers to
// interfaces themselves. Manager calls it as ports come and go.
type PortAttacher interface {
	AttachPort(number uint16, ifName string) error
	DetachPort(number uint16)
}

// BridgeSpec is the desired configuration of one bridge and its ports.
type BridgeSpec struct {
	Bridge BridgeConfig
	Ports  []PortConfig
}

// ifaceRef locates a port by its interface name.
type ifaceRef struct {
	bridge string
	number uint16
}

// -------------------------------------------------------------------------
// Manager
// -------------------------------------------------------------------------

// Manager owns every bridge of the daemon. It serializes ticks, received
// frames, link events and management operations under one mutex, which
// gives each Bridge the single-threaded execution it requires.
type Manager struct {
	mu      sync.Mutex
	bridges map[string]*Bridge
	hosts   map[string]Host
	ifaces  map[string]ifaceRef

	newHost HostFactory
	clock   clock.Clock
	metrics MetricsReporter
	events  chan Event

	logger *slog.Logger
}

// ManagerOption configures optional Manager parameters.
type ManagerOption func(*Manager)

// WithManagerMetrics sets the MetricsReporter for every bridge the
// manager creates. If mr is nil, a no-op reporter is used.
func WithManagerMetrics(mr MetricsReporter) ManagerOption {
	return func(m *Manager) {
		if mr != nil {
			m.metrics = mr
		}
	}
}

// WithManagerClock sets the clock that drives ticks and timestamps.
func WithManagerClock(c clock.Clock) ManagerOption {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// NewManager creates an empty manager. newHost is called once per bridge.
func NewManager(newHost HostFactory, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		bridges: make(map[string]*Bridge),
		hosts:   make(map[string]Host),
		ifaces:  make(map[string]ifaceRef),
		newHost: newHost,
		clock:   clock.New(),
		metrics: noopMetrics{},
		events:  make(chan Event, eventChSize),
		logger:  logger.With(slog.String("component", "rstp.manager")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Events returns the channel receiving events from every bridge. If the
// consumer falls behind, events are dropped.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// -------------------------------------------------------------------------
// Bridge and Port lifecycle
// -------------------------------------------------------------------------

// AddBridge creates, populates and starts a bridge.
func (m *Manager) AddBridge(spec BridgeSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addBridgeLocked(spec)
}

func (m *Manager) addBridgeLocked(spec BridgeSpec) error {
	name := spec.Bridge.Name
	if _, ok := m.bridges[name]; ok {
		return fmt.Errorf("add bridge %q: %w", name, ErrBridgeExists)
	}

	host, err := m.newHost(spec.Bridge)
	if err != nil {
		return fmt.Errorf("add bridge %q: host: %w", name, err)
	}

	b, err := NewBridge(spec.Bridge, host, m.logger,
		WithMetrics(m.metrics),
		WithClock(m.clock),
		WithEvents(m.events),
	)
	if err != nil {
		return fmt.Errorf("add bridge %q: %w", name, err)
	}
	m.bridges[name] = b
	m.hosts[name] = host

	for _, pc := range spec.Ports {
		if err := m.addPortLocked(b, pc); err != nil {
			m.removeBridgeLocked(name)
			return fmt.Errorf("add bridge %q: %w", name, err)
		}
	}

	if err := b.Start(); err != nil {
		m.removeBridgeLocked(name)
		return fmt.Errorf("add bridge %q: %w", name, err)
	}
	return nil
}

// RemoveBridge stops a bridge and detaches its ports.
func (m *Manager) RemoveBridge(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bridges[name]; !ok {
		return fmt.Errorf("remove bridge %q: %w", name, ErrBridgeNotFound)
	}
	m.removeBridgeLocked(name)
	return nil
}

func (m *Manager) removeBridgeLocked(name string) {
	b := m.bridges[name]
	if err := b.Stop(); err != nil {
		m.logger.Warn("stop bridge failed",
			slog.String("bridge", name),
			slog.String("error", err.Error()),
		)
	}
	for _, p := range slices.Clone(b.ports) {
		m.detachLocked(b, p.cfg.Number)
	}
	delete(m.bridges, name)
	delete(m.hosts, name)
}

// AddPort attaches an interface to a bridge as a new port.
func (m *Manager) AddPort(bridge string, cfg PortConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.bridgeLocked(bridge)
	if err != nil {
		return err
	}
	return m.addPortLocked(b, cfg)
}

func (m *Manager) addPortLocked(b *Bridge, cfg PortConfig) error {
	if ref, ok := m.ifaces[cfg.Name]; ok {
		return fmt.Errorf("port %s: bridge %q port %d: %w", cfg.Name, ref.bridge, ref.number, ErrInterfaceInUse)
	}
	if pa, ok := m.hosts[b.cfg.Name].(PortAttacher); ok {
		if err := pa.AttachPort(cfg.Number, cfg.Name); err != nil {
			return fmt.Errorf("port %s: %w", cfg.Name, err)
		}
	}
	if err := b.AddPort(cfg); err != nil {
		if pa, ok := m.hosts[b.cfg.Name].(PortAttacher); ok {
			pa.DetachPort(cfg.Number)
		}
		return err
	}
	m.ifaces[cfg.Name] = ifaceRef{bridge: b.cfg.Name, number: cfg.Number}
	return nil
}

// RemovePort detaches a port from a bridge.
func (m *Manager) RemovePort(bridge string, number uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.bridgeLocked(bridge)
	if err != nil {
		return err
	}
	if _, err := b.port(number); err != nil {
		return err
	}
	m.detachLocked(b, number)
	return nil
}

func (m *Manager) detachLocked(b *Bridge, number uint16) {
	p, err := b.port(number)
	if err != nil {
		return
	}
	name := p.cfg.Name
	if err := b.RemovePort(number); err != nil {
		m.logger.Warn("remove port failed", slog.String("port", name), slog.String("error", err.Error()))
	}
	if pa, ok := m.hosts[b.cfg.Name].(PortAttacher); ok {
		pa.DetachPort(number)
	}
	delete(m.ifaces, name)
}

func (m *Manager) bridgeLocked(name string) (*Bridge, error) {
	b, ok := m.bridges[name]
	if !ok {
		return nil, fmt.Errorf("bridge %q: %w", name, ErrBridgeNotFound)
	}
	return b, nil
}

// -------------------------------------------------------------------------
// Event entry points
// -------------------------------------------------------------------------

// Run ticks every bridge once a second until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := m.clock.Ticker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// Tick advances every bridge by one second.
func (m *Manager) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.bridges {
		b.Tick()
	}
}

// HandleFrame delivers a frame received on interface ifName to the bridge
// port attached to it.
func (m *Manager) HandleFrame(ifName string, frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, ok := m.ifaces[ifName]
	if !ok {
		return fmt.Errorf("frame on %s: %w", ifName, ErrUnknownInterface)
	}
	return m.bridges[ref.bridge].ReceiveFrame(ref.number, frame)
}

// LinkChanged makes the port attached to ifName re-read its link state.
func (m *Manager) LinkChanged(ifName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, ok := m.ifaces[ifName]
	if !ok {
		return fmt.Errorf("link change on %s: %w", ifName, ErrUnknownInterface)
	}
	return m.bridges[ref.bridge].LinkChanged(ref.number)
}

// Interfaces returns the names of every attached interface, sorted.
func (m *Manager) Interfaces() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.ifaces))
	for name := range m.ifaces {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// -------------------------------------------------------------------------
// Management
// -------------------------------------------------------------------------

// Update runs fn against the named bridge under the manager lock. It is
// how management operations reach the Bridge setters.
func (m *Manager) Update(name string, fn func(*Bridge) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.bridgeLocked(name)
	if err != nil {
		return err
	}
	return fn(b)
}

// Bridges returns a snapshot of every bridge, sorted by name.
func (m *Manager) Bridges() []BridgeStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]BridgeStatus, 0, len(m.bridges))
	for _, b := range m.bridges {
		out = append(out, b.Status())
	}
	slices.SortFunc(out, func(a, b BridgeStatus) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Bridge returns a snapshot of the named bridge.
func (m *Manager) Bridge(name string) (BridgeStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.bridgeLocked(name)
	if err != nil {
		return BridgeStatus{}, err
	}
	return b.Status(), nil
}

// Port returns a snapshot of one port of the named bridge.
func (m *Manager) Port(name string, number uint16) (PortStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.bridgeLocked(name)
	if err != nil {
		return PortStatus{}, err
	}
	return b.PortStatus(number)
}

// Close stops every bridge, returning the datapath to plain forwarding.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name := range m.bridges {
		m.removeBridgeLocked(name)
	}
}

// -------------------------------------------------------------------------
// Reconciliation: SIGHUP reload
// -------------------------------------------------------------------------

// Reconcile brings the set of bridges in line with specs: bridges not in
// specs are removed, new ones are added and existing ones have their
// parameters and ports updated in place. Errors are collected so one bad
// bridge does not block the rest.
func (m *Manager) Reconcile(specs []BridgeSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	desired := make(map[string]BridgeSpec, len(specs))
	for _, s := range specs {
		desired[s.Bridge.Name] = s
	}

	var errs []error
	for name := range m.bridges {
		if _, ok := desired[name]; !ok {
			m.logger.Info("reconcile: removing bridge", slog.String("bridge", name))
			m.removeBridgeLocked(name)
		}
	}

	for _, spec := range specs {
		b, ok := m.bridges[spec.Bridge.Name]
		switch {
		case !ok:
			m.logger.Info("reconcile: adding bridge", slog.String("bridge", spec.Bridge.Name))
			errs = append(errs, m.addBridgeLocked(spec))
		case !macEqual(b.cfg.Address, spec.Bridge.Address):
			m.logger.Info("reconcile: bridge address changed, recreating",
				slog.String("bridge", spec.Bridge.Name))
			m.removeBridgeLocked(spec.Bridge.Name)
			errs = append(errs, m.addBridgeLocked(spec))
		default:
			errs = append(errs, m.reconcileBridgeLocked(b, spec))
		}
	}

	return errors.Join(errs...)
}

func (m *Manager) reconcileBridgeLocked(b *Bridge, spec BridgeSpec) error {
	c := spec.Bridge
	if err := c.Validate(); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	errs := []error{
		b.SetBridgePriority(c.Priority),
		b.SetBridgeTimes(c.MaxAge, c.HelloTime, c.ForwardDelay),
		b.SetTxHoldCount(c.TxHoldCount),
		b.SetFlushScope(c.FlushScope),
		b.SetForceVersion(c.ForceVersion),
	}

	want := make(map[uint16]PortConfig, len(spec.Ports))
	for _, pc := range spec.Ports {
		want[pc.Number] = pc
	}
	for _, p := range slices.Clone(b.ports) {
		if pc, ok := want[p.cfg.Number]; !ok || pc.Name != p.cfg.Name {
			m.detachLocked(b, p.cfg.Number)
		}
	}

	for _, pc := range spec.Ports {
		if _, err := b.port(pc.Number); err != nil {
			errs = append(errs, m.addPortLocked(b, pc))
			continue
		}
		errs = append(errs,
			b.SetPortPriority(pc.Number, pc.Priority),
			b.SetAdminEdge(pc.Number, pc.AdminEdge),
			b.SetAutoEdge(pc.Number, pc.AutoEdge),
			b.SetAdminPointToPoint(pc.Number, pc.PointToPoint),
			b.SetAdminNonStp(pc.Number, pc.NonStp),
		)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("reconcile bridge %q: %w", b.cfg.Name, err)
	}
	return nil
}
