package rstp

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/benbjohnson/clock"
)

// -------------------------------------------------------------------------
// Bridge: 802.1D-2004 Section 17.18
// -------------------------------------------------------------------------

// Bridge is one spanning tree instance and the ports attached to it.
//
// A Bridge is not safe for concurrent use. The caller serializes Tick,
// the receive entry points and the administrative operations; Manager
// does this with a single mutex.
type Bridge struct {
	cfg     BridgeConfig
	id      BridgeID
	host    Host
	logger  *slog.Logger
	metrics MetricsReporter
	clock   clock.Clock
	events  chan<- Event

	rootPriority PriorityVector
	rootTimes    Times
	rootPortID   PortID

	// ports is kept sorted by port number.
	ports   []*Port
	rolesel roleSelMachine
	running bool

	started            time.Time
	topologyChanges    uint64
	lastTopologyChange time.Time
}

// Option configures optional Bridge parameters.
type Option func(*Bridge)

// WithMetrics sets the MetricsReporter. If mr is nil, a no-op reporter
// is used.
func WithMetrics(mr MetricsReporter) Option {
	return func(b *Bridge) {
		if mr != nil {
			b.metrics = mr
		}
	}
}

// WithClock sets the clock used for event and status timestamps.
func WithClock(c clock.Clock) Option {
	return func(b *Bridge) {
		if c != nil {
			b.clock = c
		}
	}
}

// WithEvents publishes role, root, topology and link changes on ch.
// Sends never block; events are dropped when ch is full.
func WithEvents(ch chan<- Event) Option {
	return func(b *Bridge) {
		b.events = ch
	}
}

// NewBridge validates cfg and returns a stopped bridge with no ports.
func NewBridge(cfg BridgeConfig, host Host, logger *slog.Logger, opts ...Option) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new bridge: %w", err)
	}

	b := &Bridge{
		cfg:     cfg,
		id:      NewBridgeID(cfg.Priority, cfg.Address),
		host:    host,
		metrics: noopMetrics{},
		clock:   clock.New(),
		logger: logger.With(
			slog.String("component", "rstp.bridge"),
			slog.String("bridge", cfg.Name),
		),
	}
	b.rolesel.b = b
	b.rootPriority = b.ownVector()
	b.rootTimes = cfg.Times()

	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Name returns the configured instance name.
func (b *Bridge) Name() string { return b.cfg.Name }

// ID returns the bridge identifier.
func (b *Bridge) ID() BridgeID { return b.id }

// Config returns a copy of the current configuration.
func (b *Bridge) Config() BridgeConfig { return b.cfg }

// Running reports whether the protocol is started.
func (b *Bridge) Running() bool { return b.running }

// rstpVersion is TRUE when ForceVersion permits RST BPDUs (17.20.11).
func (b *Bridge) rstpVersion() bool {
	return b.cfg.ForceVersion >= ForceRSTP
}

// -------------------------------------------------------------------------
// Lifecycle
// -------------------------------------------------------------------------

// Start puts the datapath under protocol control and initializes every
// machine through BEGIN.
func (b *Bridge) Start() error {
	if b.running {
		return nil
	}
	if err := b.host.SetHardwareMode(true); err != nil {
		return fmt.Errorf("start bridge %q: %w", b.cfg.Name, err)
	}
	b.running = true
	b.started = b.clock.Now()

	for _, p := range b.ports {
		p.refreshLink()
	}
	n := b.begin()
	b.metrics.SetRoot(b.cfg.Name, b.rootPriority.RootBridgeID.String(), b.rootPriority.RootPathCost)

	b.logger.Info("bridge started",
		slog.String("bridge_id", b.id.String()),
		slog.String("force_version", b.cfg.ForceVersion.String()),
		slog.Int("ports", len(b.ports)),
		slog.Int("transitions", n),
	)
	return nil
}

// Stop releases the datapath; every port forwards freely afterwards.
func (b *Bridge) Stop() error {
	if !b.running {
		return nil
	}
	b.running = false
	if err := b.host.SetHardwareMode(false); err != nil {
		return fmt.Errorf("stop bridge %q: %w", b.cfg.Name, err)
	}
	b.logger.Info("bridge stopped")
	return nil
}

// begin drives every machine through BEGIN and settles.
func (b *Bridge) begin() int {
	b.rolesel.reset()
	for _, p := range b.ports {
		p.begin()
	}
	return b.settle()
}

// -------------------------------------------------------------------------
// Events: the only entry points that advance protocol state
// -------------------------------------------------------------------------

// Tick advances every port timer by one second and settles the machines.
func (b *Bridge) Tick() {
	b.tick()
}

// tick returns the number of transitions the tick caused.
func (b *Bridge) tick() int {
	if !b.running {
		return 0
	}
	for _, p := range b.ports {
		p.tickTimers()
	}
	return b.settle()
}

// ReceiveFrame validates the Ethernet and LLC headers of a frame received
// on port number and processes the BPDU it carries.
func (b *Bridge) ReceiveFrame(number uint16, frame []byte) error {
	p, err := b.port(number)
	if err != nil {
		return err
	}
	src, payload, err := DecodeFrame(frame)
	if err != nil {
		return err
	}
	p.logger.Debug("bpdu frame received", slog.String("src", src.String()), slog.Int("len", len(frame)))
	return b.ReceiveBPDU(number, payload)
}

// ReceiveBPDU decodes a BPDU received on port number, stages it into the
// port and settles the machines. Malformed BPDUs are counted, logged and
// returned as errors; policy drops are counted and return nil.
func (b *Bridge) ReceiveBPDU(number uint16, payload []byte) error {
	p, err := b.port(number)
	if err != nil {
		return err
	}
	if !b.running {
		return nil
	}

	var bpdu BPDU
	if err := UnmarshalBPDU(payload, &bpdu); err != nil {
		if errors.Is(err, ErrUnknownBPDUType) {
			p.logger.Warn("discarding bpdu of unknown type", slog.String("error", err.Error()))
			p.drop(dropUnknownType)
		} else {
			p.logger.Debug("discarding malformed bpdu", slog.String("error", err.Error()))
			p.drop(dropMalformed)
		}
		return fmt.Errorf("port %s: %w", p.cfg.Name, err)
	}

	switch bpdu.Type {
	case BPDUTypeConfig:
		p.stats.RxConfig++
	case BPDUTypeRST:
		p.stats.RxRST++
	case BPDUTypeTCN:
		p.stats.RxTCN++
	}
	b.metrics.IncBPDUsReceived(b.cfg.Name, p.cfg.Name, bpdu.Type.String())

	switch {
	case p.cfg.NonStp:
		p.drop(dropNonStp)
		return nil
	case bpdu.Type == BPDUTypeRST && !b.rstpVersion():
		p.drop(dropVersion)
		return nil
	case bpdu.Type != BPDUTypeTCN && bpdu.BridgeID == b.id && bpdu.PortID == p.id:
		p.logger.Warn("discarding own bpdu, port is looped back")
		p.drop(dropLoopback)
		return nil
	case bpdu.Type != BPDUTypeTCN && bpdu.Times.MessageAge >= bpdu.Times.MaxAge:
		// Information at or past MaxAge is invalid (9.3.4).
		p.logger.Debug("discarding expired bpdu",
			slog.Int("message_age", int(bpdu.Times.MessageAge)),
			slog.Int("max_age", int(bpdu.Times.MaxAge)),
		)
		p.drop(dropExpired)
		return nil
	}

	p.stage(&bpdu)
	b.settle()
	return nil
}

// stage copies a received BPDU into the port's msg variables.
func (p *Port) stage(bpdu *BPDU) {
	p.msgVersion = bpdu.Version
	p.msgType = bpdu.Type
	p.msgFlags = 0
	if bpdu.Type != BPDUTypeTCN {
		p.msgFlags = bpdu.Flags
		p.msgPriority = bpdu.Vector(p.id)
		p.msgTimes = bpdu.Times
	}
	p.rcvdBPDU = true
}

func (p *Port) drop(reason string) {
	p.stats.RxDropped++
	b := p.bridge
	b.metrics.IncBPDUsDropped(b.cfg.Name, p.cfg.Name, reason)
}

// topologyChanged records a port starting to signal a topology change.
func (b *Bridge) topologyChanged(p *Port) {
	b.topologyChanges++
	b.lastTopologyChange = b.clock.Now()
	b.metrics.IncTopologyChanges(b.cfg.Name, p.cfg.Name)
	p.logger.Info("topology change", slog.Uint64("tc_while", uint64(p.tcWhile)))
	b.notify(Event{
		Bridge: b.cfg.Name,
		Port:   p.cfg.Name,
		Number: p.cfg.Number,
		Kind:   EventTopologyChange,
	})
}

// -------------------------------------------------------------------------
// Ports
// -------------------------------------------------------------------------

func (b *Bridge) port(number uint16) (*Port, error) {
	i, ok := b.portIndex(number)
	if !ok {
		return nil, fmt.Errorf("bridge %q port %d: %w", b.cfg.Name, number, ErrPortNotFound)
	}
	return b.ports[i], nil
}

func (b *Bridge) portIndex(number uint16) (int, bool) {
	return slices.BinarySearchFunc(b.ports, number, func(p *Port, n uint16) int {
		return int(p.cfg.Number) - int(n)
	})
}

// portByID returns the port with identifier id, or nil.
func (b *Bridge) portByID(id PortID) *Port {
	if id == 0 {
		return nil
	}
	for _, p := range b.ports {
		if p.id == id {
			return p
		}
	}
	return nil
}

// AddPort attaches a new port. On a running bridge its machines start
// from BEGIN and every port reselects.
func (b *Bridge) AddPort(cfg PortConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("add port to bridge %q: %w", b.cfg.Name, err)
	}
	i, exists := b.portIndex(cfg.Number)
	if exists {
		return fmt.Errorf("add port to bridge %q: port %d: %w", b.cfg.Name, cfg.Number, ErrPortExists)
	}

	p := newPort(b, cfg)
	b.ports = slices.Insert(b.ports, i, p)
	b.metrics.RegisterPort(b.cfg.Name, cfg.Name)
	p.logger.Info("port added", slog.String("port_id", p.id.String()))

	if b.running {
		p.refreshLink()
		p.begin()
		b.reselectAll()
		b.settle()
	}
	return nil
}

// RemovePort detaches a port. Its datapath state is left discarding.
func (b *Bridge) RemovePort(number uint16) error {
	i, ok := b.portIndex(number)
	if !ok {
		return fmt.Errorf("remove port from bridge %q: port %d: %w", b.cfg.Name, number, ErrPortNotFound)
	}
	p := b.ports[i]
	b.ports = slices.Delete(b.ports, i, i+1)
	b.metrics.UnregisterPort(b.cfg.Name, p.cfg.Name)
	p.logger.Info("port removed")

	if b.running {
		p.setLearning(false)
		p.setForwarding(false)
		b.reselectAll()
		b.settle()
	}
	return nil
}

// reselectAll forces Role Selection to run again for every port.
func (b *Bridge) reselectAll() {
	for _, p := range b.ports {
		p.reselect = true
		p.selected = false
	}
}

// LinkChanged re-reads link status, duplex and speed of port number from
// the host and settles if anything changed.
func (b *Bridge) LinkChanged(number uint16) error {
	p, err := b.port(number)
	if err != nil {
		return err
	}
	wasEnabled := p.portEnabled
	if !p.refreshLink() || !b.running {
		return nil
	}
	if wasEnabled != p.portEnabled {
		b.notify(Event{
			Bridge: b.cfg.Name,
			Port:   p.cfg.Name,
			Number: p.cfg.Number,
			Kind:   EventLinkChange,
			From:   linkName(wasEnabled),
			To:     linkName(p.portEnabled),
		})
	}
	b.settle()
	return nil
}

func linkName(up bool) string {
	if up {
		return "up"
	}
	return "down"
}
