package rstp

import (
	"log/slog"
)

// -------------------------------------------------------------------------
// Port: 802.1D-2004 Section 17.19
// -------------------------------------------------------------------------

// Port is one bridge port and the protocol state the per-port machines
// share. Fields are owned by the Bridge and only touched from its methods.
type Port struct {
	bridge *Bridge
	cfg    PortConfig
	id     PortID
	logger *slog.Logger

	// Link and administrative signals (17.19.17, 17.19.18, 6.4.3).
	portEnabled      bool
	operPointToPoint bool
	operEdge         bool
	speed            uint32

	// Priority vectors and times (17.19.20-17.19.23).
	portPriority       PriorityVector
	designatedPriority PriorityVector
	msgPriority        PriorityVector
	portTimes          Times
	designatedTimes    Times
	msgTimes           Times

	// Timers (17.17), in seconds.
	edgeDelayWhile uint16
	fdWhile        uint16
	helloWhen      uint16
	mdelayWhile    uint16
	rbWhile        uint16
	rcvdInfoWhile  uint16
	rrWhile        uint16
	tcWhile        uint16
	txCount        uint16

	role         Role
	selectedRole Role
	infoIs       InfoIs
	rcvdInfo     rcvdInfo

	// Protocol flags (17.19).
	agree      bool
	agreed     bool
	proposed   bool
	proposing  bool
	sync       bool
	synced     bool
	reRoot     bool
	disputed   bool
	forward    bool
	forwarding bool
	learn      bool
	learning   bool
	selected   bool
	reselect   bool
	updtInfo   bool
	newInfo    bool
	tcProp     bool
	tcAck      bool
	rcvdTc     bool
	rcvdTcn    bool
	rcvdTcAck  bool
	rcvdMsg    bool
	rcvdBPDU   bool
	rcvdRSTP   bool
	rcvdSTP    bool
	sendRSTP   bool
	mcheck     bool
	fdbFlush   bool

	// Staged BPDU (17.19.14).
	msgVersion uint8
	msgType    BPDUType
	msgFlags   Flags

	stats  PortStats
	uptime uint32

	receive  receiveMachine
	migrate  migrateMachine
	detect   detectMachine
	info     infoMachine
	roletr   roleTransMachine
	sttrans  stateTransMachine
	topoch   topoChangeMachine
	transmit transmitMachine
}

// PortStats counts BPDUs seen and sent on a port.
type PortStats struct {
	RxConfig  uint64
	RxRST     uint64
	RxTCN     uint64
	RxDropped uint64
	TxConfig  uint64
	TxRST     uint64
	TxTCN     uint64
}

func newPort(b *Bridge, cfg PortConfig) *Port {
	p := &Port{
		bridge:  b,
		cfg:     cfg,
		id:      NewPortID(cfg.Priority, cfg.Number),
		logger:  b.logger.With(slog.String("port", cfg.Name), slog.Int("port_number", int(cfg.Number))),
		msgType: bpduTypeNone,
	}
	p.receive.p = p
	p.migrate.p = p
	p.detect.p = p
	p.info.p = p
	p.roletr.p = p
	p.sttrans.p = p
	p.topoch.p = p
	p.transmit.p = p
	return p
}

// bpduTypeNone marks an empty BPDU staging area.
const bpduTypeNone BPDUType = 0xFF

// machines returns the per-port machines in evaluation order.
func (p *Port) machines() []machine {
	return []machine{
		&p.receive,
		&p.migrate,
		&p.detect,
		&p.info,
		&p.roletr,
		&p.sttrans,
		&p.topoch,
		&p.transmit,
	}
}

// begin puts every per-port machine back into its BEGIN pseudostate.
func (p *Port) begin() {
	for _, m := range p.machines() {
		m.reset()
	}
}

// Number returns the configured port number.
func (p *Port) Number() uint16 { return p.cfg.Number }

// Name returns the host interface name of the port.
func (p *Port) Name() string { return p.cfg.Name }

// ID returns the port identifier.
func (p *Port) ID() PortID { return p.id }

// Role returns the committed port role.
func (p *Port) Role() Role { return p.role }

// -------------------------------------------------------------------------
// Timers: 802.1D-2004 Section 17.22
// -------------------------------------------------------------------------

// tickTimers decrements every running timer by one second.
func (p *Port) tickTimers() {
	for _, t := range []*uint16{
		&p.edgeDelayWhile,
		&p.fdWhile,
		&p.helloWhen,
		&p.mdelayWhile,
		&p.rbWhile,
		&p.rcvdInfoWhile,
		&p.rrWhile,
		&p.tcWhile,
		&p.txCount,
	} {
		if *t > 0 {
			*t--
		}
	}
	if p.portEnabled {
		p.uptime++
	}
}

// -------------------------------------------------------------------------
// Link State
// -------------------------------------------------------------------------

// refreshLink reads link status, duplex and speed from the host and
// reports whether portEnabled or operPointToPoint changed.
func (p *Port) refreshLink() bool {
	h := p.bridge.host
	n := p.cfg.Number

	enabled := h.LinkUp(n)
	p.speed = h.Speed(n)

	changed := p.setEnabled(enabled)
	if p.updatePointToPoint(h.FullDuplex(n)) {
		changed = true
	}
	return changed
}

func (p *Port) setEnabled(enabled bool) bool {
	if p.portEnabled == enabled {
		return false
	}
	p.portEnabled = enabled
	if enabled {
		p.uptime = 0
	}
	p.logger.Info("port link changed", slog.Bool("enabled", enabled))
	return true
}

// updatePointToPoint derives operPointToPointMAC from the administrative
// setting and, in auto mode, from link duplex (6.4.3).
func (p *Port) updatePointToPoint(fullDuplex bool) bool {
	var oper bool
	switch p.cfg.PointToPoint {
	case PointToPointForceTrue:
		oper = true
	case PointToPointForceFalse:
		oper = false
	default:
		oper = fullDuplex
	}
	if oper == p.operPointToPoint {
		return false
	}
	p.operPointToPoint = oper
	return true
}

// -------------------------------------------------------------------------
// Bridge-wide helpers: 802.1D-2004 Section 17.21
// -------------------------------------------------------------------------

// others calls fn for every port of the bridge except p.
func (p *Port) others(fn func(*Port)) {
	for _, o := range p.bridge.ports {
		if o != p {
			fn(o)
		}
	}
}

// allSynced reports whether every other port has synced set.
func (p *Port) allSynced() bool {
	for _, o := range p.bridge.ports {
		if o != p && !o.synced {
			return false
		}
	}
	return true
}

// reRooted reports whether rrWhile is zero on every other port.
func (p *Port) reRooted() bool {
	for _, o := range p.bridge.ports {
		if o != p && o.rrWhile != 0 {
			return false
		}
	}
	return true
}

// setSyncTree sets sync on every other port (17.21.14).
func (p *Port) setSyncTree() {
	p.others(func(o *Port) { o.sync = true })
}

// setReRootTree sets reRoot on every port of the bridge, this one
// included (17.21.15). REROOT only exits towards REROOTED through the
// root port's own reRoot.
func (p *Port) setReRootTree() {
	for _, o := range p.bridge.ports {
		o.reRoot = true
	}
}

// setTcPropTree sets tcProp on every other port (17.21.18).
func (p *Port) setTcPropTree() {
	p.others(func(o *Port) { o.tcProp = true })
}

// setRole commits a new port role and reports the change.
func (p *Port) setRole(r Role) {
	if p.role == r {
		return
	}
	old := p.role
	p.role = r
	b := p.bridge
	p.logger.Info("port role changed",
		slog.String("from", old.String()),
		slog.String("to", r.String()),
	)
	b.metrics.RecordRoleChange(b.cfg.Name, p.cfg.Name, old.String(), r.String())
	b.notify(Event{
		Bridge: b.cfg.Name,
		Port:   p.cfg.Name,
		Number: p.cfg.Number,
		Kind:   EventRoleChange,
		From:   old.String(),
		To:     r.String(),
	})
}
