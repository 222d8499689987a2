package rstp

import "log/slog"

// -------------------------------------------------------------------------
// Topology Change: 802.1D-2004 Section 17.31
// -------------------------------------------------------------------------

type topoChangeState uint8

const (
	tcBegin topoChangeState = iota
	tcInactive
	tcLearning
	tcDetected
	tcActive
	tcAcknowledged
	tcPropagating
	tcNotifiedTC
	tcNotifiedTCN
)

var topoChangeStateNames = []string{
	"BEGIN",
	"INACTIVE",
	"LEARNING",
	"DETECTED",
	"ACTIVE",
	"ACKNOWLEDGED",
	"PROPAGATING",
	"NOTIFIED_TC",
	"NOTIFIED_TCN",
}

func (s topoChangeState) String() string { return stateName(topoChangeStateNames, uint8(s)) }

// topoChangeMachine detects topology changes on the port and propagates
// those received from elsewhere.
//
// The action states return to ACTIVE as in Figure 17-25, with
// NOTIFIED_TCN passing through NOTIFIED_TC so a TCN is both acknowledged
// and propagated.
type topoChangeMachine struct {
	p     *Port
	state topoChangeState
}

func (m *topoChangeMachine) reset() { m.state = tcBegin }

func (m *topoChangeMachine) step() bool {
	p := m.p
	rootOrDesignated := p.role == RoleRoot || p.role == RoleDesignated
	pending := p.rcvdTc || p.rcvdTcn || p.rcvdTcAck || p.tcProp

	switch m.state {
	case tcBegin:
		m.enter(tcInactive)
		return true
	case tcInactive:
		if p.learn && !p.fdbFlush {
			m.enter(tcLearning)
			return true
		}
	case tcLearning:
		switch {
		case rootOrDesignated && p.forward && !p.operEdge:
			m.enter(tcDetected)
		case !rootOrDesignated && !(p.learn || p.learning) && !pending:
			m.enter(tcInactive)
		case pending:
			m.enter(tcLearning)
		default:
			return false
		}
		return true
	case tcActive:
		switch {
		case !rootOrDesignated || p.operEdge:
			m.enter(tcLearning)
		case p.rcvdTcn:
			m.enter(tcNotifiedTCN)
		case p.rcvdTc:
			m.enter(tcNotifiedTC)
		case p.tcProp && !p.operEdge:
			m.enter(tcPropagating)
		case p.rcvdTcAck:
			m.enter(tcAcknowledged)
		default:
			return false
		}
		return true
	case tcNotifiedTCN:
		m.enter(tcNotifiedTC)
		return true
	case tcDetected, tcAcknowledged, tcPropagating, tcNotifiedTC:
		m.enter(tcActive)
		return true
	}
	return false
}

func (m *topoChangeMachine) enter(s topoChangeState) {
	p := m.p
	trace(p.logger, "topoch", m.state, s)
	m.state = s

	switch s {
	case tcInactive:
		p.fdbFlush = true
		p.tcWhile = 0
		p.tcAck = false
		p.flush()
	case tcLearning:
		p.rcvdTc = false
		p.rcvdTcn = false
		p.rcvdTcAck = false
		p.tcProp = false
	case tcDetected:
		p.newTcWhile()
		p.setTcPropTree()
		p.newInfo = true
	case tcAcknowledged:
		p.tcWhile = 0
		p.rcvdTcAck = false
	case tcPropagating:
		p.newTcWhile()
		p.fdbFlush = true
		p.tcProp = false
		p.flush()
	case tcNotifiedTC:
		p.rcvdTcn = false
		p.rcvdTc = false
		if p.role == RoleDesignated {
			p.tcAck = true
		}
		p.setTcPropTree()
	case tcNotifiedTCN:
		p.newTcWhile()
	}
}

// newTcWhile arms tcWhile if it is not already running (17.21.7). While
// sending RST BPDUs the change is signalled for one hello time plus one
// second, otherwise for the legacy MaxAge+ForwardDelay.
func (p *Port) newTcWhile() {
	if p.tcWhile != 0 {
		return
	}
	b := p.bridge
	if p.sendRSTP {
		p.tcWhile = p.designatedTimes.HelloTime + 1
		p.newInfo = true
	} else {
		p.tcWhile = b.rootTimes.MaxAge + b.rootTimes.ForwardDelay
	}
	b.topologyChanged(p)
}

// flush removes the addresses learned on behalf of the port and clears
// fdbFlush (17.19.7). Edge ports have nothing to flush.
func (p *Port) flush() {
	defer func() { p.fdbFlush = false }()

	if p.operEdge {
		return
	}
	b := p.bridge
	if err := b.host.Flush(p.cfg.Number, b.cfg.FlushScope); err != nil {
		p.logger.Warn("flush filtering database failed",
			slog.String("scope", b.cfg.FlushScope.String()),
			slog.String("error", err.Error()),
		)
	}
}
