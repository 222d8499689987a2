package rstp

// -------------------------------------------------------------------------
// Bridge Detection: 802.1D-2004 Section 17.25
// -------------------------------------------------------------------------

type detectState uint8

const (
	bdBegin detectState = iota
	bdEdge
	bdNotEdge
)

var detectStateNames = []string{"BEGIN", "EDGE", "NOT_EDGE"}

func (s detectState) String() string { return stateName(detectStateNames, uint8(s)) }

// detectMachine maintains operEdge.
type detectMachine struct {
	p     *Port
	state detectState
}

func (m *detectMachine) reset() { m.state = bdBegin }

func (m *detectMachine) step() bool {
	p := m.p
	adminEdge := p.cfg.AdminEdge

	switch m.state {
	case bdBegin:
		if adminEdge {
			m.enter(bdEdge)
		} else {
			m.enter(bdNotEdge)
		}
		return true
	case bdEdge:
		if (!p.portEnabled && !adminEdge) || !p.operEdge {
			m.enter(bdNotEdge)
			return true
		}
	case bdNotEdge:
		if (!p.portEnabled && adminEdge) ||
			(p.edgeDelayWhile == 0 && p.cfg.AutoEdge && p.sendRSTP && p.proposing) {
			m.enter(bdEdge)
			return true
		}
	}
	return false
}

func (m *detectMachine) enter(s detectState) {
	p := m.p
	trace(p.logger, "detect", m.state, s)
	m.state = s
	p.operEdge = s == bdEdge
}
