package rstp

// -------------------------------------------------------------------------
// Port Protocol Migration: 802.1D-2004 Section 17.24
// -------------------------------------------------------------------------

type migrateState uint8

const (
	pmBegin migrateState = iota
	pmCheckingRSTP
	pmSelectingSTP
	pmSensing
)

var migrateStateNames = []string{"BEGIN", "CHECKING_RSTP", "SELECTING_STP", "SENSING"}

func (s migrateState) String() string { return stateName(migrateStateNames, uint8(s)) }

// migrateMachine decides whether the port transmits RST or legacy BPDUs.
type migrateMachine struct {
	p     *Port
	state migrateState
}

func (m *migrateMachine) reset() { m.state = pmBegin }

func (m *migrateMachine) step() bool {
	p := m.p
	rstpVersion := p.bridge.rstpVersion()

	switch m.state {
	case pmBegin:
		m.enter(pmCheckingRSTP)
		return true
	case pmCheckingRSTP:
		if p.mdelayWhile == 0 {
			m.enter(pmSensing)
			return true
		}
		if p.mdelayWhile != MigrateTime && !p.portEnabled {
			m.enter(pmCheckingRSTP)
			return true
		}
	case pmSelectingSTP:
		if p.mdelayWhile == 0 || !p.portEnabled || p.mcheck {
			m.enter(pmSensing)
			return true
		}
	case pmSensing:
		if !p.portEnabled || p.mcheck || (rstpVersion && !p.sendRSTP && p.rcvdRSTP) {
			m.enter(pmCheckingRSTP)
			return true
		}
		if p.sendRSTP && p.rcvdSTP {
			m.enter(pmSelectingSTP)
			return true
		}
	}
	return false
}

func (m *migrateMachine) enter(s migrateState) {
	p := m.p
	trace(p.logger, "migrate", m.state, s)
	m.state = s

	switch s {
	case pmCheckingRSTP:
		p.mcheck = false
		p.sendRSTP = p.bridge.rstpVersion()
		p.mdelayWhile = MigrateTime
	case pmSelectingSTP:
		p.sendRSTP = false
		p.mdelayWhile = MigrateTime
		p.logger.Info("legacy stp peer detected, sending config bpdus")
	case pmSensing:
		p.rcvdRSTP = false
		p.rcvdSTP = false
	}
}
