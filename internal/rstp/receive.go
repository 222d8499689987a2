package rstp

// -------------------------------------------------------------------------
// Port Receive: 802.1D-2004 Section 17.23
// -------------------------------------------------------------------------

type receiveState uint8

const (
	rxBegin receiveState = iota
	rxDiscard
	rxReceive
)

var receiveStateNames = []string{"BEGIN", "DISCARD", "RECEIVE"}

func (s receiveState) String() string { return stateName(receiveStateNames, uint8(s)) }

// receiveMachine admits a staged BPDU into the port once it is enabled.
type receiveMachine struct {
	p     *Port
	state receiveState
}

func (m *receiveMachine) reset() { m.state = rxBegin }

func (m *receiveMachine) step() bool {
	p := m.p

	if m.state == rxBegin ||
		((p.rcvdBPDU || p.edgeDelayWhile != MigrateTime) && !p.portEnabled) {
		// DISCARD restores edgeDelayWhile, so on a disabled port this
		// fires at most once per tick.
		m.enter(rxDiscard)
		return true
	}

	switch m.state {
	case rxDiscard:
		if p.rcvdBPDU && p.portEnabled {
			m.enter(rxReceive)
			return true
		}
	case rxReceive:
		if p.rcvdBPDU && p.portEnabled && !p.rcvdMsg {
			m.enter(rxReceive)
			return true
		}
	}
	return false
}

func (m *receiveMachine) enter(s receiveState) {
	p := m.p
	trace(p.logger, "receive", m.state, s)
	m.state = s

	switch s {
	case rxDiscard:
		p.rcvdBPDU = false
		p.rcvdRSTP = false
		p.rcvdSTP = false
		p.rcvdMsg = false
		p.edgeDelayWhile = MigrateTime
	case rxReceive:
		p.updtBPDUVersion()
		p.operEdge = false
		p.rcvdBPDU = false
		p.rcvdMsg = true
		p.edgeDelayWhile = MigrateTime
	}
}

// updtBPDUVersion classifies the staged BPDU as legacy or rapid (17.21.22).
func (p *Port) updtBPDUVersion() {
	if p.msgType == BPDUTypeTCN || p.msgVersion < VersionRSTP {
		p.rcvdSTP = true
	}
	if p.msgType == BPDUTypeRST {
		p.rcvdRSTP = true
	}
}
