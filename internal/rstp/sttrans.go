package rstp

import "log/slog"

// -------------------------------------------------------------------------
// Port State Transition: 802.1D-2004 Section 17.30
// -------------------------------------------------------------------------

type stateTransState uint8

const (
	pstBegin stateTransState = iota
	pstDiscarding
	pstLearning
	pstForwarding
)

var stateTransStateNames = []string{"BEGIN", "DISCARDING", "LEARNING", "FORWARDING"}

func (s stateTransState) String() string { return stateName(stateTransStateNames, uint8(s)) }

// stateTransMachine applies learn and forward to the datapath and
// reflects the result in learning and forwarding.
type stateTransMachine struct {
	p     *Port
	state stateTransState
}

func (m *stateTransMachine) reset() { m.state = pstBegin }

func (m *stateTransMachine) step() bool {
	p := m.p

	switch m.state {
	case pstBegin:
		m.enter(pstDiscarding)
		return true
	case pstDiscarding:
		if p.learn {
			m.enter(pstLearning)
			return true
		}
	case pstLearning:
		if p.forward {
			m.enter(pstForwarding)
			return true
		}
		if !p.learn {
			m.enter(pstDiscarding)
			return true
		}
	case pstForwarding:
		if !p.forward {
			m.enter(pstDiscarding)
			return true
		}
	}
	return false
}

func (m *stateTransMachine) enter(s stateTransState) {
	p := m.p
	trace(p.logger, "sttrans", m.state, s)
	m.state = s

	switch s {
	case pstDiscarding:
		p.setLearning(false)
		p.setForwarding(false)
	case pstLearning:
		p.setLearning(true)
	case pstForwarding:
		p.setForwarding(true)
	}

	b := p.bridge
	b.metrics.SetPortState(b.cfg.Name, p.cfg.Name, p.learning, p.forwarding)
	p.logger.Debug("port state changed",
		slog.Bool("learning", p.learning),
		slog.Bool("forwarding", p.forwarding),
	)
}

// setLearning runs enableLearning/disableLearning (17.21.3, 17.21.5).
// The variable follows the request even when the host fails, since the
// machines cannot make progress otherwise; the failure is logged.
func (p *Port) setLearning(on bool) {
	if err := p.bridge.host.SetLearning(p.cfg.Number, on); err != nil {
		p.logger.Warn("set port learning failed",
			slog.Bool("learning", on),
			slog.String("error", err.Error()),
		)
	}
	p.learning = on
}

// setForwarding runs enableForwarding/disableForwarding (17.21.4, 17.21.6).
func (p *Port) setForwarding(on bool) {
	if err := p.bridge.host.SetForwarding(p.cfg.Number, on); err != nil {
		p.logger.Warn("set port forwarding failed",
			slog.Bool("forwarding", on),
			slog.String("error", err.Error()),
		)
	}
	p.forwarding = on
}
