package rstp

import "log/slog"

// -------------------------------------------------------------------------
// Port Transmit: 802.1D-2004 Section 17.26
// -------------------------------------------------------------------------

type transmitState uint8

const (
	ptxBegin transmitState = iota
	ptxTransmitInit
	ptxTransmitPeriodic
	ptxIdle
	ptxTransmitRSTP
	ptxTransmitTCN
	ptxTransmitConfig
)

var transmitStateNames = []string{
	"BEGIN",
	"TRANSMIT_INIT",
	"TRANSMIT_PERIODIC",
	"IDLE",
	"TRANSMIT_RSTP",
	"TRANSMIT_TCN",
	"TRANSMIT_CONFIG",
}

func (s transmitState) String() string { return stateName(transmitStateNames, uint8(s)) }

// transmitMachine sends BPDUs when there is new information and on every
// hello, limited to TxHoldCount BPDUs per second.
type transmitMachine struct {
	p     *Port
	state transmitState
}

func (m *transmitMachine) reset() { m.state = ptxBegin }

func (m *transmitMachine) step() bool {
	p := m.p

	switch m.state {
	case ptxBegin:
		m.enter(ptxTransmitInit)
		return true
	case ptxTransmitInit, ptxTransmitPeriodic, ptxTransmitRSTP, ptxTransmitTCN, ptxTransmitConfig:
		m.enter(ptxIdle)
		return true
	case ptxIdle:
		if !p.selected || p.updtInfo {
			return false
		}
		if p.helloWhen == 0 {
			m.enter(ptxTransmitPeriodic)
			return true
		}
		if !p.newInfo || p.txCount >= p.bridge.cfg.TxHoldCount {
			return false
		}
		switch {
		case p.sendRSTP:
			m.enter(ptxTransmitRSTP)
		case p.role == RoleDesignated:
			m.enter(ptxTransmitConfig)
		case p.role == RoleRoot:
			m.enter(ptxTransmitTCN)
		default:
			return false
		}
		return true
	}
	return false
}

func (m *transmitMachine) enter(s transmitState) {
	p := m.p
	trace(p.logger, "transmit", m.state, s)
	m.state = s

	switch s {
	case ptxTransmitInit:
		p.newInfo = true
		p.txCount = 0
	case ptxTransmitPeriodic:
		p.newInfo = p.newInfo ||
			p.role == RoleDesignated ||
			(p.role == RoleRoot && p.tcWhile != 0)
	case ptxIdle:
		p.helloWhen = p.bridge.rootTimes.HelloTime
	case ptxTransmitRSTP:
		p.newInfo = false
		p.txRstp()
		p.txCount++
		p.tcAck = false
	case ptxTransmitTCN:
		p.newInfo = false
		p.txTcn()
		p.txCount++
	case ptxTransmitConfig:
		p.newInfo = false
		p.txConfig()
		p.txCount++
		p.tcAck = false
	}
}

// -------------------------------------------------------------------------
// BPDU Construction: 802.1D-2004 Sections 17.21.19-17.21.21
// -------------------------------------------------------------------------

// configBody fills the priority vector and times the port advertises.
func (p *Port) configBody(b *BPDU) {
	v := p.designatedPriority
	b.RootID = v.RootBridgeID
	b.RootPathCost = v.RootPathCost
	b.BridgeID = v.DesignatedBridgeID
	b.PortID = v.DesignatedPortID
	b.Times = p.designatedTimes
	if p.tcWhile != 0 {
		b.Flags |= FlagTopologyChange
	}
}

// txConfig (17.21.19).
func (p *Port) txConfig() {
	b := BPDU{Version: VersionSTP, Type: BPDUTypeConfig}
	p.configBody(&b)
	if p.tcAck {
		b.Flags |= FlagTopologyChangeAck
	}
	p.send(&b)
}

// txRstp (17.21.20).
func (p *Port) txRstp() {
	b := BPDU{Version: VersionRSTP, Type: BPDUTypeRST}
	p.configBody(&b)
	b.Flags = b.Flags.WithRole(wireRole(p.selectedRole))
	if p.learning {
		b.Flags |= FlagLearning
	}
	if p.forwarding {
		b.Flags |= FlagForwarding
	}
	// Agreement carries agree (17.21.20), not synced.
	if p.agree {
		b.Flags |= FlagAgreement
	}
	if p.proposing {
		b.Flags |= FlagProposal
	}
	p.send(&b)
}

// txTcn (17.21.21).
func (p *Port) txTcn() {
	p.send(&BPDU{Version: VersionSTP, Type: BPDUTypeTCN})
}

// send encodes and frames b and hands it to the host. Transmit failures
// are logged; the periodic hello retransmits the information.
func (p *Port) send(b *BPDU) {
	if p.cfg.NonStp {
		return
	}
	br := p.bridge

	var buf [RSTSize]byte
	n, err := MarshalBPDU(b, buf[:])
	if err != nil {
		p.logger.Error("marshal bpdu failed", slog.String("error", err.Error()))
		return
	}

	frame, err := EncodeFrame(br.host.PortAddress(p.cfg.Number), buf[:n])
	if err != nil {
		p.logger.Error("encode bpdu frame failed", slog.String("error", err.Error()))
		return
	}

	if err := br.host.TxFrame(p.cfg.Number, frame); err != nil {
		p.logger.Warn("transmit bpdu failed",
			slog.String("type", b.Type.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	switch b.Type {
	case BPDUTypeConfig:
		p.stats.TxConfig++
	case BPDUTypeRST:
		p.stats.TxRST++
	case BPDUTypeTCN:
		p.stats.TxTCN++
	}
	br.metrics.IncBPDUsSent(br.cfg.Name, p.cfg.Name, b.Type.String())
	p.logger.Debug("bpdu sent",
		slog.String("type", b.Type.String()),
		slog.String("flags", b.Flags.String()),
	)
}
