package rstp

import "log/slog"

// -------------------------------------------------------------------------
// Port Information: 802.1D-2004 Section 17.27
// -------------------------------------------------------------------------

type infoState uint8

const (
	piBegin infoState = iota
	piDisabled
	piAged
	piUpdate
	piCurrent
	piReceive
	piSuperiorDesignated
	piRepeatedDesignated
	piInferiorDesignated
	piNotDesignated
	piOther
)

var infoStateNames = []string{
	"BEGIN",
	"DISABLED",
	"AGED",
	"UPDATE",
	"CURRENT",
	"RECEIVE",
	"SUPERIOR_DESIGNATED",
	"REPEATED_DESIGNATED",
	"INFERIOR_DESIGNATED",
	"NOT_DESIGNATED",
	"OTHER",
}

func (s infoState) String() string { return stateName(infoStateNames, uint8(s)) }

// infoMachine records the information carried by received BPDUs and
// keeps portPriority and infoIs current.
type infoMachine struct {
	p     *Port
	state infoState
}

func (m *infoMachine) reset() { m.state = piBegin }

func (m *infoMachine) step() bool {
	p := m.p

	if m.state == piBegin || (!p.portEnabled && p.infoIs != InfoDisabled) {
		m.enter(piDisabled)
		return true
	}

	switch m.state {
	case piDisabled:
		if p.portEnabled {
			m.enter(piAged)
			return true
		}
		if p.rcvdMsg {
			m.enter(piDisabled)
			return true
		}
	case piAged:
		if p.selected && p.updtInfo {
			m.enter(piUpdate)
			return true
		}
	case piUpdate:
		m.enter(piCurrent)
		return true
	case piCurrent:
		if p.selected && p.updtInfo {
			m.enter(piUpdate)
			return true
		}
		if p.infoIs == InfoReceived && p.rcvdInfoWhile == 0 && !p.updtInfo && !p.rcvdMsg {
			m.enter(piAged)
			return true
		}
		if p.rcvdMsg && !p.updtInfo {
			m.enter(piReceive)
			return true
		}
	case piReceive:
		switch p.rcvdInfo {
		case superiorDesignatedInfo:
			m.enter(piSuperiorDesignated)
		case repeatedDesignatedInfo:
			m.enter(piRepeatedDesignated)
		case inferiorDesignatedInfo:
			m.enter(piInferiorDesignated)
		case inferiorRootAlternateInfo:
			m.enter(piNotDesignated)
		default:
			m.enter(piOther)
		}
		return true
	case piSuperiorDesignated, piRepeatedDesignated, piInferiorDesignated, piNotDesignated, piOther:
		m.enter(piCurrent)
		return true
	}
	return false
}

func (m *infoMachine) enter(s infoState) {
	p := m.p
	trace(p.logger, "info", m.state, s)
	m.state = s

	switch s {
	case piDisabled:
		p.rcvdMsg = false
		p.proposing = false
		p.proposed = false
		p.agree = false
		p.agreed = false
		p.rcvdInfoWhile = 0
		p.infoIs = InfoDisabled
		p.reselect = true
		p.selected = false
	case piAged:
		p.infoIs = InfoAged
		p.reselect = true
		p.selected = false
	case piUpdate:
		p.proposing = false
		p.proposed = false
		p.agreed = p.agreed && p.betterOrSameInfo(InfoMine)
		p.synced = p.synced && p.agreed
		p.portPriority = p.designatedPriority
		p.portTimes = p.designatedTimes
		p.updtInfo = false
		p.infoIs = InfoMine
		p.newInfo = true
	case piReceive:
		p.rcvdInfo = p.rcvInfo()
	case piSuperiorDesignated:
		p.agreed = false
		p.proposing = false
		p.recordProposal()
		p.setTcFlags()
		p.agree = p.agree && p.betterOrSameInfo(InfoReceived)
		p.recordPriority()
		p.recordTimes()
		p.updtRcvdInfoWhile()
		p.infoIs = InfoReceived
		p.reselect = true
		p.selected = false
		p.rcvdMsg = false
	case piRepeatedDesignated:
		p.recordProposal()
		p.setTcFlags()
		p.updtRcvdInfoWhile()
		p.rcvdMsg = false
	case piInferiorDesignated:
		p.recordDispute()
		p.rcvdMsg = false
	case piNotDesignated:
		p.recordAgreement()
		p.setTcFlags()
		p.rcvdMsg = false
	case piOther:
		p.rcvdMsg = false
	}
}

// -------------------------------------------------------------------------
// Procedures: 802.1D-2004 Section 17.21
// -------------------------------------------------------------------------

// msgRole returns the role the staged BPDU claims for its sender.
// Configuration BPDUs always speak for a designated port.
func (p *Port) msgRole() WireRole {
	if p.msgType == BPDUTypeConfig {
		return WireRoleDesignated
	}
	return p.msgFlags.Role()
}

// rcvInfo classifies the staged BPDU against the port's information
// (17.21.8).
func (p *Port) rcvInfo() rcvdInfo {
	// A TCN carries no vector; its only effect is the notification
	// recorded by setTcFlags in NOT_DESIGNATED.
	if p.msgType == BPDUTypeTCN {
		return inferiorRootAlternateInfo
	}

	c := CompareVector(p.msgPriority, p.portPriority)

	switch p.msgRole() {
	case WireRoleDesignated:
		sameDesignated := CompareBridgeID(p.msgPriority.DesignatedBridgeID, p.portPriority.DesignatedBridgeID) == 0 &&
			p.msgPriority.DesignatedPortID == p.portPriority.DesignatedPortID
		switch {
		case c < 0 || (sameDesignated && TimesDiffer(p.msgTimes, p.portTimes)):
			return superiorDesignatedInfo
		case c == 0 && !TimesDiffer(p.msgTimes, p.portTimes):
			return repeatedDesignatedInfo
		case c > 0:
			return inferiorDesignatedInfo
		}
	case WireRoleRoot, WireRoleAltBackup:
		if c >= 0 {
			return inferiorRootAlternateInfo
		}
	}
	return otherInfo
}

// betterOrSameInfo reports whether the information about to replace
// portPriority is the same as or better than it (17.21.1). newInfoIs
// selects the candidate: msgPriority for Received, designatedPriority for
// Mine.
func (p *Port) betterOrSameInfo(newInfoIs InfoIs) bool {
	switch newInfoIs {
	case InfoReceived:
		return p.infoIs == InfoReceived && CompareVector(p.msgPriority, p.portPriority) <= 0
	case InfoMine:
		return p.infoIs == InfoMine && CompareVector(p.designatedPriority, p.portPriority) <= 0
	default:
		p.logger.Error("betterOrSameInfo called with unexpected provenance",
			slog.String("info_is", newInfoIs.String()),
			slog.Bool("defect", true),
		)
		return false
	}
}

// recordAgreement (17.21.9).
func (p *Port) recordAgreement() {
	if p.bridge.rstpVersion() && p.operPointToPoint && p.msgFlags.Has(FlagAgreement) {
		p.agreed = true
		p.proposing = false
		return
	}
	p.agreed = false
}

// recordDispute (17.21.10). A designated port hearing an inferior
// designated BPDU that claims to be learning is in dispute with a peer
// that has not seen this port's information.
func (p *Port) recordDispute() {
	if p.msgFlags.Has(FlagLearning) {
		p.disputed = true
		p.agreed = false
	}
}

// recordProposal (17.21.11).
func (p *Port) recordProposal() {
	if p.msgRole() == WireRoleDesignated && p.msgFlags.Has(FlagProposal) {
		p.proposed = true
	}
}

// recordPriority (17.21.12).
func (p *Port) recordPriority() {
	p.portPriority = p.msgPriority
}

// recordTimes (17.21.13).
func (p *Port) recordTimes() {
	p.portTimes = p.msgTimes
}

// setTcFlags (17.21.17).
func (p *Port) setTcFlags() {
	if p.msgType == BPDUTypeTCN {
		p.rcvdTcn = true
		return
	}
	if p.msgFlags.Has(FlagTopologyChange) {
		p.rcvdTc = true
	}
	if p.msgFlags.Has(FlagTopologyChangeAck) {
		p.rcvdTcAck = true
	}
}

// updtRcvdInfoWhile (17.21.23). Information expires once its effective
// age exceeds MaxAge; otherwise it lives at most three hello times.
func (p *Port) updtRcvdInfoWhile() {
	t := p.portTimes
	effAge := messageAgeIncrement(t.MaxAge) + t.MessageAge
	if effAge > t.MaxAge {
		p.rcvdInfoWhile = 0
		p.logger.Debug("received information already expired",
			slog.Int("message_age", int(t.MessageAge)),
			slog.Int("max_age", int(t.MaxAge)),
		)
		return
	}
	p.rcvdInfoWhile = min(t.MaxAge-effAge, 3*t.HelloTime)
}
