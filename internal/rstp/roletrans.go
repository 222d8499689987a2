package rstp

// -------------------------------------------------------------------------
// Port Role Transitions: 802.1D-2004 Section 17.29
// -------------------------------------------------------------------------

type roleTransState uint8

const (
	prtBegin roleTransState = iota

	// Disabled port role (17.29.1).
	prtInitPort
	prtDisablePort
	prtDisabledPort

	// Root port role (17.29.2).
	prtRootPort
	prtRootProposed
	prtRootAgreed
	prtRootLearn
	prtRootForward
	prtReroot
	prtRerooted

	// Designated port role (17.29.3).
	prtDesignatedPort
	prtDesignatedPropose
	prtDesignatedForward
	prtDesignatedSynced
	prtDesignatedLearn
	prtDesignatedRetired
	prtDesignatedDiscard

	// Alternate and Backup port roles (17.29.4).
	prtAlternatePort
	prtAlternateProposed
	prtAlternateAgreed
	prtBlockPort
	prtBackupPort
)

var roleTransStateNames = []string{
	"BEGIN",
	"INIT_PORT",
	"DISABLE_PORT",
	"DISABLED_PORT",
	"ROOT_PORT",
	"ROOT_PROPOSED",
	"ROOT_AGREED",
	"ROOT_LEARN",
	"ROOT_FORWARD",
	"REROOT",
	"REROOTED",
	"DESIGNATED_PORT",
	"DESIGNATED_PROPOSE",
	"DESIGNATED_FORWARD",
	"DESIGNATED_SYNCED",
	"DESIGNATED_LEARN",
	"DESIGNATED_RETIRED",
	"DESIGNATED_DISCARD",
	"ALTERNATE_PORT",
	"ALTERNATE_PROPOSED",
	"ALTERNATE_AGREED",
	"BLOCK_PORT",
	"BACKUP_PORT",
}

func (s roleTransState) String() string { return stateName(roleTransStateNames, uint8(s)) }

// roleTransMachine commits selectedRole into role and moves the port
// towards forwarding or discarding for that role.
type roleTransMachine struct {
	p     *Port
	state roleTransState
}

func (m *roleTransMachine) reset() { m.state = prtBegin }

func (m *roleTransMachine) step() bool {
	p := m.p

	if m.state == prtBegin {
		m.enter(prtInitPort)
		return true
	}

	// Non-STP ports have their role and port state set by Role Selection.
	if p.cfg.NonStp {
		return false
	}

	ready := p.selected && !p.updtInfo

	if p.role != p.selectedRole && ready {
		switch p.selectedRole {
		case RoleDisabled:
			m.enter(prtDisablePort)
		case RoleAlternate, RoleBackup:
			m.enter(prtBlockPort)
		case RoleRoot:
			m.enter(prtRootPort)
		case RoleDesignated:
			m.enter(prtDesignatedPort)
		default:
			return false
		}
		return true
	}

	next, ok := m.next(ready)
	if !ok {
		return false
	}
	m.enter(next)
	return true
}

// next evaluates the exit conditions of the current state.
func (m *roleTransMachine) next(ready bool) (roleTransState, bool) {
	p := m.p
	rt := p.bridge.rootTimes

	switch m.state {
	case prtInitPort:
		return prtDisablePort, true
	case prtDisablePort:
		if !p.learning && !p.forwarding && ready {
			return prtDisabledPort, true
		}
	case prtDisabledPort:
		if (p.fdWhile != rt.MaxAge || p.sync || p.reRoot || !p.synced) && ready {
			return prtDisabledPort, true
		}

	case prtRootProposed, prtRootAgreed, prtReroot, prtRerooted, prtRootLearn, prtRootForward:
		return prtRootPort, true
	case prtRootPort:
		if ready {
			return m.nextRoot()
		}

	case prtDesignatedPropose, prtDesignatedSynced, prtDesignatedRetired,
		prtDesignatedDiscard, prtDesignatedLearn, prtDesignatedForward:
		return prtDesignatedPort, true
	case prtDesignatedPort:
		if ready {
			return m.nextDesignated()
		}

	case prtAlternateProposed, prtAlternateAgreed, prtBackupPort:
		return prtAlternatePort, true
	case prtBlockPort:
		if !p.learning && !p.forwarding && ready {
			return prtAlternatePort, true
		}
	case prtAlternatePort:
		if ready {
			return m.nextAlternate()
		}
	}
	return 0, false
}

// canForwardRoot is the timer gate on the root port's way to forwarding:
// the forward delay expired, or no other port may still be forwarding
// towards the old root.
func (p *Port) canForwardRoot() bool {
	return p.fdWhile == 0 ||
		(p.reRooted() && p.rbWhile == 0 && p.bridge.rstpVersion())
}

func (m *roleTransMachine) nextRoot() (roleTransState, bool) {
	p := m.p

	switch {
	case !p.forward && !p.reRoot:
		return prtReroot, true
	case (p.allSynced() && !p.agree) || (p.proposed && p.agree):
		return prtRootAgreed, true
	case p.proposed && !p.agree:
		return prtRootProposed, true
	case p.canForwardRoot() && p.learn && !p.forward:
		return prtRootForward, true
	case p.canForwardRoot() && !p.learn:
		return prtRootLearn, true
	case p.reRoot && p.forward:
		return prtRerooted, true
	case p.rrWhile != p.bridge.rootTimes.ForwardDelay:
		return prtRootPort, true
	}
	return 0, false
}

func (m *roleTransMachine) nextDesignated() (roleTransState, bool) {
	p := m.p

	canForward := (p.fdWhile == 0 || p.agreed || p.operEdge) &&
		(p.rrWhile == 0 || !p.reRoot) &&
		!p.sync

	switch {
	case !p.forward && !p.agreed && !p.proposing && !p.operEdge:
		return prtDesignatedPropose, true
	case (!p.learning && !p.forwarding && !p.synced) ||
		(p.agreed && !p.synced) ||
		(p.operEdge && !p.synced) ||
		(p.sync && p.synced):
		return prtDesignatedSynced, true
	case p.rrWhile == 0 && p.reRoot:
		return prtDesignatedRetired, true
	case canForward && p.learn && !p.forward:
		return prtDesignatedForward, true
	case canForward && !p.learn:
		return prtDesignatedLearn, true
	case ((p.sync && !p.synced) || (p.reRoot && p.rrWhile != 0) || p.disputed) &&
		!p.operEdge && (p.learn || p.forward):
		return prtDesignatedDiscard, true
	}
	return 0, false
}

func (m *roleTransMachine) nextAlternate() (roleTransState, bool) {
	p := m.p
	rt := p.bridge.rootTimes

	switch {
	case (p.allSynced() && !p.agree) || (p.proposed && p.agree):
		return prtAlternateAgreed, true
	case p.proposed && !p.agree:
		return prtAlternateProposed, true
	case p.rbWhile != 2*rt.HelloTime && p.role == RoleBackup:
		return prtBackupPort, true
	case p.fdWhile != rt.ForwardDelay || p.sync || p.reRoot || !p.synced:
		return prtAlternatePort, true
	}
	return 0, false
}

func (m *roleTransMachine) enter(s roleTransState) {
	p := m.p
	rt := p.bridge.rootTimes
	trace(p.logger, "roletrans", m.state, s)
	m.state = s

	switch s {
	case prtInitPort:
		p.setRole(RoleDisabled)
		p.learn = false
		p.forward = false
		p.synced = false
		p.sync = true
		p.reRoot = true
		p.rrWhile = rt.ForwardDelay
		p.fdWhile = rt.MaxAge
		p.rbWhile = 0
	case prtDisablePort:
		p.setRole(p.selectedRole)
		p.learn = false
		p.forward = false
	case prtDisabledPort:
		p.fdWhile = rt.MaxAge
		p.synced = true
		p.rrWhile = 0
		p.sync = false
		p.reRoot = false

	case prtRootPort:
		p.setRole(RoleRoot)
		p.rrWhile = rt.ForwardDelay
	case prtRootProposed:
		p.setSyncTree()
		p.proposed = false
	case prtRootAgreed:
		p.proposed = false
		p.sync = false
		p.agree = true
		p.newInfo = true
	case prtRootLearn:
		p.fdWhile = p.forwardDelay()
		p.learn = true
	case prtRootForward:
		p.fdWhile = 0
		p.forward = true
	case prtReroot:
		p.setReRootTree()
	case prtRerooted:
		p.reRoot = false

	case prtDesignatedPort:
		p.setRole(RoleDesignated)
	case prtDesignatedPropose:
		p.proposing = true
		p.edgeDelayWhile = p.edgeDelay()
		p.newInfo = true
	case prtDesignatedSynced:
		p.rrWhile = 0
		p.synced = true
		p.sync = false
	case prtDesignatedRetired:
		p.reRoot = false
	case prtDesignatedDiscard:
		p.learn = false
		p.forward = false
		p.disputed = false
		p.fdWhile = p.forwardDelay()
	case prtDesignatedLearn:
		p.learn = true
		p.fdWhile = p.forwardDelay()
	case prtDesignatedForward:
		p.forward = true
		p.fdWhile = 0
		p.agreed = p.sendRSTP

	case prtBlockPort:
		p.setRole(p.selectedRole)
		p.learn = false
		p.forward = false
	case prtAlternatePort:
		p.fdWhile = p.forwardDelay()
		p.synced = true
		p.rrWhile = 0
		p.sync = false
		p.reRoot = false
	case prtAlternateProposed:
		p.setSyncTree()
		p.proposed = false
	case prtAlternateAgreed:
		p.proposed = false
		p.agree = true
		p.newInfo = true
	case prtBackupPort:
		p.rbWhile = 2 * rt.HelloTime
	}
}

// forwardDelay is the time spent in each of the discarding and learning
// states when the rapid handshake does not complete (17.20.6).
func (p *Port) forwardDelay() uint16 {
	return p.bridge.rootTimes.ForwardDelay
}

// edgeDelay is how long a designated port waits for a BPDU before it
// treats the link as an edge (17.20.4).
func (p *Port) edgeDelay() uint16 {
	if p.operPointToPoint {
		return MigrateTime
	}
	return p.bridge.rootTimes.MaxAge
}
