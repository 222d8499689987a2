package rstp

import "log/slog"

// -------------------------------------------------------------------------
// Port Role Selection: 802.1D-2004 Section 17.28
// -------------------------------------------------------------------------

type roleSelState uint8

const (
	rsBegin roleSelState = iota
	rsInitBridge
	rsRoleSelection
)

var roleSelStateNames = []string{"BEGIN", "INIT_BRIDGE", "ROLE_SELECTION"}

func (s roleSelState) String() string { return stateName(roleSelStateNames, uint8(s)) }

// roleSelMachine is the single bridge-level machine. It computes the root
// priority vector and the selectedRole of every port.
type roleSelMachine struct {
	b     *Bridge
	state roleSelState
}

func (m *roleSelMachine) reset() { m.state = rsBegin }

func (m *roleSelMachine) step() bool {
	switch m.state {
	case rsBegin:
		m.enter(rsInitBridge)
		return true
	case rsInitBridge:
		m.enter(rsRoleSelection)
		return true
	case rsRoleSelection:
		for _, p := range m.b.ports {
			if p.reselect {
				m.enter(rsRoleSelection)
				return true
			}
		}
	}
	return false
}

func (m *roleSelMachine) enter(s roleSelState) {
	b := m.b
	trace(b.logger, "rolesel", m.state, s)
	m.state = s

	switch s {
	case rsInitBridge:
		b.updtRoleDisabledTree()
	case rsRoleSelection:
		b.clearReselectTree()
		b.updtRolesTree()
		b.setSelectedTree()
	}
}

// updtRoleDisabledTree (17.21.24).
func (b *Bridge) updtRoleDisabledTree() {
	for _, p := range b.ports {
		p.selectedRole = RoleDisabled
	}
}

// clearReselectTree (17.21.2).
func (b *Bridge) clearReselectTree() {
	for _, p := range b.ports {
		p.reselect = false
	}
}

// setSelectedTree sets selected on every port, but only when no port
// asks for reselection (17.21.16).
func (b *Bridge) setSelectedTree() {
	for _, p := range b.ports {
		if p.reselect {
			return
		}
	}
	for _, p := range b.ports {
		p.selected = true
	}
}

// ownVector is the root priority vector that makes this bridge root.
func (b *Bridge) ownVector() PriorityVector {
	return PriorityVector{
		RootBridgeID:       b.id,
		DesignatedBridgeID: b.id,
	}
}

// updtRootPriority computes the root priority vector and root times from
// the bridge's own identity and every port holding received information
// (17.21.25 a-c). Information whose designated bridge is this bridge
// cannot offer a path to the root, and information that would be relayed
// past its MaxAge is not offered downstream.
func (b *Bridge) updtRootPriority() {
	b.rootPriority = b.ownVector()
	b.rootTimes = b.cfg.Times()

	for _, p := range b.ports {
		if p.cfg.NonStp || p.infoIs != InfoReceived {
			continue
		}
		if CompareBridgeID(p.portPriority.DesignatedBridgeID, b.id) == 0 {
			continue
		}
		age := p.portTimes.MessageAge + messageAgeIncrement(p.portTimes.MaxAge)
		if age > p.portTimes.MaxAge {
			continue
		}

		candidate := p.portPriority
		candidate.RootPathCost += uint32(p.id)
		if CompareVector(candidate, b.rootPriority) < 0 {
			b.rootPriority = candidate
			b.rootTimes = p.portTimes
			b.rootTimes.MessageAge = age
		}
	}
}

// updtRolesTree (17.21.25).
func (b *Bridge) updtRolesTree() {
	oldRoot := b.rootPriority.RootBridgeID
	oldRootPort := b.rootPortID

	b.updtRootPriority()
	b.rootPortID = b.rootPriority.BridgePortID

	// d) and e): designated priority and times for every port.
	for _, p := range b.ports {
		if p.cfg.NonStp {
			continue
		}
		p.designatedPriority = PriorityVector{
			RootBridgeID:       b.rootPriority.RootBridgeID,
			RootPathCost:       b.rootPriority.RootPathCost,
			DesignatedBridgeID: b.id,
			DesignatedPortID:   p.id,
			BridgePortID:       p.id,
		}
		p.designatedTimes = b.rootTimes
		p.designatedTimes.HelloTime = b.cfg.HelloTime
	}

	if CompareBridgeID(oldRoot, b.rootPriority.RootBridgeID) != 0 || oldRootPort != b.rootPortID {
		b.rootChanged()
	}

	// f) to l): role of every port.
	for _, p := range b.ports {
		if p.cfg.NonStp {
			p.selectedRole = RoleNonStp
			p.setRole(RoleNonStp)
			p.learn = true
			p.forward = true
			continue
		}

		switch p.infoIs {
		case InfoDisabled:
			p.selectedRole = RoleDisabled
		case InfoAged:
			p.selectedRole = RoleDesignated
			p.updtInfo = true
		case InfoMine:
			p.selectedRole = RoleDesignated
			if CompareVector(p.portPriority, p.designatedPriority) != 0 ||
				TimesDiffer(p.portTimes, b.rootTimes) {
				p.updtInfo = true
			}
		case InfoReceived:
			switch {
			case b.rootPortID != 0 && b.rootPortID == p.id:
				p.selectedRole = RoleRoot
				p.updtInfo = false
			case CompareVector(p.designatedPriority, p.portPriority) < 0:
				p.selectedRole = RoleDesignated
				p.updtInfo = true
			case p.isBackup():
				p.selectedRole = RoleBackup
				p.updtInfo = false
			default:
				p.selectedRole = RoleAlternate
				p.updtInfo = false
			}
		default:
			b.logger.Error("unexpected port information provenance",
				slog.String("port", p.cfg.Name),
				slog.Int("info_is", int(p.infoIs)),
				slog.Bool("defect", true),
			)
		}
	}
}

// isBackup reports whether the port's information was sent by another
// port of this bridge on a shared segment.
func (p *Port) isBackup() bool {
	return CompareBridgeID(p.portPriority.DesignatedBridgeID, p.bridge.id) == 0 &&
		p.portPriority.DesignatedPortID != p.id
}

// rootChanged reports a new root bridge or root port.
func (b *Bridge) rootChanged() {
	root := b.rootPriority.RootBridgeID
	attrs := []any{
		slog.String("root", root.String()),
		slog.Uint64("root_path_cost", uint64(b.rootPriority.RootPathCost)),
	}
	if p := b.portByID(b.rootPortID); p != nil {
		attrs = append(attrs, slog.String("root_port", p.cfg.Name))
	} else {
		attrs = append(attrs, slog.Bool("is_root", true))
	}
	b.logger.Info("root changed", attrs...)

	b.metrics.SetRoot(b.cfg.Name, root.String(), b.rootPriority.RootPathCost)
	b.notify(Event{
		Bridge: b.cfg.Name,
		Kind:   EventRootChange,
		To:     root.String(),
	})
}
