package rstp

import "time"

// -------------------------------------------------------------------------
// Status Snapshots
// -------------------------------------------------------------------------

// PortState is the datapath state of a port (17.30).
type PortState uint8

const (
	PortStateDiscarding PortState = iota
	PortStateLearning
	PortStateForwarding
)

var portStateNames = [3]string{"Discarding", "Learning", "Forwarding"}

// String returns the human-readable name of the port state.
func (s PortState) String() string {
	if int(s) < len(portStateNames) {
		return portStateNames[s]
	}
	return "Unknown"
}

// BridgeStatus is a copy of a bridge's management-visible state. It holds
// no references into the Bridge.
type BridgeStatus struct {
	Name     string
	BridgeID BridgeID
	Running  bool

	RootID       BridgeID
	RootPathCost uint32
	RootPort     string
	RootPortID   PortID
	RootTimes    Times
	BridgeTimes  Times

	ForceVersion ForceVersion
	TxHoldCount  uint16
	FlushScope   FlushScope

	Uptime             time.Duration
	TopologyChanges    uint64
	LastTopologyChange time.Time

	// RoleSelection is the state of the bridge-level machine.
	RoleSelection string

	Ports []PortStatus
}

// IsRoot reports whether the bridge believes it is the root.
func (s BridgeStatus) IsRoot() bool {
	return s.RootID == s.BridgeID
}

// PortTimers is a copy of a port's timers, in seconds.
type PortTimers struct {
	EdgeDelayWhile uint16
	FdWhile        uint16
	HelloWhen      uint16
	MdelayWhile    uint16
	RbWhile        uint16
	RcvdInfoWhile  uint16
	RrWhile        uint16
	TcWhile        uint16
	TxCount        uint16
}

// PortMachines holds the current state name of every per-port machine.
type PortMachines struct {
	Receive         string
	Migration       string
	Detection       string
	Information     string
	RoleTransition  string
	StateTransition string
	TopologyChange  string
	Transmit        string
}

// PortFlags is a copy of the protocol flags of 17.19 that are useful when
// diagnosing convergence.
type PortFlags struct {
	Agree     bool
	Agreed    bool
	Proposed  bool
	Proposing bool
	Sync      bool
	Synced    bool
	ReRoot    bool
	Disputed  bool
	Selected  bool
	UpdtInfo  bool
	TcProp    bool
	RcvdTc    bool
	RcvdTcn   bool
	RcvdTcAck bool
	Mcheck    bool
}

// PortStatus is a copy of a port's management-visible state.
type PortStatus struct {
	Name     string
	Number   uint16
	ID       PortID
	Priority uint8

	Role         Role
	SelectedRole Role
	State        PortState
	InfoIs       InfoIs

	Enabled          bool
	AdminEdge        bool
	AutoEdge         bool
	OperEdge         bool
	PointToPoint     PointToPoint
	OperPointToPoint bool
	NonStp           bool
	SendRSTP         bool
	Speed            uint32

	DesignatedRoot   BridgeID
	DesignatedCost   uint32
	DesignatedBridge BridgeID
	DesignatedPort   PortID

	TopologyChangeAck bool
	Flags             PortFlags
	Machines          PortMachines
	Timers            PortTimers
	Stats             PortStats

	// Uptime counts the seconds the port has been enabled.
	Uptime time.Duration
}

// Status returns a snapshot of the bridge and all of its ports.
func (b *Bridge) Status() BridgeStatus {
	s := BridgeStatus{
		Name:               b.cfg.Name,
		BridgeID:           b.id,
		Running:            b.running,
		RootID:             b.rootPriority.RootBridgeID,
		RootPathCost:       b.rootPriority.RootPathCost,
		RootPortID:         b.rootPortID,
		RootTimes:          b.rootTimes,
		BridgeTimes:        b.cfg.Times(),
		ForceVersion:       b.cfg.ForceVersion,
		TxHoldCount:        b.cfg.TxHoldCount,
		FlushScope:         b.cfg.FlushScope,
		TopologyChanges:    b.topologyChanges,
		LastTopologyChange: b.lastTopologyChange,
		RoleSelection:      b.rolesel.state.String(),
		Ports:              make([]PortStatus, 0, len(b.ports)),
	}
	if b.running {
		s.Uptime = b.clock.Since(b.started)
	}
	if rp := b.portByID(b.rootPortID); rp != nil {
		s.RootPort = rp.cfg.Name
	}
	for _, p := range b.ports {
		s.Ports = append(s.Ports, p.status())
	}
	return s
}

// PortStatus returns a snapshot of port number.
func (b *Bridge) PortStatus(number uint16) (PortStatus, error) {
	p, err := b.port(number)
	if err != nil {
		return PortStatus{}, err
	}
	return p.status(), nil
}

func (p *Port) status() PortStatus {
	state := PortStateDiscarding
	switch {
	case p.forwarding:
		state = PortStateForwarding
	case p.learning:
		state = PortStateLearning
	}

	return PortStatus{
		Name:              p.cfg.Name,
		Number:            p.cfg.Number,
		ID:                p.id,
		Priority:          p.cfg.Priority,
		Role:              p.role,
		SelectedRole:      p.selectedRole,
		State:             state,
		InfoIs:            p.infoIs,
		Enabled:           p.portEnabled,
		AdminEdge:         p.cfg.AdminEdge,
		AutoEdge:          p.cfg.AutoEdge,
		OperEdge:          p.operEdge,
		PointToPoint:      p.cfg.PointToPoint,
		OperPointToPoint:  p.operPointToPoint,
		NonStp:            p.cfg.NonStp,
		SendRSTP:          p.sendRSTP,
		Speed:             p.speed,
		DesignatedRoot:    p.portPriority.RootBridgeID,
		DesignatedCost:    p.portPriority.RootPathCost,
		DesignatedBridge:  p.portPriority.DesignatedBridgeID,
		DesignatedPort:    p.portPriority.DesignatedPortID,
		TopologyChangeAck: p.tcAck,
		Flags: PortFlags{
			Agree:     p.agree,
			Agreed:    p.agreed,
			Proposed:  p.proposed,
			Proposing: p.proposing,
			Sync:      p.sync,
			Synced:    p.synced,
			ReRoot:    p.reRoot,
			Disputed:  p.disputed,
			Selected:  p.selected,
			UpdtInfo:  p.updtInfo,
			TcProp:    p.tcProp,
			RcvdTc:    p.rcvdTc,
			RcvdTcn:   p.rcvdTcn,
			RcvdTcAck: p.rcvdTcAck,
			Mcheck:    p.mcheck,
		},
		Machines: PortMachines{
			Receive:         p.receive.state.String(),
			Migration:       p.migrate.state.String(),
			Detection:       p.detect.state.String(),
			Information:     p.info.state.String(),
			RoleTransition:  p.roletr.state.String(),
			StateTransition: p.sttrans.state.String(),
			TopologyChange:  p.topoch.state.String(),
			Transmit:        p.transmit.state.String(),
		},
		Timers: PortTimers{
			EdgeDelayWhile: p.edgeDelayWhile,
			FdWhile:        p.fdWhile,
			HelloWhen:      p.helloWhen,
			MdelayWhile:    p.mdelayWhile,
			RbWhile:        p.rbWhile,
			RcvdInfoWhile:  p.rcvdInfoWhile,
			RrWhile:        p.rrWhile,
			TcWhile:        p.tcWhile,
			TxCount:        p.txCount,
		},
		Stats:  p.stats,
		Uptime: time.Duration(p.uptime) * time.Second,
	}
}
