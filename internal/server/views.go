package server

import (
	"time"

	"github.com/dantte-lp/gorstp/internal/rstp"
)

// -------------------------------------------------------------------------
// JSON Views: wire representation of rstp snapshots
// -------------------------------------------------------------------------

// Bridge is the JSON view of rstp.BridgeStatus.
type Bridge struct {
	Name     string `json:"name" yaml:"name"`
	BridgeID string `json:"bridge_id" yaml:"bridge_id"`
	Running  bool   `json:"running" yaml:"running"`
	IsRoot   bool   `json:"is_root" yaml:"is_root"`

	RootID       string `json:"root_id" yaml:"root_id"`
	RootPathCost uint32 `json:"root_path_cost" yaml:"root_path_cost"`
	RootPort     string `json:"root_port,omitempty" yaml:"root_port,omitempty"`
	RootPortID   string `json:"root_port_id,omitempty" yaml:"root_port_id,omitempty"`
	RootTimes    Times  `json:"root_times" yaml:"root_times"`
	BridgeTimes  Times  `json:"bridge_times" yaml:"bridge_times"`

	ForceVersion  string `json:"force_version" yaml:"force_version"`
	TxHoldCount   uint16 `json:"tx_hold_count" yaml:"tx_hold_count"`
	FlushStrategy string `json:"flush_strategy" yaml:"flush_strategy"`
	RoleSelection string `json:"role_selection" yaml:"role_selection"`

	UptimeSeconds      int64      `json:"uptime_seconds" yaml:"uptime_seconds"`
	TopologyChanges    uint64     `json:"topology_changes" yaml:"topology_changes"`
	LastTopologyChange *time.Time `json:"last_topology_change,omitempty" yaml:"last_topology_change,omitempty"`

	Ports []Port `json:"ports" yaml:"ports"`
}

// Times is the JSON view of rstp.Times, in seconds.
type Times struct {
	MessageAge   uint16 `json:"message_age" yaml:"message_age"`
	MaxAge       uint16 `json:"max_age" yaml:"max_age"`
	HelloTime    uint16 `json:"hello_time" yaml:"hello_time"`
	ForwardDelay uint16 `json:"forward_delay" yaml:"forward_delay"`
}

// Port is the JSON view of rstp.PortStatus.
type Port struct {
	Name     string `json:"name" yaml:"name"`
	Number   uint16 `json:"number" yaml:"number"`
	ID       string `json:"id" yaml:"id"`
	Priority uint8  `json:"priority" yaml:"priority"`

	Role         string `json:"role" yaml:"role"`
	SelectedRole string `json:"selected_role" yaml:"selected_role"`
	State        string `json:"state" yaml:"state"`
	InfoIs       string `json:"info_is" yaml:"info_is"`

	Enabled          bool   `json:"enabled" yaml:"enabled"`
	AdminEdge        bool   `json:"admin_edge" yaml:"admin_edge"`
	AutoEdge         bool   `json:"auto_edge" yaml:"auto_edge"`
	OperEdge         bool   `json:"oper_edge" yaml:"oper_edge"`
	PointToPoint     string `json:"point_to_point" yaml:"point_to_point"`
	OperPointToPoint bool   `json:"oper_point_to_point" yaml:"oper_point_to_point"`
	NonStp           bool   `json:"non_stp" yaml:"non_stp"`
	SendRSTP         bool   `json:"send_rstp" yaml:"send_rstp"`
	Speed            uint32 `json:"speed_mbps" yaml:"speed_mbps"`

	DesignatedRoot   string `json:"designated_root" yaml:"designated_root"`
	DesignatedCost   uint32 `json:"designated_cost" yaml:"designated_cost"`
	DesignatedBridge string `json:"designated_bridge" yaml:"designated_bridge"`
	DesignatedPort   string `json:"designated_port" yaml:"designated_port"`

	TopologyChangeAck bool            `json:"topology_change_ack" yaml:"topology_change_ack"`
	Flags             map[string]bool `json:"flags" yaml:"flags"`
	Machines          Machines        `json:"machines" yaml:"machines"`
	Timers            Timers          `json:"timers" yaml:"timers"`
	Stats             Stats           `json:"stats" yaml:"stats"`
	UptimeSeconds     int64           `json:"uptime_seconds" yaml:"uptime_seconds"`
}

// Machines holds the state name of every per-port machine.
type Machines struct {
	Receive         string `json:"receive" yaml:"receive"`
	Migration       string `json:"migration" yaml:"migration"`
	Detection       string `json:"detection" yaml:"detection"`
	Information     string `json:"information" yaml:"information"`
	RoleTransition  string `json:"role_transition" yaml:"role_transition"`
	StateTransition string `json:"state_transition" yaml:"state_transition"`
	TopologyChange  string `json:"topology_change" yaml:"topology_change"`
	Transmit        string `json:"transmit" yaml:"transmit"`
}

// Timers is the JSON view of rstp.PortTimers.
type Timers struct {
	EdgeDelayWhile uint16 `json:"edge_delay_while" yaml:"edge_delay_while"`
	FdWhile        uint16 `json:"fd_while" yaml:"fd_while"`
	HelloWhen      uint16 `json:"hello_when" yaml:"hello_when"`
	MdelayWhile    uint16 `json:"mdelay_while" yaml:"mdelay_while"`
	RbWhile        uint16 `json:"rb_while" yaml:"rb_while"`
	RcvdInfoWhile  uint16 `json:"rcvd_info_while" yaml:"rcvd_info_while"`
	RrWhile        uint16 `json:"rr_while" yaml:"rr_while"`
	TcWhile        uint16 `json:"tc_while" yaml:"tc_while"`
	TxCount        uint16 `json:"tx_count" yaml:"tx_count"`
}

// Stats is the JSON view of rstp.PortStats.
type Stats struct {
	RxConfig  uint64 `json:"rx_config" yaml:"rx_config"`
	RxRST     uint64 `json:"rx_rst" yaml:"rx_rst"`
	RxTCN     uint64 `json:"rx_tcn" yaml:"rx_tcn"`
	RxDropped uint64 `json:"rx_dropped" yaml:"rx_dropped"`
	TxConfig  uint64 `json:"tx_config" yaml:"tx_config"`
	TxRST     uint64 `json:"tx_rst" yaml:"tx_rst"`
	TxTCN     uint64 `json:"tx_tcn" yaml:"tx_tcn"`
}

// Event is the JSON view of rstp.Event.
type Event struct {
	Bridge string    `json:"bridge" yaml:"bridge"`
	Port   string    `json:"port,omitempty" yaml:"port,omitempty"`
	Number uint16    `json:"number,omitempty" yaml:"number,omitempty"`
	Kind   string    `json:"kind" yaml:"kind"`
	From   string    `json:"from,omitempty" yaml:"from,omitempty"`
	To     string    `json:"to,omitempty" yaml:"to,omitempty"`
	Time   time.Time `json:"time" yaml:"time"`
}

// BridgePatch is the body of PATCH /v1/bridges/{bridge}. Absent fields
// are left unchanged. The three timers are applied together; an absent
// timer keeps its current value.
type BridgePatch struct {
	Priority      *uint16 `json:"priority,omitempty" yaml:"priority,omitempty"`
	ForceVersion  *string `json:"force_version,omitempty" yaml:"force_version,omitempty"`
	MaxAge        *uint16 `json:"max_age,omitempty" yaml:"max_age,omitempty"`
	HelloTime     *uint16 `json:"hello_time,omitempty" yaml:"hello_time,omitempty"`
	ForwardDelay  *uint16 `json:"forward_delay,omitempty" yaml:"forward_delay,omitempty"`
	TxHoldCount   *uint16 `json:"tx_hold_count,omitempty" yaml:"tx_hold_count,omitempty"`
	FlushStrategy *string `json:"flush_strategy,omitempty" yaml:"flush_strategy,omitempty"`
}

// PortPatch is the body of PATCH /v1/bridges/{bridge}/ports/{port}.
type PortPatch struct {
	Priority     *uint8  `json:"priority,omitempty" yaml:"priority,omitempty"`
	AdminEdge    *bool   `json:"admin_edge,omitempty" yaml:"admin_edge,omitempty"`
	AutoEdge     *bool   `json:"auto_edge,omitempty" yaml:"auto_edge,omitempty"`
	PointToPoint *string `json:"point_to_point,omitempty" yaml:"point_to_point,omitempty"`
	NonStp       *bool   `json:"non_stp,omitempty" yaml:"non_stp,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error" yaml:"error"`
}

// -------------------------------------------------------------------------
// Conversions
// -------------------------------------------------------------------------

// BridgeView converts a snapshot to its JSON view.
func BridgeView(s rstp.BridgeStatus) Bridge {
	v := Bridge{
		Name:            s.Name,
		BridgeID:        s.BridgeID.String(),
		Running:         s.Running,
		IsRoot:          s.IsRoot(),
		RootID:          s.RootID.String(),
		RootPathCost:    s.RootPathCost,
		RootPort:        s.RootPort,
		RootTimes:       timesView(s.RootTimes),
		BridgeTimes:     timesView(s.BridgeTimes),
		ForceVersion:    s.ForceVersion.String(),
		TxHoldCount:     s.TxHoldCount,
		FlushStrategy:   s.FlushScope.String(),
		RoleSelection:   s.RoleSelection,
		UptimeSeconds:   int64(s.Uptime / time.Second),
		TopologyChanges: s.TopologyChanges,
		Ports:           make([]Port, 0, len(s.Ports)),
	}
	if s.RootPort != "" {
		v.RootPortID = s.RootPortID.String()
	}
	if !s.LastTopologyChange.IsZero() {
		t := s.LastTopologyChange
		v.LastTopologyChange = &t
	}
	for _, p := range s.Ports {
		v.Ports = append(v.Ports, PortView(p))
	}
	return v
}

// PortView converts a port snapshot to its JSON view.
func PortView(p rstp.PortStatus) Port {
	return Port{
		Name:              p.Name,
		Number:            p.Number,
		ID:                p.ID.String(),
		Priority:          p.Priority,
		Role:              p.Role.String(),
		SelectedRole:      p.SelectedRole.String(),
		State:             p.State.String(),
		InfoIs:            p.InfoIs.String(),
		Enabled:           p.Enabled,
		AdminEdge:         p.AdminEdge,
		AutoEdge:          p.AutoEdge,
		OperEdge:          p.OperEdge,
		PointToPoint:      p.PointToPoint.String(),
		OperPointToPoint:  p.OperPointToPoint,
		NonStp:            p.NonStp,
		SendRSTP:          p.SendRSTP,
		Speed:             p.Speed,
		DesignatedRoot:    p.DesignatedRoot.String(),
		DesignatedCost:    p.DesignatedCost,
		DesignatedBridge:  p.DesignatedBridge.String(),
		DesignatedPort:    p.DesignatedPort.String(),
		TopologyChangeAck: p.TopologyChangeAck,
		Flags:             flagsView(p.Flags),
		Machines:          Machines(p.Machines),
		Timers:            Timers(p.Timers),
		Stats:             Stats(p.Stats),
		UptimeSeconds:     int64(p.Uptime / time.Second),
	}
}

// EventView converts a bridge event to its JSON view.
func EventView(ev rstp.Event) Event {
	return Event{
		Bridge: ev.Bridge,
		Port:   ev.Port,
		Number: ev.Number,
		Kind:   ev.Kind.String(),
		From:   ev.From,
		To:     ev.To,
		Time:   ev.Time,
	}
}

func timesView(t rstp.Times) Times {
	return Times(t)
}

func flagsView(f rstp.PortFlags) map[string]bool {
	return map[string]bool{
		"agree":       f.Agree,
		"agreed":      f.Agreed,
		"proposed":    f.Proposed,
		"proposing":   f.Proposing,
		"sync":        f.Sync,
		"synced":      f.Synced,
		"re_root":     f.ReRoot,
		"disputed":    f.Disputed,
		"selected":    f.Selected,
		"updt_info":   f.UpdtInfo,
		"tc_prop":     f.TcProp,
		"rcvd_tc":     f.RcvdTc,
		"rcvd_tcn":    f.RcvdTcn,
		"rcvd_tc_ack": f.RcvdTcAck,
		"mcheck":      f.Mcheck,
	}
}
