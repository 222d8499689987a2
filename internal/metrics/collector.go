package rstpmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "gorstp"
	subsystem = "rstp"
)

// Label names for RSTP metrics.
const (
	labelBridge   = "bridge"
	labelPort     = "port"
	labelType     = "type"
	labelReason   = "reason"
	labelFromRole = "from_role"
	labelToRole   = "to_role"
	labelRootID   = "root_id"
)

// -------------------------------------------------------------------------
// Collector: Prometheus RSTP Metrics
// -------------------------------------------------------------------------

// Collector holds all RSTP Prometheus metrics and implements
// rstp.MetricsReporter.
//
// Port states are exported as 0/1 gauges so that alerts can select
// discarding ports directly (gorstp_rstp_port_forwarding == 0).
type Collector struct {
	// Ports tracks the number of ports per bridge.
	Ports *prometheus.GaugeVec

	// BPDUsSent counts transmitted BPDUs by type (Config, RST, TCN).
	BPDUsSent *prometheus.CounterVec

	// BPDUsReceived counts accepted BPDUs by type.
	BPDUsReceived *prometheus.CounterVec

	// BPDUsDropped counts discarded BPDUs by reason (malformed,
	// unknown_type, non_stp, version, loopback).
	BPDUsDropped *prometheus.CounterVec

	// RoleChanges counts committed port role changes.
	RoleChanges *prometheus.CounterVec

	// PortLearning is 1 while the port learns addresses.
	PortLearning *prometheus.GaugeVec

	// PortForwarding is 1 while the port forwards frames.
	PortForwarding *prometheus.GaugeVec

	// TopologyChanges counts topology changes detected or received per port.
	TopologyChanges *prometheus.CounterVec

	// RootPathCost is the bridge's cost to the root, 0 on the root bridge.
	RootPathCost *prometheus.GaugeVec

	// Root is an info metric carrying the current root bridge identifier.
	Root *prometheus.GaugeVec
}

// NewCollector creates a Collector with all RSTP metrics registered against
// the provided prometheus.Registerer. If reg is nil, prometheus.DefaultRegisterer
// is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Ports,
		c.BPDUsSent,
		c.BPDUsReceived,
		c.BPDUsDropped,
		c.RoleChanges,
		c.PortLearning,
		c.PortForwarding,
		c.TopologyChanges,
		c.RootPathCost,
		c.Root,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	bridgeLabels := []string{labelBridge}
	portLabels := []string{labelBridge, labelPort}
	typeLabels := []string{labelBridge, labelPort, labelType}

	gauge := func(name, help string, labels []string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	counter := func(name, help string, labels []string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}

	return &Collector{
		Ports: gauge("ports", "Number of ports attached to the bridge.", bridgeLabels),

		BPDUsSent: counter("bpdus_sent_total",
			"Total BPDUs transmitted.", typeLabels),

		BPDUsReceived: counter("bpdus_received_total",
			"Total BPDUs received and accepted.", typeLabels),

		BPDUsDropped: counter("bpdus_dropped_total",
			"Total BPDUs discarded before reaching the state machines.",
			[]string{labelBridge, labelPort, labelReason}),

		RoleChanges: counter("role_changes_total",
			"Total committed port role changes.",
			[]string{labelBridge, labelPort, labelFromRole, labelToRole}),

		PortLearning: gauge("port_learning",
			"Whether the port learns source addresses (1) or not (0).", portLabels),

		PortForwarding: gauge("port_forwarding",
			"Whether the port forwards frames (1) or discards them (0).", portLabels),

		TopologyChanges: counter("topology_changes_total",
			"Total topology changes detected or propagated by the port.", portLabels),

		RootPathCost: gauge("root_path_cost",
			"Root path cost of the bridge (802.1D-2004 17.6).", bridgeLabels),

		Root: gauge("root",
			"Current root bridge identifier; always 1.",
			[]string{labelBridge, labelRootID}),
	}
}

// -------------------------------------------------------------------------
// Port Lifecycle
// -------------------------------------------------------------------------

// RegisterPort increments the bridge's port gauge and initializes the
// port state gauges to discarding.
func (c *Collector) RegisterPort(bridge, port string) {
	c.Ports.WithLabelValues(bridge).Inc()
	c.PortLearning.WithLabelValues(bridge, port).Set(0)
	c.PortForwarding.WithLabelValues(bridge, port).Set(0)
}

// UnregisterPort decrements the bridge's port gauge and removes every
// series labeled with the port.
func (c *Collector) UnregisterPort(bridge, port string) {
	c.Ports.WithLabelValues(bridge).Dec()

	labels := prometheus.Labels{labelBridge: bridge, labelPort: port}
	c.BPDUsSent.DeletePartialMatch(labels)
	c.BPDUsReceived.DeletePartialMatch(labels)
	c.BPDUsDropped.DeletePartialMatch(labels)
	c.RoleChanges.DeletePartialMatch(labels)
	c.PortLearning.DeletePartialMatch(labels)
	c.PortForwarding.DeletePartialMatch(labels)
	c.TopologyChanges.DeletePartialMatch(labels)
}

// -------------------------------------------------------------------------
// BPDU Counters
// -------------------------------------------------------------------------

// IncBPDUsReceived increments the received counter for the BPDU type.
func (c *Collector) IncBPDUsReceived(bridge, port, kind string) {
	c.BPDUsReceived.WithLabelValues(bridge, port, kind).Inc()
}

// IncBPDUsSent increments the transmitted counter for the BPDU type.
func (c *Collector) IncBPDUsSent(bridge, port, kind string) {
	c.BPDUsSent.WithLabelValues(bridge, port, kind).Inc()
}

// IncBPDUsDropped increments the dropped counter for the reason.
func (c *Collector) IncBPDUsDropped(bridge, port, reason string) {
	c.BPDUsDropped.WithLabelValues(bridge, port, reason).Inc()
}

// -------------------------------------------------------------------------
// Roles, States and Topology
// -------------------------------------------------------------------------

// RecordRoleChange increments the role change counter with the old and
// new role labels.
func (c *Collector) RecordRoleChange(bridge, port, from, to string) {
	c.RoleChanges.WithLabelValues(bridge, port, from, to).Inc()
}

// SetPortState updates the learning and forwarding gauges.
func (c *Collector) SetPortState(bridge, port string, learning, forwarding bool) {
	c.PortLearning.WithLabelValues(bridge, port).Set(boolToFloat(learning))
	c.PortForwarding.WithLabelValues(bridge, port).Set(boolToFloat(forwarding))
}

// IncTopologyChanges increments the topology change counter of the port.
func (c *Collector) IncTopologyChanges(bridge, port string) {
	c.TopologyChanges.WithLabelValues(bridge, port).Inc()
}

// SetRoot records the bridge's current root. The previous root_id series
// is removed so only one is ever present per bridge.
func (c *Collector) SetRoot(bridge, rootID string, rootPathCost uint32) {
	c.Root.DeletePartialMatch(prometheus.Labels{labelBridge: bridge})
	c.Root.WithLabelValues(bridge, rootID).Set(1)
	c.RootPathCost.WithLabelValues(bridge).Set(float64(rootPathCost))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
