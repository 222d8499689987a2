package rstp

// MetricsReporter receives protocol events for export. Implementations
// must be safe for concurrent use; the Bridge calls them synchronously.
type MetricsReporter interface {
	RegisterPort(bridge, port string)
	UnregisterPort(bridge, port string)
	IncBPDUsReceived(bridge, port, kind string)
	IncBPDUsSent(bridge, port, kind string)
	IncBPDUsDropped(bridge, port, reason string)
	RecordRoleChange(bridge, port, from, to string)
	SetPortState(bridge, port string, learning, forwarding bool)
	IncTopologyChanges(bridge, port string)
	SetRoot(bridge, rootID string, rootPathCost uint32)
}

// noopMetrics discards every event.
type noopMetrics struct{}

func (noopMetrics) RegisterPort(string, string) {}
func (noopMetrics) UnregisterPort(string, string) {}
func (noopMetrics) IncBPDUsReceived(string, string, string) {}
func (noopMetrics) IncBPDUsSent(string, string, string) {}
func (noopMetrics) IncBPDUsDropped(string, string, string) {}
func (noopMetrics) RecordRoleChange(string, string, string, string) {}
func (noopMetrics) SetPortState(string, string, bool, bool) {}
func (noopMetrics) IncTopologyChanges(string, string) {}
func (noopMetrics) SetRoot(string, string, uint32) {}

// Drop reasons reported through IncBPDUsDropped.
const (
	dropMalformed   = "malformed"
	dropUnknownType = "unknown_type"
	dropNonStp      = "non_stp"
	dropVersion     = "version"
	dropLoopback    = "loopback"
	dropExpired     = "expired"
)
