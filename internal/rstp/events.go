package rstp

import (
	"log/slog"
	"time"
)

// EventKind classifies a bridge Event.
type EventKind uint8

const (
	// EventRoleChange reports a port committing a new role.
	EventRoleChange EventKind = iota + 1

	// EventRootChange reports a new root bridge or root port.
	EventRootChange

	// EventTopologyChange reports a port starting to signal a topology
	// change.
	EventTopologyChange

	// EventLinkChange reports a port becoming enabled or disabled.
	EventLinkChange
)

// String returns the human-readable name of the kind.
func (k EventKind) String() string {
	switch k {
	case EventRoleChange:
		return "RoleChange"
	case EventRootChange:
		return "RootChange"
	case EventTopologyChange:
		return "TopologyChange"
	case EventLinkChange:
		return "LinkChange"
	default:
		return "Unknown"
	}
}

// Event is a notable protocol change, delivered on the channel passed to
// WithEvents. Port and Number are empty for bridge-level events.
type Event struct {
	Bridge string
	Port   string
	Number uint16
	Kind   EventKind
	From   string
	To     string
	Time   time.Time
}

// notify publishes ev without blocking; a full channel drops the event.
func (b *Bridge) notify(ev Event) {
	if b.events == nil {
		return
	}
	ev.Time = b.clock.Now()
	select {
	case b.events <- ev:
	default:
		b.logger.Warn("event channel full, dropping event",
			slog.String("kind", ev.Kind.String()),
			slog.String("port", ev.Port),
		)
	}
}
