package netio

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dantte-lp/gorstp/internal/rstp"
)

// -------------------------------------------------------------------------
// Interface Monitor: link state change detection
// -------------------------------------------------------------------------

// ifEventChSize is the buffer of the monitor's event channel.
const ifEventChSize = 64

// InterfaceEvent represents a network interface state change.
// Bridges use these to enable and disable ports without polling.
type InterfaceEvent struct {
	// IfName is the network interface name (e.g., "eth0").
	IfName string

	// IfIndex is the kernel interface index.
	IfIndex int

	// Up is true when the interface is operationally up.
	Up bool

	// Deleted is true when the interface was removed.
	Deleted bool
}

// InterfaceMonitor watches for network interface state changes and emits
// events when interfaces go up or down.
type InterfaceMonitor interface {
	// Run starts monitoring. It blocks until ctx is cancelled and closes
	// the Events channel on return. Run must be called at most once.
	Run(ctx context.Context) error

	// Events returns the channel of detected changes.
	Events() <-chan InterfaceEvent
}

// LinkHandler reacts to link changes. rstp.Manager implements it.
type LinkHandler interface {
	LinkChanged(ifName string) error
}

// ForwardLinkEvents delivers every event to h until events is closed or
// ctx is cancelled. Events for interfaces that are not bridge ports are
// ignored.
func ForwardLinkEvents(ctx context.Context, events <-chan InterfaceEvent, h LinkHandler, logger *slog.Logger) {
	logger = logger.With(slog.String("component", "netio.ifmon"))

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			err := h.LinkChanged(ev.IfName)
			switch {
			case err == nil:
				logger.Debug("link change delivered",
					slog.String("interface", ev.IfName),
					slog.Bool("up", ev.Up),
				)
			case errors.Is(err, rstp.ErrUnknownInterface):
				// Not a bridge port.
			default:
				logger.Warn("link change failed",
					slog.String("interface", ev.IfName),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
