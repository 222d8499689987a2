//go:build linux

package netio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// ErrMonitorClosed indicates the netlink subscription ended unexpectedly.
var ErrMonitorClosed = errors.New("netlink link subscription closed")

// -------------------------------------------------------------------------
// NetlinkMonitor: RTM_NEWLINK / RTM_DELLINK subscription
// -------------------------------------------------------------------------

// NetlinkMonitor implements InterfaceMonitor with a NETLINK_ROUTE link
// subscription. Only operational state changes are reported.
type NetlinkMonitor struct {
	events chan InterfaceEvent
	state  map[int]bool
	logger *slog.Logger
}

// NewNetlinkMonitor creates a monitor. Call Run to start it.
func NewNetlinkMonitor(logger *slog.Logger) *NetlinkMonitor {
	return &NetlinkMonitor{
		events: make(chan InterfaceEvent, ifEventChSize),
		state:  make(map[int]bool),
		logger: logger.With(slog.String("component", "netio.ifmon")),
	}
}

// Events returns the channel of link state changes.
func (m *NetlinkMonitor) Events() <-chan InterfaceEvent {
	return m.events
}

// Run subscribes to link updates and emits an event whenever an
// interface's operational state changes. It blocks until ctx is cancelled.
func (m *NetlinkMonitor) Run(ctx context.Context) error {
	defer close(m.events)

	updates := make(chan netlink.LinkUpdate, ifEventChSize)
	done := make(chan struct{})

	err := netlink.LinkSubscribeWithOptions(updates, done, netlink.LinkSubscribeOptions{
		ListExisting: true,
		ErrorCallback: func(err error) {
			m.logger.Warn("netlink subscription error", slog.String("error", err.Error()))
		},
	})
	if err != nil {
		return fmt.Errorf("subscribe to link updates: %w", err)
	}
	defer func() {
		close(done)
		// The subscription goroutine closes updates once it sees done.
		for range updates {
		}
	}()

	m.logger.Info("interface monitor started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("interface monitor stopped")
			return nil
		case u, ok := <-updates:
			if !ok {
				return ErrMonitorClosed
			}
			ev := eventFromUpdate(u)
			if !m.changed(ev) {
				continue
			}
			select {
			case m.events <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// changed records ev and reports whether it differs from the last known
// state of the interface.
func (m *NetlinkMonitor) changed(ev InterfaceEvent) bool {
	if ev.Deleted {
		_, known := m.state[ev.IfIndex]
		delete(m.state, ev.IfIndex)
		return known
	}
	prev, known := m.state[ev.IfIndex]
	m.state[ev.IfIndex] = ev.Up
	return !known || prev != ev.Up
}

// eventFromUpdate converts a netlink update.
func eventFromUpdate(u netlink.LinkUpdate) InterfaceEvent {
	attrs := u.Link.Attrs()
	ev := InterfaceEvent{
		IfName:  attrs.Name,
		IfIndex: attrs.Index,
	}

	if u.Header.Type == unix.RTM_DELLINK {
		ev.Deleted = true
		return ev
	}

	ev.Up = linkUp(attrs)
	return ev
}

// linkUp reports whether a link is operationally up. Some virtual drivers
// never report an operational state; for those IFF_UP and IFF_RUNNING
// decide.
func linkUp(attrs *netlink.LinkAttrs) bool {
	switch attrs.OperState {
	case netlink.OperUp:
		return true
	case netlink.OperUnknown:
		return attrs.Flags&net.FlagUp != 0 && attrs.RawFlags&unix.IFF_RUNNING != 0
	default:
		return false
	}
}
