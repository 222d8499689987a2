//go:build linux

package netio

import "github.com/vishvananda/netlink"

// EventFromUpdate exposes eventFromUpdate to netio_test.
func EventFromUpdate(u netlink.LinkUpdate) InterfaceEvent { return eventFromUpdate(u) }

// Changed feeds ev through the monitor's deduplication.
func (m *NetlinkMonitor) Changed(ev InterfaceEvent) bool { return m.changed(ev) }
