//go:build linux

package netio

import (
	"errors"
	"fmt"
	"math"
	"net"

	"github.com/safchain/ethtool"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"
)

// duplexHalf is DUPLEX_HALF of the ethtool link settings.
const duplexHalf = 0x00

// LinkSettingsFunc fills ecmd with the ethtool settings of an interface
// and returns its speed in Mb/s.
type LinkSettingsFunc func(ecmd *ethtool.EthtoolCmd, ifName string) (uint32, error)

var _ Datapath = (*NetlinkDatapath)(nil)

// NetlinkDatapath programs a Linux kernel bridge over rtnetlink.
//
// Duplex and speed come from the ethtool ioctl. Interfaces whose driver
// does not implement it (most virtual drivers) are treated as full duplex
// with unknown speed.
type NetlinkDatapath struct {
	settings LinkSettingsFunc
}

// NewNetlinkDatapath returns a datapath for the host network namespace.
func NewNetlinkDatapath() *NetlinkDatapath {
	return &NetlinkDatapath{settings: ethtoolSettings}
}

// NewNetlinkDatapathWith returns a datapath reading link settings through
// settings instead of the ethtool ioctl.
func NewNetlinkDatapathWith(settings LinkSettingsFunc) *NetlinkDatapath {
	return &NetlinkDatapath{settings: settings}
}

// Link looks up an interface by name.
func (d *NetlinkDatapath) Link(name string) (LinkInfo, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return LinkInfo{}, fmt.Errorf("link %s: %w", name, err)
	}
	attrs := link.Attrs()

	info := LinkInfo{
		Index: attrs.Index,
		Name:  attrs.Name,
		MAC:   attrs.HardwareAddr,
		Up:    linkUp(attrs),
	}
	info.FullDuplex, info.Speed = d.LinkSettings(name)
	return info, nil
}

// HardwareAddr returns the MAC address of an interface. It satisfies
// config.AddrLookup.
func (d *NetlinkDatapath) HardwareAddr(name string) (net.HardwareAddr, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("link %s: %w", name, err)
	}
	return link.Attrs().HardwareAddr, nil
}

// SetLearning toggles the bridge port learning flag.
func (d *NetlinkDatapath) SetLearning(ifIndex int, enable bool) error {
	link, err := netlink.LinkByIndex(ifIndex)
	if err != nil {
		return fmt.Errorf("link index %d: %w", ifIndex, err)
	}
	if err := netlink.LinkSetLearning(link, enable); err != nil {
		return fmt.Errorf("set learning on %s: %w", link.Attrs().Name, err)
	}
	return nil
}

// SetPortState sets IFLA_BRPORT_STATE of a bridge port with an
// RTM_SETLINK request in the AF_BRIDGE family.
func (d *NetlinkDatapath) SetPortState(ifIndex int, state BridgePortState) error {
	req := nl.NewNetlinkRequest(unix.RTM_SETLINK, unix.NLM_F_ACK)

	msg := nl.NewIfInfomsg(unix.AF_BRIDGE)
	//nolint:gosec // G115: interface indexes fit in int32.
	msg.Index = int32(ifIndex)
	req.AddData(msg)

	protinfo := nl.NewRtAttr(unix.IFLA_PROTINFO|unix.NLA_F_NESTED, nil)
	protinfo.AddRtAttr(nl.IFLA_BRPORT_STATE, []byte{byte(state)})
	req.AddData(protinfo)

	if _, err := req.Execute(unix.NETLINK_ROUTE, 0); err != nil {
		return fmt.Errorf("set port state %s on ifindex %d: %w", state, ifIndex, err)
	}
	return nil
}

// FlushFDB deletes the dynamic bridge FDB entries of an interface.
// Static and local entries stay.
func (d *NetlinkDatapath) FlushFDB(ifIndex int) (int, error) {
	entries, err := netlink.NeighList(ifIndex, unix.AF_BRIDGE)
	if err != nil {
		return 0, fmt.Errorf("list fdb of ifindex %d: %w", ifIndex, err)
	}

	var (
		removed int
		errs    []error
	)
	for i := range entries {
		e := &entries[i]
		if e.State&(netlink.NUD_PERMANENT|netlink.NUD_NOARP) != 0 {
			continue
		}
		if err := netlink.NeighDel(e); err != nil {
			// Aged out between list and delete.
			if errors.Is(err, unix.ENOENT) {
				continue
			}
			errs = append(errs, fmt.Errorf("delete fdb %s: %w", e.HardwareAddr, err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// LinkSettings returns whether an interface runs full duplex and its
// speed in Mb/s, 0 when unknown.
func (d *NetlinkDatapath) LinkSettings(name string) (bool, uint32) {
	var ecmd ethtool.EthtoolCmd
	speed, err := d.settings(&ecmd, name)
	if err != nil {
		return true, 0
	}
	// Links without carrier report SPEED_UNKNOWN.
	if speed == math.MaxUint32 {
		speed = 0
	}
	return ecmd.Duplex != duplexHalf, speed
}

// ethtoolSettings issues ETHTOOL_GSET on a short-lived ethtool socket.
// Link settings are only read when a port link changes.
func ethtoolSettings(ecmd *ethtool.EthtoolCmd, ifName string) (uint32, error) {
	e, err := ethtool.NewEthtool()
	if err != nil {
		return 0, fmt.Errorf("open ethtool: %w", err)
	}
	defer e.Close()

	speed, err := e.CmdGet(ecmd, ifName)
	if err != nil {
		return 0, fmt.Errorf("ethtool get settings %s: %w", ifName, err)
	}
	return speed, nil
}
