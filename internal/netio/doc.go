// Package netio provides the Linux datapath for the RSTP daemon: AF_PACKET
// sockets for BPDU I/O, the receive loop, pcap capture, link monitoring and
// the rstp.Host adapter over the kernel bridge.
//
// Linux-specific code uses golang.org/x/sys/unix for sockets,
// golang.org/x/net/bpf for the kernel socket filter and
// github.com/vishvananda/netlink for link and bridge port control.
package netio
