//go:build linux

package netio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"
)

// -------------------------------------------------------------------------
// LinuxPacketConn: AF_PACKET BPDU socket
// -------------------------------------------------------------------------

// LinuxPacketConn implements PacketConn with an AF_PACKET socket bound to
// one interface.
//
// Socket configuration:
//  1. SOCK_RAW, ETH_P_ALL, bound to the interface index
//  2. SO_ATTACH_FILTER with BPDUFilter, so only BPDUs reach user space
//  3. PACKET_ADD_MEMBERSHIP for 01:80:C2:00:00:00
//  4. PACKET_IGNORE_OUTGOING where the kernel supports it
//
// The descriptor is non-blocking and registered with the runtime poller,
// so Close unblocks a pending ReadFrame.
type LinuxPacketConn struct {
	file    *os.File
	rc      syscall.RawConn
	ifName  string
	ifIndex int

	mu     sync.Mutex
	closed bool
}

// ListenBPDU opens a BPDU socket on the given interface.
func ListenBPDU(ifName string, ifIndex int) (*LinuxPacketConn, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, int(htons(ethPAll)))
	if err != nil {
		return nil, fmt.Errorf("bpdu socket on %s: %w", ifName, err)
	}

	if err := applySockOpts(fd, ifIndex); err != nil {
		return nil, errors.Join(
			fmt.Errorf("bpdu socket on %s: %w", ifName, err),
			unix.Close(fd),
		)
	}

	file := os.NewFile(uintptr(fd), "bpdu:"+ifName)
	rc, err := file.SyscallConn()
	if err != nil {
		return nil, errors.Join(
			fmt.Errorf("bpdu socket on %s: raw conn: %w", ifName, err),
			file.Close(),
		)
	}

	return &LinuxPacketConn{
		file:    file,
		rc:      rc,
		ifName:  ifName,
		ifIndex: ifIndex,
	}, nil
}

// ReadFrame reads one inbound BPDU frame. Frames looped back from this
// host's own transmissions are skipped.
func (c *LinuxPacketConn) ReadFrame(buf []byte) (int, FrameMeta, error) {
	for {
		var (
			n    int
			from unix.Sockaddr
			rerr error
		)
		err := c.rc.Read(func(fd uintptr) bool {
			//nolint:gosec // G115: kernel FDs are small positive integers.
			n, from, rerr = unix.Recvfrom(int(fd), buf, 0)
			return !errors.Is(rerr, unix.EAGAIN)
		})
		if err != nil {
			if errors.Is(err, os.ErrClosed) {
				return 0, FrameMeta{}, ErrSocketClosed
			}
			return 0, FrameMeta{}, fmt.Errorf("read bpdu on %s: %w", c.ifName, err)
		}
		if rerr != nil {
			return 0, FrameMeta{}, fmt.Errorf("read bpdu on %s: %w", c.ifName, rerr)
		}

		if sll, ok := from.(*unix.SockaddrLinklayer); ok && sll.Pkttype == unix.PACKET_OUTGOING {
			continue
		}

		return n, FrameMeta{IfName: c.ifName, IfIndex: c.ifIndex}, nil
	}
}

// WriteFrame transmits a complete Ethernet frame on the interface.
func (c *LinuxPacketConn) WriteFrame(frame []byte) error {
	if len(frame) < 6 {
		return fmt.Errorf("write bpdu on %s: frame of %d bytes", c.ifName, len(frame))
	}

	dst := &unix.SockaddrLinklayer{
		Protocol: htons(ethPAll),
		Ifindex:  c.ifIndex,
		Halen:    6,
	}
	copy(dst.Addr[:], frame[:6])

	var werr error
	err := c.rc.Write(func(fd uintptr) bool {
		//nolint:gosec // G115: kernel FDs are small positive integers.
		werr = unix.Sendto(int(fd), frame, 0, dst)
		return !errors.Is(werr, unix.EAGAIN)
	})
	if err != nil {
		if errors.Is(err, os.ErrClosed) {
			return ErrSocketClosed
		}
		return fmt.Errorf("write bpdu on %s: %w", c.ifName, err)
	}
	if werr != nil {
		return fmt.Errorf("write bpdu on %s: %w", c.ifName, werr)
	}
	return nil
}

// Close releases the socket.
func (c *LinuxPacketConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.file.Close(); err != nil {
		return fmt.Errorf("close bpdu socket on %s: %w", c.ifName, err)
	}
	return nil
}

// IfName returns the interface the socket is bound to.
func (c *LinuxPacketConn) IfName() string {
	return c.ifName
}

// -------------------------------------------------------------------------
// Socket option helpers
// -------------------------------------------------------------------------

// applySockOpts attaches the filter, binds the socket and joins the
// bridge group address.
func applySockOpts(fd, ifIndex int) error {
	if err := attachFilter(fd, BPDUFilter()); err != nil {
		return err
	}

	sll := &unix.SockaddrLinklayer{Protocol: htons(ethPAll), Ifindex: ifIndex}
	if err := unix.Bind(fd, sll); err != nil {
		return fmt.Errorf("bind ifindex %d: %w", ifIndex, err)
	}

	mreq := &unix.PacketMreq{
		//nolint:gosec // G115: interface indexes fit in int32.
		Ifindex: int32(ifIndex),
		Type:    unix.PACKET_MR_MULTICAST,
		Alen:    6,
		Address: [8]byte{0x01, 0x80, 0xC2, 0x00, 0x00, 0x00},
	}
	if err := unix.SetsockoptPacketMreq(fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, mreq); err != nil {
		return fmt.Errorf("set PACKET_ADD_MEMBERSHIP: %w", err)
	}

	// Older kernels lack PACKET_IGNORE_OUTGOING; ReadFrame filters on
	// the packet type as well.
	_ = unix.SetsockoptInt(fd, unix.SOL_PACKET, unix.PACKET_IGNORE_OUTGOING, 1)

	return nil
}

// attachFilter assembles a classic BPF program and attaches it with
// SO_ATTACH_FILTER.
func attachFilter(fd int, prog []bpf.Instruction) error {
	raw, err := bpf.Assemble(prog)
	if err != nil {
		return fmt.Errorf("assemble bpdu filter: %w", err)
	}

	filter := make([]unix.SockFilter, len(raw))
	for i, ins := range raw {
		filter[i] = unix.SockFilter{Code: ins.Op, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}

	fprog := &unix.SockFprog{
		//nolint:gosec // G115: the program has a handful of instructions.
		Len:    uint16(len(filter)),
		Filter: &filter[0],
	}
	if err := unix.SetsockoptSockFprog(fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, fprog); err != nil {
		return fmt.Errorf("set SO_ATTACH_FILTER: %w", err)
	}
	return nil
}

// htons converts a host-order uint16 to network order.
func htons(v uint16) uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return binary.NativeEndian.Uint16(b[:])
}
