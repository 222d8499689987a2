package netio_test

import (
	"errors"
	"net"
	"sync"

	"github.com/dantte-lp/gorstp/internal/netio"
)

// -------------------------------------------------------------------------
// MockPacketConn: Test double for PacketConn
// -------------------------------------------------------------------------

// MockPacketConn implements netio.PacketConn for testing without real
// sockets. Frames pushed with Inject are returned by ReadFrame, which
// blocks until a frame is available or the conn is closed.
type MockPacketConn struct {
	ifName string
	rx     chan []byte
	done   chan struct{}

	mu      sync.Mutex
	closed  bool
	written [][]byte

	// WriteErr is returned by WriteFrame when set.
	WriteErr error
}

// NewMockPacketConn creates a MockPacketConn bound to ifName.
func NewMockPacketConn(ifName string) *MockPacketConn {
	return &MockPacketConn{
		ifName: ifName,
		rx:     make(chan []byte, 16),
		done:   make(chan struct{}),
	}
}

// Inject queues a frame for ReadFrame.
func (m *MockPacketConn) Inject(frame []byte) {
	m.rx <- frame
}

// ReadFrame implements PacketConn.ReadFrame.
func (m *MockPacketConn) ReadFrame(buf []byte) (int, netio.FrameMeta, error) {
	select {
	case <-m.done:
		return 0, netio.FrameMeta{}, netio.ErrSocketClosed
	case frame := <-m.rx:
		n := copy(buf, frame)
		return n, netio.FrameMeta{IfName: m.ifName}, nil
	}
}

// WriteFrame implements PacketConn.WriteFrame.
func (m *MockPacketConn) WriteFrame(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return netio.ErrSocketClosed
	}
	if m.WriteErr != nil {
		return m.WriteErr
	}

	// Copy so the test can inspect it after the caller reuses the buffer.
	data := make([]byte, len(frame))
	copy(data, frame)
	m.written = append(m.written, data)
	return nil
}

// Close implements PacketConn.Close.
func (m *MockPacketConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

// IfName implements PacketConn.IfName.
func (m *MockPacketConn) IfName() string {
	return m.ifName
}

// Written returns a copy of every frame written so far.
func (m *MockPacketConn) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.written...)
}

// Closed reports whether Close was called.
func (m *MockPacketConn) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// -------------------------------------------------------------------------
// mockDatapath: Test double for Datapath
// -------------------------------------------------------------------------

var errNoSuchLink = errors.New("mock: no such link")

// mockDatapath keeps links, port states and FDB sizes in memory.
type mockDatapath struct {
	mu       sync.Mutex
	links    map[string]netio.LinkInfo
	states   map[int]netio.BridgePortState
	learning map[int]bool
	fdb      map[int]int
	flushes  []int
}

func newMockDatapath(links ...netio.LinkInfo) *mockDatapath {
	dp := &mockDatapath{
		links:    make(map[string]netio.LinkInfo),
		states:   make(map[int]netio.BridgePortState),
		learning: make(map[int]bool),
		fdb:      make(map[int]int),
	}
	for _, l := range links {
		dp.links[l.Name] = l
	}
	return dp
}

func (d *mockDatapath) Link(name string) (netio.LinkInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.links[name]
	if !ok {
		return netio.LinkInfo{}, errNoSuchLink
	}
	return l, nil
}

func (d *mockDatapath) SetLearning(ifIndex int, enable bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.learning[ifIndex] = enable
	return nil
}

func (d *mockDatapath) SetPortState(ifIndex int, state netio.BridgePortState) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states[ifIndex] = state
	return nil
}

func (d *mockDatapath) FlushFDB(ifIndex int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := d.fdb[ifIndex]
	d.fdb[ifIndex] = 0
	d.flushes = append(d.flushes, ifIndex)
	return n, nil
}

func (d *mockDatapath) setLink(l netio.LinkInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.links[l.Name] = l
}

func (d *mockDatapath) state(ifIndex int) (netio.BridgePortState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.states[ifIndex]
	return s, ok
}

func (d *mockDatapath) flushed() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.flushes...)
}

// -------------------------------------------------------------------------
// mockSink: Test double for ConnSink
// -------------------------------------------------------------------------

type mockSink struct {
	mu    sync.Mutex
	conns map[string]netio.PacketConn
}

func newMockSink() *mockSink {
	return &mockSink{conns: make(map[string]netio.PacketConn)}
}

func (s *mockSink) Add(conn netio.PacketConn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conns[conn.IfName()]; ok {
		return netio.ErrConnExists
	}
	s.conns[conn.IfName()] = conn
	return nil
}

func (s *mockSink) Remove(ifName string) {
	s.mu.Lock()
	conn, ok := s.conns[ifName]
	delete(s.conns, ifName)
	s.mu.Unlock()

	if ok {
		_ = conn.Close()
	}
}

func (s *mockSink) has(ifName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conns[ifName]
	return ok
}

// mockDialer hands out MockPacketConns and remembers them by interface.
type mockDialer struct {
	mu    sync.Mutex
	conns map[string]*MockPacketConn
}

func newMockDialer() *mockDialer {
	return &mockDialer{conns: make(map[string]*MockPacketConn)}
}

func (d *mockDialer) dial(ifName string, _ int) (netio.PacketConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := NewMockPacketConn(ifName)
	d.conns[ifName] = c
	return c, nil
}

func (d *mockDialer) conn(ifName string) *MockPacketConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[ifName]
}

// testLink returns an up, full-duplex gigabit link.
func testLink(name string, index int) netio.LinkInfo {
	return netio.LinkInfo{
		Index:      index,
		Name:       name,
		MAC:        net.HardwareAddr{0x02, 0, 0, 0, 0, byte(index)},
		Up:         true,
		FullDuplex: true,
		Speed:      1000,
	}
}
