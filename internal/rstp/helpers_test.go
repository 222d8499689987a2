package rstp_test

import (
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"

	"github.com/dantte-lp/gorstp/internal/rstp"
)

// -------------------------------------------------------------------------
// Test Helpers: fake Host
// -------------------------------------------------------------------------

type sentFrame struct {
	port  uint16
	frame []byte
}

type flushCall struct {
	port  uint16
	scope rstp.FlushScope
}

// fakeHost records everything the bridge asks of it. Frames are queued
// in the outbox and delivered by a lab, never synchronously.
type fakeHost struct {
	mu sync.Mutex

	base       byte
	linkDown   map[uint16]bool
	halfDuplex map[uint16]bool
	learning   map[uint16]bool
	forwarding map[uint16]bool
	hwMode     bool
	outbox     []sentFrame
	flushes    []flushCall
	attached   map[uint16]string
}

func newFakeHost(base byte) *fakeHost {
	return &fakeHost{
		base:       base,
		linkDown:   make(map[uint16]bool),
		halfDuplex: make(map[uint16]bool),
		learning:   make(map[uint16]bool),
		forwarding: make(map[uint16]bool),
		attached:   make(map[uint16]string),
	}
}

func (h *fakeHost) TxFrame(port uint16, frame []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outbox = append(h.outbox, sentFrame{port: port, frame: frame})
	return nil
}

func (h *fakeHost) Flush(port uint16, scope rstp.FlushScope) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushes = append(h.flushes, flushCall{port: port, scope: scope})
	return nil
}

func (h *fakeHost) PortAddress(port uint16) net.HardwareAddr {
	return net.HardwareAddr{0x02, 0x00, 0x00, h.base, byte(port >> 8), byte(port)}
}

func (h *fakeHost) LinkUp(port uint16) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.linkDown[port]
}

func (h *fakeHost) FullDuplex(port uint16) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.halfDuplex[port]
}

func (h *fakeHost) Speed(uint16) uint32 { return 1000 }

func (h *fakeHost) SetLearning(port uint16, enable bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.learning[port] = enable
	return nil
}

func (h *fakeHost) SetForwarding(port uint16, enable bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.forwarding[port] = enable
	return nil
}

func (h *fakeHost) SetHardwareMode(enable bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hwMode = enable
	return nil
}

func (h *fakeHost) AttachPort(number uint16, ifName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attached[number] = ifName
	return nil
}

func (h *fakeHost) DetachPort(number uint16) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.attached, number)
}

func (h *fakeHost) setLink(port uint16, up bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.linkDown[port] = !up
}

// take empties and returns the outbox.
func (h *fakeHost) take() []sentFrame {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.outbox
	h.outbox = nil
	return out
}

func (h *fakeHost) sentCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.outbox)
}

func (h *fakeHost) flushCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.flushes)
}

// -------------------------------------------------------------------------
// Test Helpers: bridges
// -------------------------------------------------------------------------

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestBridge creates a started bridge with the given priority and
// ports numbered 1..len(ports).
func newTestBridge(t *testing.T, base byte, priority uint16, ports ...rstp.PortConfig) (*rstp.Bridge, *fakeHost) {
	t.Helper()

	host := newFakeHost(base)
	cfg := rstp.DefaultBridgeConfig("br"+string('a'+rune(base)), net.HardwareAddr{0x02, 0x00, 0x00, base, 0x00, 0x00})
	cfg.Priority = priority

	b, err := rstp.NewBridge(cfg, host, discardLogger())
	if err != nil {
		t.Fatalf("NewBridge: %v", err)
	}
	for _, pc := range ports {
		if err := b.AddPort(pc); err != nil {
			t.Fatalf("AddPort(%d): %v", pc.Number, err)
		}
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return b, host
}

func portCfg(number uint16) rstp.PortConfig {
	return rstp.DefaultPortConfig(number, "eth"+string('0'+rune(number)))
}

func mustPort(t *testing.T, b *rstp.Bridge, number uint16) rstp.PortStatus {
	t.Helper()
	ps, err := b.PortStatus(number)
	if err != nil {
		t.Fatalf("PortStatus(%d): %v", number, err)
	}
	return ps
}

// -------------------------------------------------------------------------
// Test Helpers: lab of linked bridges
// -------------------------------------------------------------------------

type endpoint struct {
	bridge *rstp.Bridge
	port   uint16
}

// lab connects bridge ports point-to-point and shuttles frames between
// them.
type lab struct {
	t     *testing.T
	hosts map[*rstp.Bridge]*fakeHost
	peers map[endpoint]endpoint
}

func newLab(t *testing.T) *lab {
	return &lab{
		t:     t,
		hosts: make(map[*rstp.Bridge]*fakeHost),
		peers: make(map[endpoint]endpoint),
	}
}

func (l *lab) add(b *rstp.Bridge, h *fakeHost) {
	l.hosts[b] = h
}

func (l *lab) link(a *rstp.Bridge, ap uint16, b *rstp.Bridge, bp uint16) {
	l.peers[endpoint{a, ap}] = endpoint{b, bp}
	l.peers[endpoint{b, bp}] = endpoint{a, ap}
}

// deliver moves queued frames across links until none are left.
func (l *lab) deliver() int {
	l.t.Helper()

	total := 0
	for range 1000 {
		moved := 0
		for b, h := range l.hosts {
			for _, f := range h.take() {
				peer, ok := l.peers[endpoint{b, f.port}]
				if !ok {
					continue
				}
				if err := peer.bridge.ReceiveFrame(peer.port, f.frame); err != nil {
					l.t.Fatalf("ReceiveFrame: %v", err)
				}
				moved++
			}
		}
		if moved == 0 {
			return total
		}
		total += moved
	}
	l.t.Fatal("frames kept flowing between bridges")
	return total
}

// tick ticks every bridge once and delivers the resulting frames.
func (l *lab) tick() {
	for b := range l.hosts {
		b.Tick()
	}
	l.deliver()
}
