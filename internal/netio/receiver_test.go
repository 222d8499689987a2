package netio_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/gopacket/pcapgo"

	"github.com/dantte-lp/gorstp/internal/netio"
)

// recvFrame is one frame seen by chanHandler.
type recvFrame struct {
	ifName string
	data   []byte
}

// chanHandler forwards every frame to a channel. It returns err for every
// frame, which the receiver must only log.
type chanHandler struct {
	frames chan recvFrame
	err    error
}

func newChanHandler() *chanHandler {
	return &chanHandler{frames: make(chan recvFrame, 16)}
}

func (h *chanHandler) HandleFrame(ifName string, frame []byte) error {
	h.frames <- recvFrame{ifName: ifName, data: append([]byte(nil), frame...)}
	return h.err
}

func (h *chanHandler) next(t *testing.T) recvFrame {
	t.Helper()

	select {
	case f := <-h.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return recvFrame{}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startReceiver runs r in the background and returns a func that stops it
// and returns Run's error.
func startReceiver(t *testing.T, r *netio.Receiver) func() error {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	return func() error {
		cancel()
		select {
		case err := <-errCh:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("receiver did not stop")
			return nil
		}
	}
}

func TestReceiverDeliversFrames(t *testing.T) {
	t.Parallel()

	h := newChanHandler()
	r := netio.NewReceiver(h, nil, discardLogger())

	eth0 := NewMockPacketConn("eth0")
	if err := r.Add(eth0); err != nil {
		t.Fatalf("Add before Run: %v", err)
	}
	stop := startReceiver(t, r)

	// Added while running.
	eth1 := NewMockPacketConn("eth1")
	if err := r.Add(eth1); err != nil {
		t.Fatalf("Add while running: %v", err)
	}

	eth0.Inject([]byte{0xA0})
	if f := h.next(t); f.ifName != "eth0" || !bytes.Equal(f.data, []byte{0xA0}) {
		t.Errorf("frame = %+v, want eth0 a0", f)
	}
	eth1.Inject([]byte{0xB1, 0xB2})
	if f := h.next(t); f.ifName != "eth1" || !bytes.Equal(f.data, []byte{0xB1, 0xB2}) {
		t.Errorf("frame = %+v, want eth1 b1b2", f)
	}

	if err := stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !eth0.Closed() || !eth1.Closed() {
		t.Error("connections not closed after Run returned")
	}
}

func TestReceiverHandlerErrorKeepsReading(t *testing.T) {
	t.Parallel()

	h := newChanHandler()
	h.err = errors.New("not for us")
	r := netio.NewReceiver(h, nil, discardLogger())

	conn := NewMockPacketConn("eth0")
	if err := r.Add(conn); err != nil {
		t.Fatalf("Add: %v", err)
	}
	stop := startReceiver(t, r)

	conn.Inject([]byte{1})
	conn.Inject([]byte{2})
	h.next(t)
	if f := h.next(t); !bytes.Equal(f.data, []byte{2}) {
		t.Errorf("second frame = %x, want 02", f.data)
	}

	if err := stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestReceiverCapturesFrames(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	capture, err := netio.NewCapture(&buf)
	if err != nil {
		t.Fatalf("NewCapture: %v", err)
	}

	h := newChanHandler()
	r := netio.NewReceiver(h, capture, discardLogger())
	conn := NewMockPacketConn("eth0")
	if err := r.Add(conn); err != nil {
		t.Fatalf("Add: %v", err)
	}
	stop := startReceiver(t, r)

	conn.Inject([]byte{0xDE, 0xAD})
	h.next(t)
	if err := stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	pr, err := pcapgo.NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	data, _, err := pr.ReadPacketData()
	if err != nil {
		t.Fatalf("ReadPacketData: %v", err)
	}
	if !bytes.Equal(data, []byte{0xDE, 0xAD}) {
		t.Errorf("captured = %x, want dead", data)
	}
}

func TestReceiverRemove(t *testing.T) {
	t.Parallel()

	r := netio.NewReceiver(newChanHandler(), nil, discardLogger())
	conn := NewMockPacketConn("eth0")
	if err := r.Add(conn); err != nil {
		t.Fatalf("Add: %v", err)
	}
	stop := startReceiver(t, r)

	r.Remove("eth0")
	if !conn.Closed() {
		t.Error("connection not closed by Remove")
	}

	// The name is free again.
	if err := r.Add(NewMockPacketConn("eth0")); err != nil {
		t.Errorf("Add after Remove: %v", err)
	}
	// Unknown names are ignored.
	r.Remove("eth9")

	if err := stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestReceiverErrors(t *testing.T) {
	t.Parallel()

	r := netio.NewReceiver(newChanHandler(), nil, discardLogger())
	if err := r.Add(NewMockPacketConn("eth0")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	dup := NewMockPacketConn("eth0")
	if err := r.Add(dup); !errors.Is(err, netio.ErrConnExists) {
		t.Errorf("duplicate Add error = %v, want ErrConnExists", err)
	}

	stop := startReceiver(t, r)
	if err := stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); !errors.Is(err, netio.ErrReceiverRunning) {
		t.Errorf("Run after stop error = %v, want ErrReceiverRunning", err)
	}
	if err := r.Add(NewMockPacketConn("eth1")); !errors.Is(err, netio.ErrReceiverStopped) {
		t.Errorf("Add after stop error = %v, want ErrReceiverStopped", err)
	}
}
