package netio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrReceiverRunning indicates Run was called twice.
	ErrReceiverRunning = errors.New("receiver already running")

	// ErrReceiverStopped indicates Add was called after Run returned.
	ErrReceiverStopped = errors.New("receiver stopped")

	// ErrConnExists indicates Add was called for an interface that
	// already has a connection.
	ErrConnExists = errors.New("connection already registered for interface")
)

// FrameHandler consumes received BPDU frames. rstp.Manager implements it.
type FrameHandler interface {
	HandleFrame(ifName string, frame []byte) error
}

// Receiver reads BPDU frames from a changing set of PacketConns and hands
// them to a FrameHandler. Connections are added and removed as bridge
// ports are attached and detached; each gets its own goroutine while the
// receiver runs.
type Receiver struct {
	handler FrameHandler
	capture *Capture
	logger  *slog.Logger

	mu      sync.Mutex
	ctx     context.Context //nolint:containedctx // set by Run, scopes the loops it starts.
	stopped bool
	conns   map[string]*rxConn
	wg      sync.WaitGroup
}

// rxConn is one registered connection and the cancel func of its loop.
type rxConn struct {
	conn   PacketConn
	cancel context.CancelFunc
}

// NewReceiver creates a Receiver delivering frames to handler. capture may
// be nil.
func NewReceiver(handler FrameHandler, capture *Capture, logger *slog.Logger) *Receiver {
	return &Receiver{
		handler: handler,
		capture: capture,
		logger:  logger.With(slog.String("component", "netio.receiver")),
		conns:   make(map[string]*rxConn),
	}
}

// Add registers conn. If the receiver is running its read loop starts
// immediately, otherwise when Run is called.
func (r *Receiver) Add(conn PacketConn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := conn.IfName()
	if r.stopped {
		return fmt.Errorf("add %s: %w", name, ErrReceiverStopped)
	}
	if _, ok := r.conns[name]; ok {
		return fmt.Errorf("add %s: %w", name, ErrConnExists)
	}

	rc := &rxConn{conn: conn}
	r.conns[name] = rc
	if r.ctx != nil {
		r.startLocked(rc)
	}
	return nil
}

// Remove stops reading from the connection of ifName and closes it.
func (r *Receiver) Remove(ifName string) {
	r.mu.Lock()
	rc, ok := r.conns[ifName]
	delete(r.conns, ifName)
	r.mu.Unlock()

	if !ok {
		return
	}
	r.closeConn(rc)
}

// Run reads from every registered connection until ctx is cancelled,
// then closes all of them and waits for the loops to exit.
func (r *Receiver) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.ctx != nil || r.stopped {
		r.mu.Unlock()
		return fmt.Errorf("receiver run: %w", ErrReceiverRunning)
	}
	r.ctx = ctx
	for _, rc := range r.conns {
		r.startLocked(rc)
	}
	r.mu.Unlock()

	r.logger.Info("receiver started")
	<-ctx.Done()

	r.mu.Lock()
	r.stopped = true
	conns := r.conns
	r.conns = make(map[string]*rxConn)
	r.mu.Unlock()

	for _, rc := range conns {
		r.closeConn(rc)
	}
	r.wg.Wait()

	r.logger.Info("receiver stopped")
	return nil
}

func (r *Receiver) startLocked(rc *rxConn) {
	ctx, cancel := context.WithCancel(r.ctx)
	rc.cancel = cancel
	r.wg.Add(1)
	go r.recvLoop(ctx, rc.conn)
}

func (r *Receiver) closeConn(rc *rxConn) {
	if rc.cancel != nil {
		rc.cancel()
	}
	if err := rc.conn.Close(); err != nil {
		r.logger.Warn("close connection",
			slog.String("interface", rc.conn.IfName()),
			slog.String("error", err.Error()),
		)
	}
}

// recvLoop reads frames from a single connection until ctx is cancelled
// or the connection is closed. Other read errors are logged and the loop
// continues.
func (r *Receiver) recvLoop(ctx context.Context, conn PacketConn) {
	defer r.wg.Done()

	buf := make([]byte, frameBufSize)
	for {
		if ctx.Err() != nil {
			return
		}

		if err := r.recvOne(conn, buf); err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrSocketClosed) {
				return
			}
			r.logger.Warn("recv error",
				slog.String("interface", conn.IfName()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// recvOne performs a single read-capture-handle cycle. buf is reused by
// the next call, so the handler must not retain the frame.
func (r *Receiver) recvOne(conn PacketConn, buf []byte) error {
	n, meta, err := conn.ReadFrame(buf)
	if err != nil {
		return fmt.Errorf("recv: %w", err)
	}
	frame := buf[:n]

	if err := r.capture.Write(time.Now(), frame); err != nil {
		r.logger.Warn("capture failed", slog.String("error", err.Error()))
	}

	if meta.IfName == "" {
		meta.IfName = conn.IfName()
	}
	if err := r.handler.HandleFrame(meta.IfName, frame); err != nil {
		r.logger.Debug("frame not handled",
			slog.String("interface", meta.IfName),
			slog.String("error", err.Error()),
		)
	}

	return nil
}
