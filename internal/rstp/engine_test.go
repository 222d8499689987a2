package rstp_test

import (
	"errors"
	"testing"

	"github.com/dantte-lp/gorstp/internal/rstp"
)

func TestTickWithoutPendingWorkIsIdempotent(t *testing.T) {
	t.Parallel()

	pc := portCfg(1)
	pc.AdminEdge = true
	b, _ := newTestBridge(t, 1, 0x8000, pc)

	// Let Protocol Migration reach SENSING, then stop right after a hello
	// so no timer is about to expire.
	for range rstp.MigrateTime + 1 {
		b.Tick()
	}
	hello := b.Config().HelloTime
	for range 2 * hello {
		if b.HelloWhen(1) == hello {
			break
		}
		b.Tick()
	}
	if b.HelloWhen(1) != hello {
		t.Fatalf("helloWhen = %d, want %d", b.HelloWhen(1), hello)
	}

	before := mustPort(t, b, 1)
	if n := b.TickTransitions(); n != 0 {
		t.Errorf("tick with nothing pending took %d transitions, want 0", n)
	}
	after := mustPort(t, b, 1)

	if before.Role != after.Role || before.State != after.State || before.InfoIs != after.InfoIs {
		t.Errorf("port changed across an idle tick: %+v -> %+v", before, after)
	}
	if after.Timers.HelloWhen != hello-1 {
		t.Errorf("helloWhen = %d, want %d", after.Timers.HelloWhen, hello-1)
	}
}

func TestSettleOnQuietBridgeTakesNoTransition(t *testing.T) {
	t.Parallel()

	b, _ := newTestBridge(t, 1, 0x8000, portCfg(1), portCfg(2))
	if n := b.Settle(); n != 0 {
		t.Errorf("Settle after Start took %d transitions, want 0", n)
	}
}

func TestStoppedBridgeIgnoresTicks(t *testing.T) {
	t.Parallel()

	b, host := newTestBridge(t, 1, 0x8000, portCfg(1))
	if err := b.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if host.hwMode {
		t.Error("hardware mode still enabled after Stop")
	}

	host.take()
	if n := b.TickTransitions(); n != 0 {
		t.Errorf("stopped bridge took %d transitions on tick", n)
	}
	if host.sentCount() != 0 {
		t.Error("stopped bridge transmitted")
	}
}

func TestTimersNeverUnderflow(t *testing.T) {
	t.Parallel()

	b, _ := newTestBridge(t, 1, 0x8000, portCfg(1))
	for range 100 {
		b.Tick()
	}

	tm := mustPort(t, b, 1).Timers
	ceiling := b.Config().MaxAge + b.Config().ForwardDelay
	for name, v := range map[string]uint16{
		"edgeDelayWhile": tm.EdgeDelayWhile,
		"fdWhile":        tm.FdWhile,
		"helloWhen":      tm.HelloWhen,
		"mdelayWhile":    tm.MdelayWhile,
		"rbWhile":        tm.RbWhile,
		"rcvdInfoWhile":  tm.RcvdInfoWhile,
		"rrWhile":        tm.RrWhile,
		"tcWhile":        tm.TcWhile,
		"txCount":        tm.TxCount,
	} {
		if v > ceiling {
			t.Errorf("%s = %d, exceeds %d", name, v, ceiling)
		}
	}
}

// -------------------------------------------------------------------------
// Receive policy
// -------------------------------------------------------------------------

func encodeBPDU(t *testing.T, b rstp.BPDU) []byte {
	t.Helper()
	buf := make([]byte, rstp.RSTSize)
	n, err := rstp.MarshalBPDU(&b, buf)
	if err != nil {
		t.Fatalf("MarshalBPDU: %v", err)
	}
	return buf[:n]
}

func TestReceiveBPDUDrops(t *testing.T) {
	t.Parallel()

	nonStp := portCfg(2)
	nonStp.NonStp = true
	b, _ := newTestBridge(t, 1, 0x8000, portCfg(1), nonStp)

	own := rstp.BPDU{
		Version:  rstp.VersionRSTP,
		Type:     rstp.BPDUTypeRST,
		RootID:   b.ID(),
		BridgeID: b.ID(),
		PortID:   rstp.NewPortID(rstp.DefaultPortPriority, 1),
		Times:    rstp.Times{MaxAge: 20, HelloTime: 2, ForwardDelay: 15},
	}
	expired := sampleRST()
	expired.Times.MessageAge = expired.Times.MaxAge

	tests := []struct {
		name    string
		port    uint16
		payload []byte
		wantErr error
	}{
		{name: "malformed", port: 1, payload: []byte{0, 0, 0, 0x00, 1}, wantErr: rstp.ErrShortBPDU},
		{name: "unknown type", port: 1, payload: []byte{0, 0, 0, 0x7F}, wantErr: rstp.ErrUnknownBPDUType},
		{name: "non-stp port", port: 2, payload: encodeBPDU(t, own)},
		{name: "looped back", port: 1, payload: encodeBPDU(t, own)},
		{name: "message age at max age", port: 1, payload: encodeBPDU(t, expired)},
	}

	for _, tt := range tests {
		before := mustPort(t, b, tt.port).Stats.RxDropped

		err := b.ReceiveBPDU(tt.port, tt.payload)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("%s: ReceiveBPDU error = %v, want %v", tt.name, err, tt.wantErr)
			}
		} else if err != nil {
			t.Errorf("%s: ReceiveBPDU error = %v, want nil", tt.name, err)
		}

		if got := mustPort(t, b, tt.port).Stats.RxDropped; got != before+1 {
			t.Errorf("%s: RxDropped = %d, want %d", tt.name, got, before+1)
		}
	}

	if ps := mustPort(t, b, 1); ps.InfoIs != rstp.InfoMine {
		t.Errorf("dropped BPDUs changed port information: infoIs = %s", ps.InfoIs)
	}
}

func TestReceiveUnknownPort(t *testing.T) {
	t.Parallel()

	b, _ := newTestBridge(t, 1, 0x8000, portCfg(1))
	if err := b.ReceiveBPDU(9, nil); !errors.Is(err, rstp.ErrPortNotFound) {
		t.Errorf("ReceiveBPDU on unknown port error = %v, want ErrPortNotFound", err)
	}
}

func TestAddPortValidation(t *testing.T) {
	t.Parallel()

	b, _ := newTestBridge(t, 1, 0x8000, portCfg(1))

	if err := b.AddPort(portCfg(1)); !errors.Is(err, rstp.ErrPortExists) {
		t.Errorf("duplicate AddPort error = %v, want ErrPortExists", err)
	}
	if err := b.AddPort(portCfg(0)); !errors.Is(err, rstp.ErrInvalidPortNumber) {
		t.Errorf("port 0 AddPort error = %v, want ErrInvalidPortNumber", err)
	}
	bad := portCfg(2)
	bad.Priority = 0x81
	if err := b.AddPort(bad); !errors.Is(err, rstp.ErrInvalidPortPriority) {
		t.Errorf("bad priority AddPort error = %v, want ErrInvalidPortPriority", err)
	}
}
