package rstp_test

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dantte-lp/gorstp/internal/rstp"
)

func TestBridgeSettersValidate(t *testing.T) {
	t.Parallel()

	b, _ := newTestBridge(t, 1, 0x8000, portCfg(1))

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"priority step", func() error { return b.SetBridgePriority(0x8001) }, rstp.ErrInvalidBridgePriority},
		{"max age range", func() error { return b.SetBridgeTimes(41, 2, 15) }, rstp.ErrInvalidTimes},
		{"forward delay relation", func() error { return b.SetBridgeTimes(20, 2, 4) }, rstp.ErrInvalidTimes},
		{"hello relation", func() error { return b.SetBridgeTimes(6, 3, 15) }, rstp.ErrInvalidTimes},
		{"tx hold count", func() error { return b.SetTxHoldCount(11) }, rstp.ErrInvalidTxHoldCount},
		{"force version", func() error { return b.SetForceVersion(1) }, rstp.ErrInvalidForceVersion},
		{"flush scope", func() error { return b.SetFlushScope(7) }, rstp.ErrInvalidFlushScope},
		{"port priority", func() error { return b.SetPortPriority(1, 0x88) }, rstp.ErrInvalidPortPriority},
		{"point to point", func() error { return b.SetAdminPointToPoint(1, 9) }, rstp.ErrInvalidPointToPoint},
		{"unknown port", func() error { return b.SetAdminEdge(42, true) }, rstp.ErrPortNotFound},
	}

	for _, tt := range tests {
		if err := tt.call(); !errors.Is(err, tt.want) {
			t.Errorf("%s: error = %v, want %v", tt.name, err, tt.want)
		}
	}

	// Rejected changes leave the configuration alone.
	cfg := b.Config()
	if cfg.Priority != 0x8000 || cfg.MaxAge != 20 || cfg.TxHoldCount != 6 {
		t.Errorf("config modified by rejected setters: %+v", cfg)
	}
}

func TestSetPortPriorityChangesPortID(t *testing.T) {
	t.Parallel()

	b, _ := newTestBridge(t, 1, 0x8000, portCfg(1))
	if err := b.SetPortPriority(1, 0x10); err != nil {
		t.Fatalf("SetPortPriority: %v", err)
	}
	ps := mustPort(t, b, 1)
	if ps.ID != rstp.NewPortID(0x10, 1) {
		t.Errorf("port id = %s, want 10.001", ps.ID)
	}
	if ps.DesignatedPort != ps.ID {
		t.Errorf("designated port = %s, want the new port id %s", ps.DesignatedPort, ps.ID)
	}
}

func TestSetPortPriorityKeepsRootPort(t *testing.T) {
	t.Parallel()

	a, ha := newTestBridge(t, 1, 0x1000, portCfg(1))
	b, hb := newTestBridge(t, 2, 0x8000, portCfg(1))

	l := newLab(t)
	l.add(a, ha)
	l.add(b, hb)
	l.link(a, 1, b, 1)
	l.deliver()

	check := func(when string) {
		t.Helper()
		ps := mustPort(t, b, 1)
		if ps.Role != rstp.RoleRoot || ps.State != rstp.PortStateForwarding {
			t.Errorf("%s: B port 1 = %s/%s, want Root/Forwarding", when, ps.Role, ps.State)
		}
		if got := b.Status().RootPort; got != "eth1" {
			t.Errorf("%s: B root port = %q, want eth1", when, got)
		}
	}
	check("before")

	if err := b.SetPortPriority(1, 0x40); err != nil {
		t.Fatalf("SetPortPriority: %v", err)
	}
	check("after priority change")

	l.deliver()
	for range 5 {
		l.tick()
	}
	check("after ticks")
}

func TestSetAdminPointToPoint(t *testing.T) {
	t.Parallel()

	b, host := newTestBridge(t, 1, 0x8000, portCfg(1))
	if !mustPort(t, b, 1).OperPointToPoint {
		t.Fatal("full-duplex port in auto mode is not point-to-point")
	}

	if err := b.SetAdminPointToPoint(1, rstp.PointToPointForceFalse); err != nil {
		t.Fatalf("SetAdminPointToPoint: %v", err)
	}
	if mustPort(t, b, 1).OperPointToPoint {
		t.Error("forced false port is point-to-point")
	}

	host.halfDuplex[1] = true
	if err := b.SetAdminPointToPoint(1, rstp.PointToPointForceTrue); err != nil {
		t.Fatalf("SetAdminPointToPoint: %v", err)
	}
	if !mustPort(t, b, 1).OperPointToPoint {
		t.Error("forced true half-duplex port is not point-to-point")
	}
}

func TestSetAdminNonStpRoundTrip(t *testing.T) {
	t.Parallel()

	b, _ := newTestBridge(t, 1, 0x8000, portCfg(1))

	if err := b.SetAdminNonStp(1, true); err != nil {
		t.Fatalf("SetAdminNonStp(true): %v", err)
	}
	ps := mustPort(t, b, 1)
	if ps.Role != rstp.RoleNonStp || ps.State != rstp.PortStateForwarding {
		t.Errorf("non-STP port role %s state %s, want NonStp Forwarding", ps.Role, ps.State)
	}

	if err := b.SetAdminNonStp(1, false); err != nil {
		t.Fatalf("SetAdminNonStp(false): %v", err)
	}
	ps = mustPort(t, b, 1)
	if ps.Role != rstp.RoleDesignated {
		t.Errorf("role after rejoining = %s, want Designated", ps.Role)
	}
	if ps.State != rstp.PortStateDiscarding {
		t.Errorf("state after rejoining = %s, want Discarding until the port proves safe", ps.State)
	}
}

func TestSetForceVersionRestartsMigration(t *testing.T) {
	t.Parallel()

	b, _ := newTestBridge(t, 1, 0x8000, portCfg(1))
	if err := b.SetForceVersion(rstp.ForceSTP); err != nil {
		t.Fatalf("SetForceVersion: %v", err)
	}
	if mustPort(t, b, 1).SendRSTP {
		t.Error("port sends RST BPDUs with STP forced")
	}
	if err := b.MCheck(1); err != nil {
		t.Fatalf("MCheck: %v", err)
	}
	if mustPort(t, b, 1).SendRSTP {
		t.Error("MCheck enabled RST BPDUs while STP is forced")
	}
}

func TestStatusUptime(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	host := newFakeHost(1)
	cfg := rstp.DefaultBridgeConfig("br0", net.HardwareAddr{0x02, 0, 0, 1, 0, 0})
	b, err := rstp.NewBridge(cfg, host, discardLogger(), rstp.WithClock(mock))
	if err != nil {
		t.Fatalf("NewBridge: %v", err)
	}
	if err := b.AddPort(portCfg(1)); err != nil {
		t.Fatalf("AddPort: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	mock.Add(90 * time.Second)
	for range 5 {
		b.Tick()
	}

	st := b.Status()
	if st.Uptime != 90*time.Second {
		t.Errorf("bridge uptime = %s, want 1m30s", st.Uptime)
	}
	if got := st.Ports[0].Uptime; got != 5*time.Second {
		t.Errorf("port uptime = %s, want 5s", got)
	}
	if _, err := b.PortStatus(2); !errors.Is(err, rstp.ErrPortNotFound) {
		t.Errorf("PortStatus(2) error = %v, want ErrPortNotFound", err)
	}
}
