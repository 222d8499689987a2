package rstp_test

import (
	"testing"

	"github.com/dantte-lp/gorstp/internal/rstp"
)

func TestTopologyDetectedPropagatesToOtherPorts(t *testing.T) {
	t.Parallel()

	b, host := newTestBridge(t, 1, 0x8000, portCfg(1), portCfg(2), portCfg(3))

	// Ports 2 and 3 are down, so their Topology Change machines sit in
	// INACTIVE and keep tcProp once it is set.
	host.setLink(2, false)
	host.setLink(3, false)
	for _, n := range []uint16{2, 3} {
		if err := b.LinkChanged(n); err != nil {
			t.Fatalf("LinkChanged(%d): %v", n, err)
		}
	}

	for n := uint16(1); n <= 3; n++ {
		if b.TcProp(n) {
			t.Fatalf("port %d: tcProp set before any topology change", n)
		}
	}

	before := b.Status().TopologyChanges
	b.EnterTopologyDetected(1)
	b.Settle()

	if b.TcProp(1) {
		t.Error("port 1: own tcProp set by its DETECTED state")
	}
	for _, n := range []uint16{2, 3} {
		if !b.TcProp(n) {
			t.Errorf("port %d: tcProp = false, want true", n)
		}
		if got := b.TopologyChangeState(n); got != "INACTIVE" {
			t.Errorf("port %d: topology change state = %s, want INACTIVE", n, got)
		}
	}

	ps := mustPort(t, b, 1)
	if ps.Timers.TcWhile == 0 {
		t.Error("port 1: tcWhile not armed")
	}
	if got := b.Status().TopologyChanges; got != before+1 {
		t.Errorf("TopologyChanges = %d, want %d", got, before+1)
	}
}

func TestTopologyChangeFlushesDownstream(t *testing.T) {
	t.Parallel()

	a, ha := newTestBridge(t, 1, 0x1000, portCfg(1))
	b, hb := newTestBridge(t, 2, 0x8000, portCfg(1), portCfg(2))
	c, hc := newTestBridge(t, 3, 0x9000, portCfg(1))

	l := newLab(t)
	l.add(a, ha)
	l.add(b, hb)
	l.add(c, hc)
	l.link(a, 1, b, 1)
	l.link(b, 2, c, 1)
	l.deliver()
	for range 10 {
		l.tick()
	}

	// New forwarding ports are topology changes.
	for name, br := range map[string]*rstp.Bridge{"a": a, "b": b, "c": c} {
		if br.Status().TopologyChanges == 0 {
			t.Errorf("bridge %s counted no topology change", name)
		}
	}

	// A change detected on A reaches B's root port through the TC flag;
	// B propagates it to its designated port, which flushes.
	flushes := hb.flushCount()
	a.EnterTopologyDetected(1)
	a.Settle()
	l.deliver()

	if got := hb.flushCount(); got <= flushes {
		t.Errorf("B flush calls = %d, want more than %d after a propagated topology change", got, flushes)
	}
	if got := b.TopologyChangeState(2); got != "ACTIVE" {
		t.Errorf("B port 2 topology change state = %s, want ACTIVE", got)
	}
}

func TestTopologyChangeTimerRSTP(t *testing.T) {
	t.Parallel()

	b, _ := newTestBridge(t, 1, 0x8000, portCfg(1))

	b.EnterTopologyDetected(1)
	b.Settle()

	// While sending RST BPDUs the change is signalled for HelloTime+1.
	want := b.Config().HelloTime + 1
	if got := mustPort(t, b, 1).Timers.TcWhile; got != want {
		t.Errorf("tcWhile = %d, want %d", got, want)
	}
}
