package rstp_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dantte-lp/gorstp/internal/rstp"
)

// hostPool hands out a fakeHost per bridge and remembers it.
type hostPool struct {
	mu    sync.Mutex
	hosts map[string]*fakeHost
	next  byte
	fail  bool
}

func newHostPool() *hostPool {
	return &hostPool{hosts: make(map[string]*fakeHost)}
}

func (hp *hostPool) factory(cfg rstp.BridgeConfig) (rstp.Host, error) {
	hp.mu.Lock()
	defer hp.mu.Unlock()
	if hp.fail {
		return nil, errors.New("host unavailable")
	}
	hp.next++
	h := newFakeHost(hp.next)
	hp.hosts[cfg.Name] = h
	return h, nil
}

func (hp *hostPool) get(name string) *fakeHost {
	hp.mu.Lock()
	defer hp.mu.Unlock()
	return hp.hosts[name]
}

func bridgeSpec(name string, last byte, ports ...rstp.PortConfig) rstp.BridgeSpec {
	return rstp.BridgeSpec{
		Bridge: rstp.DefaultBridgeConfig(name, net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x01, last}),
		Ports:  ports,
	}
}

func namedPort(number uint16, name string) rstp.PortConfig {
	return rstp.DefaultPortConfig(number, name)
}

func TestManagerAddRemoveBridge(t *testing.T) {
	t.Parallel()

	hp := newHostPool()
	m := rstp.NewManager(hp.factory, discardLogger())
	defer m.Close()

	if err := m.AddBridge(bridgeSpec("br0", 1, namedPort(1, "eth0"), namedPort(2, "eth1"))); err != nil {
		t.Fatalf("AddBridge: %v", err)
	}
	if err := m.AddBridge(bridgeSpec("br0", 2)); !errors.Is(err, rstp.ErrBridgeExists) {
		t.Errorf("duplicate AddBridge error = %v, want ErrBridgeExists", err)
	}

	st, err := m.Bridge("br0")
	if err != nil {
		t.Fatalf("Bridge: %v", err)
	}
	if !st.Running || len(st.Ports) != 2 {
		t.Errorf("status = running %v, %d ports; want running with 2 ports", st.Running, len(st.Ports))
	}

	h := hp.get("br0")
	if !h.hwMode {
		t.Error("hardware mode not enabled on start")
	}
	if h.attached[1] != "eth0" || h.attached[2] != "eth1" {
		t.Errorf("attached = %v, want eth0 and eth1", h.attached)
	}

	if got := m.Interfaces(); len(got) != 2 || got[0] != "eth0" || got[1] != "eth1" {
		t.Errorf("Interfaces() = %v, want [eth0 eth1]", got)
	}

	if err := m.RemoveBridge("br0"); err != nil {
		t.Fatalf("RemoveBridge: %v", err)
	}
	if h.hwMode {
		t.Error("hardware mode still enabled after removal")
	}
	if len(h.attached) != 0 {
		t.Errorf("ports still attached after removal: %v", h.attached)
	}
	if _, err := m.Bridge("br0"); !errors.Is(err, rstp.ErrBridgeNotFound) {
		t.Errorf("Bridge after removal error = %v, want ErrBridgeNotFound", err)
	}
	if err := m.RemoveBridge("br0"); !errors.Is(err, rstp.ErrBridgeNotFound) {
		t.Errorf("second RemoveBridge error = %v, want ErrBridgeNotFound", err)
	}
}

func TestManagerHostFailure(t *testing.T) {
	t.Parallel()

	hp := newHostPool()
	hp.fail = true
	m := rstp.NewManager(hp.factory, discardLogger())

	if err := m.AddBridge(bridgeSpec("br0", 1)); err == nil {
		t.Fatal("AddBridge succeeded without a host")
	}
	if got := m.Bridges(); len(got) != 0 {
		t.Errorf("Bridges() = %d entries after failed add, want 0", len(got))
	}
}

func TestManagerInterfaceInUse(t *testing.T) {
	t.Parallel()

	hp := newHostPool()
	m := rstp.NewManager(hp.factory, discardLogger())
	defer m.Close()

	if err := m.AddBridge(bridgeSpec("br0", 1, namedPort(1, "eth0"))); err != nil {
		t.Fatalf("AddBridge br0: %v", err)
	}
	if err := m.AddBridge(bridgeSpec("br1", 2)); err != nil {
		t.Fatalf("AddBridge br1: %v", err)
	}

	if err := m.AddPort("br1", namedPort(1, "eth0")); !errors.Is(err, rstp.ErrInterfaceInUse) {
		t.Errorf("AddPort of attached interface error = %v, want ErrInterfaceInUse", err)
	}
	if err := m.AddPort("nope", namedPort(1, "eth9")); !errors.Is(err, rstp.ErrBridgeNotFound) {
		t.Errorf("AddPort to unknown bridge error = %v, want ErrBridgeNotFound", err)
	}

	if err := m.RemovePort("br0", 1); err != nil {
		t.Fatalf("RemovePort: %v", err)
	}
	if err := m.AddPort("br1", namedPort(1, "eth0")); err != nil {
		t.Errorf("AddPort after detaching the interface: %v", err)
	}
	if err := m.RemovePort("br0", 1); !errors.Is(err, rstp.ErrPortNotFound) {
		t.Errorf("RemovePort of removed port error = %v, want ErrPortNotFound", err)
	}
}

func TestManagerHandleFrame(t *testing.T) {
	t.Parallel()

	hp := newHostPool()
	m := rstp.NewManager(hp.factory, discardLogger())
	defer m.Close()

	if err := m.AddBridge(bridgeSpec("br0", 1, namedPort(1, "eth0"))); err != nil {
		t.Fatalf("AddBridge: %v", err)
	}

	if err := m.HandleFrame("eth7", nil); !errors.Is(err, rstp.ErrUnknownInterface) {
		t.Errorf("HandleFrame on unknown interface error = %v, want ErrUnknownInterface", err)
	}
	if err := m.LinkChanged("eth7"); !errors.Is(err, rstp.ErrUnknownInterface) {
		t.Errorf("LinkChanged on unknown interface error = %v, want ErrUnknownInterface", err)
	}

	// A superior BPDU from a neighbour makes eth0 the root port.
	root := rstp.NewBridgeID(0x1000, net.HardwareAddr{0x02, 0, 0, 0, 0, 0x99})
	bpdu := rstp.BPDU{
		Version:  rstp.VersionRSTP,
		Type:     rstp.BPDUTypeRST,
		Flags:    rstp.Flags(0).WithRole(rstp.WireRoleDesignated),
		RootID:   root,
		BridgeID: root,
		PortID:   rstp.NewPortID(0x80, 1),
		Times:    rstp.Times{MaxAge: 20, HelloTime: 2, ForwardDelay: 15},
	}
	frame, err := rstp.EncodeFrame(net.HardwareAddr{0x02, 0, 0, 0, 0x01, 0x99}, encodeBPDU(t, bpdu))
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if err := m.HandleFrame("eth0", frame); err != nil {
		t.Fatalf("HandleFrame: %v", err)
	}

	ps, err := m.Port("br0", 1)
	if err != nil {
		t.Fatalf("Port: %v", err)
	}
	if ps.Role != rstp.RoleRoot {
		t.Errorf("eth0 role = %s, want Root", ps.Role)
	}
	st, _ := m.Bridge("br0")
	if st.RootID != root {
		t.Errorf("root = %s, want %s", st.RootID, root)
	}
}

func TestManagerRunTicksOnClock(t *testing.T) {
	t.Parallel()

	hp := newHostPool()
	mock := clock.NewMock()
	m := rstp.NewManager(hp.factory, discardLogger(), rstp.WithManagerClock(mock))
	defer m.Close()

	if err := m.AddBridge(bridgeSpec("br0", 1, namedPort(1, "eth0"))); err != nil {
		t.Fatalf("AddBridge: %v", err)
	}
	h := hp.get("br0")
	h.take()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()

	// Wait for Run to register its ticker before moving the clock.
	deadline := time.Now().Add(2 * time.Second)
	for h.sentCount() == 0 && time.Now().Before(deadline) {
		mock.Add(time.Second)
		time.Sleep(time.Millisecond)
	}

	cancel()
	<-done

	if h.sentCount() == 0 {
		t.Error("no hello BPDU sent while the clock advanced")
	}
}

func TestManagerEvents(t *testing.T) {
	t.Parallel()

	hp := newHostPool()
	m := rstp.NewManager(hp.factory, discardLogger())
	defer m.Close()

	if err := m.AddBridge(bridgeSpec("br0", 1, namedPort(1, "eth0"))); err != nil {
		t.Fatalf("AddBridge: %v", err)
	}

	h := hp.get("br0")
	h.setLink(1, false)
	if err := m.LinkChanged("eth0"); err != nil {
		t.Fatalf("LinkChanged: %v", err)
	}

	var sawLink, sawRole bool
	for {
		select {
		case ev := <-m.Events():
			if ev.Bridge != "br0" {
				t.Errorf("event for bridge %q, want br0", ev.Bridge)
			}
			switch ev.Kind {
			case rstp.EventLinkChange:
				sawLink = ev.From == "up" && ev.To == "down"
			case rstp.EventRoleChange:
				if ev.To == rstp.RoleDisabled.String() {
					sawRole = true
				}
			}
			continue
		default:
		}
		break
	}

	if !sawLink {
		t.Error("no up -> down link event")
	}
	if !sawRole {
		t.Error("no role change to Disabled")
	}
}

func TestManagerUpdate(t *testing.T) {
	t.Parallel()

	hp := newHostPool()
	m := rstp.NewManager(hp.factory, discardLogger())
	defer m.Close()

	if err := m.AddBridge(bridgeSpec("br0", 1, namedPort(1, "eth0"))); err != nil {
		t.Fatalf("AddBridge: %v", err)
	}

	err := m.Update("br0", func(b *rstp.Bridge) error {
		return b.SetBridgePriority(0x1000)
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	st, _ := m.Bridge("br0")
	if st.BridgeID.Priority() != 0x1000 || !st.IsRoot() {
		t.Errorf("bridge id = %s root = %s, want priority 0x1000 and root", st.BridgeID, st.RootID)
	}

	err = m.Update("br0", func(b *rstp.Bridge) error {
		return b.SetBridgePriority(0x1001)
	})
	if !errors.Is(err, rstp.ErrInvalidBridgePriority) {
		t.Errorf("Update with bad priority error = %v, want ErrInvalidBridgePriority", err)
	}
}

// -------------------------------------------------------------------------
// TestManagerReconcile: SIGHUP reload
// -------------------------------------------------------------------------

func TestManagerReconcile(t *testing.T) {
	t.Parallel()

	hp := newHostPool()
	m := rstp.NewManager(hp.factory, discardLogger())
	defer m.Close()

	initial := []rstp.BridgeSpec{
		bridgeSpec("br0", 1, namedPort(1, "eth0"), namedPort(2, "eth1")),
		bridgeSpec("br1", 2, namedPort(1, "eth2")),
	}
	if err := m.Reconcile(initial); err != nil {
		t.Fatalf("Reconcile initial: %v", err)
	}
	if got := len(m.Bridges()); got != 2 {
		t.Fatalf("Bridges() = %d, want 2", got)
	}

	br0 := bridgeSpec("br0", 1, namedPort(2, "eth1"), namedPort(3, "eth3"))
	br0.Bridge.Priority = 0x4000
	br0.Bridge.HelloTime = 1
	br0.Ports[0].AdminEdge = true
	br2 := bridgeSpec("br2", 3, namedPort(1, "eth2"))

	if err := m.Reconcile([]rstp.BridgeSpec{br0, br2}); err != nil {
		t.Fatalf("Reconcile update: %v", err)
	}

	bridges := m.Bridges()
	if len(bridges) != 2 || bridges[0].Name != "br0" || bridges[1].Name != "br2" {
		t.Fatalf("bridges after reconcile = %v, want br0 and br2", bridges)
	}

	st := bridges[0]
	if st.BridgeID.Priority() != 0x4000 {
		t.Errorf("br0 priority = %#04x, want 0x4000", st.BridgeID.Priority())
	}
	if st.BridgeTimes.HelloTime != 1 {
		t.Errorf("br0 hello time = %d, want 1", st.BridgeTimes.HelloTime)
	}
	var numbers []uint16
	for _, ps := range st.Ports {
		numbers = append(numbers, ps.Number)
	}
	if len(numbers) != 2 || numbers[0] != 2 || numbers[1] != 3 {
		t.Errorf("br0 ports = %v, want [2 3]", numbers)
	}
	if ps, _ := m.Port("br0", 2); !ps.AdminEdge {
		t.Error("br0 port 2 admin edge not applied")
	}

	// eth2 moved from the removed br1 to br2.
	if ps, err := m.Port("br2", 1); err != nil || ps.Name != "eth2" {
		t.Errorf("br2 port 1 = %q, %v; want eth2", ps.Name, err)
	}
}

func TestManagerReconcileRecreatesOnAddressChange(t *testing.T) {
	t.Parallel()

	hp := newHostPool()
	m := rstp.NewManager(hp.factory, discardLogger())
	defer m.Close()

	if err := m.Reconcile([]rstp.BridgeSpec{bridgeSpec("br0", 1, namedPort(1, "eth0"))}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	old := hp.get("br0")

	if err := m.Reconcile([]rstp.BridgeSpec{bridgeSpec("br0", 9, namedPort(1, "eth0"))}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if hp.get("br0") == old {
		t.Error("bridge kept its host after an address change")
	}
	st, _ := m.Bridge("br0")
	if got := st.BridgeID.MAC()[5]; got != 9 {
		t.Errorf("bridge MAC last octet = %d, want 9", got)
	}
}

func TestManagerReconcileCollectsErrors(t *testing.T) {
	t.Parallel()

	hp := newHostPool()
	m := rstp.NewManager(hp.factory, discardLogger())
	defer m.Close()

	bad := bridgeSpec("bad", 1)
	bad.Bridge.MaxAge = 99
	good := bridgeSpec("good", 2, namedPort(1, "eth0"))

	err := m.Reconcile([]rstp.BridgeSpec{bad, good})
	if !errors.Is(err, rstp.ErrInvalidTimes) {
		t.Errorf("Reconcile error = %v, want ErrInvalidTimes", err)
	}
	if _, err := m.Bridge("good"); err != nil {
		t.Errorf("valid bridge not created alongside an invalid one: %v", err)
	}
}
