package commands

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/benbjohnson/clock"

	"github.com/dantte-lp/gorstp/internal/rstp"
	"github.com/dantte-lp/gorstp/internal/server"
)

type stubHost struct{}

func (stubHost) TxFrame(uint16, []byte) error { return nil }
func (stubHost) Flush(uint16, rstp.FlushScope) error { return nil }
func (stubHost) PortAddress(uint16) net.HardwareAddr { return net.HardwareAddr{0x02, 0, 0, 0, 1, 1} }
func (stubHost) LinkUp(uint16) bool { return true }
func (stubHost) FullDuplex(uint16) bool { return true }
func (stubHost) Speed(uint16) uint32 { return 1000 }
func (stubHost) SetLearning(uint16, bool) error { return nil }
func (stubHost) SetForwarding(uint16, bool) error { return nil }
func (stubHost) SetHardwareMode(bool) error { return nil }

// newTestClient serves a one-bridge manager (br0, ports 1 and 2) and
// returns a client for it.
func newTestClient(t *testing.T) *apiClient {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	mgr := rstp.NewManager(func(rstp.BridgeConfig) (rstp.Host, error) { return stubHost{}, nil }, logger,
		rstp.WithManagerClock(clock.NewMock()))
	t.Cleanup(mgr.Close)

	err := mgr.AddBridge(rstp.BridgeSpec{
		Bridge: rstp.DefaultBridgeConfig("br0", net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01}),
		Ports: []rstp.PortConfig{
			rstp.DefaultPortConfig(1, "eth0"),
			rstp.DefaultPortConfig(2, "eth1"),
		},
	})
	if err != nil {
		t.Fatalf("AddBridge: %v", err)
	}

	srv := httptest.NewServer(server.New(mgr, logger))
	t.Cleanup(srv.Close)
	return newAPIClient(srv.URL+"/", srv.Client())
}

func TestClientReads(t *testing.T) {
	t.Parallel()

	c := newTestClient(t)
	ctx := context.Background()

	bridges, err := c.bridges(ctx)
	if err != nil {
		t.Fatalf("bridges: %v", err)
	}
	if len(bridges) != 1 || bridges[0].Name != "br0" {
		t.Fatalf("bridges = %+v, want [br0]", bridges)
	}

	b, err := c.bridge(ctx, "br0")
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	if b.BridgeID != "8000.020000000001" || len(b.Ports) != 2 {
		t.Errorf("bridge = %s with %d ports", b.BridgeID, len(b.Ports))
	}

	p, err := c.port(ctx, "br0", 2)
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	if p.Name != "eth1" || p.ID != "80.002" {
		t.Errorf("port = %s %s, want eth1 80.002", p.Name, p.ID)
	}

	info, err := c.version(ctx)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if info.GoVersion == "" {
		t.Error("version has no go_version")
	}
}

func TestClientWrites(t *testing.T) {
	t.Parallel()

	c := newTestClient(t)
	ctx := context.Background()

	prio := uint16(4096)
	b, err := c.patchBridge(ctx, "br0", server.BridgePatch{Priority: &prio})
	if err != nil {
		t.Fatalf("patchBridge: %v", err)
	}
	if b.BridgeID != "1000.020000000001" {
		t.Errorf("bridge id = %s, want 1000.020000000001", b.BridgeID)
	}

	portPrio := uint8(32)
	edge := true
	p, err := c.patchPort(ctx, "br0", 1, server.PortPatch{Priority: &portPrio, AdminEdge: &edge})
	if err != nil {
		t.Fatalf("patchPort: %v", err)
	}
	if p.ID != "20.001" || !p.AdminEdge {
		t.Errorf("port = %s admin_edge=%v, want 20.001 true", p.ID, p.AdminEdge)
	}

	if err := c.mcheck(ctx, "br0", 1); err != nil {
		t.Errorf("mcheck: %v", err)
	}
}

func TestClientErrors(t *testing.T) {
	t.Parallel()

	c := newTestClient(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		call    func() error
		wantMsg string
	}{
		{
			name:    "unknown bridge",
			call:    func() error { _, err := c.bridge(ctx, "br9"); return err },
			wantMsg: "404",
		},
		{
			name:    "unknown port",
			call:    func() error { _, err := c.port(ctx, "br0", 7); return err },
			wantMsg: "404",
		},
		{
			name: "bad priority",
			call: func() error {
				prio := uint16(100)
				_, err := c.patchBridge(ctx, "br0", server.BridgePatch{Priority: &prio})
				return err
			},
			wantMsg: rstp.ErrInvalidBridgePriority.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.call()
			if !errors.Is(err, errAPI) {
				t.Fatalf("err = %v, want errAPI", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("err = %q, want it to mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestReadSSE(t *testing.T) {
	t.Parallel()

	stream := ": keepalive\n" +
		"event: role_change\n" +
		"data: {\"bridge\":\"br0\"}\n" +
		"\n" +
		"event: bridge\n" +
		"data: {\"name\":\n" +
		"data: \"br0\"}\n" +
		"\n" +
		"event: dangling\n"

	type got struct {
		name string
		data string
	}
	var events []got
	err := readSSE(strings.NewReader(stream), func(name string, data []byte) error {
		events = append(events, got{name, string(data)})
		return nil
	})
	if err != nil {
		t.Fatalf("readSSE: %v", err)
	}

	want := []got{
		{"role_change", `{"bridge":"br0"}`},
		{"bridge", "{\"name\":\n\"br0\"}"},
	}
	if len(events) != len(want) {
		t.Fatalf("events = %+v, want %+v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, events[i], want[i])
		}
	}

	stop := errors.New("stop")
	err = readSSE(strings.NewReader(stream), func(string, []byte) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("callback error = %v, want it returned", err)
	}
}
