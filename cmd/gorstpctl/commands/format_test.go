package commands

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dantte-lp/gorstp/internal/server"
)

func sampleBridge() server.Bridge {
	return server.Bridge{
		Name:         "br0",
		BridgeID:     "8000.020000000002",
		RootID:       "1000.020000000001",
		RootPathCost: 20000,
		RootPort:     "eth0",
		RootTimes:    server.Times{MessageAge: 1, MaxAge: 20, HelloTime: 2, ForwardDelay: 15},
		ForceVersion: "rstp",
		Ports: []server.Port{
			{Name: "eth0", Number: 1, ID: "80.001", Role: "root", State: "forwarding", OperPointToPoint: true},
			{Name: "eth1", Number: 2, ID: "80.002", Role: "designated", State: "forwarding", OperEdge: true},
		},
	}
}

func TestFormatBridgesTable(t *testing.T) {
	t.Parallel()

	out, err := formatBridges([]server.Bridge{sampleBridge()}, formatTable)
	if err != nil {
		t.Fatalf("formatBridges: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want header and one row:\n%s", len(lines), out)
	}
	for _, want := range []string{"NAME", "BRIDGE-ID", "ROOT-PORT"} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("header %q lacks %q", lines[0], want)
		}
	}
	for _, want := range []string{"br0", "8000.020000000002", "1000.020000000001", "20000", "eth0"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("row %q lacks %q", lines[1], want)
		}
	}
}

func TestFormatBridgeDetail(t *testing.T) {
	t.Parallel()

	b := sampleBridge()
	b.IsRoot = true
	b.RootPort = ""

	out, err := formatBridge(b, formatTable)
	if err != nil {
		t.Fatalf("formatBridge: %v", err)
	}
	for _, want := range []string{
		"(this bridge)",
		"age=1 max=20 hello=2 fwd=15",
		"DESIGNATED-BRIDGE",
		"designated",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestFormatStructured(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format string
		want   string
	}{
		{format: formatJSON, want: `"bridge_id": "8000.020000000002"`},
		{format: formatYAML, want: "root_port: eth0"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			t.Parallel()

			out, err := formatBridge(sampleBridge(), tt.format)
			if err != nil {
				t.Fatalf("formatBridge: %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output lacks %q:\n%s", tt.want, out)
			}
		})
	}

	if _, err := formatPort(server.Port{}, "xml"); !errors.Is(err, errUnsupportedFormat) {
		t.Errorf("xml err = %v, want errUnsupportedFormat", err)
	}
}

func TestFormatPortDetail(t *testing.T) {
	t.Parallel()

	p := server.Port{
		Name:     "eth0",
		Number:   1,
		ID:       "80.001",
		Role:     "alternate",
		State:    "discarding",
		SendRSTP: false,
		Flags:    map[string]bool{"synced": true, "agreed": true, "proposing": false},
		Stats:    server.Stats{RxConfig: 3, TxTCN: 1},
	}

	out, err := formatPort(p, formatTable)
	if err != nil {
		t.Fatalf("formatPort: %v", err)
	}
	for _, want := range []string{"1 (eth0)", "alternate", "STP", "agreed,synced", "config=3", "tcn=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestRenderStreamEvent(t *testing.T) {
	t.Parallel()

	ev := `{"bridge":"br0","port":"eth1","number":2,"kind":"role_change",` +
		`"from":"disabled","to":"designated","time":"2026-01-02T03:04:05Z"}`

	out, err := renderStreamEvent("role_change", []byte(ev), formatTable)
	if err != nil {
		t.Fatalf("renderStreamEvent: %v", err)
	}
	want := "[" + time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Format(time.RFC3339) +
		"] role_change  bridge=br0  port=eth1(2)  disabled -> designated\n"
	if out != want {
		t.Errorf("event line = %q, want %q", out, want)
	}

	out, err = renderStreamEvent(snapshotEvent, []byte(`{"name":"br0","bridge_id":"x"}`), formatTable)
	if err != nil {
		t.Fatalf("renderStreamEvent snapshot: %v", err)
	}
	if !strings.Contains(out, "NAME") || !strings.Contains(out, "br0") {
		t.Errorf("snapshot = %q, want a bridge table", out)
	}

	if _, err := renderStreamEvent("role_change", []byte("{"), formatTable); err == nil {
		t.Error("malformed payload accepted")
	}
}
