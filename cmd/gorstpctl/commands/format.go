// Package commands implements the gorstpctl CLI commands.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dantte-lp/gorstp/internal/server"
)

const (
	formatJSON  = "json"
	formatTable = "table"
	formatYAML  = "yaml"
	valueNone   = "-"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatBridges renders the bridge list in the requested format.
func formatBridges(bridges []server.Bridge, format string) (string, error) {
	if format == formatTable {
		return formatBridgesTable(bridges)
	}
	return marshalOutput(bridges, format)
}

// formatBridge renders one bridge and its ports.
func formatBridge(b server.Bridge, format string) (string, error) {
	if format == formatTable {
		return formatBridgeDetail(b)
	}
	return marshalOutput(b, format)
}

// formatPort renders one port.
func formatPort(p server.Port, format string) (string, error) {
	if format == formatTable {
		return formatPortDetail(p)
	}
	return marshalOutput(p, format)
}

// formatEvent renders one streamed event.
func formatEvent(ev server.Event, format string) (string, error) {
	if format == formatTable {
		return formatEventLine(ev), nil
	}
	return marshalOutput(ev, format)
}

// marshalOutput handles the structured formats shared by every command.
func marshalOutput(v any, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal to JSON: %w", err)
		}
		return string(data) + "\n", nil
	case formatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshal to YAML: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// --- Table formatters ---

func formatBridgesTable(bridges []server.Bridge) (string, error) {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tBRIDGE-ID\tROOT-ID\tCOST\tROOT-PORT\tPORTS\tTC")

	for _, b := range bridges {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d\t%d\n",
			b.Name,
			b.BridgeID,
			rootLabel(b),
			b.RootPathCost,
			orNone(b.RootPort),
			len(b.Ports),
			b.TopologyChanges,
		)
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}
	return buf.String(), nil
}

func formatBridgeDetail(b server.Bridge) (string, error) {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Bridge:\t%s\n", b.Name)
	fmt.Fprintf(w, "Bridge ID:\t%s\n", b.BridgeID)
	fmt.Fprintf(w, "Root ID:\t%s\n", rootLabel(b))
	fmt.Fprintf(w, "Root Path Cost:\t%d\n", b.RootPathCost)
	fmt.Fprintf(w, "Root Port:\t%s\n", orNone(b.RootPort))
	fmt.Fprintf(w, "Root Times:\t%s\n", timesLabel(b.RootTimes))
	fmt.Fprintf(w, "Bridge Times:\t%s\n", timesLabel(b.BridgeTimes))
	fmt.Fprintf(w, "Force Version:\t%s\n", b.ForceVersion)
	fmt.Fprintf(w, "Tx Hold Count:\t%d\n", b.TxHoldCount)
	fmt.Fprintf(w, "Flush Strategy:\t%s\n", b.FlushStrategy)
	fmt.Fprintf(w, "Uptime:\t%s\n", time.Duration(b.UptimeSeconds)*time.Second)
	fmt.Fprintf(w, "Topology Changes:\t%d\n", b.TopologyChanges)
	if b.LastTopologyChange != nil {
		fmt.Fprintf(w, "Last Topology Change:\t%s\n", b.LastTopologyChange.Format(time.RFC3339))
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}

	if len(b.Ports) == 0 {
		return buf.String(), nil
	}

	buf.WriteString("\n")
	w = tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PORT\tNAME\tID\tROLE\tSTATE\tEDGE\tP2P\tDESIGNATED-BRIDGE\tCOST")
	for _, p := range b.Ports {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			p.Number,
			p.Name,
			p.ID,
			p.Role,
			p.State,
			yesNo(p.OperEdge),
			yesNo(p.OperPointToPoint),
			p.DesignatedBridge,
			p.DesignatedCost,
		)
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}
	return buf.String(), nil
}

func formatPortDetail(p server.Port) (string, error) {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Port:\t%d (%s)\n", p.Number, p.Name)
	fmt.Fprintf(w, "Port ID:\t%s\n", p.ID)
	fmt.Fprintf(w, "Role:\t%s\n", p.Role)
	fmt.Fprintf(w, "State:\t%s\n", p.State)
	fmt.Fprintf(w, "Info:\t%s\n", p.InfoIs)
	fmt.Fprintf(w, "Enabled:\t%s\n", yesNo(p.Enabled))
	fmt.Fprintf(w, "Edge:\tadmin=%s auto=%s oper=%s\n", yesNo(p.AdminEdge), yesNo(p.AutoEdge), yesNo(p.OperEdge))
	fmt.Fprintf(w, "Point-to-Point:\t%s (oper=%s)\n", p.PointToPoint, yesNo(p.OperPointToPoint))
	fmt.Fprintf(w, "Non-STP:\t%s\n", yesNo(p.NonStp))
	fmt.Fprintf(w, "Protocol:\t%s\n", protocolLabel(p.SendRSTP))
	fmt.Fprintf(w, "Speed:\t%d Mb/s\n", p.Speed)
	fmt.Fprintf(w, "Designated Root:\t%s\n", p.DesignatedRoot)
	fmt.Fprintf(w, "Designated Cost:\t%d\n", p.DesignatedCost)
	fmt.Fprintf(w, "Designated Bridge:\t%s\n", p.DesignatedBridge)
	fmt.Fprintf(w, "Designated Port:\t%s\n", p.DesignatedPort)
	fmt.Fprintf(w, "Flags:\t%s\n", flagsLabel(p.Flags))
	fmt.Fprintf(w, "Timers:\tfdWhile=%d rrWhile=%d rbWhile=%d tcWhile=%d helloWhen=%d rcvdInfoWhile=%d txCount=%d\n",
		p.Timers.FdWhile, p.Timers.RrWhile, p.Timers.RbWhile, p.Timers.TcWhile,
		p.Timers.HelloWhen, p.Timers.RcvdInfoWhile, p.Timers.TxCount)
	fmt.Fprintf(w, "BPDUs Received:\tconfig=%d rst=%d tcn=%d dropped=%d\n",
		p.Stats.RxConfig, p.Stats.RxRST, p.Stats.RxTCN, p.Stats.RxDropped)
	fmt.Fprintf(w, "BPDUs Sent:\tconfig=%d rst=%d tcn=%d\n",
		p.Stats.TxConfig, p.Stats.TxRST, p.Stats.TxTCN)

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}
	return buf.String(), nil
}

func formatEventLine(ev server.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s  bridge=%s", ev.Time.Format(time.RFC3339), ev.Kind, ev.Bridge)
	if ev.Port != "" {
		fmt.Fprintf(&b, "  port=%s(%d)", ev.Port, ev.Number)
	}
	if ev.From != "" || ev.To != "" {
		fmt.Fprintf(&b, "  %s -> %s", orNone(ev.From), orNone(ev.To))
	}
	return b.String()
}

// --- Small helpers ---

func rootLabel(b server.Bridge) string {
	if b.IsRoot {
		return b.RootID + " (this bridge)"
	}
	return b.RootID
}

func timesLabel(t server.Times) string {
	return fmt.Sprintf("age=%d max=%d hello=%d fwd=%d", t.MessageAge, t.MaxAge, t.HelloTime, t.ForwardDelay)
}

// flagsLabel lists the set flags in name order.
func flagsLabel(flags map[string]bool) string {
	set := make([]string, 0, len(flags))
	for name, on := range flags {
		if on {
			set = append(set, name)
		}
	}
	if len(set) == 0 {
		return valueNone
	}
	sort.Strings(set)
	return strings.Join(set, ",")
}

func protocolLabel(rstp bool) string {
	if rstp {
		return "RSTP"
	}
	return "STP"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orNone(s string) string {
	if s == "" {
		return valueNone
	}
	return s
}
