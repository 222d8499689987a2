// Package config manages gorstp daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dantte-lp/gorstp/internal/rstp"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete gorstp configuration.
type Config struct {
	API     APIConfig      `koanf:"api"`
	Metrics MetricsConfig  `koanf:"metrics"`
	Log     LogConfig      `koanf:"log"`
	Capture CaptureConfig  `koanf:"capture"`
	Bridges []BridgeConfig `koanf:"bridges"`
}

// APIConfig holds the management HTTP API configuration.
type APIConfig struct {
	// Addr is the HTTP listen address (e.g., ":8470").
	Addr string `koanf:"addr"`

	// CORSOrigins lists origins allowed to call the API from a browser.
	CORSOrigins []string `koanf:"cors_origins"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9470").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// CaptureConfig enables a pcap file of every received and sent BPDU.
type CaptureConfig struct {
	// File is the pcap output path. Empty disables capture.
	File string `koanf:"file"`
}

// BridgeConfig describes one spanning tree bridge and its ports.
// Zero timer fields inherit the 802.1D-2004 Table 17-1 defaults.
type BridgeConfig struct {
	Name string `koanf:"name"`

	// MAC overrides the bridge address. When empty the address of the
	// first port interface is used.
	MAC string `koanf:"mac"`

	// Priority must be a multiple of 4096. Nil means 32768; zero is a
	// valid priority.
	Priority *uint16 `koanf:"priority"`

	// ForceVersion is "stp" or "rstp".
	ForceVersion string `koanf:"force_version"`

	MaxAge       uint16 `koanf:"max_age"`
	HelloTime    uint16 `koanf:"hello_time"`
	ForwardDelay uint16 `koanf:"forward_delay"`
	TxHoldCount  uint16 `koanf:"tx_hold_count"`

	// FlushStrategy is "this_port" or "other_ports".
	FlushStrategy string `koanf:"flush_strategy"`

	Ports []PortConfig `koanf:"ports"`
}

// PortConfig describes one bridge port.
type PortConfig struct {
	// Interface is the host network interface.
	Interface string `koanf:"interface"`

	// Number is the 12-bit port number (1..4095).
	Number uint16 `koanf:"number"`

	// Priority must be a multiple of 16. Nil means 128.
	Priority *uint8 `koanf:"priority"`

	AdminEdge bool `koanf:"admin_edge"`

	// AutoEdge enables edge detection. Nil means true.
	AutoEdge *bool `koanf:"auto_edge"`

	// PointToPoint is "auto", "true" or "false".
	PointToPoint string `koanf:"point_to_point"`

	NonStp bool `koanf:"non_stp"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults. No
// bridges are configured by default.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Addr: ":8470",
		},
		Metrics: MetricsConfig{
			Addr: ":9470",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for gorstp configuration.
// Variables are named GORSTP_<section>_<key>, e.g., GORSTP_API_ADDR.
const envPrefix = "GORSTP_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GORSTP_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	GORSTP_API_ADDR      -> api.addr
//	GORSTP_METRICS_ADDR  -> metrics.addr
//	GORSTP_METRICS_PATH  -> metrics.path
//	GORSTP_LOG_LEVEL     -> log.level
//	GORSTP_LOG_FORMAT    -> log.format
//	GORSTP_CAPTURE_FILE  -> capture.file
//
// Bridges can only be declared in the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms GORSTP_API_ADDR -> api.addr.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults sets the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"api.addr":     defaults.API.Addr,
		"metrics.addr": defaults.Metrics.Addr,
		"metrics.path": defaults.Metrics.Path,
		"log.level":    defaults.Log.Level,
		"log.format":   defaults.Log.Format,
		"capture.file": defaults.Capture.File,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyAPIAddr indicates the management API listen address is empty.
	ErrEmptyAPIAddr = errors.New("api.addr must not be empty")

	// ErrInvalidLogFormat indicates an unknown log format.
	ErrInvalidLogFormat = errors.New("log.format must be json or text")

	// ErrEmptyBridgeName indicates a bridge without a name.
	ErrEmptyBridgeName = errors.New("bridge name must not be empty")

	// ErrDuplicateBridge indicates two bridges share a name.
	ErrDuplicateBridge = errors.New("duplicate bridge name")

	// ErrInvalidMAC indicates a bridge mac that is not a 6-octet address.
	ErrInvalidMAC = errors.New("bridge mac must be a 6-octet MAC address")

	// ErrNoPorts indicates a bridge without ports.
	ErrNoPorts = errors.New("bridge must have at least one port")

	// ErrEmptyInterface indicates a port without an interface.
	ErrEmptyInterface = errors.New("port interface must not be empty")

	// ErrDuplicatePortNumber indicates two ports of a bridge share a number.
	ErrDuplicatePortNumber = errors.New("duplicate port number")

	// ErrDuplicateInterface indicates an interface listed more than once,
	// in the same or in different bridges.
	ErrDuplicateInterface = errors.New("interface used by more than one port")
)

// ValidLogFormats lists the recognized log format strings.
var ValidLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.API.Addr == "" {
		return ErrEmptyAPIAddr
	}

	if !ValidLogFormats[strings.ToLower(cfg.Log.Format)] {
		return fmt.Errorf("log.format %q: %w", cfg.Log.Format, ErrInvalidLogFormat)
	}

	return validateBridges(cfg.Bridges)
}

// validateBridges checks names, port numbers and interface ownership, then
// the protocol parameters of every bridge through the engine's own checks.
func validateBridges(bridges []BridgeConfig) error {
	names := make(map[string]struct{}, len(bridges))
	ifaces := make(map[string]string)

	for i, bc := range bridges {
		if bc.Name == "" {
			return fmt.Errorf("bridges[%d]: %w", i, ErrEmptyBridgeName)
		}
		if _, dup := names[bc.Name]; dup {
			return fmt.Errorf("bridges[%d] %q: %w", i, bc.Name, ErrDuplicateBridge)
		}
		names[bc.Name] = struct{}{}

		if len(bc.Ports) == 0 {
			return fmt.Errorf("bridge %q: %w", bc.Name, ErrNoPorts)
		}

		numbers := make(map[uint16]struct{}, len(bc.Ports))
		for j, pc := range bc.Ports {
			if pc.Interface == "" {
				return fmt.Errorf("bridge %q ports[%d]: %w", bc.Name, j, ErrEmptyInterface)
			}
			if owner, dup := ifaces[pc.Interface]; dup {
				return fmt.Errorf("bridge %q interface %s (also in %q): %w",
					bc.Name, pc.Interface, owner, ErrDuplicateInterface)
			}
			ifaces[pc.Interface] = bc.Name

			if _, dup := numbers[pc.Number]; dup {
				return fmt.Errorf("bridge %q port %d: %w", bc.Name, pc.Number, ErrDuplicatePortNumber)
			}
			numbers[pc.Number] = struct{}{}
		}

		// A placeholder address lets the engine check everything else
		// before interfaces are resolved.
		placeholder := net.HardwareAddr{0x02, 0, 0, 0, 0, 0}
		if _, err := bc.spec(placeholder); err != nil {
			return err
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Conversion
// -------------------------------------------------------------------------

// AddrLookup returns the MAC address of a network interface.
type AddrLookup func(ifName string) (net.HardwareAddr, error)

// BridgeSpecs converts the configured bridges into engine specs. Bridges
// without an explicit mac take the address of their first port's
// interface, resolved through lookup.
func (c *Config) BridgeSpecs(lookup AddrLookup) ([]rstp.BridgeSpec, error) {
	specs := make([]rstp.BridgeSpec, 0, len(c.Bridges))

	for _, bc := range c.Bridges {
		var addr net.HardwareAddr
		if bc.MAC == "" && len(bc.Ports) > 0 {
			a, err := lookup(bc.Ports[0].Interface)
			if err != nil {
				return nil, fmt.Errorf("bridge %q address from %s: %w", bc.Name, bc.Ports[0].Interface, err)
			}
			addr = a
		}

		spec, err := bc.spec(addr)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}

	return specs, nil
}

// spec builds the rstp.BridgeSpec, using fallback when no mac is configured,
// and validates it.
func (bc BridgeConfig) spec(fallback net.HardwareAddr) (rstp.BridgeSpec, error) {
	addr := fallback
	if bc.MAC != "" {
		mac, err := net.ParseMAC(bc.MAC)
		if err != nil || len(mac) != 6 {
			return rstp.BridgeSpec{}, fmt.Errorf("bridge %q mac %q: %w", bc.Name, bc.MAC, ErrInvalidMAC)
		}
		addr = mac
	}

	b := rstp.DefaultBridgeConfig(bc.Name, addr)
	if bc.Priority != nil {
		b.Priority = *bc.Priority
	}
	if bc.MaxAge != 0 {
		b.MaxAge = bc.MaxAge
	}
	if bc.HelloTime != 0 {
		b.HelloTime = bc.HelloTime
	}
	if bc.ForwardDelay != 0 {
		b.ForwardDelay = bc.ForwardDelay
	}
	if bc.TxHoldCount != 0 {
		b.TxHoldCount = bc.TxHoldCount
	}

	var err error
	if b.ForceVersion, err = rstp.ParseForceVersion(strings.ToLower(bc.ForceVersion)); err != nil {
		return rstp.BridgeSpec{}, fmt.Errorf("bridge %q: %w", bc.Name, err)
	}
	if b.FlushScope, err = rstp.ParseFlushScope(strings.ToLower(bc.FlushStrategy)); err != nil {
		return rstp.BridgeSpec{}, fmt.Errorf("bridge %q: %w", bc.Name, err)
	}
	if err := b.Validate(); err != nil {
		return rstp.BridgeSpec{}, err
	}

	spec := rstp.BridgeSpec{Bridge: b, Ports: make([]rstp.PortConfig, 0, len(bc.Ports))}
	for _, pc := range bc.Ports {
		p, err := pc.port()
		if err != nil {
			return rstp.BridgeSpec{}, fmt.Errorf("bridge %q: %w", bc.Name, err)
		}
		spec.Ports = append(spec.Ports, p)
	}

	return spec, nil
}

func (pc PortConfig) port() (rstp.PortConfig, error) {
	p := rstp.DefaultPortConfig(pc.Number, pc.Interface)
	if pc.Priority != nil {
		p.Priority = *pc.Priority
	}
	if pc.AutoEdge != nil {
		p.AutoEdge = *pc.AutoEdge
	}
	p.AdminEdge = pc.AdminEdge
	p.NonStp = pc.NonStp

	var err error
	if p.PointToPoint, err = rstp.ParsePointToPoint(normalizeBool(pc.PointToPoint)); err != nil {
		return rstp.PortConfig{}, fmt.Errorf("port %s: %w", pc.Interface, err)
	}
	if err := p.Validate(); err != nil {
		return rstp.PortConfig{}, fmt.Errorf("port %s: %w", pc.Interface, err)
	}

	return p, nil
}

// normalizeBool undoes the weak decoding of unquoted YAML booleans into
// "1"/"0" strings.
func normalizeBool(s string) string {
	switch s = strings.ToLower(s); s {
	case "1":
		return "true"
	case "0":
		return "false"
	default:
		return s
	}
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
