//go:build linux

// GoRSTP daemon -- Rapid Spanning Tree Protocol (IEEE 802.1D-2004 clause 17).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/trace"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/gorstp/internal/config"
	rstpmetrics "github.com/dantte-lp/gorstp/internal/metrics"
	"github.com/dantte-lp/gorstp/internal/netio"
	"github.com/dantte-lp/gorstp/internal/rstp"
	"github.com/dantte-lp/gorstp/internal/server"
	appversion "github.com/dantte-lp/gorstp/internal/version"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// flightRecorderMinAge is the minimum window age for the flight recorder.
// A few hello times is enough to see how a topology change unfolded.
const flightRecorderMinAge = 5 * time.Second

// flightRecorderMaxBytes is the upper bound on flight recorder window size.
const flightRecorderMaxBytes = 4 * 1024 * 1024 // 4 MiB

func main() {
	os.Exit(run())
}

func run() int {
	// 1. Parse flags.
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	// 2. Load config.
	cfg, err := loadConfig(*configPath)
	if err != nil {
		// Logger is not set up yet; use a temporary stderr logger.
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	// 3. Set up logger with dynamic level support for SIGHUP reload.
	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("gorstp starting",
		slog.String("version", appversion.Version),
		slog.String("api_addr", cfg.API.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.Int("bridges", len(cfg.Bridges)),
	)

	fr := startFlightRecorder(logger)

	// 4. Optional pcap capture of every BPDU sent and received.
	capture, err := openCapture(cfg.Capture, logger)
	if err != nil {
		logger.Error("failed to open capture file",
			slog.String("file", cfg.Capture.File),
			slog.String("error", err.Error()),
		)
		return 1
	}
	defer closeCapture(capture, logger)

	// 5. Prometheus collector and the bridge manager. The receiver and the
	// manager reference each other: frames flow receiver -> manager, and
	// sockets flow host -> receiver as ports attach.
	reg := prometheus.NewRegistry()
	collector := rstpmetrics.NewCollector(reg)

	dp := netio.NewNetlinkDatapath()
	var recv *netio.Receiver
	mgr := rstp.NewManager(
		newHostFactory(dp, func() netio.ConnSink { return recv }, capture, logger),
		logger,
		rstp.WithManagerMetrics(collector),
	)
	recv = netio.NewReceiver(mgr, capture, logger)
	defer mgr.Close()

	// 6. Run everything.
	if err := runDaemon(cfg, mgr, recv, dp, reg, logger, *configPath, logLevel, fr); err != nil {
		logger.Error("gorstp exited with error",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logger.Info("gorstp stopped")
	return 0
}

// runDaemon starts the receiver, the link monitor, the tick loop and the
// HTTP servers under an errgroup with a signal-aware context, then adds the
// configured bridges and blocks until shutdown.
func runDaemon(
	cfg *config.Config,
	mgr *rstp.Manager,
	recv *netio.Receiver,
	dp *netio.NetlinkDatapath,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
	fr *trace.FlightRecorder,
) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	hub := server.NewEventHub(logger)
	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	apiSrv := newAPIServer(cfg.API, mgr, hub, logger)

	g.Go(func() error {
		return recv.Run(gCtx)
	})
	g.Go(func() error {
		mgr.Run(gCtx)
		return nil
	})
	g.Go(func() error {
		hub.Run(gCtx, mgr.Events())
		return nil
	})

	startLinkMonitor(gCtx, g, mgr, logger)
	startHTTPServers(gCtx, g, cfg, apiSrv, metricsSrv, logger)
	startDaemonGoroutines(gCtx, g, configPath, logLevel, mgr, dp, logger)

	// Shutdown goroutine: waits for context cancellation.
	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, fr, apiSrv, metricsSrv)
	})

	// A bridge that fails to start is logged; the rest keep running and a
	// corrected config can be applied with SIGHUP.
	if err := addBridges(cfg, mgr, dp, logger); err != nil {
		logger.Error("failed to start bridges",
			slog.String("error", err.Error()),
		)
	}

	notifyReady(logger)

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run daemon: %w", err)
	}
	return nil
}

// -------------------------------------------------------------------------
// Bridge wiring
// -------------------------------------------------------------------------

// newHostFactory returns the HostFactory that backs each bridge with the
// netlink datapath and one AF_PACKET socket per port. sink is resolved
// lazily because the receiver is built after the manager.
func newHostFactory(
	dp netio.Datapath,
	sink func() netio.ConnSink,
	capture *netio.Capture,
	logger *slog.Logger,
) rstp.HostFactory {
	dial := func(ifName string, ifIndex int) (netio.PacketConn, error) {
		return netio.ListenBPDU(ifName, ifIndex)
	}
	return func(bc rstp.BridgeConfig) (rstp.Host, error) {
		return netio.NewHost(bc.Name, dp, dial, sink(), logger, netio.WithCapture(capture)), nil
	}
}

// addBridges creates every bridge declared in cfg.
func addBridges(cfg *config.Config, mgr *rstp.Manager, dp *netio.NetlinkDatapath, logger *slog.Logger) error {
	specs, err := cfg.BridgeSpecs(dp.HardwareAddr)
	if err != nil {
		return fmt.Errorf("resolve bridges: %w", err)
	}

	var errs []error
	for _, spec := range specs {
		if err := mgr.AddBridge(spec); err != nil {
			errs = append(errs, fmt.Errorf("bridge %s: %w", spec.Bridge.Name, err))
			continue
		}
		logger.Info("bridge started",
			slog.String("bridge", spec.Bridge.Name),
			slog.String("address", spec.Bridge.Address.String()),
			slog.Int("ports", len(spec.Ports)),
		)
	}
	return errors.Join(errs...)
}

// startLinkMonitor subscribes to netlink link updates and forwards them to
// the manager.
func startLinkMonitor(ctx context.Context, g *errgroup.Group, mgr *rstp.Manager, logger *slog.Logger) {
	mon := netio.NewNetlinkMonitor(logger)

	g.Go(func() error {
		if err := mon.Run(ctx); err != nil {
			return fmt.Errorf("link monitor: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		netio.ForwardLinkEvents(ctx, mon.Events(), mgr, logger)
		return nil
	})
}

// openCapture opens the configured pcap file. No file means no capture.
func openCapture(cfg config.CaptureConfig, logger *slog.Logger) (*netio.Capture, error) {
	if cfg.File == "" {
		return nil, nil
	}
	c, err := netio.CreateCapture(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("create capture: %w", err)
	}
	logger.Info("capturing BPDUs", slog.String("file", cfg.File))
	return c, nil
}

func closeCapture(c *netio.Capture, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Warn("failed to close capture file",
			slog.String("error", err.Error()),
		)
	}
}

// startDaemonGoroutines registers the watchdog and SIGHUP reload goroutines.
func startDaemonGoroutines(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	mgr *rstp.Manager,
	dp *netio.NetlinkDatapath,
	logger *slog.Logger,
) {
	g.Go(func() error {
		return runWatchdog(ctx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(ctx, sigHUP, configPath, logLevel, mgr, dp, logger)
		return nil
	})
}

// -------------------------------------------------------------------------
// Systemd Integration: sd_notify + watchdog
// -------------------------------------------------------------------------

// notifyReady sends READY=1 to systemd once every configured bridge runs.
func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

// notifyStopping sends STOPPING=1 to systemd.
func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends periodic watchdog keepalives to systemd at half the
// WatchdogSec interval. If watchdog is not configured, it returns at once.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive",
					slog.String("error", wdErr.Error()),
				)
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP Reload: log level + bridge reconciliation
// -------------------------------------------------------------------------

// handleSIGHUP reloads the configuration on every SIGHUP until ctx is
// cancelled.
func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	mgr *rstp.Manager,
	dp *netio.NetlinkDatapath,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, mgr, dp, logger)
		}
	}
}

// reloadConfig loads a fresh configuration, updates the log level and
// reconciles the bridge set. A configuration that fails to load or resolve
// leaves the running bridges untouched.
func reloadConfig(
	configPath string,
	logLevel *slog.LevelVar,
	mgr *rstp.Manager,
	dp *netio.NetlinkDatapath,
	logger *slog.Logger,
) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings",
			slog.String("error", err.Error()),
		)
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)

	specs, err := newCfg.BridgeSpecs(dp.HardwareAddr)
	if err != nil {
		logger.Error("failed to resolve bridges, keeping current bridges",
			slog.String("error", err.Error()),
		)
		return
	}

	if err := mgr.Reconcile(specs); err != nil {
		logger.Error("bridge reconciliation had errors",
			slog.String("error", err.Error()),
		)
	}
	logger.Info("bridge reconciliation complete", slog.Int("bridges", len(specs)))
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

// gracefulShutdown signals systemd, stops the flight recorder and shuts
// down the HTTP servers. Bridges are closed by the deferred mgr.Close in
// run once every goroutine has returned.
//
// The parent context is already cancelled when this function is called.
func gracefulShutdown(
	ctx context.Context,
	logger *slog.Logger,
	fr *trace.FlightRecorder,
	servers ...*http.Server,
) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	if fr != nil {
		fr.Stop()
		logger.Debug("flight recorder stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Flight Recorder: runtime/trace
// -------------------------------------------------------------------------

// startFlightRecorder keeps a rolling execution trace window for
// post-mortem debugging of topology flaps.
func startFlightRecorder(logger *slog.Logger) *trace.FlightRecorder {
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   flightRecorderMinAge,
		MaxBytes: flightRecorderMaxBytes,
	})

	if err := fr.Start(); err != nil {
		logger.Warn("failed to start flight recorder",
			slog.String("error", err.Error()),
		)
		return nil
	}

	logger.Info("flight recorder started",
		slog.Duration("min_age", flightRecorderMinAge),
		slog.Uint64("max_bytes", flightRecorderMaxBytes),
	)

	return fr
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

// startHTTPServers registers the API and metrics HTTP server goroutines.
func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	apiSrv *http.Server,
	metricsSrv *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("api server listening", slog.String("addr", cfg.API.Addr))
		return listenAndServe(ctx, &lc, apiSrv, cfg.API.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

// listenAndServe creates a TCP listener using the ListenConfig and serves
// HTTP requests until the server is shut down.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// newMetricsServer creates an HTTP server for the Prometheus metrics endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newAPIServer creates the HTTP server for the management API. No
// WriteTimeout is set: event streams stay open for as long as the client
// listens.
func newAPIServer(cfg config.APIConfig, mgr *rstp.Manager, hub *server.EventHub, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr: cfg.Addr,
		Handler: server.New(mgr, logger,
			server.WithEventHub(hub),
			server.WithCORSOrigins(cfg.CORSOrigins),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// loadConfig loads configuration from a file path or returns defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

// newLoggerWithLevel creates a structured logger using a shared LevelVar
// for dynamic log level changes via SIGHUP reload.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
