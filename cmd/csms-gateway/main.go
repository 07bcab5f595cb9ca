// Command csms-gateway is the OCPP 1.6-J / 2.0.1 WebSocket gateway: it accepts charging
// station connections, exposes a REST/RPC command surface, and pushes live events to
// connected dashboards.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"csms-gateway/internal/api"
	"csms-gateway/internal/command"
	"csms-gateway/internal/config"
	"csms-gateway/internal/dashboard"
	"csms-gateway/internal/eventbus"
	"csms-gateway/internal/metrics"
	"csms-gateway/internal/registry"
	"csms-gateway/internal/session"
	"csms-gateway/internal/settings"
	"csms-gateway/internal/timeseries"
)

const version = "1.0.0"

const defaultConfigPath = "~/.config/csms-gateway/config.yaml"

func printVersion() {
	fmt.Printf("csms-gateway v%s\n", version)
	fmt.Println("OCPP 1.6-J / 2.0.1 charging station management system gateway")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  csms-gateway [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (built-in defaults are used when omitted)")
	fmt.Println()
	fmt.Println("  -print-default-config")
	fmt.Println("        Print a default YAML config to stdout and exit")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Override logging.level from config (error, warn, info, debug)")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("ENVIRONMENT:")
	fmt.Println("  CSMS_TIMESERIES_URL, CSMS_TIMESERIES_TOKEN, CSMS_SETTINGS_DSN")
	fmt.Println("        Secrets and backend addresses, never read from the config file.")
	fmt.Println()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath         = flag.String("config", "", "Path to YAML config file")
		printDefaultConfig = flag.Bool("print-default-config", false, "Print default YAML config and exit")
		logLevelOverride   = flag.String("log-level", "", "Override logging.level from config")
		showVersion        = flag.Bool("version", false, "Print version and exit")
		showHelp           = flag.Bool("help", false, "Print help message")
	)
	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}
	if *printDefaultConfig {
		b, err := yaml.Marshal(config.DefaultConfig())
		if err != nil {
			fmt.Fprintln(os.Stderr, "error: marshal default config:", err)
			os.Exit(1)
		}
		fmt.Println(string(b))
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if *logLevelOverride != "" {
		cfg.Logging.Level = *logLevelOverride
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error: invalid config:", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	metricsReg := metrics.New()
	bus := eventbus.New(logger)

	settingsRepo, err := settings.OpenSQLiteRepository(cfg.Settings.DataDir)
	if err != nil {
		logger.Warn("settings repository degraded to no-op", "error", err)
	}
	defer settingsRepo.Close()

	reg := registry.New[*session.Session](logger, settingsRepo)
	if err := reg.LoadAliases(context.Background()); err != nil {
		logger.Warn("failed to preload alias cache", "error", err)
	}

	commands := command.NewService(reg, bus, logger)

	hub := dashboard.NewHub(logger, dashboard.Config{
		SendBuf:      cfg.Dashboard.SendBuffer,
		BroadcastBuf: cfg.Dashboard.BroadcastBuffer,
	})
	dashboard.Bridge(bus, hub, logger)

	var tsWriter timeseries.Writer = timeseries.NewLocalWriter(logger)
	if cfg.Timeseries.URL != "" {
		logger.Warn("CSMS_TIMESERIES_URL set but no HTTP-backed writer is wired in this build; falling back to the local writer")
	}
	sink := timeseries.New(tsWriter, logger)
	timeseries.Bridge(bus, sink)

	server := api.New(cfg.HTTP.Mount, reg, commands, bus, settingsRepo, metricsReg, hub, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		sink.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return runHTTPServer(ctx, cfg.HTTP.Addr, server.Routes(), logger)
	})
	g.Go(func() error {
		return metricsDashboardGauge(ctx, metricsReg, hub)
	})

	logger.Info("csms-gateway starting",
		"version", version,
		"addr", cfg.HTTP.Addr,
		"mount", cfg.HTTP.Mount,
		"settings_data_dir", cfg.Settings.DataDir)

	if err := g.Wait(); err != nil {
		logger.Error("csms-gateway exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("csms-gateway stopped")
}

// runHTTPServer starts the HTTP server and shuts it down gracefully when ctx is canceled.
// Grounded on the teacher's runWebhooksServer.
func runHTTPServer(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	logger.Info("http server listening", "addr", addr)

	srv := &http.Server{Addr: addr, Handler: handler}
	errCh := make(chan error, 1)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// metricsDashboardGauge periodically samples the dashboard hub's client count into the
// gauge, since the hub has no natural event to hook a push update onto.
func metricsDashboardGauge(ctx context.Context, m *metrics.Metrics, hub *dashboard.Hub) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.DashboardClients.Set(float64(hub.ClientCount()))
		}
	}
}
