package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/admission/internal/adapter/inbound/admin"
	"github.com/Sentinel-Gate/admission/internal/adapter/inbound/http"
	"github.com/Sentinel-Gate/admission/internal/adapter/outbound/cel"
	"github.com/Sentinel-Gate/admission/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/admission/internal/adapter/outbound/telemetry"
	"github.com/Sentinel-Gate/admission/internal/config"
	"github.com/Sentinel-Gate/admission/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/admission/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gate",
	Long: `Start the admission gate HTTP server.

Admitted requests are forwarded to upstream.url when it is configured.
Proxies can also ask for decisions at /v1/admission/check.

Examples:
  # Start with config file settings
  admission-gate start

  # Start in development mode (debug logs, spans on stderr)
  admission-gate start --dev

  # Start with a specific config file
  admission-gate --config /path/to/config.yaml start`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, tracing, strict invariants)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load configuration without validation so CLI flags can override first.
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logger := newLogger(os.Stderr, cfg)
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("admission-gate stopped")
	return nil
}

// newLogger builds the process logger. DevMode always forces debug.
func newLogger(w io.Writer, cfg *config.AdmissionConfig) *slog.Logger {
	level := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// gateApp holds the wired components of a running gate.
type gateApp struct {
	server   *http.Server
	reaper   *service.Reaper
	store    *memory.MemoryRateLimitStore
	registry *ratelimit.PresetRegistry
	shutdown telemetry.ShutdownFunc
}

// buildApp wires every component from cfg. It starts nothing. Every
// time-dependent component reads the same clock.
func buildApp(cfg *config.AdmissionConfig, logger *slog.Logger, traceOut io.Writer, clock ratelimit.Clock) (*gateApp, error) {
	startTime := clock.Now().UTC()

	tp, shutdownTracing, err := telemetry.NewTracerProvider(cfg.Tracing.Enabled, traceOut, Version)
	if err != nil {
		return nil, err
	}

	registry, err := cfg.PresetRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to build presets: %w", err)
	}

	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create condition evaluator: %w", err)
	}
	routes, err := ratelimit.NewRouteTable(cfg.RouteDefinitions(), cfg.RateLimit.DefaultPreset, registry, evaluator)
	if err != nil {
		return nil, fmt.Errorf("failed to build route table: %w", err)
	}

	store := memory.NewRateLimitStoreWithShards(cfg.RateLimit.Shards)
	stats := service.NewStatsService()
	promRegistry := http.NewRegistry()
	metrics := http.NewMetrics(promRegistry)
	observer := service.MultiObserver{stats, metrics}

	checker := service.NewAdmissionService(store,
		service.WithClock(clock),
		service.WithLogger(logger),
		service.WithTracer(tp.Tracer(telemetry.ServiceName)),
		service.WithObserver(observer),
		service.WithStrictInvariants(cfg.DevMode),
	)

	gate := http.NewGate(checker, registry,
		http.WithRouteTable(routes),
		http.WithGateClock(clock),
		http.WithUnidentifiedPolicy(http.UnidentifiedPolicy(cfg.RateLimit.Unidentified)),
		http.WithGateEnabled(cfg.RateLimit.Enabled),
	)

	reaper := service.NewReaper(store,
		service.WithSweepInterval(cfg.CleanupInterval()),
		service.WithReaperClock(clock),
		service.WithReaperLogger(logger),
		service.WithReaperObserver(observer),
	)

	adminAPI := admin.NewAdminAPIHandler(
		admin.WithRegistry(registry),
		admin.WithStore(store),
		admin.WithReaper(reaper),
		admin.WithStatsService(stats),
		admin.WithRouteTable(routes),
		admin.WithClock(clock),
		admin.WithRateLimit(gate.PresetMiddleware(ratelimit.PresetAdmin)),
		admin.WithAPILogger(logger),
		admin.WithBuildInfo(&admin.BuildInfo{Version: Version, Commit: Commit, BuildDate: BuildDate}),
		admin.WithStartTime(startTime),
	)

	opts := []http.Option{
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithLogger(logger),
		http.WithAdminHandler(adminAPI.Routes()),
		http.WithHealthChecker(http.NewHealthChecker(store, reaper, Version)),
		http.WithMetrics(promRegistry, metrics),
		http.WithShutdownTimeout(cfg.ShutdownTimeout()),
	}
	if cfg.HasUpstream() {
		fwd, err := http.NewUpstreamForwarder(cfg.Upstream.URL, cfg.UpstreamTimeout(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to configure upstream: %w", err)
		}
		opts = append(opts, http.WithUpstream(fwd))
	}

	logger.Debug("admission gate wired",
		"presets", len(registry.Presets()),
		"routes", routes.Len(),
		"default_preset", routes.DefaultPreset(),
		"unidentified", cfg.RateLimit.Unidentified,
		"shards", store.ShardCount(),
		"rate_limit_enabled", cfg.RateLimit.Enabled,
	)

	return &gateApp{
		server:   http.NewServer(gate, opts...),
		reaper:   reaper,
		store:    store,
		registry: registry,
		shutdown: shutdownTracing,
	}, nil
}

// run wires the gate, starts the reaper and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.AdmissionConfig, logger *slog.Logger) error {
	app, err := buildApp(cfg, logger, os.Stderr, ratelimit.SystemClock{})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.shutdown(flushCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	if !cfg.RateLimit.Enabled {
		logger.Warn("rate limiting is disabled, every request will be admitted")
	}

	app.reaper.Start(ctx)
	defer app.reaper.Stop()

	printBanner(os.Stderr, Version, cfg)

	if err := app.server.Start(ctx); err != nil {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// printBanner prints a startup banner with the version, addresses and mode.
func printBanner(w io.Writer, version string, cfg *config.AdmissionConfig) {
	const (
		reset  = "\033[0m"
		bold   = "\033[1m"
		cyan   = "\033[36m"
		green  = "\033[32m"
		yellow = "\033[33m"
		dim    = "\033[2m"
	)

	base := "http://" + cfg.Server.HTTPAddr
	if strings.HasPrefix(cfg.Server.HTTPAddr, ":") {
		base = "http://localhost" + cfg.Server.HTTPAddr
	}

	modeStr := green + "production" + reset
	if cfg.DevMode {
		modeStr = yellow + "development" + reset
	}
	upstream := dim + "none (admitted requests get 404)" + reset
	if cfg.HasUpstream() {
		upstream = cfg.Upstream.URL
	}

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  %s%s Admission Gate %s%s\n", bold, cyan, version, reset)
	fmt.Fprintf(w, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(w, "  %-14s %s\n", "Check:", base+http.CheckPath)
	fmt.Fprintf(w, "  %-14s %s\n", "Admin API:", base+"/admin/api/ratelimit/stats")
	fmt.Fprintf(w, "  %-14s %s\n", "Upstream:", upstream)
	fmt.Fprintf(w, "  %-14s %s\n", "Mode:", modeStr)
	fmt.Fprintf(w, "  %-14s %d routes, default %s\n", "Routes:", len(cfg.Routes), cfg.RateLimit.DefaultPreset)
	fmt.Fprintf(w, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(w, "\n")
}
