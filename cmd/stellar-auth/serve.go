package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/stellar-auth/auth"
	"github.com/signalsfoundry/stellar-auth/ephemeris"
	"github.com/signalsfoundry/stellar-auth/internal/command"
	"github.com/signalsfoundry/stellar-auth/internal/cycle"
	"github.com/signalsfoundry/stellar-auth/internal/events"
	"github.com/signalsfoundry/stellar-auth/internal/logging"
	"github.com/signalsfoundry/stellar-auth/internal/observability"
	"github.com/signalsfoundry/stellar-auth/internal/params"
	"github.com/signalsfoundry/stellar-auth/internal/sensors"
	"github.com/signalsfoundry/stellar-auth/internal/watchdog"
	"github.com/signalsfoundry/stellar-auth/timectrl"
)

const (
	grpcAddrKey        = "grpc-addr"
	metricsAddrKey     = "metrics-addr"
	tickKey            = "tick"
	modeKey            = "mode"
	durationKey        = "duration"
	paramsKey          = "params"
	tleKey             = "tle"
	watchdogTimeoutKey = "watchdog-timeout"
	bypassKeyKey       = "bypass-key"
)

type serveConfig struct {
	GRPCAddr        string
	MetricsAddr     string
	Tick            time.Duration
	Mode            timectrl.Mode
	Duration        time.Duration
	ParamsPath      string
	TLEPath         string
	WatchdogTimeout time.Duration
	Auth            auth.Config
	Window          ephemeris.WindowOptions
}

func newServeCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the authentication tick loop and command service",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := parseServeFlags(c.Flags())
			if err != nil {
				return err
			}
			return runServe(c.Context(), cfg, logging.NewFromEnv())
		},
	}
	flags := c.Flags()
	flags.String(grpcAddrKey, ":50051", "TCP address the command gRPC server listens on")
	flags.String(metricsAddrKey, ":9090", "HTTP address for /metrics and /healthz")
	flags.Duration(tickKey, time.Second, "Scheduling cycle period")
	flags.String(modeKey, "realtime", "Tick mode: realtime or accelerated")
	flags.Duration(durationKey, 0, "Stop after this much on-board time (0 runs until interrupted)")
	flags.String(paramsKey, "stellar-auth-window.json", "File holding the persisted mission window")
	flags.String(tleKey, "", "TLE file used to plan a window at start-up when none is persisted")
	flags.Duration(watchdogTimeoutKey, 5*time.Second, "Report unhealthy when no tick completed for this long")
	flags.Uint32(bypassKeyKey, auth.DefaultBypassKey, "Emergency bypass key")
	addWindowFlags(flags)
	return c
}

func parseServeFlags(flags *pflag.FlagSet) (serveConfig, error) {
	cfg := serveConfig{Auth: auth.DefaultConfig()}
	var err error
	if cfg.GRPCAddr, err = flags.GetString(grpcAddrKey); err != nil {
		return cfg, err
	}
	if cfg.MetricsAddr, err = flags.GetString(metricsAddrKey); err != nil {
		return cfg, err
	}
	if cfg.Tick, err = flags.GetDuration(tickKey); err != nil {
		return cfg, err
	}
	if cfg.Tick <= 0 {
		return cfg, fmt.Errorf("--%s must be positive", tickKey)
	}
	mode, err := flags.GetString(modeKey)
	if err != nil {
		return cfg, err
	}
	var ok bool
	if cfg.Mode, ok = timectrl.ParseMode(mode); !ok {
		return cfg, fmt.Errorf("--%s: unknown mode %q", modeKey, mode)
	}
	if cfg.Duration, err = flags.GetDuration(durationKey); err != nil {
		return cfg, err
	}
	if cfg.ParamsPath, err = flags.GetString(paramsKey); err != nil {
		return cfg, err
	}
	if cfg.TLEPath, err = flags.GetString(tleKey); err != nil {
		return cfg, err
	}
	if cfg.WatchdogTimeout, err = flags.GetDuration(watchdogTimeoutKey); err != nil {
		return cfg, err
	}
	if cfg.Auth.BypassKey, err = flags.GetUint32(bypassKeyKey); err != nil {
		return cfg, err
	}
	if cfg.Window, err = parseWindowFlags(flags); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg serveConfig, log logging.Logger) error {
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	authMetrics, err := observability.NewAuthCollector(reg)
	if err != nil {
		return err
	}
	commandMetrics, err := observability.NewCommandCollector(reg)
	if err != nil {
		return err
	}

	wd := watchdog.NewMonitor(cfg.WatchdogTimeout)
	engine, err := auth.New(cfg.Auth,
		auth.WithLogger(log),
		auth.WithSink(events.Fanout{events.LogSink{Log: log}, authMetrics}),
		auth.WithTelemetry(authMetrics),
		auth.WithWatchdog(wd),
	)
	if err != nil {
		return err
	}

	store := params.NewFileStore(cfg.ParamsPath)
	if err := restoreWindow(ctx, engine, store, cfg, log); err != nil {
		return err
	}

	inputs := sensors.NewInputs()
	queue := command.NewQueue()

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			command.CommandIDUnaryServerInterceptor(log),
			command.TracingUnaryServerInterceptor(),
			commandMetrics.UnaryServerInterceptor(),
		),
	)
	command.NewService(engine, queue, inputs, store, log).Register(server)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", authMetrics.Handler())
	mux.Handle("/healthz", wd.Handler())
	httpSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		tc := timectrl.NewTimeController(time.Now().Truncate(time.Second), cfg.Tick, cfg.Mode)
		cycle.NewRunner(engine, inputs, queue, cycle.WithLogger(log)).Run(gctx, tc, cfg.Duration)
		queue.Close()
		return nil
	})
	g.Go(func() error {
		log.Info(gctx, "serving command gRPC", logging.String("addr", lis.Addr().String()))
		return server.Serve(lis)
	})
	g.Go(func() error {
		log.Info(gctx, "serving metrics and health", logging.String("addr", cfg.MetricsAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down")
		server.GracefulStop()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// restoreWindow installs the persisted window, or plans one from the TLE when
// nothing was persisted.
func restoreWindow(ctx context.Context, engine *auth.Engine, store params.Store, cfg serveConfig, log logging.Logger) error {
	w, err := store.Load(ctx)
	switch {
	case err == nil:
		if err := engine.UpdateWindow(ctx, w); err != nil {
			log.Warn(ctx, "persisted mission window rejected", logging.Err(err))
			return nil
		}
		log.Info(ctx, "restored mission window",
			logging.Int64("window_start", w.Start),
			logging.Int64("window_end", w.End),
		)
		return nil
	case !errors.Is(err, params.ErrNotFound):
		log.Warn(ctx, "mission window not restored", logging.Err(err))
		return nil
	case cfg.TLEPath == "":
		log.Info(ctx, "no mission window configured; staying locked")
		return nil
	}

	f, err := os.Open(cfg.TLEPath)
	if err != nil {
		return fmt.Errorf("open TLE: %w", err)
	}
	defer f.Close()
	tle, err := ephemeris.ReadTLE(f)
	if err != nil {
		return err
	}
	planner, err := ephemeris.NewPlanner(tle)
	if err != nil {
		return err
	}
	w, err = planner.PlanWindow(time.Now(), cfg.Window)
	if err != nil {
		return err
	}
	if err := engine.UpdateWindow(ctx, w); err != nil {
		return err
	}
	log.Info(ctx, "planned mission window from TLE",
		logging.String("satellite", tle.CatalogNumber()),
		logging.Int64("window_start", w.Start),
		logging.Int64("window_end", w.End),
	)
	return store.Save(ctx, w)
}
