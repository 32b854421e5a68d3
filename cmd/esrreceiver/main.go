// esrreceiver connects to the scanner app on a phone and prints every scan.
// Usage: esrreceiver -host 192.168.1.20 [-config configs/esrreceiver.example.yaml]
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

	"github.com/rickgao/esr-receiver/internal/config"
	"github.com/rickgao/esr-receiver/internal/database"
	"github.com/rickgao/esr-receiver/internal/metrics"
	"github.com/rickgao/esr-receiver/internal/output"
	"github.com/rickgao/esr-receiver/internal/publish"
	"github.com/rickgao/esr-receiver/internal/receiver"
	"github.com/rickgao/esr-receiver/internal/relay"
	"github.com/rickgao/esr-receiver/internal/router"
	"github.com/rickgao/esr-receiver/internal/settings"
	"github.com/rickgao/esr-receiver/internal/version"
	"github.com/rickgao/esr-receiver/internal/writer"
)

const shutdownTimeout = 10 * time.Second

type flags struct {
	configPath   string
	host         string
	port         int
	settingsPath string
	appendCR     bool
	verbose      bool
	set          map[string]bool
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "path to config file (optional)")
	flag.StringVar(&f.host, "host", "", "scanner address, host or host:port")
	flag.IntVar(&f.port, "port", 0, "scanner port (default 8765)")
	flag.StringVar(&f.settingsPath, "settings", "", "settings file (default: user config dir)")
	flag.BoolVar(&f.appendCR, "append-cr", false, "end every printed scan with CR (ENTER); remembered for later runs")
	flag.BoolVar(&f.verbose, "verbose", false, "debug logging")
	flag.Parse()

	f.set = make(map[string]bool)
	flag.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f
}

func main() {
	f := parseFlags()
	if err := run(f); err != nil {
		fmt.Fprintln(os.Stderr, "esrreceiver:", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	// Load configuration
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		cfg, err = config.LoadAndValidate(f.configPath)
		if err != nil {
			return err
		}
	}

	// Set up structured logging; stdout carries scans only
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("starting esrreceiver",
		"version", version.String(),
		"config", f.configPath,
	)

	// Resolve the scanner endpoint and remember it for next time
	store := settings.NewStore(f.settingsPath)
	saved, err := store.Load()
	if err != nil {
		logger.Warn("ignoring unreadable settings", "path", store.Path(), "error", err)
	}
	ep, err := resolveEndpoint(f, saved, cfg)
	if err != nil {
		return err
	}
	appendCR := resolveAppendCR(f, saved, cfg)

	saved.Remember(ep)
	saved.AppendCR = appendCR
	if err := store.Save(saved); err != nil {
		logger.Warn("failed to save settings", "path", store.Path(), "error", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	reg := metrics.NewRegistry()
	recorder := metrics.NewReceiver(reg)

	// Sinks, in delivery order
	var sinks []router.Sink
	var stoppers []stopper

	if cfg.Output.ConsoleEnabled() {
		sinks = append(sinks, output.NewConsole(os.Stdout, appendCR, logger))
	}

	var history *writer.ScanWriter
	if cfg.History.Enabled {
		db := cfg.History.Database
		logger.Info("connecting to database",
			"host", db.Host,
			"port", db.Port,
			"database", db.Name,
		)
		pool, err := database.Connect(ctx, db)
		if err != nil {
			return fmt.Errorf("connect history database: %w", err)
		}
		defer pool.Close()

		history = writer.NewScanWriter(writer.WriterConfig{
			BatchSize:     cfg.History.BatchSize,
			FlushInterval: cfg.History.FlushInterval,
		}, pool, logger)
		if err := history.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := history.Start(ctx); err != nil {
			return err
		}
		stoppers = append(stoppers, stopper{history.Name(), history.Stop})
		reg.MustRegister(metrics.NewWriterCollector(history.Stats))
		sinks = append(sinks, history)
	}

	var hub *relay.Relay
	if cfg.Relay.Enabled {
		hub = relay.New(cfg.Relay.AllowedOrigins, cfg.Relay.ClientBuffer, logger)
		stoppers = append(stoppers, stopper{hub.Name(), func(context.Context) error { return hub.Close() }})
		metrics.RegisterRelayClients(reg, hub.ClientCount)
		sinks = append(sinks, hub)
	}

	if cfg.NATS.Enabled {
		pub, err := publish.Connect(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			return err
		}
		stoppers = append(stoppers, stopper{pub.Name(), func(context.Context) error { return pub.Close() }})
		sinks = append(sinks, pub)
	}

	// Router outlives the signal context so the final Disconnected is delivered
	rt := router.New(router.Config{BufferSize: cfg.Router.BufferSize}, logger, sinks...)
	rt.SetSource(ep.String())
	reg.MustRegister(metrics.NewRouterCollector(rt.Stats))
	if err := rt.Start(context.Background()); err != nil {
		return err
	}

	mgr := receiver.NewManager(cfg.ReceiverConfig(), logger.With("component", "receiver"),
		receiver.WithStateHandler(rt.OnState),
		receiver.WithMessageHandler(rt.OnMessage),
		receiver.WithRecorder(recorder),
	)

	g, gctx := errgroup.WithContext(ctx)

	// Health, metrics and relay listener
	if cfg.HTTP.Port > 0 {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
			Handler:           newMux(cfg, mgr, rt, history, hub, reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("starting http server", "port", cfg.HTTP.Port)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	mgr.Start(ep)
	logger.Info("esrreceiver running", "endpoint", ep.String(), "append_cr", appendCR)

	// Wait for shutdown
	<-gctx.Done()
	logger.Info("shutting down...")

	if !mgr.Stop() {
		logger.Warn("receiver needed a forced stop")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := rt.Stop(shutdownCtx); err != nil {
		logger.Warn("router stop incomplete", "error", err)
	}
	runStoppers(shutdownCtx, logger, stoppers)

	err = g.Wait()
	logger.Info("esrreceiver stopped")
	return err
}

// resolveEndpoint picks the scanner address: -host, then remembered
// settings, then config.
func resolveEndpoint(f flags, saved settings.Settings, cfg *config.Config) (receiver.Endpoint, error) {
	var ep receiver.Endpoint
	switch {
	case f.host != "":
		parsed, err := receiver.ParseEndpoint(f.host)
		if err != nil {
			return receiver.Endpoint{}, fmt.Errorf("parse -host: %w", err)
		}
		ep = parsed
	default:
		var ok bool
		if ep, ok = saved.Endpoint(); !ok {
			if ep, ok = cfg.Endpoint(); !ok {
				return receiver.Endpoint{}, errors.New("no scanner address: pass -host or set receiver.host")
			}
		}
	}

	if f.set["port"] {
		if f.port < 1 || f.port > 65535 {
			return receiver.Endpoint{}, fmt.Errorf("%w: %d", receiver.ErrInvalidPort, f.port)
		}
		ep.Port = f.port
	}
	return ep, nil
}

// resolveAppendCR uses -append-cr when given, then output.append_cr when the
// config sets it, then the remembered choice.
func resolveAppendCR(f flags, saved settings.Settings, cfg *config.Config) bool {
	if f.set["append-cr"] {
		return f.appendCR
	}
	if cfg.Output.AppendCR != nil {
		return *cfg.Output.AppendCR
	}
	return saved.AppendCR
}

// stopper shuts down one sink during process exit.
type stopper struct {
	name string
	stop func(context.Context) error
}

// runStoppers calls every stopper in order. Failures are logged, not returned.
func runStoppers(ctx context.Context, logger *slog.Logger, stoppers []stopper) {
	for _, s := range stoppers {
		if err := s.stop(ctx); err != nil {
			logger.Warn("sink stop incomplete",
				"sink", s.name,
				"error", err,
			)
		}
	}
}
