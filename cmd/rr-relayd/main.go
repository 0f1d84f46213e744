package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/haukened/rr-relay/internal/dns/common/clock"
	"github.com/haukened/rr-relay/internal/dns/common/log"
	"github.com/haukened/rr-relay/internal/dns/common/metrics"
	"github.com/haukened/rr-relay/internal/dns/config"
	"github.com/haukened/rr-relay/internal/dns/gateways/transport"
	"github.com/haukened/rr-relay/internal/dns/gateways/upstream"
	"github.com/haukened/rr-relay/internal/dns/gateways/wire"
	"github.com/haukened/rr-relay/internal/dns/repos/blocklist"
	"github.com/haukened/rr-relay/internal/dns/repos/blocklist/bloom"
	"github.com/haukened/rr-relay/internal/dns/repos/blocklist/bolt"
	"github.com/haukened/rr-relay/internal/dns/repos/blocklist/lru"
	"github.com/haukened/rr-relay/internal/dns/repos/dnscache"
	"github.com/haukened/rr-relay/internal/dns/repos/inflight"
	"github.com/haukened/rr-relay/internal/dns/services/bootstrap"
	"github.com/haukened/rr-relay/internal/dns/services/relay"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "rr-relayd"
)

// Application holds all the components of the relay
type Application struct {
	config    *config.AppConfig
	logger    log.Logger
	transport transport.ServerTransport
	upstream  *upstream.Endpoint
	relay     *relay.Relay
	loader    *bootstrap.Loader
	blocklist blocklist.Repository
	metrics   *metrics.Server

	// ready is closed once both sockets are open
	ready chan struct{}
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.Log.Level, cfg.Log.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"app":        appName,
		"version":    version,
		"env":        cfg.Env,
		"log_level":  cfg.Log.Level,
		"port":       cfg.Relay.Port,
		"upstream":   cfg.Relay.Upstream,
		"cache_size": cfg.Cache.Size,
		"zone_dir":   cfg.Seed.ZoneDir,
		"metrics":    cfg.Metrics.Addr,
	}, "Starting RR-Relay")

	// Build application with all dependencies
	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "Failed to build application")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "Relay failed")
	}

	log.Info(nil, "RR-Relay stopped gracefully")
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	// Create shared clock for consistent time across all components
	clk := clock.RealClock{}

	// Initialize logger (already configured globally)
	logger := log.GetLogger()

	codec := wire.NewUDPCodec(log.WithComponent(logger, "wire"))

	cache, err := dnscache.New(int(cfg.Cache.Size), clk)
	if err != nil {
		return nil, fmt.Errorf("failed to create record cache: %w", err)
	}

	table, err := inflight.New(cfg.Relay.QueryTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create slot table: %w", err)
	}

	blocklistRepo, err := buildBlocklist(cfg, log.WithComponent(logger, "blocklist"))
	if err != nil {
		return nil, fmt.Errorf("failed to build blocklist: %w", err)
	}

	var (
		relayMetrics  metrics.RelayMetrics = metrics.NoopCollector{}
		metricsServer *metrics.Server
	)
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		collector, err := metrics.NewCollector(reg)
		if err != nil {
			_ = blocklistRepo.Close()
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		relayMetrics = collector
		metricsServer = metrics.NewServer(cfg.Metrics.Addr, reg, log.WithComponent(logger, "metrics"))
	}

	clientTransport := transport.NewUDPTransport(cfg.ListenAddr(), log.WithComponent(logger, "transport"))

	upstreamEndpoint, err := upstream.New(upstream.Options{
		Server: cfg.Relay.Upstream,
		Logger: log.WithComponent(logger, "upstream"),
	})
	if err != nil {
		_ = blocklistRepo.Close()
		return nil, fmt.Errorf("failed to create upstream endpoint: %w", err)
	}

	relayService := relay.NewRelay(relay.RelayOptions{
		Codec:     codec,
		Cache:     cache,
		Table:     table,
		Blocklist: blocklistRepo,
		Client:    clientTransport,
		Upstream:  upstreamEndpoint,
		Clock:     clk,
		Logger:    log.WithComponent(logger, "relay"),
		Metrics:   relayMetrics,
	})

	loader := bootstrap.NewLoader(bootstrap.Options{
		Cache:          cache,
		Blocklist:      blocklistRepo,
		HostsFiles:     cfg.Seed.HostsFiles,
		BlocklistFiles: cfg.Blocklist.Files,
		ZoneDir:        cfg.Seed.ZoneDir,
		ZoneTTL:        cfg.Seed.ZoneTTL,
		Clock:          clk,
		Logger:         log.WithComponent(logger, "bootstrap"),
	})

	return &Application{
		config:    cfg,
		logger:    logger,
		transport: clientTransport,
		upstream:  upstreamEndpoint,
		relay:     relayService,
		loader:    loader,
		blocklist: blocklistRepo,
		metrics:   metricsServer,
		ready:     make(chan struct{}),
	}, nil
}

// buildBlocklist opens the bolt store and layers the decision cache and
// Bloom prefilter over it.
func buildBlocklist(cfg *config.AppConfig, logger log.Logger) (blocklist.Repository, error) {
	if dir := filepath.Dir(cfg.Blocklist.DB); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create blocklist directory: %w", err)
		}
	}
	store, err := bolt.New(cfg.Blocklist.DB)
	if err != nil {
		return nil, err
	}
	decisions, err := lru.New(int(cfg.Blocklist.Cache.Size))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	logger.Info(map[string]any{
		"db":          cfg.Blocklist.DB,
		"cache_size":  cfg.Blocklist.Cache.Size,
		"fp_rate":     cfg.Blocklist.FPRate,
		"max_entries": cfg.Blocklist.MaxEntries,
	}, "Blocklist store opened")

	return blocklist.NewRepository(blocklist.Options{
		Store:      store,
		Cache:      decisions,
		Factory:    bloom.NewFactory(),
		FPRate:     cfg.Blocklist.FPRate,
		MaxEntries: cfg.Blocklist.MaxEntries,
		Logger:     logger,
	}), nil
}

// Run loads the static sources, opens both sockets and serves until ctx is
// cancelled or a component fails.
func (app *Application) Run(ctx context.Context) (err error) {
	defer func() {
		if cerr := app.blocklist.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close blocklist: %w", cerr))
		}
	}()

	res, loadErr := app.loader.Load(ctx)
	if loadErr != nil {
		for _, e := range multierr.Errors(loadErr) {
			app.logger.Warn(map[string]any{"error": e.Error()}, "Bootstrap source failed")
		}
	}
	app.logger.Info(map[string]any{
		"seeded": res.Seeded,
		"rules":  res.Rules,
		"hosts":  res.Hosts.ParsedLines,
	}, "Static sources loaded")

	g, gctx := errgroup.WithContext(ctx)

	if err := app.transport.Start(gctx); err != nil {
		return fmt.Errorf("failed to start UDP transport: %w", err)
	}
	if err := app.upstream.Connect(gctx); err != nil {
		_ = app.transport.Stop()
		return fmt.Errorf("failed to connect upstream: %w", err)
	}

	app.logger.Info(map[string]any{
		"address":   app.transport.Address(),
		"transport": "UDP",
		"upstream":  app.upstream.Server(),
	}, "DNS relay started")
	close(app.ready)

	g.Go(func() error {
		defer app.upstream.Close()
		defer app.transport.Stop()
		return app.relay.Serve(gctx)
	})
	if app.metrics != nil {
		g.Go(func() error {
			return app.metrics.Run(gctx)
		})
	}

	err = g.Wait()
	app.logger.Info(nil, "Shutdown completed")
	return err
}

// Ready is closed once the relay is accepting queries.
func (app *Application) Ready() <-chan struct{} {
	return app.ready
}
