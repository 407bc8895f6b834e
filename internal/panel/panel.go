// Package panel wires the daemon: stores, rule table, format readers,
// scan coordinator, sync engine, template applier and catalog client,
// plus the HTTP API, periodic rescans and the config file watcher.
package panel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/craftdeck/craftdeck/internal/catalog"
	"github.com/craftdeck/craftdeck/internal/classify"
	"github.com/craftdeck/craftdeck/internal/config"
	"github.com/craftdeck/craftdeck/internal/configstore"
	"github.com/craftdeck/craftdeck/internal/observability"
	"github.com/craftdeck/craftdeck/internal/rcon"
	"github.com/craftdeck/craftdeck/internal/reader"
	"github.com/craftdeck/craftdeck/internal/rules"
	"github.com/craftdeck/craftdeck/internal/scan"
	"github.com/craftdeck/craftdeck/internal/serverlock"
	"github.com/craftdeck/craftdeck/internal/syncengine"
	"github.com/craftdeck/craftdeck/internal/template"
	"github.com/craftdeck/craftdeck/pkg/models"
)

// ErrInitialScan wraps a first-scan failure during provisioning. The
// server itself was created and stays registered.
var ErrInitialScan = errors.New("initial scan failed")

// Panel is the assembled daemon.
type Panel struct {
	cfg     *config.Config
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	tracerStop func(context.Context) error

	stores  configstore.StoreSet
	table   *rules.Table
	files   reader.Reader
	locks   *serverlock.Manager
	scanner *scan.Coordinator
	pool    *scan.Pool
	engine  *syncengine.Engine
	applier *template.Applier
	catalog *catalog.Client

	cron    *cron.Cron
	watcher *dirWatcher
}

// New builds a panel from configuration. Call Run to start it and
// Close to release its resources.
func New(cfg *config.Config) (*Panel, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := observability.NewLogger(cfg.Logging)
	metrics := observability.NewMetrics()
	tracer, tracerStop := observability.NewTracer(cfg.Tracing)

	stores, err := openStores(cfg.Storage, metrics)
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}

	table, err := loadRules(cfg.Rules)
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("load rules: %w", err)
	}

	files := reader.NewDirReader(cfg.Scan.BaseDir)
	locks := serverlock.NewManager(cfg.Rcon.LockTTL)
	classifier := classify.New(table)

	scanner, err := scan.NewCoordinator(scan.Options{
		Reader:     files,
		Classifier: classifier,
		Entries:    stores.Entries,
		Servers:    stores.Servers,
		Locks:      locks,
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     tracer,
	})
	if err != nil {
		stores.Close()
		return nil, err
	}

	remote := rcon.NewClient(rconResolver(stores.Servers), cfg.Rcon.Timeout)

	engine, err := syncengine.New(syncengine.Options{
		Entries: stores.Entries,
		Reader:  files,
		Remote:  remote,
		Locks:   locks,
		Logger:  logger,
		Metrics: metrics,
		Tracer:  tracer,
	})
	if err != nil {
		stores.Close()
		return nil, err
	}

	applier, err := template.NewApplier(stores.Templates, stores.Entries, engine, logger, metrics)
	if err != nil {
		stores.Close()
		return nil, err
	}

	return &Panel{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		tracer:     tracer,
		tracerStop: tracerStop,
		stores:     stores,
		table:      table,
		files:      files,
		locks:      locks,
		scanner:    scanner,
		pool:       scan.NewPool(scanner, cfg.Scan.Workers),
		engine:     engine,
		applier:    applier,
		catalog:    catalog.NewClient(cfg.Catalog, logger),
	}, nil
}

func openStores(cfg config.StorageConfig, metrics *observability.Metrics) (configstore.StoreSet, error) {
	if cfg.Driver == "memory" {
		return configstore.NewMemoryStoreSet(), nil
	}
	return configstore.OpenSqlite(configstore.SqliteConfig{
		Path:        cfg.Path,
		BusyTimeout: cfg.BusyTimeout,
		Metrics:     metrics,
	})
}

func loadRules(cfg config.RulesConfig) (*rules.Table, error) {
	if len(cfg.Files) == 0 {
		return rules.NewBuilder().Build(), nil
	}
	return rules.LoadFiles(cfg.Files...)
}

// rconResolver maps server IDs to their console endpoints via the
// server store. Stopped servers resolve to an error so the sync engine
// degrades to pending-restart instead of dialing a dead port.
func rconResolver(servers configstore.ServerStore) rcon.EndpointResolver {
	return func(ctx context.Context, serverID string) (rcon.Endpoint, error) {
		server, err := servers.Get(ctx, serverID)
		if err != nil {
			return rcon.Endpoint{}, err
		}
		if !server.IsRunning() {
			return rcon.Endpoint{}, fmt.Errorf("server %s is %s: %w", serverID, server.Status, rcon.ErrUnreachable)
		}
		return rcon.Endpoint{
			Addr:     net.JoinHostPort("127.0.0.1", strconv.Itoa(server.RconPort)),
			Password: server.RconPassword,
		}, nil
	}
}

// Run starts the HTTP API, the metrics listener, the periodic rescan
// schedule and the config file watcher, then blocks until ctx is
// cancelled. It shuts everything down before returning.
func (p *Panel) Run(ctx context.Context) error {
	apiAddr := net.JoinHostPort(p.cfg.Server.Host, strconv.Itoa(p.cfg.Server.HTTPPort))
	metricsAddr := net.JoinHostPort(p.cfg.Server.Host, strconv.Itoa(p.cfg.Server.MetricsPort))

	apiServer := &http.Server{
		Addr:              apiAddr,
		Handler:           p.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              metricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		p.logger.Info(ctx, "api listening", "addr", apiAddr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		p.logger.Info(ctx, "metrics listening", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	if err := p.startCron(ctx); err != nil {
		return err
	}
	if err := p.startWatcher(ctx); err != nil {
		p.logger.Warn(ctx, "config file watcher disabled", "error", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
	if p.watcher != nil {
		p.watcher.Close()
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		p.logger.Warn(shutdownCtx, "api shutdown", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		p.logger.Warn(shutdownCtx, "metrics shutdown", "error", err)
	}
	return runErr
}

// Close releases stores and flushes the trace exporter. Safe after Run
// has returned.
func (p *Panel) Close(ctx context.Context) error {
	var firstErr error
	if err := p.stores.Close(); err != nil {
		firstErr = err
	}
	if p.tracerStop != nil {
		if err := p.tracerStop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *Panel) startCron(ctx context.Context) error {
	if p.cfg.Scan.Schedule == "" {
		return nil
	}
	p.cron = cron.New()
	_, err := p.cron.AddFunc(p.cfg.Scan.Schedule, func() {
		p.RescanAll(context.Background())
	})
	if err != nil {
		return fmt.Errorf("scan schedule %q: %w", p.cfg.Scan.Schedule, err)
	}
	p.cron.Start()
	p.logger.Info(ctx, "periodic rescans scheduled", "schedule", p.cfg.Scan.Schedule)
	return nil
}

func (p *Panel) startWatcher(ctx context.Context) error {
	watcher, err := newDirWatcher(p.cfg.Scan.BaseDir, p.cfg.Scan.WatchDebounce, p.logger, func(serverID string) {
		scanCtx := observability.WithServerID(context.Background(), serverID)
		if _, err := p.scanner.Scan(scanCtx, serverID); err != nil {
			p.logger.Warn(scanCtx, "watch triggered scan failed", "server_id", serverID, "error", err)
		}
	})
	if err != nil {
		return err
	}
	p.watcher = watcher

	servers, err := p.stores.Servers.List(ctx)
	if err != nil {
		return err
	}
	for _, server := range servers {
		if err := watcher.WatchServer(server.ID); err != nil {
			p.logger.Warn(ctx, "cannot watch server directory", "server_id", server.ID, "error", err)
		}
	}
	watcher.Start()
	return nil
}

// RescanAll scans every registered server through the worker pool.
func (p *Panel) RescanAll(ctx context.Context) (map[string]*scan.Result, map[string]error) {
	servers, err := p.stores.Servers.List(ctx)
	if err != nil {
		p.logger.Error(ctx, "list servers for rescan", "error", err)
		return nil, map[string]error{"": err}
	}
	ids := make([]string, 0, len(servers))
	for _, server := range servers {
		ids = append(ids, server.ID)
	}
	results, errs := p.pool.ScanAll(ctx, ids)
	p.logger.Info(ctx, "rescan complete", "servers", len(ids), "failed", len(errs))
	return results, errs
}

// Provision registers a server and runs its first scan.
func (p *Panel) Provision(ctx context.Context, server *models.Server) (*scan.Result, error) {
	if err := server.Validate(); err != nil {
		return nil, err
	}
	if err := p.stores.Servers.Create(ctx, server); err != nil {
		return nil, err
	}
	if p.watcher != nil {
		if err := p.watcher.WatchServer(server.ID); err != nil {
			p.logger.Warn(ctx, "cannot watch server directory", "server_id", server.ID, "error", err)
		}
	}
	result, err := p.scanner.Scan(ctx, server.ID)
	if err != nil {
		// The server stays registered; a later scan can still pick its
		// configuration up.
		p.logger.Warn(ctx, "initial scan failed", "server_id", server.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInitialScan, err)
	}
	return result, nil
}

// Decommission removes a server and its configuration entries. It
// waits for the per-server lock so any in-flight scan or apply finishes
// before the removal proceeds.
func (p *Panel) Decommission(ctx context.Context, serverID string) error {
	release, err := p.locks.Acquire(ctx, serverID, "decommission", p.cfg.Rcon.LockTTL)
	if err != nil {
		return err
	}
	defer release()

	if p.watcher != nil {
		p.watcher.UnwatchServer(serverID)
	}
	p.scanner.Forget(serverID)
	p.engine.Forget(serverID)

	removed, err := p.stores.Entries.DeleteServer(ctx, serverID)
	if err != nil {
		return fmt.Errorf("delete entries: %w", err)
	}
	if err := p.stores.Servers.Delete(ctx, serverID); err != nil {
		return err
	}
	p.logger.Info(ctx, "server decommissioned", "server_id", serverID, "entries_removed", removed)
	return nil
}

// Catalog exposes the modpack catalog client.
func (p *Panel) Catalog() *catalog.Client { return p.catalog }

// Engine exposes the sync engine.
func (p *Panel) Engine() *syncengine.Engine { return p.engine }

// Applier exposes the template applier.
func (p *Panel) Applier() *template.Applier { return p.applier }

// Stores exposes the backing store set.
func (p *Panel) Stores() configstore.StoreSet { return p.stores }

// Scanner exposes the scan coordinator.
func (p *Panel) Scanner() *scan.Coordinator { return p.scanner }
