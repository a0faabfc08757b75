package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/kappi/internal/buildinfo"
	"github.com/dmitrijs2005/kappi/internal/client/client"
	"github.com/dmitrijs2005/kappi/internal/client/config"
	"github.com/dmitrijs2005/kappi/internal/client/integrity"
	"github.com/dmitrijs2005/kappi/internal/client/metrics"
	"github.com/dmitrijs2005/kappi/internal/client/models"
	"github.com/dmitrijs2005/kappi/internal/client/queue"
	"github.com/dmitrijs2005/kappi/internal/client/repositories/kv"
	"github.com/dmitrijs2005/kappi/internal/client/services"
	"github.com/dmitrijs2005/kappi/internal/client/syncer"
	"github.com/dmitrijs2005/kappi/internal/clock"
	"github.com/dmitrijs2005/kappi/internal/filex"
	"github.com/dmitrijs2005/kappi/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const pingTimeout = 3 * time.Second

type App struct {
	config   *config.Config
	logger   logging.Logger
	clock    clock.Clock
	db       *sql.DB
	remote   client.Client
	session  *services.SessionManager
	queue    *queue.Queue
	engine   *syncer.Engine
	scans    *services.ScanService
	registry *prometheus.Registry
	reader   *bufio.Reader
	variety  models.Variety

	mu   sync.Mutex
	mode Mode
}

// NewApp opens the local database named in c and wires the client on top
// of it.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	if err := filex.EnsureParentDir(c.DatabasePath); err != nil {
		return nil, err
	}

	db, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		logger.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}

	app, err := assemble(ctx, c, kv.NewSQLiteRepository(db), nil, clock.Real(), logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	app.db = db

	return app, nil
}

// assemble builds an App over repo. hc replaces the HTTP client when set.
func assemble(ctx context.Context, c *config.Config, repo kv.Repository, hc *http.Client, clk clock.Clock, logger logging.Logger) (*App, error) {
	store, err := integrity.New(repo, []byte(c.IntegritySalt), clk, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		config:   c,
		logger:   logger,
		clock:    clk,
		registry: prometheus.NewRegistry(),
		reader:   bufio.NewReader(os.Stdin),
		variety:  models.VarietyArabica,
	}

	var opts []client.Option
	if hc != nil {
		opts = append(opts, client.WithHTTPClient(hc))
	}
	tokens := client.TokenSourceFunc(func(ctx context.Context) (string, error) { return a.session.Token(ctx) })
	remote, err := client.NewHTTPClient(c.ServerURL, c.RequestTimeout, tokens, opts...)
	if err != nil {
		return nil, err
	}
	a.remote = remote

	devices := services.NewDeviceRegistry(store, runtime.GOOS, buildinfo.Version)
	a.session = services.NewSessionManager(store, remote, devices, clk, logger)
	if err := a.session.Restore(ctx); err != nil {
		return nil, err
	}

	a.queue, err = queue.Open(ctx, store, clk, logger)
	if err != nil {
		return nil, err
	}

	metrics.RegisterBuildInfo(a.registry, buildinfo.Version, buildinfo.Commit)
	a.engine = syncer.New(a.queue, remote, a.session, clk, logger,
		syncer.WithRateLimit(c.SubmitRate),
		syncer.WithMetrics(metrics.NewSync(a.registry)),
	)
	a.scans = services.NewScanService(a.queue, a.engine, remote, sidecarClassifier{}, logger)

	return a, nil
}

// Run starts the background workers and the REPL, and blocks until the
// user exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.Close()

	printlnFn("Welcome to kappi (type 'help' for commands)")

	if a.config.MetricsAddr != "" {
		go a.serveMetrics(ctx)
	}

	if a.config.SyncInterval > 0 {
		go a.engine.Run(ctx, a.config.SyncInterval)
		go a.StartOnlineStatusWatcher(ctx, a.config.SyncInterval)
	}

	runREPL(ctx, a, a.getStatus, a.reader)
	return nil
}

// Close waits for background syncs and releases the queue and database.
func (a *App) Close() {
	a.scans.Wait()
	a.queue.Close()
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn(context.Background(), "close database", "error", err)
		}
	}
}

func (a *App) serveMetrics(ctx context.Context) {
	srv := &http.Server{
		Addr:              a.config.MetricsAddr,
		Handler:           metrics.Handler(a.registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.logger.Info(ctx, "serving metrics", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error(ctx, "metrics server", "error", err)
	}
}

// setMode records the connectivity mode and reports whether it changed.
func (a *App) setMode(mode Mode) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode == mode {
		return false
	}
	a.mode = mode
	a.logger.Info(context.Background(), fmt.Sprintf("Switched to %s mode", mode))
	return true
}

func (a *App) getMode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// StartOnlineStatusWatcher pings the remote service every interval. When
// the service comes back after being unreachable, waiting scans are sent
// straight away.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := a.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := a.remote.Ping(pingCtx)
			cancel()

			if err != nil {
				a.setMode(ModeOffline)
				continue
			}
			if a.setMode(ModeOnline) && a.isLoggedIn() {
				if _, err := a.scans.Sync(ctx); err != nil && ctx.Err() == nil {
					a.logger.Warn(ctx, "sync after reconnect failed", "error", err)
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

func (a *App) isLoggedIn() bool {
	return a.session.State().IsAuthenticated
}

func (a *App) getStatus() string {
	st := a.session.State()

	var parts []string
	switch {
	case st.User != nil:
		parts = append(parts, st.User.Email)
	case st.Status == services.StatusLockedOut:
		parts = append(parts, "locked out")
	}
	if mode := a.getMode(); mode != "" {
		parts = append(parts, string(mode))
	}

	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, " ") + ")"
}
