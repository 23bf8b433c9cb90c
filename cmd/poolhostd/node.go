package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"poolhost/config"
	errs "poolhost/core/errors"
	"poolhost/core/events"
	"poolhost/core/sched"
	"poolhost/core/state"
	"poolhost/gateway/middleware"
	"poolhost/gateway/routes"
	nativecommon "poolhost/native/common"
	"poolhost/native/pool"
	"poolhost/observability/logging"
	"poolhost/observability/metrics"
	"poolhost/storage"
	"poolhost/storage/eventlog"
)

// node owns every long-lived component of the daemon.
type node struct {
	cfg     *config.Config
	params  pool.Params
	logger  *slog.Logger
	db      storage.Database
	state   *state.Manager
	engine  *pool.Engine
	queue   *sched.Queue
	catchUp *sched.Periodic
	events  *eventlog.Store
	handler http.Handler
	nowFn   func() time.Time
}

func newNode(cfg *config.Config, logger *slog.Logger) (*node, error) {
	params, err := cfg.PoolParams()
	if err != nil {
		return nil, err
	}
	n := &node{cfg: cfg, params: params, logger: logger, nowFn: time.Now}
	if err := n.open(); err != nil {
		n.close()
		return nil, err
	}
	return n, nil
}

func (n *node) open() error {
	db, err := openDatabase(n.cfg.Storage)
	if err != nil {
		return err
	}
	n.db = db
	n.state = state.NewManager(db, n.params.Symbol)

	emitters := events.Multi{events.LogEmitter{Logger: n.logger}, metrics.Events()}
	if dsn := n.cfg.EventLog.DSN; dsn != "" {
		store, err := eventlog.Open(dsn, n.logger)
		if err != nil {
			return err
		}
		n.events = store
		emitters = append(emitters, store)
		n.logger.Info("event log opened", slog.String("dsn", logging.MaskDSN(dsn)))
	}

	engine, err := pool.NewEngine(n.params)
	if err != nil {
		return err
	}
	n.queue = sched.NewQueue(
		sched.WithRateLimit(time.Duration(n.cfg.Scheduler.MinIntervalMs)*time.Millisecond, 1),
		sched.WithRetryDelay(time.Duration(n.cfg.Scheduler.RetrySeconds)*time.Second),
		sched.WithLogger(n.logger),
	)
	metrics.TrackPending(n.queue.Len)

	engine.SetState(n.state)
	engine.SetEmitter(emitters)
	engine.SetScheduler(n.queue)
	engine.SetObserver(metrics.Engine())
	engine.SetLogger(n.logger)
	engine.SetPauses(nativecommon.StaticPauses{"pool": n.cfg.Pauses.Pool})
	n.engine = engine

	if spec := n.cfg.Scheduler.CatchUp; spec != "" {
		periodic, err := sched.NewPeriodic(spec, n.sweep, n.logger)
		if err != nil {
			return err
		}
		n.catchUp = periodic
	}

	routeCfg := routes.Config{
		Engine:        engine,
		RateLimiter:   middleware.NewRateLimiter(middleware.RateLimit{RequestsPerMinute: float64(n.cfg.Admin.MaxRequestsPerMin), Burst: 10}, n.logger),
		Observability: middleware.NewObservability(n.logger),
		Logger:        n.logger,
	}
	if n.events != nil {
		routeCfg.Events = n.events
	}
	if n.cfg.Admin.AuthSecret != "" {
		routeCfg.Authenticator = middleware.NewAuthenticator(middleware.AuthConfig{
			HMACSecret: n.cfg.Admin.AuthSecret,
			Issuer:     n.cfg.Admin.AuthIssuer,
			Audience:   n.cfg.Admin.AuthAudience,
		}, n.logger)
	} else {
		n.logger.Warn("admin auth secret not configured; action routes disabled")
	}
	handler, err := routes.New(routeCfg)
	if err != nil {
		return err
	}
	n.handler = handler
	return nil
}

func openDatabase(cfg config.Storage) (storage.Database, error) {
	switch cfg.Backend {
	case "memory":
		return storage.NewMemDB(), nil
	case "leveldb":
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return storage.NewLevelDB(cfg.Path)
	case "bolt":
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return storage.NewBoltDB(cfg.Path, nil)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// bootstrap applies genesis on an empty store, creates the main pool and
// re-arms unlock callbacks for locks that survived a restart.
func (n *node) bootstrap(ctx context.Context) error {
	if _, err := n.engine.PoolByID(pool.MainPoolID); err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			return err
		}
		if err := n.applyGenesis(); err != nil {
			return err
		}
		if err := n.engine.Initialize(ctx, pool.SignedBy(n.params.Operator)); err != nil {
			return fmt.Errorf("initialize main pool: %w", err)
		}
		n.logger.Info("main pool initialized", slog.String("account", n.params.MainPool))
	}
	return n.rearmLocks()
}

func (n *node) applyGenesis() error {
	balances, err := n.cfg.GenesisBalances(n.params.Symbol)
	if err != nil {
		return err
	}
	ledger := n.state.Ledger()
	now := uint64(n.nowFn().Unix())
	ensure := func(name string) error {
		exists, err := ledger.IsAccount(name)
		if err != nil || exists {
			return err
		}
		return ledger.CreateAccount(name, now)
	}
	for _, reserved := range []string{n.params.Operator, n.params.Escrow, n.params.MainPool} {
		if err := ensure(reserved); err != nil {
			n.state.Discard()
			return err
		}
	}
	for _, entry := range balances {
		if err := ensure(entry.Account); err != nil {
			n.state.Discard()
			return err
		}
		if entry.Amount == 0 {
			continue
		}
		if err := ledger.Issue(entry.Account, entry.Amount); err != nil {
			n.state.Discard()
			return fmt.Errorf("genesis %s: %w", entry.Account, err)
		}
	}
	if err := n.state.Commit(); err != nil {
		return fmt.Errorf("commit genesis: %w", err)
	}
	n.logger.Info("genesis applied", slog.Int("accounts", len(balances)))
	return nil
}

func (n *node) rearmLocks() error {
	locks, err := n.engine.PendingLocks()
	if err != nil {
		return err
	}
	now := n.nowFn().Unix()
	for _, lock := range locks {
		delay := time.Duration(int64(lock.UnlockAt)-now) * time.Second
		id := fmt.Sprintf("rearm/%d/%d", lock.PoolID, lock.ID)
		if err := n.queue.Schedule(id, delay); err != nil {
			return err
		}
	}
	if len(locks) > 0 {
		n.logger.Info("unlock callbacks re-armed", slog.Int("locks", len(locks)))
	}
	return nil
}

func (n *node) sweep(ctx context.Context) error {
	_, err := n.engine.UnlockTokens(ctx)
	return err
}

// run serves the admin API and drives unlock callbacks until ctx ends.
func (n *node) run(ctx context.Context) error {
	listener, err := net.Listen("tcp", n.cfg.Admin.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", n.cfg.Admin.ListenAddress, err)
	}
	server := &http.Server{Handler: n.handler, ReadHeaderTimeout: 5 * time.Second}
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	queueDone := make(chan struct{})
	go func() {
		defer close(queueDone)
		_ = n.queue.Run(ctx, n.sweep)
	}()
	if n.catchUp != nil {
		n.catchUp.Start()
	}

	serverErr := make(chan error, 1)
	go func() {
		n.logger.Info("admin api listening", slog.String("listen", listener.Addr().String()))
		serverErr <- server.Serve(listener)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		n.logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("serve admin api: %w", err)
		}
	}

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		n.logger.Warn("admin api shutdown", slog.String("error", err.Error()))
	}
	if n.catchUp != nil {
		n.catchUp.Stop(shutdownCtx)
	}
	select {
	case <-queueDone:
	case <-shutdownCtx.Done():
	}
	return runErr
}

func (n *node) close() {
	if n.events != nil {
		if err := n.events.Close(); err != nil {
			n.logger.Warn("close event log", slog.String("error", err.Error()))
		}
	}
	if n.db != nil {
		n.db.Close()
	}
}
