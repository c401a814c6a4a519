// Package runtime wires the service together and manages its lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/todo_service/internal/config"
	"github.com/R3E-Network/todo_service/internal/connectivity"
	"github.com/R3E-Network/todo_service/internal/domain/todo"
	"github.com/R3E-Network/todo_service/internal/domain/user"
	"github.com/R3E-Network/todo_service/internal/httpapi"
	"github.com/R3E-Network/todo_service/internal/httputil"
	"github.com/R3E-Network/todo_service/internal/logging"
	"github.com/R3E-Network/todo_service/internal/metrics"
	"github.com/R3E-Network/todo_service/internal/middleware"
	"github.com/R3E-Network/todo_service/internal/persistence/postgres"
)

// Application owns the connection pool, HTTP server and background jobs.
type Application struct {
	cfg       config.Config
	log       *logging.Logger
	pool      *connectivity.Pool
	scheduler *cron.Cron
	handler   http.Handler
	server    *http.Server

	mu   sync.Mutex
	addr net.Addr
}

// New opens the database described by cfg and builds the application.
func New(ctx context.Context, cfg config.Config, log *logging.Logger) (*Application, error) {
	db, err := connectivity.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	app, err := NewWithDB(cfg, log, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

// NewWithDB builds the application around an already opened pool.
func NewWithDB(cfg config.Config, log *logging.Logger, db *sqlx.DB) (*Application, error) {
	if log == nil {
		log = logging.NewDefault("todo-service")
	}

	if err := metrics.RegisterDBStats(db.DB, "todo"); err != nil {
		log.WithError(err).Warn("database pool metrics not registered")
	}

	client := httputil.NewServiceClient(httputil.ServiceClientConfig{
		BaseURL: cfg.SelfBaseURL,
		Timeout: cfg.OutboundTimeout,
	})
	pool := connectivity.NewPool(db,
		connectivity.WithAcquireTimeout(cfg.Database.AcquireTimeout),
		connectivity.WithTxTimeout(cfg.Database.TxTimeout),
		connectivity.WithHTTPClient(client),
		connectivity.WithLogger(log.Named("connectivity")),
	)

	users := user.New(postgres.UserStore{}, postgres.UserStore{}, postgres.UserStore{}, log.Named("user"))
	tasks := todo.New(postgres.UserStore{}, postgres.TaskStore{}, postgres.TaskStore{}, log.Named("todo"))

	scheduler := cron.New()
	deps := httpapi.Deps{
		Conn:   pool,
		Users:  users,
		Tasks:  tasks,
		Health: pool.Ping,
		Logger: log.Named("http"),
		CORS:   middleware.NewCORS(cfg.CORS.Origins()),
	}
	if cfg.RateLimit.Enabled() {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, log.Named("ratelimit"))
		if _, err := limiter.ScheduleCleanup(scheduler, cfg.RateLimit.CleanupSchedule, cfg.RateLimit.MaxIdle); err != nil {
			return nil, fmt.Errorf("schedule rate limiter cleanup: %w", err)
		}
		deps.RateLimiter = limiter
	}

	handler := httpapi.NewRouter(deps)
	return &Application{
		cfg:       cfg,
		log:       log,
		pool:      pool,
		scheduler: scheduler,
		handler:   handler,
		server: &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      handler,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		},
	}, nil
}

// Handler returns the root HTTP handler.
func (a *Application) Handler() http.Handler {
	return a.handler
}

// Addr returns the bound listen address once Run has started.
func (a *Application) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// Run starts the HTTP server and background jobs, blocking until ctx is
// cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.HTTP.Addr, err)
	}
	a.mu.Lock()
	a.addr = ln.Addr()
	a.mu.Unlock()

	a.scheduler.Start()

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", ln.Addr())
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the server gracefully and closes the pool.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	<-a.scheduler.Stop().Done()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	if err := a.pool.Close(); err != nil {
		a.log.WithError(err).Warn("error closing database connection")
	}
	return nil
}
