package connectivity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/R3E-Network/todo_service/internal/httputil"
	"github.com/R3E-Network/todo_service/internal/logging"
	"github.com/R3E-Network/todo_service/internal/metrics"
)

const (
	DefaultAcquireTimeout = 5 * time.Second
	DefaultTxTimeout      = 30 * time.Second
)

// DatabaseConfig describes the connection pool.
type DatabaseConfig struct {
	URL             string        `yaml:"url" env:"DATABASE_URL"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME"`
	AcquireTimeout  time.Duration `yaml:"acquire_timeout" env:"DB_ACQUIRE_TIMEOUT"`
	TxTimeout       time.Duration `yaml:"tx_timeout" env:"DB_TX_TIMEOUT"`
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, cfg DatabaseConfig) (*sqlx.DB, error) {
	if cfg.URL == "" {
		return nil, &ConnectivityError{Op: "open", Err: errors.New("database url is required")}
	}

	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, &ConnectivityError{Op: "open", Err: err}
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, &ConnectivityError{Op: "ping", Err: err}
	}

	return db, nil
}

// PoolOption customises a Pool.
type PoolOption func(*Pool)

// WithAcquireTimeout bounds how long Acquire and Begin wait for a free connection.
func WithAcquireTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.acquireTimeout = d }
}

// WithTxTimeout bounds how long a transaction may hold its connection.
func WithTxTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.txTimeout = d }
}

// WithTxOptions sets the isolation level and read-only flag of new transactions.
func WithTxOptions(opts *sql.TxOptions) PoolOption {
	return func(p *Pool) { p.txOptions = opts }
}

func WithLogger(logger *logging.Logger) PoolOption {
	return func(p *Pool) { p.logger = logger }
}

func WithHTTPClient(client *httputil.ServiceClient) PoolOption {
	return func(p *Pool) { p.client = client }
}

// Pool is the process-wide Transactable backed by a database/sql pool.
type Pool struct {
	db             *sqlx.DB
	acquireTimeout time.Duration
	txTimeout      time.Duration
	txOptions      *sql.TxOptions
	logger         *logging.Logger
	client         *httputil.ServiceClient
}

var _ Transactable = (*Pool)(nil)

// NewPool wraps db. The Pool does not own db beyond Close.
func NewPool(db *sqlx.DB, opts ...PoolOption) *Pool {
	p := &Pool{
		db:             db,
		acquireTimeout: DefaultAcquireTimeout,
		txTimeout:      DefaultTxTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.NewDefault("connectivity")
	}
	if p.client == nil {
		p.client = httputil.NewServiceClient(httputil.ServiceClientConfig{})
	}
	return p
}

// DB exposes the underlying pool for migrations and statistics.
func (p *Pool) DB() *sqlx.DB {
	return p.db
}

func (p *Pool) HTTPClient() *httputil.ServiceClient {
	return p.client
}

// Ping checks that the database is reachable.
func (p *Pool) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return &ConnectivityError{Op: "ping", Err: err}
	}
	return nil
}

func (p *Pool) Close() error {
	return p.db.Close()
}

// Acquire checks a connection out of the pool.
func (p *Pool) Acquire(ctx context.Context) (Handle, error) {
	conn, err := p.checkout(ctx, "acquire")
	if err != nil {
		return nil, err
	}
	return &handle{
		Queryer: conn,
		release: func() { p.closeConn(conn) },
	}, nil
}

// Begin opens a transaction on a freshly checked out connection.
func (p *Pool) Begin(ctx context.Context) (Tx, error) {
	conn, err := p.checkout(ctx, "begin")
	if err != nil {
		metrics.RecordTransaction(metrics.TxBeginFailed)
		return nil, err
	}

	txCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.txTimeout > 0 {
		txCtx, cancel = context.WithTimeout(ctx, p.txTimeout)
	}

	tx, err := conn.BeginTxx(txCtx, p.txOptions)
	if err != nil {
		cancel()
		p.closeConn(conn)
		metrics.RecordTransaction(metrics.TxBeginFailed)
		return nil, &ConnectivityError{Op: "begin", Err: err}
	}

	return &txConnectivity{
		pool:   p,
		conn:   conn,
		tx:     tx,
		ctx:    txCtx,
		cancel: cancel,
		borrow: make(chan struct{}, 1),
	}, nil
}

func (p *Pool) checkout(ctx context.Context, op string) (*sqlx.Conn, error) {
	waitCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.acquireTimeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
	}
	defer cancel()

	start := time.Now()
	conn, err := p.db.Connx(waitCtx)
	metrics.ObserveAcquire(time.Since(start), err == nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s", ErrPoolExhausted, p.acquireTimeout)
		}
		return nil, &ConnectivityError{Op: op, Err: err}
	}
	return conn, nil
}

func (p *Pool) closeConn(conn *sqlx.Conn) {
	if err := conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		p.logger.WithError(err).Warn("failed to return connection to pool")
	}
}
