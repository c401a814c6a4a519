package connectivity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/todo_service/internal/httputil"
	"github.com/R3E-Network/todo_service/internal/metrics"
)

// txConnectivity is the physical transaction opened by Pool.Begin.
type txConnectivity struct {
	pool   *Pool
	conn   *sqlx.Conn
	tx     *sqlx.Tx
	ctx    context.Context
	cancel context.CancelFunc

	// borrow holds a token while a Handle is out; the transaction has one
	// connection and it is never shared.
	borrow chan struct{}

	mu           sync.Mutex
	done         bool
	rollbackOnly bool
}

var _ Tx = (*txConnectivity)(nil)

func (t *txConnectivity) HTTPClient() *httputil.ServiceClient {
	return t.pool.client
}

// Acquire waits for exclusive use of the transaction's connection. The wait
// ends with the caller's context, the transaction's deadline or the pool's
// acquire timeout, whichever comes first.
func (t *txConnectivity) Acquire(ctx context.Context) (Handle, error) {
	var timeout <-chan time.Time
	if d := t.pool.acquireTimeout; d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case t.borrow <- struct{}{}:
	case <-ctx.Done():
		return nil, &ConnectivityError{Op: "acquire", Err: ctx.Err()}
	case <-t.ctx.Done():
		return nil, &ConnectivityError{Op: "acquire", Err: fmt.Errorf("transaction expired: %w", t.ctx.Err())}
	case <-timeout:
		return nil, &ConnectivityError{
			Op:  "acquire",
			Err: fmt.Errorf("%w: transaction connection still borrowed after %s", ErrPoolExhausted, t.pool.acquireTimeout),
		}
	}

	if t.finished() {
		<-t.borrow
		return nil, &ConnectivityError{Op: "acquire", Err: sql.ErrTxDone}
	}

	return &handle{
		Queryer: t.tx,
		release: func() { <-t.borrow },
	}, nil
}

// Begin joins the running transaction.
func (t *txConnectivity) Begin(ctx context.Context) (Tx, error) {
	if t.finished() {
		return nil, &ConnectivityError{Op: "begin", Err: sql.ErrTxDone}
	}
	return &nestedTx{root: t}, nil
}

func (t *txConnectivity) Commit() error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return sql.ErrTxDone
	}
	t.done = true
	rollbackOnly := t.rollbackOnly
	t.mu.Unlock()
	defer t.release()

	if rollbackOnly {
		metrics.RecordTransaction(metrics.TxRollbackOnly)
		if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			return errors.Join(ErrRollbackOnly, err)
		}
		return ErrRollbackOnly
	}

	if err := t.tx.Commit(); err != nil {
		metrics.RecordTransaction(metrics.TxCommitFailed)
		return err
	}
	metrics.RecordTransaction(metrics.TxCommitted)
	return nil
}

func (t *txConnectivity) Rollback() error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil
	}
	t.done = true
	t.mu.Unlock()
	defer t.release()

	metrics.RecordTransaction(metrics.TxRolledBack)
	// A cancelled context already rolled the transaction back.
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (t *txConnectivity) finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *txConnectivity) markRollbackOnly() {
	t.mu.Lock()
	t.rollbackOnly = true
	t.mu.Unlock()
}

func (t *txConnectivity) release() {
	t.cancel()
	t.pool.closeConn(t.conn)
}

// nestedTx is a boundary drawn inside a running transaction. It never commits
// or rolls back on its own; a rollback only dooms the enclosing transaction.
type nestedTx struct {
	root *txConnectivity
}

var _ Tx = (*nestedTx)(nil)

func (n *nestedTx) Acquire(ctx context.Context) (Handle, error) {
	return n.root.Acquire(ctx)
}

func (n *nestedTx) HTTPClient() *httputil.ServiceClient {
	return n.root.HTTPClient()
}

func (n *nestedTx) Begin(ctx context.Context) (Tx, error) {
	return n.root.Begin(ctx)
}

func (n *nestedTx) Commit() error {
	return nil
}

func (n *nestedTx) Rollback() error {
	n.root.markRollbackOnly()
	return nil
}
