// Package connectivity hands out database connections and scopes transactions.
//
// Business code receives a Connectivity (or Transactable) and asks it for a
// Handle whenever it needs to talk to the database. Whether that Handle is a
// plain pooled connection or the connection of an open transaction is decided
// by the caller that drew the transaction boundary with WithTransaction.
package connectivity

import (
	"context"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/todo_service/internal/httputil"
)

// Queryer is the subset of sqlx shared by pooled connections and transactions.
type Queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

var (
	_ Queryer = (*sqlx.Conn)(nil)
	_ Queryer = (*sqlx.Tx)(nil)
)

// Handle is an exclusively owned database connection. Callers must Release it
// on every path once they are done.
type Handle interface {
	Queryer
	Release()
}

// Connectivity gives access to external resources.
type Connectivity interface {
	// Acquire borrows a connection. Inside a transaction it returns the
	// transaction's connection.
	Acquire(ctx context.Context) (Handle, error)
	// HTTPClient returns the client for outbound calls to other services.
	HTTPClient() *httputil.ServiceClient
}

// Transactable is a Connectivity that can open a transaction.
type Transactable interface {
	Connectivity
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a Transactable scoped to an open transaction. Commit and Rollback both
// end the transaction and give its connection back; calling either a second
// time is a no-op for Rollback and sql.ErrTxDone for Commit.
type Tx interface {
	Transactable
	Commit() error
	Rollback() error
}

type handle struct {
	Queryer
	once    sync.Once
	release func()
}

func (h *handle) Release() {
	h.once.Do(h.release)
}
