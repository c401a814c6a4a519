// Package connectivitytest provides a test double for connectivity.Transactable.
package connectivitytest

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/R3E-Network/todo_service/internal/connectivity"
	"github.com/R3E-Network/todo_service/internal/httputil"
)

// DefaultBorrowTimeout bounds how long a transaction handle waits for the
// previous one to be released.
const DefaultBorrowTimeout = time.Second

// Fake records transaction boundaries without a database. Handles carry DB,
// which may stay nil when the code under test never issues SQL.
//
// Transactions behave like the real ones: a handle borrowed from a
// transaction is exclusive, and a finished transaction refuses further use.
type Fake struct {
	DB     connectivity.Queryer
	Client *httputil.ServiceClient

	// BorrowTimeout replaces DefaultBorrowTimeout when set.
	BorrowTimeout time.Duration

	mu sync.Mutex

	AcquireErr error
	BeginErr   error
	CommitErr  error

	Acquires  int
	Releases  int
	Begins    int
	Commits   int
	Rollbacks int
}

var _ connectivity.Transactable = (*Fake)(nil)

// New returns a Fake with an HTTP client pointed at baseURL.
func New(baseURL string) *Fake {
	return &Fake{Client: httputil.NewServiceClient(httputil.ServiceClientConfig{BaseURL: baseURL})}
}

func (f *Fake) Acquire(ctx context.Context) (connectivity.Handle, error) {
	return f.acquire(ctx, nil)
}

func (f *Fake) acquire(ctx context.Context, release func()) (connectivity.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, &connectivity.ConnectivityError{Op: "acquire", Err: err}
	}
	if err := f.AcquireErr; err != nil {
		f.AcquireErr = nil
		return nil, &connectivity.ConnectivityError{Op: "acquire", Err: err}
	}
	f.Acquires++
	return &fakeHandle{Queryer: f.DB, fake: f, release: release}, nil
}

func (f *Fake) HTTPClient() *httputil.ServiceClient {
	return f.Client
}

func (f *Fake) Begin(ctx context.Context) (connectivity.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.BeginErr; err != nil {
		f.BeginErr = nil
		return nil, &connectivity.ConnectivityError{Op: "begin", Err: err}
	}
	f.Begins++
	return &fakeTx{fake: f, borrow: make(chan struct{}, 1)}, nil
}

// Snapshot returns the counters as begins, commits, rollbacks.
func (f *Fake) Snapshot() (begins, commits, rollbacks int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Begins, f.Commits, f.Rollbacks
}

// Outstanding reports handles acquired but not yet released.
func (f *Fake) Outstanding() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Acquires - f.Releases
}

type fakeHandle struct {
	connectivity.Queryer
	fake     *Fake
	release  func()
	released bool
}

func (h *fakeHandle) Release() {
	h.fake.mu.Lock()
	if h.released {
		h.fake.mu.Unlock()
		return
	}
	h.released = true
	h.fake.Releases++
	h.fake.mu.Unlock()

	if h.release != nil {
		h.release()
	}
}

// fakeTx is either a root transaction or a boundary nested inside one.
// Only the root owns borrow and the done and rollbackOnly flags.
type fakeTx struct {
	fake         *Fake
	parent       *fakeTx
	borrow       chan struct{}
	done         bool
	rollbackOnly bool
}

func (t *fakeTx) root() *fakeTx {
	if t.parent == nil {
		return t
	}
	return t.parent.root()
}

func (t *fakeTx) finished() bool {
	t.fake.mu.Lock()
	defer t.fake.mu.Unlock()
	return t.root().done
}

func (t *fakeTx) Acquire(ctx context.Context) (connectivity.Handle, error) {
	root := t.root()
	if t.finished() {
		return nil, &connectivity.ConnectivityError{Op: "acquire", Err: sql.ErrTxDone}
	}

	wait := t.fake.BorrowTimeout
	if wait <= 0 {
		wait = DefaultBorrowTimeout
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case root.borrow <- struct{}{}:
	case <-ctx.Done():
		return nil, &connectivity.ConnectivityError{Op: "acquire", Err: ctx.Err()}
	case <-timer.C:
		return nil, &connectivity.ConnectivityError{
			Op:  "acquire",
			Err: fmt.Errorf("%w: transaction connection still borrowed after %s", connectivity.ErrPoolExhausted, wait),
		}
	}

	h, err := t.fake.acquire(ctx, func() { <-root.borrow })
	if err != nil {
		<-root.borrow
		return nil, err
	}
	return h, nil
}

func (t *fakeTx) HTTPClient() *httputil.ServiceClient {
	return t.fake.Client
}

func (t *fakeTx) Begin(ctx context.Context) (connectivity.Tx, error) {
	if t.finished() {
		return nil, &connectivity.ConnectivityError{Op: "begin", Err: sql.ErrTxDone}
	}
	return &fakeTx{fake: t.fake, parent: t.root()}, nil
}

func (t *fakeTx) Commit() error {
	f := t.fake
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.parent != nil {
		return nil
	}
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	if t.rollbackOnly {
		f.Rollbacks++
		return connectivity.ErrRollbackOnly
	}
	if err := f.CommitErr; err != nil {
		f.CommitErr = nil
		f.Rollbacks++
		return err
	}
	f.Commits++
	return nil
}

func (t *fakeTx) Rollback() error {
	f := t.fake
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.parent != nil {
		t.parent.rollbackOnly = true
		return nil
	}
	if !t.done {
		t.done = true
		f.Rollbacks++
	}
	return nil
}
