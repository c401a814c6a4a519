package connectivity

import (
	"context"
)

// WithTransaction runs op inside a transaction opened on c.
//
// The transaction commits only when op returns a nil error. An op error rolls
// it back and is returned as a *TxError with StageOperation; errors.Is and
// errors.As still see the original error. A failed commit yields StageCommit
// together with the value op produced. A panic in op rolls back before it
// propagates.
//
// When c is already transactional no new transaction is started. A failure of
// the nested op marks the enclosing transaction rollback-only, so it can no
// longer commit.
func WithTransaction[T any](ctx context.Context, c Transactable, op func(ctx context.Context, tx Transactable) (T, error)) (T, error) {
	var zero T

	tx, err := c.Begin(ctx)
	if err != nil {
		return zero, &TxError{Stage: StageBegin, Err: err}
	}

	finished := false
	defer func() {
		if !finished {
			_ = tx.Rollback()
		}
	}()

	value, err := op(ctx, tx)
	if err != nil {
		finished = true
		return zero, &TxError{Stage: StageOperation, Err: err, RollbackErr: tx.Rollback()}
	}

	finished = true
	if err := tx.Commit(); err != nil {
		return value, &TxError{Stage: StageCommit, Err: err}
	}
	return value, nil
}
