package connectivity

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolExhausted is reported when no pooled connection became free within
	// the acquire timeout.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrRollbackOnly is reported by the outermost commit when a nested
	// transaction boundary failed.
	ErrRollbackOnly = errors.New("transaction marked rollback-only")
)

// ConnectivityError reports that a connection could not be obtained or used.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// Stage identifies where a transaction failed.
type Stage string

const (
	StageBegin     Stage = "begin"
	StageOperation Stage = "operation"
	StageCommit    Stage = "commit"
)

// TxError wraps a failure inside WithTransaction. Err is the underlying cause;
// for StageOperation that is the error returned by the enclosed operation.
type TxError struct {
	Stage       Stage
	Err         error
	RollbackErr error
}

func (e *TxError) Error() string {
	if e.RollbackErr != nil {
		return fmt.Sprintf("transaction %s failed: %v (rollback: %v)", e.Stage, e.Err, e.RollbackErr)
	}
	return fmt.Sprintf("transaction %s failed: %v", e.Stage, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// IsConnectivity reports whether err was caused by a connectivity failure.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// IsCommitFailed reports whether err is a failed commit.
func IsCommitFailed(err error) bool {
	return hasStage(err, StageCommit)
}

// IsOperationFailed reports whether err came from the operation enclosed in a
// transaction.
func IsOperationFailed(err error) bool {
	return hasStage(err, StageOperation)
}

func hasStage(err error, stage Stage) bool {
	var te *TxError
	return errors.As(err, &te) && te.Stage == stage
}
