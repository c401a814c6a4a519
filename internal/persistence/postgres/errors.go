package postgres

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/lib/pq"

	"github.com/R3E-Network/todo_service/internal/connectivity"
)

// Postgres error classes that mean the connection, not the query, is at fault.
const (
	classConnectionException  pq.ErrorClass = "08"
	classInsufficientResource pq.ErrorClass = "53"
	classOperatorIntervention pq.ErrorClass = "57"
)

const codeUniqueViolation pq.ErrorCode = "23505"

// classify wraps err with op, turning connection level failures into a
// *connectivity.ConnectivityError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isConnectionFailure(err) {
		return &connectivity.ConnectivityError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isConnectionFailure(err error) bool {
	if connectivity.IsConnectivity(err) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case classConnectionException, classInsufficientResource, classOperatorIntervention:
			return true
		}
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation
}
