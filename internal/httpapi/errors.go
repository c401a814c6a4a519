package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/R3E-Network/todo_service/internal/connectivity"
	"github.com/R3E-Network/todo_service/internal/domain/todo"
	"github.com/R3E-Network/todo_service/internal/domain/user"
)

const maxBodyBytes = 1 << 20

var errInvalidJSON = errors.New("invalid json")

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	ErrorCode        string  `json:"error_code"`
	ErrorDescription string  `json:"error_description"`
	ExtraInfo        *string `json:"extra_info"`
}

type apiError struct {
	status int
	body   ErrorResponse
}

func newAPIError(status int, code, description string, extra error) apiError {
	e := apiError{status: status, body: ErrorResponse{ErrorCode: code, ErrorDescription: description}}
	if extra != nil {
		info := extra.Error()
		e.body.ExtraInfo = &info
	}
	return e
}

// classifyError maps an error from the domain or connectivity layer onto a response.
func classifyError(err error) apiError {
	switch {
	case errors.Is(err, errInvalidJSON):
		return newAPIError(http.StatusBadRequest, "incomplete_json", "You sent an incomplete request.", err)
	case errors.Is(err, user.ErrInvalidUser), errors.Is(err, todo.ErrInvalidTask), errors.Is(err, errInvalidParam):
		return newAPIError(http.StatusBadRequest, "invalid_input", "Submitted data was invalid.", err)
	case errors.Is(err, user.ErrUserNotFound):
		return newAPIError(http.StatusNotFound, "not_found", "The requested user could not be found.", nil)
	case errors.Is(err, todo.ErrTaskNotFound):
		return newAPIError(http.StatusNotFound, "not_found", "The requested task could not be found.", nil)
	case errors.Is(err, user.ErrUserExists):
		return newAPIError(http.StatusConflict, "already_exists", "The provided user already exists.", nil)
	case connectivity.IsCommitFailed(err):
		return newAPIError(http.StatusInternalServerError, "transaction_failed", "Your changes could not be saved.", nil)
	case connectivity.IsConnectivity(err):
		return newAPIError(http.StatusServiceUnavailable, "service_unavailable", "A required dependency is unavailable. Try again later.", nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "Could not access data to complete your request.", nil)
	}
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := classifyError(err)
	entry := h.log.WithTrace(r.Context()).WithError(err).WithField("error_code", apiErr.body.ErrorCode)
	switch {
	case errors.Is(r.Context().Err(), context.Canceled):
		// client disconnected
		entry.Debug("request cancelled by client")
	case apiErr.status >= http.StatusInternalServerError:
		entry.Error("request failed")
	default:
		entry.Debug("request rejected")
	}
	writeJSON(w, apiErr.status, apiErr.body)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errInvalidJSON, err)
	}
	return nil
}
