// Package httpapi is the REST adapter. It decides where transactions begin
// and end; the domain services it calls never do.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/todo_service/internal/connectivity"
	"github.com/R3E-Network/todo_service/internal/domain/todo"
	"github.com/R3E-Network/todo_service/internal/domain/user"
	"github.com/R3E-Network/todo_service/internal/logging"
	"github.com/R3E-Network/todo_service/internal/metrics"
	"github.com/R3E-Network/todo_service/internal/middleware"
)

var errInvalidParam = errors.New("invalid path parameter")

// Deps wires the router.
type Deps struct {
	Conn  connectivity.Transactable
	Users *user.Service
	Tasks *todo.Service

	// Health reports readiness; nil means always healthy.
	Health func(ctx context.Context) error

	Logger      *logging.Logger
	CORS        *middleware.CORS
	RateLimiter *middleware.RateLimiter
}

type handler struct {
	conn   connectivity.Transactable
	users  *user.Service
	tasks  *todo.Service
	health func(ctx context.Context) error
	log    *logging.Logger
}

// NewRouter returns the HTTP handler exposing the REST API.
func NewRouter(deps Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = logging.NewDefault("httpapi")
	}
	h := &handler{
		conn:   deps.Conn,
		users:  deps.Users,
		tasks:  deps.Tasks,
		health: deps.Health,
		log:    log,
	}

	router := mux.NewRouter()
	router.Use(middleware.Metrics())
	if deps.RateLimiter != nil {
		router.Use(deps.RateLimiter.Handler)
	}

	router.HandleFunc("/users", h.listUsers).Methods(http.MethodGet)
	router.HandleFunc("/users", h.createUser).Methods(http.MethodPost)
	router.HandleFunc("/users/import", h.importUsers).Methods(http.MethodPost)
	router.HandleFunc("/users/{user_id}/tasks", h.listTasks).Methods(http.MethodGet)
	router.HandleFunc("/users/{user_id}/tasks", h.createTask).Methods(http.MethodPost)
	router.HandleFunc("/users/{user_id}/tasks/{task_id}", h.getTask).Methods(http.MethodGet)
	router.HandleFunc("/tasks/{task_id}", h.updateTask).Methods(http.MethodPatch)
	router.HandleFunc("/tasks/{task_id}", h.deleteTask).Methods(http.MethodDelete)
	router.HandleFunc("/tracing-demo", h.tracingDemo).Methods(http.MethodGet)
	router.HandleFunc("/tracing-demo/part2", h.tracingDemoPart2).Methods(http.MethodGet)
	router.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	var out http.Handler = middleware.Trace(log)(router)
	if deps.CORS != nil {
		out = deps.CORS.Handler(out)
	}
	return out
}

func pathInt(r *http.Request, name string) (int, error) {
	raw := mux.Vars(r)[name]
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%w: %s=%q", errInvalidParam, name, raw)
	}
	return v, nil
}

type insertedResponse struct {
	ID int `json:"id"`
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
