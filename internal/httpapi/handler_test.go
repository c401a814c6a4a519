package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"

	"github.com/R3E-Network/todo_service/internal/connectivity"
	"github.com/R3E-Network/todo_service/internal/connectivity/connectivitytest"
	"github.com/R3E-Network/todo_service/internal/domain/todo"
	"github.com/R3E-Network/todo_service/internal/domain/user"
	"github.com/R3E-Network/todo_service/internal/httputil"
	"github.com/R3E-Network/todo_service/internal/logging"
	"github.com/R3E-Network/todo_service/internal/persistence/memory"
)

type testServer struct {
	handler http.Handler
	conn    *connectivitytest.Fake
	store   *memory.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	conn := connectivitytest.New("")
	log := logging.NewNop()
	users := store.Users()
	tasks := store.Tasks()

	return &testServer{
		handler: NewRouter(Deps{
			Conn:   conn,
			Users:  user.New(users, users, users, log),
			Tasks:  todo.New(users, tasks, tasks, log),
			Logger: log,
		}),
		conn:  conn,
		store: store,
	}
}

func (s *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestUserLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/users", map[string]string{"first_name": "Ada", "last_name": "Lovelace"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var inserted insertedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &inserted); err != nil {
		t.Fatalf("unmarshal inserted: %v", err)
	}
	if inserted.ID == 0 {
		t.Fatalf("expected user id")
	}

	rec = s.do(http.MethodGet, "/users", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var users []user.User
	if err := json.Unmarshal(rec.Body.Bytes(), &users); err != nil {
		t.Fatalf("unmarshal users: %v", err)
	}
	if len(users) != 1 || users[0].LastName != "Lovelace" {
		t.Fatalf("unexpected users: %+v", users)
	}

	rec = s.do(http.MethodPost, "/users", map[string]string{"first_name": "Ada", "last_name": "Lovelace"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.ErrorCode != "already_exists" {
		t.Fatalf("error_code = %q", body.ErrorCode)
	}

	begins, commits, rollbacks := s.conn.Snapshot()
	if begins != 2 || commits != 1 || rollbacks != 1 {
		t.Fatalf("begins/commits/rollbacks = %d/%d/%d, want 2/1/1", begins, commits, rollbacks)
	}
	if n := s.conn.Outstanding(); n != 0 {
		t.Fatalf("%d handles never released", n)
	}
}

func TestCreateUserRejectsBadJSON(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/users", `{"first_name": "Ada"`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.ErrorCode != "incomplete_json" || body.ExtraInfo == nil {
		t.Fatalf("unexpected body: %+v", body)
	}
	if begins, _, _ := s.conn.Snapshot(); begins != 0 {
		t.Fatalf("bad input must not open a transaction")
	}
}

func TestCreateUserRejectsLongNames(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/users", map[string]string{
		"first_name": "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		"last_name":  "B",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.ErrorCode != "invalid_input" {
		t.Fatalf("error_code = %q", body.ErrorCode)
	}
}

func TestImportUsersIsAtomic(t *testing.T) {
	s := newTestServer(t)

	batch := []map[string]string{
		{"first_name": "Ada", "last_name": "Lovelace"},
		{"first_name": "Ada", "last_name": "Lovelace"},
	}
	rec := s.do(http.MethodPost, "/users/import", batch)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	begins, commits, rollbacks := s.conn.Snapshot()
	if begins != 1 || commits != 0 || rollbacks != 1 {
		t.Fatalf("begins/commits/rollbacks = %d/%d/%d, want 1/0/1", begins, commits, rollbacks)
	}

	rec = s.do(http.MethodPost, "/users/import", []map[string]string{
		{"first_name": "Grace", "last_name": "Hopper"},
		{"first_name": "Alan", "last_name": "Turing"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var resp importResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal import: %v", err)
	}
	if len(resp.IDs) != 2 {
		t.Fatalf("ids = %v", resp.IDs)
	}
}

func TestTaskLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/users/1/tasks", map[string]string{"item_desc": "orphan"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", rec.Code)
	}

	rec = s.do(http.MethodPost, "/users", map[string]string{"first_name": "Ada", "last_name": "Lovelace"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user: %d", rec.Code)
	}

	rec = s.do(http.MethodPost, "/users/1/tasks", map[string]string{"item_desc": "write notes"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodGet, "/users/1/tasks", nil)
	var tasks []taskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("unmarshal tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Description != "write notes" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}

	rec = s.do(http.MethodPatch, "/tasks/1", map[string]string{"description": "publish notes"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on update, got %d", rec.Code)
	}

	rec = s.do(http.MethodGet, "/users/1/tasks/1", nil)
	var task taskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if task.Description != "publish notes" {
		t.Fatalf("description = %q", task.Description)
	}

	rec = s.do(http.MethodPatch, "/tasks/1", map[string]string{"description": ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty description, got %d", rec.Code)
	}

	if rec = s.do(http.MethodDelete, "/tasks/1", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", rec.Code)
	}
	if rec = s.do(http.MethodDelete, "/tasks/1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestInvalidPathParameter(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/users/abc/tasks", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestConnectivityFailureIs503(t *testing.T) {
	s := newTestServer(t)
	s.conn.AcquireErr = errors.New("pool exhausted")

	rec := s.do(http.MethodGet, "/users", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.ErrorCode != "service_unavailable" {
		t.Fatalf("error_code = %q", body.ErrorCode)
	}
}

func TestBeginFailureIs503(t *testing.T) {
	s := newTestServer(t)
	s.conn.BeginErr = errors.New("too many connections")

	rec := s.do(http.MethodPost, "/users", map[string]string{"first_name": "Ada", "last_name": "Lovelace"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestCommitFailureIs500(t *testing.T) {
	s := newTestServer(t)
	s.conn.CommitErr = errors.New("deferred constraint violated")

	rec := s.do(http.MethodPost, "/users", map[string]string{"first_name": "Ada", "last_name": "Lovelace"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.ErrorCode != "transaction_failed" {
		t.Fatalf("error_code = %q", body.ErrorCode)
	}
}

func TestClientDisconnectIsNotLoggedAsFailure(t *testing.T) {
	base, hook := logrustest.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	h := &handler{log: &logging.Logger{Entry: logrus.NewEntry(base)}}
	commitErr := &connectivity.TxError{Stage: connectivity.StageCommit, Err: sql.ErrTxDone}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	h.writeError(rec, httptest.NewRequest(http.MethodPost, "/users", nil).WithContext(ctx), commitErr)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if entry := hook.LastEntry(); entry == nil || entry.Level != logrus.DebugLevel {
		t.Fatalf("expected a debug entry for a cancelled request, got %+v", entry)
	}

	hook.Reset()
	h.writeError(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/users", nil), commitErr)
	if entry := hook.LastEntry(); entry == nil || entry.Level != logrus.ErrorLevel {
		t.Fatalf("expected an error entry for a live request, got %+v", entry)
	}
}

func TestUnexpectedPortErrorIs500(t *testing.T) {
	s := newTestServer(t)
	s.store.ErrorOnNextCall = errors.New("relation todo_user does not exist")

	rec := s.do(http.MethodGet, "/users", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.ErrorCode != "internal_error" {
		t.Fatalf("error_code = %q", body.ErrorCode)
	}
}

func TestTracingDemoCallsItself(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()
	s.conn.Client = httputil.NewServiceClient(httputil.ServiceClientConfig{BaseURL: srv.URL})

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/tracing-demo", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set(logging.TraceIDHeader, "trace-demo-1")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if string(body) != "Got message: "+tracingDemoGreeting {
		t.Fatalf("body = %q", body)
	}
	if got := resp.Header.Get(logging.TraceIDHeader); got != "trace-demo-1" {
		t.Fatalf("trace id = %q", got)
	}
}

func TestHealthz(t *testing.T) {
	healthy := true
	store := memory.New()
	users := store.Users()
	handler := NewRouter(Deps{
		Conn:   connectivitytest.New(""),
		Users:  user.New(users, users, users, logging.NewNop()),
		Tasks:  todo.New(users, store.Tasks(), store.Tasks(), logging.NewNop()),
		Logger: logging.NewNop(),
		Health: func(ctx context.Context) error {
			if healthy {
				return nil
			}
			return &connectivity.ConnectivityError{Op: "ping", Err: errors.New("connection refused")}
		},
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	healthy = false
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodGet, "/users", nil)

	rec := s.do(http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`todo_service_http_requests_total{method="GET",path="/users",status="200"}`)) {
		t.Fatalf("metrics output missing request counter")
	}
}
