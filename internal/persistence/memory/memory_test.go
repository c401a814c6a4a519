package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/R3E-Network/todo_service/internal/connectivity"
	"github.com/R3E-Network/todo_service/internal/connectivity/connectivitytest"
	"github.com/R3E-Network/todo_service/internal/domain/todo"
	"github.com/R3E-Network/todo_service/internal/domain/user"
)

func TestMemoryUsersAndTasks(t *testing.T) {
	ctx := context.Background()
	conn := connectivitytest.New("")
	store := New()

	id, err := store.Users().Create(ctx, conn, user.CreateUser{FirstName: "Ada", LastName: "Lovelace"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	exists, err := store.Users().ExistsWithName(ctx, conn, "Ada", "Lovelace")
	if err != nil || !exists {
		t.Fatalf("ExistsWithName = %v, %v", exists, err)
	}

	taskID, err := store.Tasks().Create(ctx, conn, id, todo.NewTask{Description: "notes"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	if _, err := store.Tasks().ByID(ctx, conn, id+1, taskID); !errors.Is(err, todo.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound for foreign owner, got %v", err)
	}

	if err := store.Tasks().Update(ctx, conn, taskID, todo.UpdateTask{Description: "edited"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := store.Tasks().ByID(ctx, conn, id, taskID)
	if err != nil {
		t.Fatalf("by id: %v", err)
	}
	if got.Description != "edited" {
		t.Fatalf("description = %q, want edited", got.Description)
	}

	if err := store.Tasks().Delete(ctx, conn, taskID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Tasks().Delete(ctx, conn, taskID); !errors.Is(err, todo.ErrTaskNotFound) {
		t.Fatalf("second delete: expected ErrTaskNotFound, got %v", err)
	}

	if n := conn.Outstanding(); n != 0 {
		t.Fatalf("expected every handle released, %d outstanding", n)
	}
}

func TestMemoryErrorOnNextCall(t *testing.T) {
	ctx := context.Background()
	conn := connectivitytest.New("")
	store := New()
	boom := errors.New("boom")
	store.ErrorOnNextCall = boom

	if _, err := store.Users().All(ctx, conn); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if _, err := store.Users().All(ctx, conn); err != nil {
		t.Fatalf("injected error should fire once, got %v", err)
	}
}

func TestMemoryHonoursConnectivityFailure(t *testing.T) {
	conn := connectivitytest.New("")
	conn.AcquireErr = errors.New("pool exhausted")

	_, err := New().Users().All(context.Background(), conn)
	if !connectivity.IsConnectivity(err) {
		t.Fatalf("expected connectivity error, got %v", err)
	}
}
