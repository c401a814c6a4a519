package user_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/R3E-Network/todo_service/internal/connectivity"
	"github.com/R3E-Network/todo_service/internal/connectivity/connectivitytest"
	"github.com/R3E-Network/todo_service/internal/domain/user"
	"github.com/R3E-Network/todo_service/internal/logging"
	"github.com/R3E-Network/todo_service/internal/persistence/memory"
)

func newService() (*user.Service, *memory.Memory) {
	store := memory.New()
	users := store.Users()
	return user.New(users, users, users, logging.NewNop()), store
}

func TestServiceCreateAndList(t *testing.T) {
	ctx := context.Background()
	conn := connectivitytest.New("")
	svc, _ := newService()

	id, err := svc.Create(ctx, conn, user.CreateUser{FirstName: "Ada", LastName: "Lovelace"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected id to be generated")
	}

	list, err := svc.List(ctx, conn)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].FirstName != "Ada" {
		t.Fatalf("unexpected users: %+v", list)
	}

	got, err := svc.Get(ctx, conn, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastName != "Lovelace" {
		t.Fatalf("last name = %q", got.LastName)
	}
}

func TestServiceCreateRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	conn := connectivitytest.New("")
	svc, _ := newService()

	if _, err := svc.Create(ctx, conn, user.CreateUser{FirstName: "Ada", LastName: "Lovelace"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := svc.Create(ctx, conn, user.CreateUser{FirstName: "Ada", LastName: "Lovelace"})
	if !errors.Is(err, user.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestServiceCreateValidatesNames(t *testing.T) {
	svc, _ := newService()
	_, err := svc.Create(context.Background(), connectivitytest.New(""), user.CreateUser{
		FirstName: strings.Repeat("A", 35),
		LastName:  strings.Repeat("B", 55),
	})
	if !errors.Is(err, user.ErrInvalidUser) {
		t.Fatalf("expected ErrInvalidUser, got %v", err)
	}
}

func TestServiceListPropagatesPortError(t *testing.T) {
	svc, store := newService()
	store.ErrorOnNextCall = errors.New("relation does not exist")

	_, err := svc.List(context.Background(), connectivitytest.New(""))
	if err == nil || !strings.Contains(err.Error(), "fetch users") {
		t.Fatalf("expected wrapped port error, got %v", err)
	}
}

func TestServiceGetMissingUser(t *testing.T) {
	svc, _ := newService()
	_, err := svc.Get(context.Background(), connectivitytest.New(""), 9)
	if !errors.Is(err, user.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestVerifyExists(t *testing.T) {
	ctx := context.Background()
	conn := connectivitytest.New("")
	svc, store := newService()

	id, err := svc.Create(ctx, conn, user.CreateUser{FirstName: "Grace", LastName: "Hopper"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := user.VerifyExists(ctx, conn, store.Users(), id); err != nil {
		t.Fatalf("verify existing user: %v", err)
	}
	if err := user.VerifyExists(ctx, conn, store.Users(), id+1); !errors.Is(err, user.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	conn.AcquireErr = errors.New("connection refused")
	if err := user.VerifyExists(ctx, conn, store.Users(), id); !connectivity.IsConnectivity(err) {
		t.Fatalf("expected connectivity error, got %v", err)
	}
}

func TestServiceNeverDrawsTransactionBoundaries(t *testing.T) {
	conn := connectivitytest.New("")
	svc, _ := newService()

	if _, err := svc.Create(context.Background(), conn, user.CreateUser{FirstName: "Ada", LastName: "Lovelace"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if begins, _, _ := conn.Snapshot(); begins != 0 {
		t.Fatalf("service began %d transactions", begins)
	}
}
