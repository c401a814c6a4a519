// Package memory is a thread-safe in-memory implementation of the user and
// task ports. It is intended for tests and local prototyping.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/R3E-Network/todo_service/internal/connectivity"
	"github.com/R3E-Network/todo_service/internal/domain/todo"
	"github.com/R3E-Network/todo_service/internal/domain/user"
)

// Memory holds users and tasks. Every port call borrows a handle from the
// Connectivity it receives, so connection failures injected there surface the
// same way they would against a database.
type Memory struct {
	mu         sync.RWMutex
	nextUserID int
	nextTaskID int
	users      map[int]user.User
	tasks      map[int]todo.Task

	// Error injection for testing error paths
	ErrorOnNextCall error
}

// New creates an empty store.
func New() *Memory {
	return &Memory{
		users: make(map[int]user.User),
		tasks: make(map[int]todo.Task),
	}
}

// Users returns the user ports backed by m.
func (m *Memory) Users() *UserStore {
	return &UserStore{m: m}
}

// Tasks returns the task ports backed by m.
func (m *Memory) Tasks() *TaskStore {
	return &TaskStore{m: m}
}

// Reset clears all data.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextUserID = 0
	m.nextTaskID = 0
	m.users = make(map[int]user.User)
	m.tasks = make(map[int]todo.Task)
	m.ErrorOnNextCall = nil
}

// checkError returns and clears any injected error. Callers hold mu.
func (m *Memory) checkError() error {
	if m.ErrorOnNextCall != nil {
		err := m.ErrorOnNextCall
		m.ErrorOnNextCall = nil
		return err
	}
	return nil
}

func borrow(ctx context.Context, c connectivity.Connectivity) (func(), error) {
	h, err := c.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return h.Release, nil
}

// UserStore implements user.Reader, user.Writer and user.Detector.
type UserStore struct {
	m *Memory
}

var (
	_ user.Reader   = (*UserStore)(nil)
	_ user.Writer   = (*UserStore)(nil)
	_ user.Detector = (*UserStore)(nil)
)

func (s *UserStore) All(ctx context.Context, c connectivity.Connectivity) ([]user.User, error) {
	release, err := borrow(ctx, c)
	if err != nil {
		return nil, err
	}
	defer release()

	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.checkError(); err != nil {
		return nil, err
	}

	out := make([]user.User, 0, len(s.m.users))
	for _, u := range s.m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *UserStore) ByID(ctx context.Context, c connectivity.Connectivity, id int) (user.User, error) {
	release, err := borrow(ctx, c)
	if err != nil {
		return user.User{}, err
	}
	defer release()

	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.checkError(); err != nil {
		return user.User{}, err
	}

	u, ok := s.m.users[id]
	if !ok {
		return user.User{}, user.ErrUserNotFound
	}
	return u, nil
}

func (s *UserStore) Create(ctx context.Context, c connectivity.Connectivity, u user.CreateUser) (int, error) {
	release, err := borrow(ctx, c)
	if err != nil {
		return 0, err
	}
	defer release()

	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.checkError(); err != nil {
		return 0, err
	}

	s.m.nextUserID++
	id := s.m.nextUserID
	s.m.users[id] = user.User{ID: id, FirstName: u.FirstName, LastName: u.LastName}
	return id, nil
}

func (s *UserStore) Exists(ctx context.Context, c connectivity.Connectivity, id int) (bool, error) {
	release, err := borrow(ctx, c)
	if err != nil {
		return false, err
	}
	defer release()

	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.checkError(); err != nil {
		return false, err
	}

	_, ok := s.m.users[id]
	return ok, nil
}

func (s *UserStore) ExistsWithName(ctx context.Context, c connectivity.Connectivity, firstName, lastName string) (bool, error) {
	release, err := borrow(ctx, c)
	if err != nil {
		return false, err
	}
	defer release()

	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.checkError(); err != nil {
		return false, err
	}

	for _, u := range s.m.users {
		if u.FirstName == firstName && u.LastName == lastName {
			return true, nil
		}
	}
	return false, nil
}

// TaskStore implements todo.Reader and todo.Writer.
type TaskStore struct {
	m *Memory
}

var (
	_ todo.Reader = (*TaskStore)(nil)
	_ todo.Writer = (*TaskStore)(nil)
)

func (s *TaskStore) ForUser(ctx context.Context, c connectivity.Connectivity, userID int) ([]todo.Task, error) {
	release, err := borrow(ctx, c)
	if err != nil {
		return nil, err
	}
	defer release()

	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.checkError(); err != nil {
		return nil, err
	}

	out := []todo.Task{}
	for _, t := range s.m.tasks {
		if t.OwnerUserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *TaskStore) ByID(ctx context.Context, c connectivity.Connectivity, userID, taskID int) (todo.Task, error) {
	release, err := borrow(ctx, c)
	if err != nil {
		return todo.Task{}, err
	}
	defer release()

	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.checkError(); err != nil {
		return todo.Task{}, err
	}

	t, ok := s.m.tasks[taskID]
	if !ok || t.OwnerUserID != userID {
		return todo.Task{}, todo.ErrTaskNotFound
	}
	return t, nil
}

func (s *TaskStore) Create(ctx context.Context, c connectivity.Connectivity, userID int, t todo.NewTask) (int, error) {
	release, err := borrow(ctx, c)
	if err != nil {
		return 0, err
	}
	defer release()

	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.checkError(); err != nil {
		return 0, err
	}

	s.m.nextTaskID++
	id := s.m.nextTaskID
	s.m.tasks[id] = todo.Task{ID: id, OwnerUserID: userID, Description: t.Description}
	return id, nil
}

func (s *TaskStore) Update(ctx context.Context, c connectivity.Connectivity, taskID int, t todo.UpdateTask) error {
	release, err := borrow(ctx, c)
	if err != nil {
		return err
	}
	defer release()

	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.checkError(); err != nil {
		return err
	}

	existing, ok := s.m.tasks[taskID]
	if !ok {
		return todo.ErrTaskNotFound
	}
	existing.Description = t.Description
	s.m.tasks[taskID] = existing
	return nil
}

func (s *TaskStore) Delete(ctx context.Context, c connectivity.Connectivity, taskID int) error {
	release, err := borrow(ctx, c)
	if err != nil {
		return err
	}
	defer release()

	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.checkError(); err != nil {
		return err
	}

	if _, ok := s.m.tasks[taskID]; !ok {
		return todo.ErrTaskNotFound
	}
	delete(s.m.tasks, taskID)
	return nil
}
