// Package todo holds the business rules for users' to-do tasks.
package todo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/R3E-Network/todo_service/internal/connectivity"
	"github.com/R3E-Network/todo_service/internal/domain/user"
	"github.com/R3E-Network/todo_service/internal/logging"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrInvalidTask  = errors.New("invalid task")
)

// Task is a single to-do item owned by a user.
type Task struct {
	ID          int
	OwnerUserID int
	Description string
}

// NewTask is the input for creating a task.
type NewTask struct {
	Description string
}

func (t NewTask) Validate() error {
	return validateDescription(t.Description)
}

// UpdateTask replaces a task's content.
type UpdateTask struct {
	Description string
}

func (t UpdateTask) Validate() error {
	return validateDescription(t.Description)
}

func validateDescription(desc string) error {
	if strings.TrimSpace(desc) == "" {
		return fmt.Errorf("%w: description must not be empty", ErrInvalidTask)
	}
	return nil
}

// Reader loads tasks.
type Reader interface {
	ForUser(ctx context.Context, c connectivity.Connectivity, userID int) ([]Task, error)
	// ByID returns ErrTaskNotFound unless userID owns taskID.
	ByID(ctx context.Context, c connectivity.Connectivity, userID, taskID int) (Task, error)
}

// Writer stores tasks. Update and Delete return ErrTaskNotFound when no row matched.
type Writer interface {
	Create(ctx context.Context, c connectivity.Connectivity, userID int, t NewTask) (int, error)
	Update(ctx context.Context, c connectivity.Connectivity, taskID int, t UpdateTask) error
	Delete(ctx context.Context, c connectivity.Connectivity, taskID int) error
}

// Service implements the task use cases.
type Service struct {
	users  user.Detector
	reader Reader
	writer Writer
	log    *logging.Logger
}

// New creates a task service.
func New(users user.Detector, reader Reader, writer Writer, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("todo")
	}
	return &Service{users: users, reader: reader, writer: writer, log: log}
}

// TasksForUser lists the tasks owned by userID.
func (s *Service) TasksForUser(ctx context.Context, c connectivity.Connectivity, userID int) ([]Task, error) {
	if err := user.VerifyExists(ctx, c, s.users, userID); err != nil {
		return nil, err
	}
	tasks, err := s.reader.ForUser(ctx, c, userID)
	if err != nil {
		return nil, fmt.Errorf("look up a user's tasks: %w", err)
	}
	return tasks, nil
}

// TaskForUser returns one task owned by userID.
func (s *Service) TaskForUser(ctx context.Context, c connectivity.Connectivity, userID, taskID int) (Task, error) {
	if err := user.VerifyExists(ctx, c, s.users, userID); err != nil {
		return Task{}, err
	}
	task, err := s.reader.ByID(ctx, c, userID, taskID)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return Task{}, err
		}
		return Task{}, fmt.Errorf("look up a user's task by id: %w", err)
	}
	return task, nil
}

// Create adds a task for userID.
func (s *Service) Create(ctx context.Context, c connectivity.Connectivity, userID int, t NewTask) (int, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	if err := user.VerifyExists(ctx, c, s.users, userID); err != nil {
		return 0, err
	}
	id, err := s.writer.Create(ctx, c, userID, t)
	if err != nil {
		return 0, fmt.Errorf("create a task for a user: %w", err)
	}
	s.log.WithTrace(ctx).WithFields(map[string]interface{}{"user_id": userID, "task_id": id}).Info("task created")
	return id, nil
}

// Update replaces the content of a task.
func (s *Service) Update(ctx context.Context, c connectivity.Connectivity, taskID int, t UpdateTask) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := s.writer.Update(ctx, c, taskID, t); err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return err
		}
		return fmt.Errorf("update task %d: %w", taskID, err)
	}
	return nil
}

// Delete removes a task.
func (s *Service) Delete(ctx context.Context, c connectivity.Connectivity, taskID int) error {
	if err := s.writer.Delete(ctx, c, taskID); err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return err
		}
		return fmt.Errorf("delete task %d: %w", taskID, err)
	}
	return nil
}
