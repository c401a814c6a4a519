// Package user holds the business rules for users who own to-do tasks.
package user

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/R3E-Network/todo_service/internal/connectivity"
	"github.com/R3E-Network/todo_service/internal/logging"
)

const (
	MaxFirstNameLength = 30
	MaxLastNameLength  = 50
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidUser  = errors.New("invalid user")
)

// User is a person who can own to-do tasks.
type User struct {
	ID        int    `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// CreateUser carries the data needed to register a user.
type CreateUser struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Validate checks name lengths.
func (c CreateUser) Validate() error {
	if utf8.RuneCountInString(c.FirstName) > MaxFirstNameLength {
		return fmt.Errorf("%w: first_name longer than %d characters", ErrInvalidUser, MaxFirstNameLength)
	}
	if utf8.RuneCountInString(c.LastName) > MaxLastNameLength {
		return fmt.Errorf("%w: last_name longer than %d characters", ErrInvalidUser, MaxLastNameLength)
	}
	return nil
}

// Reader loads users.
type Reader interface {
	All(ctx context.Context, c connectivity.Connectivity) ([]User, error)
	// ByID returns ErrUserNotFound when no user has id.
	ByID(ctx context.Context, c connectivity.Connectivity, id int) (User, error)
}

// Writer stores users.
type Writer interface {
	Create(ctx context.Context, c connectivity.Connectivity, u CreateUser) (int, error)
}

// Detector answers existence questions.
type Detector interface {
	Exists(ctx context.Context, c connectivity.Connectivity, id int) (bool, error)
	ExistsWithName(ctx context.Context, c connectivity.Connectivity, firstName, lastName string) (bool, error)
}

// Service implements the user use cases.
type Service struct {
	reader Reader
	writer Writer
	detect Detector
	log    *logging.Logger
}

// New creates a user service.
func New(reader Reader, writer Writer, detect Detector, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("user")
	}
	return &Service{reader: reader, writer: writer, detect: detect, log: log}
}

// List returns every user.
func (s *Service) List(ctx context.Context, c connectivity.Connectivity) ([]User, error) {
	users, err := s.reader.All(ctx, c)
	if err != nil {
		s.log.WithTrace(ctx).WithError(err).Error("user fetch failure")
		return nil, fmt.Errorf("fetch users: %w", err)
	}
	return users, nil
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, c connectivity.Connectivity, id int) (User, error) {
	u, err := s.reader.ByID(ctx, c, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, err
		}
		return User{}, fmt.Errorf("fetch user %d: %w", id, err)
	}
	return u, nil
}

// Create registers a user unless one with the same name already exists. The
// check and the insert only form a unit when c is transactional.
func (s *Service) Create(ctx context.Context, c connectivity.Connectivity, u CreateUser) (int, error) {
	if err := u.Validate(); err != nil {
		return 0, err
	}

	exists, err := s.detect.ExistsWithName(ctx, c, u.FirstName, u.LastName)
	if err != nil {
		return 0, fmt.Errorf("look up user during creation: %w", err)
	}
	if exists {
		return 0, ErrUserExists
	}

	id, err := s.writer.Create(ctx, c, u)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	s.log.WithTrace(ctx).WithField("user_id", id).Info("user created")
	return id, nil
}

// VerifyExists returns ErrUserNotFound unless a user with id exists.
func VerifyExists(ctx context.Context, c connectivity.Connectivity, detect Detector, id int) error {
	exists, err := detect.Exists(ctx, c, id)
	if err != nil {
		return fmt.Errorf("check user %d: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("%w: id %d", ErrUserNotFound, id)
	}
	return nil
}
