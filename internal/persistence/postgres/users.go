// Package postgres implements the user and task ports against PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/todo_service/internal/connectivity"
	"github.com/R3E-Network/todo_service/internal/domain/user"
)

type userRow struct {
	ID        int    `db:"id"`
	FirstName string `db:"first_name"`
	LastName  string `db:"last_name"`
}

func (r userRow) toDomain() user.User {
	return user.User{ID: r.ID, FirstName: r.FirstName, LastName: r.LastName}
}

// UserStore reads and writes the todo_user table.
type UserStore struct{}

var (
	_ user.Reader   = UserStore{}
	_ user.Writer   = UserStore{}
	_ user.Detector = UserStore{}
)

func (UserStore) All(ctx context.Context, c connectivity.Connectivity) ([]user.User, error) {
	h, err := c.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer h.Release()

	var rows []userRow
	if err := sqlx.SelectContext(ctx, h, &rows, `
		SELECT id, first_name, last_name
		FROM todo_user
		ORDER BY id
	`); err != nil {
		return nil, classify("select users", err)
	}

	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toDomain())
	}
	return users, nil
}

func (UserStore) ByID(ctx context.Context, c connectivity.Connectivity, id int) (user.User, error) {
	h, err := c.Acquire(ctx)
	if err != nil {
		return user.User{}, err
	}
	defer h.Release()

	var row userRow
	err = sqlx.GetContext(ctx, h, &row, `
		SELECT id, first_name, last_name
		FROM todo_user
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, user.ErrUserNotFound
	}
	if err != nil {
		return user.User{}, classify("select user", err)
	}
	return row.toDomain(), nil
}

func (UserStore) Create(ctx context.Context, c connectivity.Connectivity, u user.CreateUser) (int, error) {
	h, err := c.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer h.Release()

	var id int
	err = sqlx.GetContext(ctx, h, &id, `
		INSERT INTO todo_user (first_name, last_name)
		VALUES ($1, $2)
		RETURNING id
	`, u.FirstName, u.LastName)
	if isUniqueViolation(err) {
		return 0, user.ErrUserExists
	}
	if err != nil {
		return 0, classify("insert user", err)
	}
	return id, nil
}

func (UserStore) Exists(ctx context.Context, c connectivity.Connectivity, id int) (bool, error) {
	return exists(ctx, c, "check user", `SELECT EXISTS(SELECT 1 FROM todo_user WHERE id = $1)`, id)
}

func (UserStore) ExistsWithName(ctx context.Context, c connectivity.Connectivity, firstName, lastName string) (bool, error) {
	return exists(ctx, c, "check user name", `
		SELECT EXISTS(SELECT 1 FROM todo_user WHERE first_name = $1 AND last_name = $2)
	`, firstName, lastName)
}

func exists(ctx context.Context, c connectivity.Connectivity, op, query string, args ...interface{}) (bool, error) {
	h, err := c.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer h.Release()

	var found bool
	if err := sqlx.GetContext(ctx, h, &found, query, args...); err != nil {
		return false, classify(op, err)
	}
	return found, nil
}
