package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/todo_service/internal/connectivity"
	"github.com/R3E-Network/todo_service/internal/domain/todo"
)

type taskRow struct {
	ID       int    `db:"id"`
	UserID   int    `db:"user_id"`
	ItemDesc string `db:"item_desc"`
}

func (r taskRow) toDomain() todo.Task {
	return todo.Task{ID: r.ID, OwnerUserID: r.UserID, Description: r.ItemDesc}
}

// TaskStore reads and writes the todo_item table.
type TaskStore struct{}

var (
	_ todo.Reader = TaskStore{}
	_ todo.Writer = TaskStore{}
)

func (TaskStore) ForUser(ctx context.Context, c connectivity.Connectivity, userID int) ([]todo.Task, error) {
	h, err := c.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer h.Release()

	var rows []taskRow
	if err := sqlx.SelectContext(ctx, h, &rows, `
		SELECT id, user_id, item_desc
		FROM todo_item
		WHERE user_id = $1
		ORDER BY id
	`, userID); err != nil {
		return nil, classify("select tasks", err)
	}

	tasks := make([]todo.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.toDomain())
	}
	return tasks, nil
}

func (TaskStore) ByID(ctx context.Context, c connectivity.Connectivity, userID, taskID int) (todo.Task, error) {
	h, err := c.Acquire(ctx)
	if err != nil {
		return todo.Task{}, err
	}
	defer h.Release()

	var row taskRow
	err = sqlx.GetContext(ctx, h, &row, `
		SELECT id, user_id, item_desc
		FROM todo_item
		WHERE user_id = $1 AND id = $2
	`, userID, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return todo.Task{}, todo.ErrTaskNotFound
	}
	if err != nil {
		return todo.Task{}, classify("select task", err)
	}
	return row.toDomain(), nil
}

func (TaskStore) Create(ctx context.Context, c connectivity.Connectivity, userID int, t todo.NewTask) (int, error) {
	h, err := c.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer h.Release()

	var id int
	if err := sqlx.GetContext(ctx, h, &id, `
		INSERT INTO todo_item (user_id, item_desc)
		VALUES ($1, $2)
		RETURNING id
	`, userID, t.Description); err != nil {
		return 0, classify("insert task", err)
	}
	return id, nil
}

func (TaskStore) Update(ctx context.Context, c connectivity.Connectivity, taskID int, t todo.UpdateTask) error {
	return execAffecting(ctx, c, "update task", `
		UPDATE todo_item
		SET item_desc = $2
		WHERE id = $1
	`, taskID, t.Description)
}

func (TaskStore) Delete(ctx context.Context, c connectivity.Connectivity, taskID int) error {
	return execAffecting(ctx, c, "delete task", `DELETE FROM todo_item WHERE id = $1`, taskID)
}

// execAffecting runs a statement that must touch exactly one task.
func execAffecting(ctx context.Context, c connectivity.Connectivity, op, query string, args ...interface{}) error {
	h, err := c.Acquire(ctx)
	if err != nil {
		return err
	}
	defer h.Release()

	result, err := h.ExecContext(ctx, query, args...)
	if err != nil {
		return classify(op, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return todo.ErrTaskNotFound
	}
	return nil
}
