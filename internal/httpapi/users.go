package httpapi

import (
	"context"
	"net/http"

	"github.com/R3E-Network/todo_service/internal/connectivity"
	"github.com/R3E-Network/todo_service/internal/domain/user"
)

type newUserRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (n newUserRequest) toDomain() user.CreateUser {
	return user.CreateUser{FirstName: n.FirstName, LastName: n.LastName}
}

type importResponse struct {
	IDs []int `json:"ids"`
}

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context(), h.conn)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// createUser checks for a duplicate name and inserts in one transaction.
func (h *handler) createUser(w http.ResponseWriter, r *http.Request) {
	var payload newUserRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	id, err := connectivity.WithTransaction(r.Context(), h.conn, func(ctx context.Context, tx connectivity.Transactable) (int, error) {
		return h.users.Create(ctx, tx, payload.toDomain())
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, insertedResponse{ID: id})
}

// importUsers creates a batch of users atomically. Each create draws its own
// boundary, which joins the batch transaction.
func (h *handler) importUsers(w http.ResponseWriter, r *http.Request) {
	var payload []newUserRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	ids, err := connectivity.WithTransaction(r.Context(), h.conn, func(ctx context.Context, tx connectivity.Transactable) ([]int, error) {
		ids := make([]int, 0, len(payload))
		for _, u := range payload {
			id, err := h.createOne(ctx, tx, u.toDomain())
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, importResponse{IDs: ids})
}

func (h *handler) createOne(ctx context.Context, c connectivity.Transactable, u user.CreateUser) (int, error) {
	return connectivity.WithTransaction(ctx, c, func(ctx context.Context, tx connectivity.Transactable) (int, error) {
		return h.users.Create(ctx, tx, u)
	})
}
