package httpapi

import (
	"context"
	"net/http"

	"github.com/R3E-Network/todo_service/internal/connectivity"
	"github.com/R3E-Network/todo_service/internal/domain/todo"
)

type taskResponse struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

func toTaskResponse(t todo.Task) taskResponse {
	return taskResponse{ID: t.ID, Description: t.Description}
}

type newTaskRequest struct {
	ItemDesc string `json:"item_desc"`
}

type updateTaskRequest struct {
	Description string `json:"description"`
}

func (h *handler) listTasks(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt(r, "user_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	tasks, err := h.tasks.TasksForUser(r.Context(), h.conn, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) getTask(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt(r, "user_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	taskID, err := pathInt(r, "task_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	task, err := h.tasks.TaskForUser(r.Context(), h.conn, userID, taskID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

// createTask checks the owner exists and inserts in one transaction.
func (h *handler) createTask(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt(r, "user_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var payload newTaskRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	id, err := connectivity.WithTransaction(r.Context(), h.conn, func(ctx context.Context, tx connectivity.Transactable) (int, error) {
		return h.tasks.Create(ctx, tx, userID, todo.NewTask{Description: payload.ItemDesc})
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, insertedResponse{ID: id})
}

func (h *handler) updateTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathInt(r, "task_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var payload updateTaskRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.tasks.Update(r.Context(), h.conn, taskID, todo.UpdateTask{Description: payload.Description}); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathInt(r, "task_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.tasks.Delete(r.Context(), h.conn, taskID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
