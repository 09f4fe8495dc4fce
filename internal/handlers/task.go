package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/taskhub/apiserver/internal/services"
	"github.com/taskhub/apiserver/internal/store"
	"github.com/taskhub/apiserver/types"
)

// sortableFields maps the API sort keys onto bson field names.
var sortableFields = map[string]string{
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
	"description": "description",
	"completed":   "completed",
}

// TaskHandler provides task CRUD endpoints scoped to the caller.
type TaskHandler struct {
	tasks *services.TaskService
}

// NewTaskHandler constructs a TaskHandler with the provided service.
func NewTaskHandler(tasks *services.TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// TaskRouter registers task routes on the given router. Every route
// requires authentication.
func TaskRouter(r chi.Router, tasks *services.TaskService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewTaskHandler(tasks)

	r.Use(authMiddleware)
	r.Post("/", handler.CreateTask)
	r.Get("/", handler.ListTasks)
	r.Route("/{taskID}", func(r chi.Router) {
		r.Get("/", handler.GetTask)
		r.Patch("/", handler.UpdateTask)
		r.Delete("/", handler.DeleteTask)
	})
}

type CreateTaskRequest struct {
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// CreateTask creates a task owned by the caller. Any owner value in the
// request body is ignored: the DTO simply has no owner field.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, authFailureMessage)
		return
	}

	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}

	task, err := h.tasks.Create(r.Context(), types.Task{
		Description: req.Description,
		Completed:   req.Completed,
		Owner:       user.ID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	writeJSON(w, http.StatusCreated, task.Public())
}

// ListTasks returns the caller's tasks, optionally filtered by the
// completed flag, sorted and paginated.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, authFailureMessage)
		return
	}

	filter, err := parseTaskFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tasks, err := h.tasks.List(r.Context(), user.ID, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	items := make([]types.PublicTask, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, task.Public())
	}
	writeJSON(w, http.StatusOK, items)
}

// GetTask returns one of the caller's tasks. Tasks of other users are
// reported as missing.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, authFailureMessage)
		return
	}

	id, err := store.ParseID(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	task, err := h.tasks.Get(r.Context(), id, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch task")
		return
	}

	writeJSON(w, http.StatusOK, task.Public())
}

// UpdateTask patches description and/or completed on one of the
// caller's tasks. Unknown keys reject the request before any mutation.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, authFailureMessage)
		return
	}

	id, err := store.ParseID(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var updates map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	for key := range updates {
		switch key {
		case "description", "completed":
		default:
			writeError(w, http.StatusBadRequest, "invalid updates")
			return
		}
	}

	task, err := h.tasks.Get(r.Context(), id, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch task")
		return
	}

	if raw, ok := updates["description"]; ok {
		var description string
		if err := json.Unmarshal(raw, &description); err != nil {
			writeError(w, http.StatusBadRequest, "invalid description")
			return
		}
		description = strings.TrimSpace(description)
		if description == "" {
			writeError(w, http.StatusBadRequest, "description is required")
			return
		}
		task.Description = description
	}

	if raw, ok := updates["completed"]; ok {
		var completed bool
		if err := json.Unmarshal(raw, &completed); err != nil {
			writeError(w, http.StatusBadRequest, "invalid completed value")
			return
		}
		task.Completed = completed
	}

	updated, err := h.tasks.Update(r.Context(), task)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}

	writeJSON(w, http.StatusOK, updated.Public())
}

// DeleteTask removes one of the caller's tasks and returns it.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, authFailureMessage)
		return
	}

	id, err := store.ParseID(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	task, err := h.tasks.Delete(r.Context(), id, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}

	writeJSON(w, http.StatusOK, task.Public())
}

func parseTaskFilter(r *http.Request) (store.TaskFilter, error) {
	filter := store.TaskFilter{}
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("completed")); raw != "" {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			return store.TaskFilter{}, errors.New("invalid completed filter")
		}
		filter.Completed = &completed
	}

	if raw := strings.TrimSpace(query.Get("sortBy")); raw != "" {
		field, direction, _ := strings.Cut(raw, ":")
		bsonField, ok := sortableFields[field]
		if !ok {
			return store.TaskFilter{}, errors.New("invalid sort field")
		}
		filter.SortField = bsonField
		// Anything other than "desc" sorts ascending.
		filter.SortDesc = direction == "desc"
	}

	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || limit < 0 {
			return store.TaskFilter{}, errors.New("invalid limit")
		}
		filter.Limit = limit
	}

	if raw := strings.TrimSpace(query.Get("skip")); raw != "" {
		skip, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || skip < 0 {
			return store.TaskFilter{}, errors.New("invalid skip")
		}
		filter.Skip = skip
	}

	return filter, nil
}
