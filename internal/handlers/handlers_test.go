package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/taskhub/apiserver/internal/auth"
	"github.com/taskhub/apiserver/internal/notify"
	"github.com/taskhub/apiserver/internal/services"
	"github.com/taskhub/apiserver/internal/store"
	"github.com/taskhub/apiserver/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testJWTSecret = "handler-test-secret"

// fakeUserRepo is an in-memory services.UserRepository.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]types.User
	clock int64
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[primitive.ObjectID]types.User{}}
}

func (r *fakeUserRepo) now() time.Time {
	r.clock++
	return time.Unix(1_700_000_000, 0).Add(time.Duration(r.clock) * time.Millisecond)
}

func (r *fakeUserRepo) GetByID(_ context.Context, id primitive.ObjectID) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrDuplicateEmail
		}
	}
	user.ID = primitive.NewObjectID()
	now := r.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Tokens == nil {
		user.Tokens = []string{}
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) Update(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.users[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	for id, existing := range r.users {
		if id != user.ID && existing.Email == user.Email {
			return types.User{}, store.ErrDuplicateEmail
		}
	}
	current.Name = user.Name
	current.Email = user.Email
	current.Age = user.Age
	current.PasswordHash = user.PasswordHash
	current.UpdatedAt = r.now()
	r.users[user.ID] = current
	return current, nil
}

func (r *fakeUserRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *fakeUserRepo) AddToken(_ context.Context, id primitive.ObjectID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.Tokens = append(user.Tokens, token)
	r.users[id] = user
	return nil
}

func (r *fakeUserRepo) RemoveToken(_ context.Context, id primitive.ObjectID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	kept := user.Tokens[:0]
	for _, t := range user.Tokens {
		if t != token {
			kept = append(kept, t)
		}
	}
	user.Tokens = kept
	r.users[id] = user
	return nil
}

func (r *fakeUserRepo) ClearTokens(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.Tokens = []string{}
	r.users[id] = user
	return nil
}

func (r *fakeUserRepo) SetAvatar(_ context.Context, id primitive.ObjectID, avatar []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.Avatar = avatar
	r.users[id] = user
	return nil
}

func (r *fakeUserRepo) ClearAvatar(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.Avatar = nil
	r.users[id] = user
	return nil
}

// fakeTaskRepo is an in-memory services.TaskRepository.
type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[primitive.ObjectID]types.Task
	clock int64
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: map[primitive.ObjectID]types.Task{}}
}

func (r *fakeTaskRepo) now() time.Time {
	r.clock++
	return time.Unix(1_700_000_000, 0).Add(time.Duration(r.clock) * time.Millisecond)
}

func (r *fakeTaskRepo) Create(_ context.Context, task types.Task) (types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task.ID = primitive.NewObjectID()
	now := r.now()
	task.CreatedAt = now
	task.UpdatedAt = now
	r.tasks[task.ID] = task
	return task, nil
}

func (r *fakeTaskRepo) GetForOwner(_ context.Context, id, owner primitive.ObjectID) (types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok || task.Owner != owner {
		return types.Task{}, store.ErrNotFound
	}
	return task, nil
}

func (r *fakeTaskRepo) ListForOwner(_ context.Context, owner primitive.ObjectID, filter store.TaskFilter) ([]types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks := []types.Task{}
	for _, task := range r.tasks {
		if task.Owner != owner {
			continue
		}
		if filter.Completed != nil && task.Completed != *filter.Completed {
			continue
		}
		tasks = append(tasks, task)
	}

	sort.Slice(tasks, func(i, j int) bool {
		less := tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		switch filter.SortField {
		case "description":
			less = tasks[i].Description < tasks[j].Description
		case "completed":
			less = !tasks[i].Completed && tasks[j].Completed
		case "updated_at":
			less = tasks[i].UpdatedAt.Before(tasks[j].UpdatedAt)
		}
		if filter.SortField != "" && filter.SortDesc {
			return !less
		}
		return less
	})

	if filter.Skip > 0 {
		if filter.Skip >= int64(len(tasks)) {
			return []types.Task{}, nil
		}
		tasks = tasks[filter.Skip:]
	}
	if filter.Limit > 0 && filter.Limit < int64(len(tasks)) {
		tasks = tasks[:filter.Limit]
	}
	return tasks, nil
}

func (r *fakeTaskRepo) Update(_ context.Context, task types.Task) (types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.tasks[task.ID]
	if !ok || current.Owner != task.Owner {
		return types.Task{}, store.ErrNotFound
	}
	current.Description = task.Description
	current.Completed = task.Completed
	current.UpdatedAt = r.now()
	r.tasks[task.ID] = current
	return current, nil
}

func (r *fakeTaskRepo) DeleteForOwner(_ context.Context, id, owner primitive.ObjectID) (types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok || task.Owner != owner {
		return types.Task{}, store.ErrNotFound
	}
	delete(r.tasks, id)
	return task, nil
}

func (r *fakeTaskRepo) DeleteAllForOwner(_ context.Context, owner primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, task := range r.tasks {
		if task.Owner == owner {
			delete(r.tasks, id)
		}
	}
	return nil
}

// testEnv is a fully wired API surface over in-memory repositories.
type testEnv struct {
	router *chi.Mux
	users  *fakeUserRepo
	tasks  *fakeTaskRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := newFakeUserRepo()
	tasks := newFakeTaskRepo()

	userService := services.NewUserService(users, tasks)
	taskService := services.NewTaskService(tasks)
	tokenService := auth.NewService(testJWTSecret, users)
	authMiddleware := RequireAuth(tokenService)

	router := chi.NewRouter()
	router.Route("/users", func(r chi.Router) {
		UserRouter(r, userService, tokenService, notify.NoopMailer{}, authMiddleware)
	})
	router.Route("/tasks", func(r chi.Router) {
		TaskRouter(r, taskService, authMiddleware)
	})

	return &testEnv{router: router, users: users, tasks: tasks}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	e.router.ServeHTTP(recorder, req)
	return recorder
}

// signup registers a user and returns the response body.
func (e *testEnv) signup(t *testing.T, name, email, password string) AuthResponse {
	t.Helper()

	recorder := e.do(t, http.MethodPost, "/users", "", map[string]any{
		"name":     name,
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp
}

func decodeJSON[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &value))
	return value
}
