package services

import (
	"context"

	"github.com/taskhub/apiserver/internal/store"
	"github.com/taskhub/apiserver/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TaskRepository defines persistence operations for tasks.
type TaskRepository interface {
	Create(ctx context.Context, task types.Task) (types.Task, error)
	GetForOwner(ctx context.Context, id, owner primitive.ObjectID) (types.Task, error)
	ListForOwner(ctx context.Context, owner primitive.ObjectID, filter store.TaskFilter) ([]types.Task, error)
	Update(ctx context.Context, task types.Task) (types.Task, error)
	DeleteForOwner(ctx context.Context, id, owner primitive.ObjectID) (types.Task, error)
	DeleteAllForOwner(ctx context.Context, owner primitive.ObjectID) error
}

// TaskService encapsulates task use-cases. Every operation is scoped to
// the owning user.
type TaskService struct {
	repo TaskRepository
}

func NewTaskService(repo TaskRepository) *TaskService {
	return &TaskService{repo: repo}
}

func (s *TaskService) Create(ctx context.Context, task types.Task) (types.Task, error) {
	return s.repo.Create(ctx, task)
}

func (s *TaskService) Get(ctx context.Context, id, owner primitive.ObjectID) (types.Task, error) {
	return s.repo.GetForOwner(ctx, id, owner)
}

func (s *TaskService) List(ctx context.Context, owner primitive.ObjectID, filter store.TaskFilter) ([]types.Task, error) {
	return s.repo.ListForOwner(ctx, owner, filter)
}

func (s *TaskService) Update(ctx context.Context, task types.Task) (types.Task, error) {
	return s.repo.Update(ctx, task)
}

func (s *TaskService) Delete(ctx context.Context, id, owner primitive.ObjectID) (types.Task, error) {
	return s.repo.DeleteForOwner(ctx, id, owner)
}
