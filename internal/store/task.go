package store

import (
	"context"
	"errors"
	"time"

	"github.com/taskhub/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const tasksCollection = "tasks"

// TaskFilter narrows and orders a task listing. All fields are optional.
type TaskFilter struct {
	// Completed filters on the exact flag value when non-nil.
	Completed *bool
	// SortField is a bson field name; empty means natural order.
	SortField string
	SortDesc  bool
	Limit     int64
	Skip      int64
}

// TaskRepository handles persistence for tasks. Every read and write is
// scoped to an owner so tasks of other users are indistinguishable from
// missing ones.
type TaskRepository struct {
	col *mongo.Collection
}

func NewTaskRepository(database *mongo.Database) *TaskRepository {
	return &TaskRepository{col: database.Collection(tasksCollection)}
}

func (r *TaskRepository) Create(ctx context.Context, task types.Task) (types.Task, error) {
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now

	result, err := r.col.InsertOne(ctx, task)
	if err != nil {
		return types.Task{}, err
	}
	task.ID = result.InsertedID.(primitive.ObjectID)
	return task, nil
}

func (r *TaskRepository) GetForOwner(ctx context.Context, id, owner primitive.ObjectID) (types.Task, error) {
	var task types.Task
	err := r.col.FindOne(ctx, bson.M{"_id": id, "owner": owner}).Decode(&task)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Task{}, ErrNotFound
		}
		return types.Task{}, err
	}
	return task, nil
}

func (r *TaskRepository) ListForOwner(ctx context.Context, owner primitive.ObjectID, filter TaskFilter) ([]types.Task, error) {
	query := bson.M{"owner": owner}
	if filter.Completed != nil {
		query["completed"] = *filter.Completed
	}

	opts := options.Find()
	if filter.SortField != "" {
		direction := 1
		if filter.SortDesc {
			direction = -1
		}
		opts.SetSort(bson.D{{Key: filter.SortField, Value: direction}})
	}
	if filter.Limit > 0 {
		opts.SetLimit(filter.Limit)
	}
	if filter.Skip > 0 {
		opts.SetSkip(filter.Skip)
	}

	cursor, err := r.col.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	tasks := []types.Task{}
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) Update(ctx context.Context, task types.Task) (types.Task, error) {
	task.UpdatedAt = time.Now()

	update := bson.M{"$set": bson.M{
		"description": task.Description,
		"completed":   task.Completed,
		"updated_at":  task.UpdatedAt,
	}}
	result, err := r.col.UpdateOne(ctx, bson.M{"_id": task.ID, "owner": task.Owner}, update)
	if err != nil {
		return types.Task{}, err
	}
	if result.MatchedCount == 0 {
		return types.Task{}, ErrNotFound
	}
	return task, nil
}

// DeleteForOwner removes the task and returns the deleted document.
func (r *TaskRepository) DeleteForOwner(ctx context.Context, id, owner primitive.ObjectID) (types.Task, error) {
	var task types.Task
	err := r.col.FindOneAndDelete(ctx, bson.M{"_id": id, "owner": owner}).Decode(&task)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Task{}, ErrNotFound
		}
		return types.Task{}, err
	}
	return task, nil
}

// DeleteAllForOwner removes every task owned by the user. Called as the
// explicit cascade step when an account is deleted.
func (r *TaskRepository) DeleteAllForOwner(ctx context.Context, owner primitive.ObjectID) error {
	_, err := r.col.DeleteMany(ctx, bson.M{"owner": owner})
	return err
}
