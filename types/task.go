package types

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Task is a single to-do item owned by exactly one user. The owner is
// set at creation and never changes.
type Task struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Description string             `bson:"description"`
	Completed   bool               `bson:"completed"`
	Owner       primitive.ObjectID `bson:"owner"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

// PublicTask is the API view of a Task.
type PublicTask struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	Owner       string    `json:"owner"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Public returns the API view of the task.
func (t Task) Public() PublicTask {
	return PublicTask{
		ID:          t.ID.Hex(),
		Description: t.Description,
		Completed:   t.Completed,
		Owner:       t.Owner.Hex(),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}
