package services

import (
	"context"

	"github.com/taskhub/apiserver/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	AddToken(ctx context.Context, id primitive.ObjectID, token string) error
	RemoveToken(ctx context.Context, id primitive.ObjectID, token string) error
	ClearTokens(ctx context.Context, id primitive.ObjectID) error
	SetAvatar(ctx context.Context, id primitive.ObjectID, avatar []byte) error
	ClearAvatar(ctx context.Context, id primitive.ObjectID) error
}

// UserService encapsulates account use-cases. It also owns the cascade
// that removes a user's tasks when the account is deleted.
type UserService struct {
	users UserRepository
	tasks TaskRepository
}

func NewUserService(users UserRepository, tasks TaskRepository) *UserService {
	return &UserService{users: users, tasks: tasks}
}

func (s *UserService) GetByID(ctx context.Context, id primitive.ObjectID) (types.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.users.GetByEmail(ctx, email)
}

func (s *UserService) Create(ctx context.Context, user types.User) (types.User, error) {
	return s.users.Create(ctx, user)
}

func (s *UserService) Update(ctx context.Context, user types.User) (types.User, error) {
	return s.users.Update(ctx, user)
}

// Delete removes the account and, as an explicit step, every task it
// owns. The task cascade runs first so a failure never leaves orphaned
// tasks behind a deleted user.
func (s *UserService) Delete(ctx context.Context, id primitive.ObjectID) error {
	if err := s.tasks.DeleteAllForOwner(ctx, id); err != nil {
		return err
	}
	return s.users.Delete(ctx, id)
}

func (s *UserService) SetAvatar(ctx context.Context, id primitive.ObjectID, avatar []byte) error {
	return s.users.SetAvatar(ctx, id, avatar)
}

func (s *UserService) ClearAvatar(ctx context.Context, id primitive.ObjectID) error {
	return s.users.ClearAvatar(ctx, id)
}
