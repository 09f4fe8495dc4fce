package store

import (
	"context"
	"errors"
	"time"

	"github.com/taskhub/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const usersCollection = "users"

// UserRepository handles persistence for users.
type UserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(database *mongo.Database) *UserRepository {
	return &UserRepository{col: database.Collection(usersCollection)}
}

func (r *UserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (types.User, error) {
	var user types.User
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	var user types.User
	err := r.col.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Tokens == nil {
		user.Tokens = []string{}
	}

	result, err := r.col.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.User{}, ErrDuplicateEmail
		}
		return types.User{}, err
	}
	user.ID = result.InsertedID.(primitive.ObjectID)
	return user, nil
}

// Update persists the mutable profile fields. Token and avatar changes
// go through their dedicated methods.
func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	update := bson.M{"$set": bson.M{
		"name":       user.Name,
		"email":      user.Email,
		"age":        user.Age,
		"password":   user.PasswordHash,
		"updated_at": user.UpdatedAt,
	}}
	result, err := r.col.UpdateByID(ctx, user.ID, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.User{}, ErrDuplicateEmail
		}
		return types.User{}, err
	}
	if result.MatchedCount == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AddToken appends a session token to the user's token list.
func (r *UserRepository) AddToken(ctx context.Context, id primitive.ObjectID, token string) error {
	update := bson.M{
		"$push": bson.M{"tokens": token},
		"$set":  bson.M{"updated_at": time.Now()},
	}
	result, err := r.col.UpdateByID(ctx, id, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveToken drops a single session token, leaving other sessions valid.
func (r *UserRepository) RemoveToken(ctx context.Context, id primitive.ObjectID, token string) error {
	update := bson.M{
		"$pull": bson.M{"tokens": token},
		"$set":  bson.M{"updated_at": time.Now()},
	}
	result, err := r.col.UpdateByID(ctx, id, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearTokens revokes every session of the user.
func (r *UserRepository) ClearTokens(ctx context.Context, id primitive.ObjectID) error {
	update := bson.M{"$set": bson.M{
		"tokens":     []string{},
		"updated_at": time.Now(),
	}}
	result, err := r.col.UpdateByID(ctx, id, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) SetAvatar(ctx context.Context, id primitive.ObjectID, avatar []byte) error {
	update := bson.M{"$set": bson.M{
		"avatar":     avatar,
		"updated_at": time.Now(),
	}}
	result, err := r.col.UpdateByID(ctx, id, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) ClearAvatar(ctx context.Context, id primitive.ObjectID) error {
	update := bson.M{
		"$unset": bson.M{"avatar": ""},
		"$set":   bson.M{"updated_at": time.Now()},
	}
	result, err := r.col.UpdateByID(ctx, id, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
