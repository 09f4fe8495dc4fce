package store

import (
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotFound is returned when a record does not exist. Ownership
// mismatches deliberately surface as ErrNotFound as well.
var ErrNotFound = errors.New("not found")

// ErrInvalidID is returned when an identifier is not a valid ObjectID.
var ErrInvalidID = errors.New("invalid id")

// ErrDuplicateEmail is returned when a write violates the unique email index.
var ErrDuplicateEmail = errors.New("email already in use")

// ParseID converts a hex identifier into an ObjectID, mapping malformed
// input to ErrInvalidID so handlers can answer 400 instead of 404.
func ParseID(hex string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidID
	}
	return id, nil
}
