package types

import (
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	minPasswordLength = 7

	// bcrypt only reads the first 72 bytes of its input, so anything
	// longer is rejected up front instead of failing at hash time.
	maxPasswordLength = 72
)

// User represents an account in the system.
type User struct {
	// ID is the unique identifier of the user.
	ID primitive.ObjectID `bson:"_id,omitempty"`

	// Name is the user's display name. Required, stored trimmed.
	Name string `bson:"name"`

	// Email is the user's email address. Unique, stored lower-cased.
	Email string `bson:"email"`

	// Age defaults to zero and is never negative.
	Age int `bson:"age"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// The plaintext is never persisted.
	PasswordHash string `bson:"password"`

	// Tokens holds the user's active session tokens, one per login.
	Tokens []string `bson:"tokens"`

	// Avatar holds the user's profile picture as a 250x250 PNG, if set.
	Avatar []byte `bson:"avatar,omitempty"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// PublicUser is the sanitized view of a User returned by the API.
// Password hash, session tokens and avatar bytes are never serialized.
type PublicUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Age       int       `json:"age"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Public returns the sanitized view of the user.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID.Hex(),
		Name:      u.Name,
		Email:     u.Email,
		Age:       u.Age,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// HasToken reports whether token is one of the user's active sessions.
func (u User) HasToken(token string) bool {
	for _, t := range u.Tokens {
		if t == token {
			return true
		}
	}
	return false
}

// ValidatePassword checks the plaintext password rules: length bounds
// and the literal substring "password" being forbidden.
func ValidatePassword(plain string) error {
	if len(plain) < minPasswordLength {
		return errors.New("password must be at least 7 characters long")
	}
	if len(plain) > maxPasswordLength {
		return errors.New("password must be at most 72 characters long")
	}
	if strings.Contains(strings.ToLower(plain), "password") {
		return errors.New(`password cannot contain "password"`)
	}
	return nil
}
