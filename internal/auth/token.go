package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/taskhub/apiserver/internal/store"
	"github.com/taskhub/apiserver/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrInvalidToken is returned for any token that fails verification:
// bad signature, unknown user, or a token revoked by logout.
var ErrInvalidToken = errors.New("invalid token")

// UserStore is the slice of the user repository the token service needs.
type UserStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (types.User, error)
	AddToken(ctx context.Context, id primitive.ObjectID, token string) error
	RemoveToken(ctx context.Context, id primitive.ObjectID, token string) error
	ClearTokens(ctx context.Context, id primitive.ObjectID) error
}

// Service issues and verifies session tokens. A token is an HS256 JWT
// whose subject is the user id; it stays valid until it is removed from
// the user's token list, so there is no expiry claim.
type Service struct {
	secret []byte
	users  UserStore
}

func NewService(secret string, users UserStore) *Service {
	return &Service{secret: []byte(secret), users: users}
}

// Issue signs a new session token for the user and records it in the
// user's token list.
func (s *Service) Issue(ctx context.Context, user types.User) (string, error) {
	claims := jwt.RegisteredClaims{
		// A jti keeps tokens distinct across logins in the same second,
		// so revoking one session never touches another.
		ID:       uuid.NewString(),
		Subject:  user.ID.Hex(),
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", err
	}
	if err := s.users.AddToken(ctx, user.ID, token); err != nil {
		return "", err
	}
	return token, nil
}

// Verify checks the token signature and that the token is still an
// active session of the subject user. On success the resolved user is
// returned; every failure collapses into ErrInvalidToken.
func (s *Service) Verify(ctx context.Context, tokenString string) (types.User, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return types.User{}, ErrInvalidToken
	}

	id, err := store.ParseID(strings.TrimSpace(claims.Subject))
	if err != nil {
		return types.User{}, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return types.User{}, ErrInvalidToken
	}
	if !user.HasToken(tokenString) {
		return types.User{}, ErrInvalidToken
	}
	return user, nil
}

// Revoke removes a single session token, leaving other sessions intact.
func (s *Service) Revoke(ctx context.Context, user types.User, token string) error {
	return s.users.RemoveToken(ctx, user.ID, token)
}

// RevokeAll removes every session token of the user.
func (s *Service) RevokeAll(ctx context.Context, user types.User) error {
	return s.users.ClearTokens(ctx, user.ID)
}
