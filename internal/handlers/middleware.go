package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/taskhub/apiserver/internal/auth"
)

const authFailureMessage = "please authenticate"

// RequireAuth verifies the bearer token and injects the resolved user
// and the raw token into the request context. Every failure mode yields
// the same 401 body so callers learn nothing about which check failed.
func RequireAuth(tokens *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, authFailureMessage)
				return
			}

			user, err := tokens.Verify(r.Context(), tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, authFailureMessage)
				return
			}

			ctx := context.WithValue(r.Context(), contextUserKey, user)
			ctx = context.WithValue(ctx, contextTokenKey, tokenString)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
