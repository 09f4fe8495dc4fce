package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/taskhub/apiserver/internal/auth"
	"github.com/taskhub/apiserver/internal/images"
	"github.com/taskhub/apiserver/internal/notify"
	"github.com/taskhub/apiserver/internal/services"
	"github.com/taskhub/apiserver/internal/store"
	"github.com/taskhub/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const loginFailureMessage = "unable to login"

var validate = validator.New()

// UserHandler provides account, session and avatar endpoints.
type UserHandler struct {
	users  *services.UserService
	tokens *auth.Service
	mailer notify.Mailer
}

// NewUserHandler constructs a UserHandler with the provided dependencies.
func NewUserHandler(users *services.UserService, tokens *auth.Service, mailer notify.Mailer) *UserHandler {
	return &UserHandler{users: users, tokens: tokens, mailer: mailer}
}

// UserRouter registers user routes on the given router.
func UserRouter(
	r chi.Router,
	users *services.UserService,
	tokens *auth.Service,
	mailer notify.Mailer,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewUserHandler(users, tokens, mailer)

	r.Post("/", handler.Signup)
	r.Post("/login", handler.Login)

	// Listing all users is intentionally disabled.
	r.With(authMiddleware).Get("/", handler.ListUsers)

	r.With(authMiddleware).Post("/logout", handler.Logout)
	r.With(authMiddleware).Post("/logoutAll", handler.LogoutAll)

	r.Route("/me", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", handler.Me)
		r.Patch("/", handler.UpdateMe)
		r.Delete("/", handler.DeleteMe)
		r.Post("/avatar", handler.UploadAvatar)
		r.Delete("/avatar", handler.DeleteAvatar)
	})

	r.Get("/{userID}", handler.GetUser)
	r.Get("/{userID}/avatar", handler.GetAvatar)
}

type SignupRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Age      int    `json:"age" validate:"gte=0"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	User  types.PublicUser `json:"user"`
	Token string           `json:"token"`
}

// Signup creates a new account and opens its first session.
func (h *UserHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, signupValidationMessage(err))
		return
	}
	if err := types.ValidatePassword(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	user, err := h.users.Create(r.Context(), types.User{
		Name:         req.Name,
		Email:        req.Email,
		Age:          req.Age,
		PasswordHash: string(hashed),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	token, err := h.tokens.Issue(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	notify.Dispatch(func(ctx context.Context) error {
		return h.mailer.SendWelcome(ctx, user.Email, user.Name)
	})

	writeJSON(w, http.StatusCreated, AuthResponse{User: user.Public(), Token: token})
}

// Login verifies credentials and opens a new session. Unknown email and
// wrong password produce the same response to avoid user enumeration.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, loginFailureMessage)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusBadRequest, loginFailureMessage)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusBadRequest, loginFailureMessage)
		return
	}

	token, err := h.tokens.Issue(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{User: user.Public(), Token: token})
}

// Logout revokes the session token used on this request only.
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, authFailureMessage)
		return
	}
	token, err := tokenFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, authFailureMessage)
		return
	}

	if err := h.tokens.Revoke(r.Context(), user, token); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to logout")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// LogoutAll revokes every session of the caller.
func (h *UserHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, authFailureMessage)
		return
	}

	if err := h.tokens.RevokeAll(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to logout")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Me returns the authenticated user's sanitized profile.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, authFailureMessage)
		return
	}
	writeJSON(w, http.StatusOK, user.Public())
}

// UpdateMe patches the caller's profile. Only name, email, password and
// age may change; any other key rejects the whole request before any
// mutation happens.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, authFailureMessage)
		return
	}

	var updates map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	for key := range updates {
		switch key {
		case "name", "email", "password", "age":
		default:
			writeError(w, http.StatusBadRequest, "invalid updates")
			return
		}
	}

	if raw, ok := updates["name"]; ok {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			writeError(w, http.StatusBadRequest, "invalid name")
			return
		}
		name = strings.TrimSpace(name)
		if name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		user.Name = name
	}

	if raw, ok := updates["email"]; ok {
		var email string
		if err := json.Unmarshal(raw, &email); err != nil {
			writeError(w, http.StatusBadRequest, "invalid email")
			return
		}
		email = strings.ToLower(strings.TrimSpace(email))
		if err := validate.Var(email, "required,email"); err != nil {
			writeError(w, http.StatusBadRequest, "email is invalid")
			return
		}
		user.Email = email
	}

	if raw, ok := updates["password"]; ok {
		var password string
		if err := json.Unmarshal(raw, &password); err != nil {
			writeError(w, http.StatusBadRequest, "invalid password")
			return
		}
		if err := types.ValidatePassword(password); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to update user")
			return
		}
		user.PasswordHash = string(hashed)
	}

	if raw, ok := updates["age"]; ok {
		var age int
		if err := json.Unmarshal(raw, &age); err != nil {
			writeError(w, http.StatusBadRequest, "invalid age")
			return
		}
		if age < 0 {
			writeError(w, http.StatusBadRequest, "age must be a number greater or equal than zero")
			return
		}
		user.Age = age
	}

	updated, err := h.users.Update(r.Context(), user)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateEmail):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		default:
			writeError(w, http.StatusInternalServerError, "failed to update user")
		}
		return
	}

	writeJSON(w, http.StatusOK, updated.Public())
}

// DeleteMe removes the caller's account along with all owned tasks and
// fires the cancellation email.
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, authFailureMessage)
		return
	}

	if err := h.users.Delete(r.Context(), user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}

	notify.Dispatch(func(ctx context.Context) error {
		return h.mailer.SendCancellation(ctx, user.Email, user.Name)
	})

	writeJSON(w, http.StatusOK, user.Public())
}

// UploadAvatar stores a normalized 250x250 PNG on the caller's profile.
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, authFailureMessage)
		return
	}

	file, header, err := r.FormFile("avatar")
	if err != nil {
		writeError(w, http.StatusBadRequest, "avatar file is required")
		return
	}
	defer file.Close()

	if err := images.CheckExtension(header.Filename); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := readFileLimited(file, images.MaxAvatarBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	normalized, err := images.NormalizeAvatar(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.users.SetAvatar(r.Context(), user.ID, normalized); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store avatar")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DeleteAvatar clears the caller's avatar.
func (h *UserHandler) DeleteAvatar(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, authFailureMessage)
		return
	}

	if err := h.users.ClearAvatar(r.Context(), user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete avatar")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetAvatar serves a user's avatar bytes publicly.
func (h *UserHandler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	id, err := store.ParseID(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "avatar not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch avatar")
		return
	}
	if len(user.Avatar) == 0 {
		writeError(w, http.StatusNotFound, "avatar not found")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(user.Avatar)
}

// GetUser returns a sanitized public profile by id.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := store.ParseID(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch user")
		return
	}

	writeJSON(w, http.StatusOK, user.Public())
}

// ListUsers is intentionally disabled.
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "cannot access the users listing")
}

func signupValidationMessage(err error) string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return "invalid request"
	}
	switch fieldErrors[0].Field() {
	case "Name":
		return "name is required"
	case "Email":
		return "email is invalid"
	case "Password":
		return "password is required"
	case "Age":
		return "age must be a number greater or equal than zero"
	default:
		return "invalid request"
	}
}
