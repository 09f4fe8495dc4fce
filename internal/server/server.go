package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/taskhub/apiserver/config"
	"github.com/taskhub/apiserver/internal/auth"
	"github.com/taskhub/apiserver/internal/db"
	"github.com/taskhub/apiserver/internal/handlers"
	"github.com/taskhub/apiserver/internal/mq"
	"github.com/taskhub/apiserver/internal/notify"
	"github.com/taskhub/apiserver/internal/services"
	"github.com/taskhub/apiserver/internal/store"
	"go.mongodb.org/mongo-driver/mongo"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	database   *mongo.Database
	queue      *mq.MQ
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	database, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if jwtSecret == "" {
		_ = db.Close(context.Background(), database)
		return nil, errors.New("JWT_SECRET is required")
	}

	userRepo := store.NewUserRepository(database)
	taskRepo := store.NewTaskRepository(database)

	userService := services.NewUserService(userRepo, taskRepo)
	taskService := services.NewTaskService(taskRepo)
	tokenService := auth.NewService(jwtSecret, userRepo)

	queue, mailer, err := buildMailer(ctx, cfg)
	if err != nil {
		_ = db.Close(context.Background(), database)
		return nil, err
	}

	authMiddleware := handlers.RequireAuth(tokenService)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
		cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		}),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, userService, tokenService, mailer, authMiddleware)
	})
	router.Route("/tasks", func(r chi.Router) {
		handlers.TaskRouter(r, taskService, authMiddleware)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		database:   database,
		queue:      queue,
	}, nil
}

// buildMailer selects the notification backend. With no broker
// configured account emails are silently skipped.
func buildMailer(ctx context.Context, cfg config.Config) (*mq.MQ, notify.Mailer, error) {
	var backend mq.Backend
	var err error

	switch cfg.Notify.Backend {
	case "rabbitmq":
		backend, err = mq.NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		backend, err = mq.NewPubSubClient(ctx, cfg.PubSub)
	case "":
		return nil, notify.NoopMailer{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown notify backend %q", cfg.Notify.Backend)
	}
	if err != nil {
		return nil, nil, err
	}

	queue := mq.New(backend)
	return queue, notify.NewQueueMailer(queue, cfg.Notify), nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.database != nil {
		_ = db.Close(context.Background(), s.database)
	}
	return s.httpServer.Close()
}
