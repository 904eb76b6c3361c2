package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"magictodo/internal/config"
	"magictodo/internal/database"
	"magictodo/internal/notify"
	"magictodo/internal/repository"
	"magictodo/internal/service"
)

// Deps bundles the process-wide dependencies handed to the server. Only
// origin-independent resources live here; the auth gate is built per
// request from these plus the request origin.
type Deps struct {
	Todos    service.TodoService
	DB       database.Service
	Users    repository.UserRepository
	Sessions repository.SessionRepository
	Tokens   repository.VerificationTokenRepository
	Notifier notify.Notifier
}

type Server struct {
	port int
	cfg  config.Config

	todoService service.TodoService
	db          database.Service
	users       repository.UserRepository
	sessions    repository.SessionRepository
	tokens      repository.VerificationTokenRepository
	notifier    notify.Notifier
}

func New(cfg config.Config, deps Deps) *Server {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		fmt.Printf("Warning: Invalid PORT environment variable %q. Using default 8080. Error: %v\n", cfg.Port, err)
		port = 8080
	}

	return &Server{
		port:        port,
		cfg:         cfg,
		todoService: deps.Todos,
		db:          deps.DB,
		users:       deps.Users,
		sessions:    deps.Sessions,
		tokens:      deps.Tokens,
		notifier:    deps.Notifier,
	}
}

// HTTPServer wraps the registered routes in an http.Server with sane
// timeouts.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}
