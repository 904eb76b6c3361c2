package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"magictodo/internal/config"
	"magictodo/internal/database"
	"magictodo/internal/domain"
	"magictodo/internal/notify"
	"magictodo/internal/repository"
	"magictodo/internal/server"
	"magictodo/internal/service"

	_ "github.com/joho/godotenv/autoload"
)

func gracefulShutdown(apiServer *http.Server, dbService database.Service, done chan bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Println("Shutting down gracefully, press Ctrl+C again to force")
	stop()

	ctxTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctxTimeout); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	if dbService != nil {
		if err := dbService.Close(); err != nil {
			log.Printf("Error closing database connection pool: %v", err)
		}
	}

	log.Println("Server exiting")
	done <- true
}

func main() {
	cfg := config.Load()

	dbService, err := database.New(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	gormDB := dbService.GetDB()

	err = gormDB.AutoMigrate(
		&domain.User{},
		&domain.Session{},
		&domain.VerificationToken{},
		&domain.Todo{},
	)
	if err != nil {
		log.Fatalf("Failed to auto-migrate database: %v", err)
	}

	todoRepo := repository.NewGormTodoRepository(gormDB)
	userRepo := repository.NewGormUserRepository(gormDB)
	sessionRepo := repository.NewGormSessionRepository(gormDB)
	tokenRepo := repository.NewGormTokenRepository(gormDB)

	todoService := service.NewTodoService(todoRepo)
	notifier := notify.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookAPIKey)

	apiServer := server.New(cfg, server.Deps{
		Todos:    todoService,
		DB:       dbService,
		Users:    userRepo,
		Sessions: sessionRepo,
		Tokens:   tokenRepo,
		Notifier: notifier,
	}).HTTPServer()

	done := make(chan bool, 1)
	go gracefulShutdown(apiServer, dbService, done)

	log.Printf("Starting server on %s", apiServer.Addr)
	err = apiServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("HTTP server ListenAndServe error: %v", err)
	}

	<-done
	log.Println("Graceful shutdown complete.")
}
