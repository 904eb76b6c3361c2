package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"magictodo/internal/domain"
)

// setupTestDB starts a throwaway Postgres container and migrates the
// schema. Skipped with -short or when no container runtime is available.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed repository test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("magictodo_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("could not start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open gorm connection: %v", err)
	}

	if err := db.AutoMigrate(&domain.User{}, &domain.Session{}, &domain.VerificationToken{}, &domain.Todo{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func TestGormTodoRepository_CRUD(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormTodoRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	todo := &domain.Todo{
		UserID:    "user-1",
		Title:     "integration",
		Completed: false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(ctx, todo); err != nil {
		t.Fatalf("create: %v", err)
	}
	if todo.ID == "" {
		t.Fatal("create: expected a generated ID")
	}

	got, err := repo.FindByID(ctx, todo.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Title != "integration" || got.Completed {
		t.Errorf("find: unexpected row %+v", got)
	}

	got.Completed = true
	got.UpdatedAt = time.Now().UTC()
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	updated, err := repo.FindByID(ctx, todo.ID)
	if err != nil {
		t.Fatalf("find after update: %v", err)
	}
	if !updated.Completed {
		t.Error("update: expected completed true")
	}

	if err := repo.Delete(ctx, todo.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.FindByID(ctx, todo.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestGormTodoRepository_FindByUserOrdersNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormTodoRepository(db)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, title := range []string{"oldest", "middle", "newest"} {
		todo := &domain.Todo{
			UserID:    "user-1",
			Title:     title,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Create(ctx, todo); err != nil {
			t.Fatalf("create %q: %v", title, err)
		}
	}
	foreign := &domain.Todo{UserID: "user-2", Title: "foreign", CreatedAt: base, UpdatedAt: base}
	if err := repo.Create(ctx, foreign); err != nil {
		t.Fatalf("create foreign: %v", err)
	}

	todos, err := repo.FindByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("find by user: %v", err)
	}
	if len(todos) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(todos))
	}
	if todos[0].Title != "newest" || todos[2].Title != "oldest" {
		t.Errorf("expected newest-first ordering, got %q..%q", todos[0].Title, todos[2].Title)
	}
	for _, todo := range todos {
		if todo.UserID != "user-1" {
			t.Errorf("scope leak: got row owned by %q", todo.UserID)
		}
	}
}
