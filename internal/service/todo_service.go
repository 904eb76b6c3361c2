package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"magictodo/internal/domain"
	"magictodo/internal/repository"
)

var (
	// ErrTitleRequired rejects creation with a blank or whitespace-only title.
	ErrTitleRequired = errors.New("title is required")

	// ErrNotOwner covers both a missing todo and a todo owned by someone
	// else. Callers surface it uniformly as 403 so existence never leaks.
	ErrNotOwner = errors.New("todo not found or not owned by caller")
)

// CreateTodoRequest holds the data needed to create a new todo.
type CreateTodoRequest struct {
	Title string `json:"title"`
}

// TodoResponse is the wire representation of a todo. Timestamps are
// RFC 3339 strings regardless of the stored representation.
type TodoResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// TodoService contains the ownership and validation rules for todos. Every
// operation is scoped to an already-authenticated user; resolving that user
// is the routing layer's job.
type TodoService interface {
	// List returns the user's todos, newest first.
	List(ctx context.Context, userID string) ([]TodoResponse, error)

	// Create inserts a new incomplete todo for the user.
	Create(ctx context.Context, userID string, req CreateTodoRequest) (*TodoResponse, error)

	// Toggle flips the completed flag of a todo the caller owns.
	Toggle(ctx context.Context, todoID, callerID string) (*TodoResponse, error)

	// Delete removes a todo the caller owns.
	Delete(ctx context.Context, todoID, callerID string) error
}

type todoService struct {
	repo repository.TodoRepository
}

func NewTodoService(repo repository.TodoRepository) TodoService {
	return &todoService{repo: repo}
}

func (s *todoService) List(ctx context.Context, userID string) ([]TodoResponse, error) {
	todos, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		slog.Error("failed to list todos", "user_id", userID, "error", err)
		return nil, errors.New("failed to retrieve todo items")
	}

	responses := make([]TodoResponse, 0, len(todos))
	for i := range todos {
		responses = append(responses, newTodoResponse(&todos[i]))
	}
	return responses, nil
}

func (s *todoService) Create(ctx context.Context, userID string, req CreateTodoRequest) (*TodoResponse, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	now := time.Now().UTC()
	todo := &domain.Todo{
		UserID:    userID,
		Title:     title,
		Completed: false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, todo); err != nil {
		slog.Error("failed to create todo", "user_id", userID, "error", err)
		return nil, errors.New("failed to create todo item")
	}

	resp := newTodoResponse(todo)
	return &resp, nil
}

func (s *todoService) Toggle(ctx context.Context, todoID, callerID string) (*TodoResponse, error) {
	todo, err := s.loadOwned(ctx, todoID, callerID)
	if err != nil {
		return nil, err
	}

	// Last write wins on concurrent toggles; single-row UPDATE atomicity
	// comes from the database.
	todo.Completed = !todo.Completed
	todo.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, todo); err != nil {
		slog.Error("failed to update todo", "todo_id", todoID, "error", err)
		return nil, errors.New("failed to update todo item")
	}

	resp := newTodoResponse(todo)
	return &resp, nil
}

func (s *todoService) Delete(ctx context.Context, todoID, callerID string) error {
	if _, err := s.loadOwned(ctx, todoID, callerID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, todoID); err != nil {
		slog.Error("failed to delete todo", "todo_id", todoID, "error", err)
		return errors.New("failed to delete todo item")
	}
	return nil
}

// loadOwned fetches a todo and enforces the ownership check. A missing row
// and a foreign owner are indistinguishable to the caller.
func (s *todoService) loadOwned(ctx context.Context, todoID, callerID string) (*domain.Todo, error) {
	todo, err := s.repo.FindByID(ctx, todoID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotOwner
		}
		slog.Error("failed to fetch todo", "todo_id", todoID, "error", err)
		return nil, errors.New("failed to retrieve todo item")
	}
	if todo.UserID != callerID {
		return nil, ErrNotOwner
	}
	return todo, nil
}

func newTodoResponse(t *domain.Todo) TodoResponse {
	return TodoResponse{
		ID:        t.ID,
		UserID:    t.UserID,
		Title:     t.Title,
		Completed: t.Completed,
		CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
