package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"magictodo/internal/domain"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// TodoRepository defines the interface for todo data operations.
type TodoRepository interface {
	Create(ctx context.Context, todo *domain.Todo) error
	FindByID(ctx context.Context, id string) (*domain.Todo, error)
	FindByUser(ctx context.Context, userID string) ([]domain.Todo, error)
	Update(ctx context.Context, todo *domain.Todo) error
	Delete(ctx context.Context, id string) error
}

// gormTodoRepository implements TodoRepository using GORM.
type gormTodoRepository struct {
	db *gorm.DB
}

// NewGormTodoRepository creates a new GORM todo repository.
func NewGormTodoRepository(db *gorm.DB) TodoRepository {
	return &gormTodoRepository{db: db}
}

func (r *gormTodoRepository) Create(ctx context.Context, todo *domain.Todo) error {
	return r.db.WithContext(ctx).Create(todo).Error
}

func (r *gormTodoRepository) FindByID(ctx context.Context, id string) (*domain.Todo, error) {
	var todo domain.Todo
	result := r.db.WithContext(ctx).First(&todo, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &todo, nil
}

// FindByUser returns the user's todos, newest first.
func (r *gormTodoRepository) FindByUser(ctx context.Context, userID string) ([]domain.Todo, error) {
	var todos []domain.Todo
	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&todos)
	if result.Error != nil {
		return nil, result.Error
	}
	return todos, nil
}

func (r *gormTodoRepository) Update(ctx context.Context, todo *domain.Todo) error {
	return r.db.WithContext(ctx).Save(todo).Error
}

func (r *gormTodoRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.Todo{}, "id = ?", id).Error
}
