package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"magictodo/internal/domain"
)

// VerificationTokenRepository stores single-use magic-link tokens.
type VerificationTokenRepository interface {
	Create(ctx context.Context, token *domain.VerificationToken) error
	FindByValue(ctx context.Context, value string) (*domain.VerificationToken, error)
	Delete(ctx context.Context, id string) error
}

type gormTokenRepository struct {
	db *gorm.DB
}

func NewGormTokenRepository(db *gorm.DB) VerificationTokenRepository {
	return &gormTokenRepository{db: db}
}

func (r *gormTokenRepository) Create(ctx context.Context, token *domain.VerificationToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

func (r *gormTokenRepository) FindByValue(ctx context.Context, value string) (*domain.VerificationToken, error) {
	var token domain.VerificationToken
	result := r.db.WithContext(ctx).First(&token, "value = ?", value)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &token, nil
}

func (r *gormTokenRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.VerificationToken{}, "id = ?", id).Error
}
