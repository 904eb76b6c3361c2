package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Todo is a single to-do item owned by exactly one user.
type Todo struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"index;not null"`
	Title     string `gorm:"not null"`
	Completed bool   `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *Todo) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
