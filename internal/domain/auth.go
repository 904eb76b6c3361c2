package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an identity record created by the magic-link sign-up flow.
// The todo layer reads it but never mutates it.
type User struct {
	ID            string `gorm:"primaryKey"`
	Name          string
	Email         string `gorm:"uniqueIndex;not null"`
	EmailVerified bool   `gorm:"not null"`
	Image         *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Session binds a cookie token to a user identity until ExpiresAt.
type Session struct {
	ID        string `gorm:"primaryKey"`
	Token     string `gorm:"uniqueIndex;not null"`
	UserID    string `gorm:"index;not null"`
	ExpiresAt time.Time
	IPAddress *string
	UserAgent *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// VerificationToken is a single-use magic-link token. Identifier is the
// email the link was issued for; the row is deleted on successful
// verification.
type VerificationToken struct {
	ID         string `gorm:"primaryKey"`
	Identifier string `gorm:"index;not null"`
	Value      string `gorm:"uniqueIndex;not null"`
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (v *VerificationToken) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}
