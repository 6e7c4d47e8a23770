// Package domain contains the core business entities and interfaces.
package domain

import (
	"context"
	"time"
)

// User represents an account that can start the liveness login flow.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	DisplayName  string
	Active       bool
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// Session represents an authenticated session issued once the flow completes.
type Session struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// UserRepository defines the port for user persistence operations.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	// Create inserts a user. It returns the existing row untouched when the
	// email is already taken.
	Create(ctx context.Context, email, passwordHash, displayName string) (*User, error)
	Count(ctx context.Context) (int, error)
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
}

// SessionRepository defines the port for session persistence operations.
type SessionRepository interface {
	Create(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	GetByToken(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) error
}
