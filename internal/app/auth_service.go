// Package app holds the application services and business logic.
package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"liveauth/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials indicates that the provided email or password was incorrect.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrSessionNotFound indicates that the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired indicates that the session has expired.
	ErrSessionExpired = errors.New("session expired")
	// ErrUserNotFound indicates that the user does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// DefaultSessionTTL is how long an issued session stays valid.
const DefaultSessionTTL = 24 * time.Hour

// DemoUser is an account created by SeedUsers.
type DemoUser struct {
	Email       string
	Password    string
	DisplayName string
}

// DemoUsers are the accounts seeded into a fresh store.
var DemoUsers = []DemoUser{
	{"john.doe@example.com", "password123", "John Doe"},
	{"jane.smith@example.com", "password456", "Jane Smith"},
	{"bob.wilson@example.com", "password789", "Bob Wilson"},
	{"alice.brown@example.com", "passwordabc", "Alice Brown"},
	{"charlie.davis@example.com", "passwordxyz", "Charlie Davis"},
}

// AuthService verifies credentials and manages authenticated sessions.
// It satisfies domain.CredentialVerifier.
type AuthService struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	ttl      time.Duration
	log      *zap.Logger
	now      func() time.Time
}

// NewAuthService creates a new authentication service.
func NewAuthService(users domain.UserRepository, sessions domain.SessionRepository, ttl time.Duration, log *zap.Logger) *AuthService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		ttl:      ttl,
		log:      log,
		now:      time.Now,
	}
}

var _ domain.CredentialVerifier = (*AuthService)(nil)

// Verify checks an email/password pair and returns the user id.
// Unknown emails, wrong passwords and inactive accounts all yield
// ErrInvalidCredentials.
func (s *AuthService) Verify(ctx context.Context, email, password string) (int64, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return 0, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil || !user.Active || user.PasswordHash == "" {
		return 0, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return 0, ErrInvalidCredentials
	}
	return user.ID, nil
}

// IssueSession creates a session for a user that finished the login flow
// and records the login time.
func (s *AuthService) IssueSession(ctx context.Context, userID int64) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}

	now := s.now()
	if err := s.sessions.Create(ctx, userID, token, now.Add(s.ttl)); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if err := s.users.TouchLastLogin(ctx, userID, now); err != nil {
		s.log.Warn("update last login", zap.Int64("user_id", userID), zap.Error(err))
	}
	return token, nil
}

// Logout invalidates a session.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.Delete(ctx, token)
}

// ValidateSession checks if a session token is valid.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*domain.User, error) {
	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	if s.now().After(session.ExpiresAt) {
		_ = s.sessions.Delete(ctx, token)
		return nil, ErrSessionExpired
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// CreateUser hashes the password and stores a new account.
func (s *AuthService) CreateUser(ctx context.Context, email, password, displayName string) (*domain.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return s.users.Create(ctx, email, string(hash), displayName)
}

// SeedUsers inserts the given accounts, leaving existing emails untouched.
func (s *AuthService) SeedUsers(ctx context.Context, seed []DemoUser) error {
	for _, u := range seed {
		existing, err := s.users.GetByEmail(ctx, normalizeEmail(u.Email))
		if err != nil {
			return fmt.Errorf("seed %s: %w", u.Email, err)
		}
		if existing != nil {
			continue
		}
		if _, err := s.CreateUser(ctx, u.Email, u.Password, u.DisplayName); err != nil {
			return fmt.Errorf("seed %s: %w", u.Email, err)
		}
		s.log.Info("seeded user", zap.String("email", u.Email))
	}
	return nil
}

// PurgeExpiredSessions removes sessions past their expiry.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) error {
	return s.sessions.DeleteExpired(ctx)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
