// Package memory implements an in-memory repository for development and testing.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"liveauth/internal/domain"
)

// DB implements an in-memory database storage.
type DB struct {
	mu       sync.Mutex
	users    []*domain.User
	sessions map[string]*domain.Session
	attempts []domain.AttemptRecord
	samples  map[int64][]domain.StoredSample
	batches  map[int64]int

	userIDCounter    int64
	attemptIDCounter int64
}

// New creates a new in-memory database.
func New() *DB {
	return &DB{
		sessions: make(map[string]*domain.Session),
		samples:  make(map[int64][]domain.StoredSample),
		batches:  make(map[int64]int),
	}
}

// Ensure interfaces are met.
var _ domain.UserRepository = (*DB)(nil)
var _ domain.AttemptRepository = (*DB)(nil)
var _ domain.SampleStore = (*DB)(nil)
var _ domain.SessionRepository = (*SessionRepo)(nil)

// --- UserRepository ---

// GetByEmail retrieves a user by email.
func (db *DB) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

// GetByID retrieves a user by ID.
func (db *DB) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

// Create creates a new active user, or returns the existing one with the
// same email.
func (db *DB) Create(ctx context.Context, email, passwordHash, displayName string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}

	db.userIDCounter++
	u := &domain.User{
		ID:           db.userIDCounter,
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	db.users = append(db.users, u)
	c := *u
	return &c, nil
}

// Count returns the total number of users.
func (db *DB) Count(ctx context.Context) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.users), nil
}

// TouchLastLogin records a completed login.
func (db *DB) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.ID == id {
			t := at.UTC()
			u.LastLoginAt = &t
			return nil
		}
	}
	return fmt.Errorf("user %d not found", id)
}

// SetActive enables or disables a user.
func (db *DB) SetActive(id int64, active bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.ID == id {
			u.Active = active
		}
	}
}

// --- AttemptRepository ---

// AppendAttempt appends a login attempt. Samples are not kept on the row.
func (db *DB) AppendAttempt(ctx context.Context, rec domain.AttemptRecord) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.attemptIDCounter++
	rec.ID = db.attemptIDCounter
	rec.Timestamp = rec.Timestamp.UTC()
	rec.Samples = nil
	db.attempts = append(db.attempts, rec)
	return rec.ID, nil
}

// ListAttempts returns the user's most recent attempts, oldest first.
func (db *DB) ListAttempts(ctx context.Context, userID int64, limit int) ([]domain.AttemptRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []domain.AttemptRecord
	for _, a := range db.attempts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// --- SampleStore ---

// AppendSamples appends a batch of samples for a user and returns a
// "memory:<user>:<batch>" reference.
func (db *DB) AppendSamples(ctx context.Context, userID int64, recordedAt time.Time, samples []domain.OrientationSample) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, s := range samples {
		db.samples[userID] = append(db.samples[userID], domain.StoredSample{
			OrientationSample: s,
			RecordedAt:        recordedAt.UTC(),
		})
	}
	db.batches[userID]++
	return fmt.Sprintf("memory:%d:%d", userID, db.batches[userID]), nil
}

// ListSamples returns every stored sample of a user in insertion order.
func (db *DB) ListSamples(ctx context.Context, userID int64) ([]domain.StoredSample, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]domain.StoredSample(nil), db.samples[userID]...), nil
}

// --- SessionRepository ---

// SessionRepo implements session persistence.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo creates a new session repository.
func (db *DB) NewSessionRepo() *SessionRepo {
	return &SessionRepo{db: db}
}

// Create creates a new session.
func (r *SessionRepo) Create(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.sessions[token] = &domain.Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

// GetByToken retrieves a session by token.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if s, ok := r.db.sessions[token]; ok {
		c := *s
		return &c, nil
	}
	return nil, nil
}

// Delete deletes a session.
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.sessions, token)
	return nil
}

// DeleteExpired deletes all expired sessions.
func (r *SessionRepo) DeleteExpired(ctx context.Context) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := time.Now()
	for k, v := range r.db.sessions {
		if now.After(v.ExpiresAt) {
			delete(r.db.sessions, k)
		}
	}
	return nil
}
