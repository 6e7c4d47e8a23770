package memory

import (
	"context"
	"testing"
	"time"

	"liveauth/internal/domain"
)

func TestUserRepository(t *testing.T) {
	db := New()
	ctx := context.Background()

	u, err := db.Create(ctx, "john.doe@example.com", "hash", "John Doe")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.ID == 0 || !u.Active {
		t.Errorf("expected active user with id, got %+v", u)
	}

	again, err := db.Create(ctx, "john.doe@example.com", "other", "Other")
	if err != nil {
		t.Fatalf("Create duplicate: %v", err)
	}
	if again.ID != u.ID || again.PasswordHash != "hash" {
		t.Errorf("expected existing user to be returned untouched, got %+v", again)
	}
	if n, _ := db.Count(ctx); n != 1 {
		t.Errorf("expected 1 user, got %d", n)
	}

	got, err := db.GetByEmail(ctx, "john.doe@example.com")
	if err != nil || got == nil || got.ID != u.ID {
		t.Fatalf("GetByEmail: %+v, %v", got, err)
	}
	if missing, _ := db.GetByEmail(ctx, "nobody@example.com"); missing != nil {
		t.Error("expected nil for unknown email")
	}

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := db.TouchLastLogin(ctx, u.ID, at); err != nil {
		t.Fatalf("TouchLastLogin: %v", err)
	}
	got, _ = db.GetByID(ctx, u.ID)
	if got.LastLoginAt == nil || !got.LastLoginAt.Equal(at) {
		t.Errorf("expected last login %v, got %v", at, got.LastLoginAt)
	}
	if err := db.TouchLastLogin(ctx, 999, at); err == nil {
		t.Error("expected error for unknown user")
	}

	db.SetActive(u.ID, false)
	got, _ = db.GetByID(ctx, u.ID)
	if got.Active {
		t.Error("expected user to be inactive")
	}
}

func TestAttemptRepository(t *testing.T) {
	db := New()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		id, err := db.AppendAttempt(ctx, domain.AttemptRecord{
			UserID:        1,
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
			FailureReason: "No face detected",
		})
		if err != nil {
			t.Fatalf("AppendAttempt: %v", err)
		}
		if id != int64(i+1) {
			t.Errorf("expected id %d, got %d", i+1, id)
		}
	}
	_, _ = db.AppendAttempt(ctx, domain.AttemptRecord{UserID: 2, Timestamp: base, FailureReason: "x"})

	all, _ := db.ListAttempts(ctx, 1, 0)
	if len(all) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(all))
	}
	if !all[0].Timestamp.Before(all[2].Timestamp) {
		t.Error("expected oldest first")
	}

	last, _ := db.ListAttempts(ctx, 1, 2)
	if len(last) != 2 || last[0].ID != 2 || last[1].ID != 3 {
		t.Errorf("expected attempts 2 and 3, got %+v", last)
	}
}

func TestSampleStore(t *testing.T) {
	db := New()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC)

	ref, err := db.AppendSamples(ctx, 4, at, []domain.OrientationSample{
		{Timestamp: at.Add(-time.Second), Pitch: 1, Yaw: 2, Roll: 3},
		{Timestamp: at, Pitch: 4, Yaw: 5, Roll: 6},
	})
	if err != nil {
		t.Fatalf("AppendSamples: %v", err)
	}
	if ref != "memory:4:1" {
		t.Errorf("unexpected ref %q", ref)
	}

	got, _ := db.ListSamples(ctx, 4)
	if len(got) != 2 || got[1].Roll != 6 || !got[0].RecordedAt.Equal(at) {
		t.Errorf("unexpected samples %+v", got)
	}
	if other, _ := db.ListSamples(ctx, 5); len(other) != 0 {
		t.Error("expected no samples for other user")
	}
}

func TestSessionRepository(t *testing.T) {
	db := New()
	repo := db.NewSessionRepo()
	ctx := context.Background()

	if err := repo.Create(ctx, 1, "live", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, 1, "old", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	s, err := repo.GetByToken(ctx, "live")
	if err != nil || s == nil || s.UserID != 1 {
		t.Fatalf("GetByToken: %+v, %v", s, err)
	}

	if err := repo.DeleteExpired(ctx); err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if s, _ := repo.GetByToken(ctx, "old"); s != nil {
		t.Error("expected expired session to be removed")
	}

	if err := repo.Delete(ctx, "live"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s, _ := repo.GetByToken(ctx, "live"); s != nil {
		t.Error("expected session to be deleted")
	}
}
