package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"liveauth/internal/domain"
)

func newDBWithMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	s, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	d := New(s)
	d.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return d, mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

var userCols = []string{"id", "email", "password_hash", "display_name", "is_active", "created_at", "last_login"}

func TestMigrate(t *testing.T) {
	d, mock := newDBWithMock(t)
	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	if err := d.migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	expectationsMet(t, mock)
}

func TestMigrate_Error(t *testing.T) {
	d, mock := newDBWithMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnError(errors.New("permission denied"))

	err := d.migrate(context.Background())
	if err == nil || !regexp.MustCompile(`^migrate: permission denied`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped migrate error, got %v", err)
	}
}

func TestGetByEmail_Found(t *testing.T) {
	d, mock := newDBWithMock(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	login := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+userColumns+" FROM users WHERE email = $1")).
		WithArgs("john.doe@example.com").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(int64(1), "john.doe@example.com", "hash", "John Doe", true, created, login))

	u, err := d.GetByEmail(context.Background(), "john.doe@example.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if u == nil || u.ID != 1 || !u.Active || u.DisplayName != "John Doe" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.LastLoginAt == nil || !u.LastLoginAt.Equal(login) {
		t.Errorf("expected last login %v, got %v", login, u.LastLoginAt)
	}
	expectationsMet(t, mock)
}

func TestGetByEmail_NotFound(t *testing.T) {
	d, mock := newDBWithMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	u, err := d.GetByEmail(context.Background(), "ghost@example.com")
	if err != nil || u != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", u, err)
	}
}

func TestCreate_InsertOrIgnore(t *testing.T) {
	d, mock := newDBWithMock(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (email, password_hash, display_name, is_active, created_at) VALUES ($1, $2, $3, TRUE, $4) ON CONFLICT (email) DO NOTHING")).
		WithArgs("jane.smith@example.com", "hash", "Jane Smith", d.now()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
		WithArgs("jane.smith@example.com").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(int64(2), "jane.smith@example.com", "older-hash", "Jane", true, created, nil))

	u, err := d.Create(context.Background(), "jane.smith@example.com", "hash", "Jane Smith")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.ID != 2 || u.PasswordHash != "older-hash" || u.LastLoginAt != nil {
		t.Fatalf("expected existing row, got %+v", u)
	}
	expectationsMet(t, mock)
}

func TestTouchLastLogin(t *testing.T) {
	d, mock := newDBWithMock(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET last_login = $1 WHERE id = $2")).
		WithArgs(at, int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := d.TouchLastLogin(context.Background(), 4, at); err != nil {
		t.Fatalf("TouchLastLogin: %v", err)
	}
	expectationsMet(t, mock)
}

func TestAppendAttempt(t *testing.T) {
	d, mock := newDBWithMock(t)
	ts := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO login_history")).
		WithArgs(int64(3), ts, false, "No face detected", "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	id, err := d.AppendAttempt(context.Background(), domain.AttemptRecord{
		UserID:        3,
		Timestamp:     ts,
		FailureReason: "No face detected",
	})
	if err != nil {
		t.Fatalf("AppendAttempt: %v", err)
	}
	if id != 11 {
		t.Errorf("expected id 11, got %d", id)
	}
	expectationsMet(t, mock)
}

func TestAppendAttempt_DBError(t *testing.T) {
	d, mock := newDBWithMock(t)
	mock.ExpectQuery("INSERT INTO login_history").WillReturnError(errors.New("db down"))

	_, err := d.AppendAttempt(context.Background(), domain.AttemptRecord{UserID: 3, FailureReason: "x"})
	if err == nil || !regexp.MustCompile(`append attempt: db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestListAttempts(t *testing.T) {
	d, mock := newDBWithMock(t)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cols := []string{"id", "user_id", "login_timestamp", "success", "failure_reason", "samples_ref"}

	mock.ExpectQuery("FROM login_history WHERE user_id = \\$1 ORDER BY id DESC LIMIT \\$2").
		WithArgs(int64(3), 2).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(5), int64(3), ts, false, "No face detected", "").
			AddRow(int64(6), int64(3), ts.Add(time.Minute), true, "", "batch-1"))

	got, err := d.ListAttempts(context.Background(), 3, 2)
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(got) != 2 || got[0].ID != 5 || !got[1].Success || got[1].SamplesRef != "batch-1" {
		t.Fatalf("unexpected attempts: %+v", got)
	}

	mock.ExpectQuery("FROM login_history").
		WithArgs(int64(3), nil).
		WillReturnRows(sqlmock.NewRows(cols))
	all, err := d.ListAttempts(context.Background(), 3, 0)
	if err != nil || len(all) != 0 {
		t.Fatalf("expected no attempts, got %+v, %v", all, err)
	}
	expectationsMet(t, mock)
}

func TestAppendSamples(t *testing.T) {
	d, mock := newDBWithMock(t)
	at := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	samples := []domain.OrientationSample{
		{Timestamp: at.Add(-2 * time.Second), Pitch: 1, Yaw: 2, Roll: 3},
		{Timestamp: at.Add(-time.Second), Pitch: 4, Yaw: 5, Roll: 6},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO orientation_samples"))
	for _, s := range samples {
		prep.ExpectExec().
			WithArgs(int64(9), sqlmock.AnyArg(), s.Timestamp, s.Pitch, s.Yaw, s.Roll, at).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	ref, err := d.AppendSamples(context.Background(), 9, at, samples)
	if err != nil {
		t.Fatalf("AppendSamples: %v", err)
	}
	if len(ref) != 36 {
		t.Errorf("expected uuid batch id, got %q", ref)
	}
	expectationsMet(t, mock)
}

func TestAppendSamples_RollsBackOnError(t *testing.T) {
	d, mock := newDBWithMock(t)
	at := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO orientation_samples").
		ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := d.AppendSamples(context.Background(), 9, at, []domain.OrientationSample{{Timestamp: at}})
	if err == nil {
		t.Fatal("expected error")
	}
	expectationsMet(t, mock)
}

func TestSessionRepo_GetByToken(t *testing.T) {
	d, mock := newDBWithMock(t)
	repo := NewSessionRepo(d)
	exp := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT token, user_id, expires_at, created_at FROM sessions WHERE token = $1")).
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{"token", "user_id", "expires_at", "created_at"}).
			AddRow("tok", int64(3), exp, d.now()))

	s, err := repo.GetByToken(context.Background(), "tok")
	if err != nil || s == nil || s.UserID != 3 || !s.ExpiresAt.Equal(exp) {
		t.Fatalf("unexpected session %+v, %v", s, err)
	}

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE token = $1")).
		WithArgs("tok").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.Delete(context.Background(), "tok"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	expectationsMet(t, mock)
}
