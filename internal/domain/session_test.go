package domain_test

import (
	"testing"
	"time"

	"liveauth/internal/domain"
)

func TestAuthSession_Consistent(t *testing.T) {
	tests := []struct {
		name string
		s    domain.AuthSession
		want bool
	}{
		{"credentials without user", domain.AuthSession{Phase: domain.PhaseCredentials}, true},
		{"credentials with user", domain.AuthSession{Phase: domain.PhaseCredentials, UserID: 3}, false},
		{"gesture with user", domain.AuthSession{Phase: domain.PhaseGesture, UserID: 3}, true},
		{"face verify without user", domain.AuthSession{Phase: domain.PhaseFaceVerify}, false},
		{"completed with user", domain.AuthSession{Phase: domain.PhaseCompleted, UserID: 1}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.s.Consistent(); got != tc.want {
				t.Errorf("Consistent() = %v; want %v", got, tc.want)
			}
		})
	}
}

func TestAttemptRecord_Validate(t *testing.T) {
	sample := domain.OrientationSample{Timestamp: time.Now(), Pitch: 1, Yaw: 2, Roll: 3}

	tests := []struct {
		name    string
		rec     domain.AttemptRecord
		wantErr bool
	}{
		{"success with samples", domain.AttemptRecord{UserID: 1, Success: true, Samples: []domain.OrientationSample{sample}}, false},
		{"success without samples", domain.AttemptRecord{UserID: 1, Success: true}, true},
		{"failure with reason", domain.AttemptRecord{UserID: 1, FailureReason: "No face detected"}, false},
		{"failure without reason", domain.AttemptRecord{UserID: 1}, true},
		{"missing user", domain.AttemptRecord{FailureReason: "x"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rec.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v; wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestLandmarkSet_Scale(t *testing.T) {
	set := domain.LandmarkSet{1: {X: 0.5, Y: 0.25, Z: -0.03}}
	got := set.Scale(640, 480)
	p, ok := got.Lookup(1)
	if !ok {
		t.Fatal("expected landmark 1")
	}
	if p.X != 320 || p.Y != 120 || p.Z != -0.03 {
		t.Errorf("Scale() = %+v", p)
	}

	var empty domain.LandmarkSet
	if _, ok := empty.Lookup(1); ok {
		t.Error("expected lookup on nil set to fail")
	}
}
