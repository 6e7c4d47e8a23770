package domain

import "time"

// Phase is a step of the interactive login flow.
type Phase string

const (
	PhaseCredentials Phase = "credentials"
	PhaseGesture     Phase = "gesture"
	PhaseFaceVerify  Phase = "face_verify"
	PhaseCompleted   Phase = "completed"
)

// AuthSession is the state of the single interactive login session.
// UserID is zero while Phase is PhaseCredentials and set in every other phase.
type AuthSession struct {
	UserID         int64     `json:"userId"`
	Phase          Phase     `json:"phase"`
	PhaseEnteredAt time.Time `json:"phaseEnteredAt"`
}

// Authenticated reports whether the flow has been completed.
func (s AuthSession) Authenticated() bool {
	return s.Phase == PhaseCompleted && s.UserID != 0
}

// Consistent reports whether the user id / phase invariant holds.
func (s AuthSession) Consistent() bool {
	if s.Phase == PhaseCredentials {
		return s.UserID == 0
	}
	return s.UserID != 0
}
