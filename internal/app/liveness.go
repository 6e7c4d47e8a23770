package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"liveauth/internal/domain"
	"liveauth/internal/geometry"
	"liveauth/internal/gesture"

	"go.uber.org/zap"
)

var (
	// ErrWrongPhase indicates an operation that is not allowed in the current phase.
	ErrWrongPhase = errors.New("operation not allowed in current phase")
	// ErrAcquisition indicates that frames could not be read from the camera.
	ErrAcquisition = errors.New("frame acquisition failed")
	// ErrGestureTimeout indicates that no gesture was shown in time.
	ErrGestureTimeout = errors.New("gesture challenge timed out")
)

const (
	// DefaultLivenessWindow is how long head orientation samples are collected.
	DefaultLivenessWindow = 5 * time.Second
	// DefaultGestureTimeout bounds the gesture phase. Zero disables the bound.
	DefaultGestureTimeout = 60 * time.Second

	// NoFaceReason is the failure reason stored when no sample was collected.
	NoFaceReason = "No face detected"
)

// SessionIssuer creates and revokes the session handed out after a
// completed login.
type SessionIssuer interface {
	IssueSession(ctx context.Context, userID int64) (string, error)
	Logout(ctx context.Context, token string) error
}

// AttemptRecorder stores the outcome of a face verification run.
type AttemptRecorder interface {
	Record(ctx context.Context, userID int64, success bool, reason string, samples []domain.OrientationSample) (domain.AttemptRecord, error)
}

// Estimator turns a pixel-scaled face into head orientation angles.
type Estimator func(face domain.LandmarkSet, width, height int) (geometry.Angles, error)

// SampleObserver is notified of every accepted orientation sample together
// with the time left in the liveness window.
type SampleObserver func(sample domain.OrientationSample, remaining time.Duration)

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) MachineOption {
	return func(m *Machine) { m.log = log }
}

// WithLivenessWindow sets the duration of the head pose capture.
func WithLivenessWindow(d time.Duration) MachineOption {
	return func(m *Machine) { m.window = d }
}

// WithGestureTimeout bounds the gesture phase. Zero waits forever.
func WithGestureTimeout(d time.Duration) MachineOption {
	return func(m *Machine) { m.gestureTimeout = d }
}

// WithClassifier replaces the gesture predicate.
func WithClassifier(c gesture.Classifier) MachineOption {
	return func(m *Machine) { m.classify = c }
}

// WithEstimator replaces the orientation estimator.
func WithEstimator(e Estimator) MachineOption {
	return func(m *Machine) { m.estimate = e }
}

// WithSampleObserver registers a callback for accepted samples.
func WithSampleObserver(o SampleObserver) MachineOption {
	return func(m *Machine) { m.observe = o }
}

// Machine drives one interactive login through the credentials, gesture and
// face verification phases. It is not safe for concurrent use.
type Machine struct {
	verifier domain.CredentialVerifier
	camera   domain.Camera
	hands    domain.LandmarkDetector
	faces    domain.LandmarkDetector
	recorder AttemptRecorder
	sessions SessionIssuer

	classify       gesture.Classifier
	estimate       Estimator
	observe        SampleObserver
	window         time.Duration
	gestureTimeout time.Duration
	now            func() time.Time
	log            *zap.Logger

	state   domain.AuthSession
	samples []domain.OrientationSample
	token   string
	last    domain.AttemptRecord
}

// NewMachine creates a state machine in the credentials phase. sessions may
// be nil, in which case no session token is issued on completion.
func NewMachine(
	verifier domain.CredentialVerifier,
	camera domain.Camera,
	hands, faces domain.LandmarkDetector,
	recorder AttemptRecorder,
	sessions SessionIssuer,
	opts ...MachineOption,
) *Machine {
	m := &Machine{
		verifier:       verifier,
		camera:         camera,
		hands:          hands,
		faces:          faces,
		recorder:       recorder,
		sessions:       sessions,
		classify:       gesture.IsVictory,
		estimate:       geometry.EstimateOrientation,
		window:         DefaultLivenessWindow,
		gestureTimeout: DefaultGestureTimeout,
		now:            time.Now,
		log:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.enter(domain.PhaseCredentials, 0)
	return m
}

// Session returns a snapshot of the current session state.
func (m *Machine) Session() domain.AuthSession {
	return m.state
}

// Token returns the session token issued on completion, if any.
func (m *Machine) Token() string {
	return m.token
}

// Samples returns a copy of the samples collected in the current face
// verification phase.
func (m *Machine) Samples() []domain.OrientationSample {
	return append([]domain.OrientationSample(nil), m.samples...)
}

// SubmitCredentials verifies the credentials and moves to the gesture phase.
// A failure leaves the session untouched.
func (m *Machine) SubmitCredentials(ctx context.Context, email, password string) error {
	if m.state.Phase != domain.PhaseCredentials {
		return ErrWrongPhase
	}

	userID, err := m.verifier.Verify(ctx, email, password)
	if err != nil {
		m.log.Info("credential check failed", zap.Error(err))
		if errors.Is(err, ErrInvalidCredentials) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("verify credentials: %w", err)
	}
	if userID == 0 {
		return ErrInvalidCredentials
	}

	m.enter(domain.PhaseGesture, userID)
	return nil
}

// Advance processes one frame in the current phase and returns the phase
// afterwards.
func (m *Machine) Advance(ctx context.Context, frame domain.Frame) (domain.Phase, error) {
	switch m.state.Phase {
	case domain.PhaseGesture:
		return m.advanceGesture(ctx, frame)
	case domain.PhaseFaceVerify:
		return m.advanceFace(ctx, frame)
	default:
		return m.state.Phase, ErrWrongPhase
	}
}

func (m *Machine) advanceGesture(ctx context.Context, frame domain.Frame) (domain.Phase, error) {
	if m.gestureTimeout > 0 && m.elapsed() >= m.gestureTimeout {
		m.log.Info("gesture timed out", zap.Int64("user_id", m.state.UserID))
		m.reset()
		return m.state.Phase, ErrGestureTimeout
	}

	hands, err := m.hands.Detect(ctx, frame)
	if err != nil {
		m.log.Debug("hand detection failed", zap.Int("frame", frame.Seq), zap.Error(err))
		return m.state.Phase, nil
	}
	if gesture.AnyHand(m.classify, hands) {
		m.log.Info("gesture recognized", zap.Int64("user_id", m.state.UserID), zap.Int("frame", frame.Seq))
		m.enter(domain.PhaseFaceVerify, m.state.UserID)
	}
	return m.state.Phase, nil
}

func (m *Machine) advanceFace(ctx context.Context, frame domain.Frame) (domain.Phase, error) {
	if m.elapsed() >= m.window {
		_, err := m.Conclude(ctx)
		return m.state.Phase, err
	}

	faces, err := m.faces.Detect(ctx, frame)
	if err != nil {
		m.log.Debug("face detection failed", zap.Int("frame", frame.Seq), zap.Error(err))
		return m.state.Phase, nil
	}
	if len(faces) == 0 {
		return m.state.Phase, nil
	}

	angles, err := m.estimate(faces[0], frame.Width, frame.Height)
	if err != nil {
		m.log.Debug("frame skipped", zap.Int("frame", frame.Seq), zap.Error(err))
		return m.state.Phase, nil
	}

	sample := domain.OrientationSample{
		Timestamp: m.now(),
		Pitch:     angles.Pitch,
		Yaw:       angles.Yaw,
		Roll:      angles.Roll,
	}
	m.samples = append(m.samples, sample)
	if m.observe != nil {
		remaining := m.window - m.elapsed()
		if remaining < 0 {
			remaining = 0
		}
		m.observe(sample, remaining)
	}
	return m.state.Phase, nil
}

// Conclude ends the face verification phase. With at least one sample a
// successful attempt is recorded and the session is completed; otherwise a
// failed attempt is recorded and the user has to start over.
func (m *Machine) Conclude(ctx context.Context) (domain.AttemptRecord, error) {
	if m.state.Phase != domain.PhaseFaceVerify {
		return domain.AttemptRecord{}, ErrWrongPhase
	}
	userID := m.state.UserID
	samples := m.samples

	if len(samples) == 0 {
		rec, err := m.recorder.Record(ctx, userID, false, NoFaceReason, nil)
		m.reset()
		if err != nil {
			return domain.AttemptRecord{}, err
		}
		m.log.Info("liveness failed", zap.Int64("user_id", userID), zap.String("reason", NoFaceReason))
		m.last = rec
		return rec, nil
	}

	rec, err := m.recorder.Record(ctx, userID, true, "", samples)
	if err != nil {
		m.reset()
		return domain.AttemptRecord{}, err
	}
	if m.sessions != nil {
		token, err := m.sessions.IssueSession(ctx, userID)
		if err != nil {
			m.reset()
			return domain.AttemptRecord{}, fmt.Errorf("%w: issue session: %w", ErrPersistence, err)
		}
		m.token = token
	}

	m.enter(domain.PhaseCompleted, userID)
	m.log.Info("liveness passed", zap.Int64("user_id", userID), zap.Int("samples", len(samples)))
	m.last = rec
	return rec, nil
}

// RunGesture opens the camera and feeds frames to Advance until the gesture
// is recognized. The frame source is released on every exit path. An
// acquisition failure leaves the session in the gesture phase.
func (m *Machine) RunGesture(ctx context.Context) error {
	if m.state.Phase != domain.PhaseGesture {
		return ErrWrongPhase
	}

	src, err := m.camera.Open(ctx)
	if err != nil {
		return fmt.Errorf("%w: open camera: %w", ErrAcquisition, err)
	}
	defer m.release(src)

	for {
		frame, err := src.Next(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrAcquisition, err)
		}
		phase, err := m.Advance(ctx, frame)
		if err != nil {
			return err
		}
		if phase != domain.PhaseGesture {
			return nil
		}
	}
}

// RunLiveness opens the camera and collects orientation samples until the
// liveness window closes, then concludes the phase. If frames stop arriving
// early the phase is concluded with what was collected and the acquisition
// error is returned alongside the record.
func (m *Machine) RunLiveness(ctx context.Context) (domain.AttemptRecord, error) {
	if m.state.Phase != domain.PhaseFaceVerify {
		return domain.AttemptRecord{}, ErrWrongPhase
	}

	src, err := m.camera.Open(ctx)
	if err != nil {
		return m.concludeAfter(ctx, fmt.Errorf("%w: open camera: %w", ErrAcquisition, err))
	}
	defer m.release(src)

	for {
		frame, err := src.Next(ctx)
		if err != nil {
			return m.concludeAfter(ctx, fmt.Errorf("%w: %w", ErrAcquisition, err))
		}
		phase, err := m.Advance(ctx, frame)
		if err != nil {
			return domain.AttemptRecord{}, err
		}
		if phase != domain.PhaseFaceVerify {
			return m.last, nil
		}
	}
}

// concludeAfter resolves the face phase after the frame stream broke. The
// ledger write must not be dropped because ctx was cancelled.
func (m *Machine) concludeAfter(ctx context.Context, cause error) (domain.AttemptRecord, error) {
	m.log.Warn("frame stream ended", zap.Int64("user_id", m.state.UserID), zap.Error(cause))
	rec, err := m.Conclude(context.WithoutCancel(ctx))
	if err != nil {
		return domain.AttemptRecord{}, err
	}
	return rec, cause
}

// Logout revokes the issued session, if any, and returns to the
// credentials phase. It may be called in any phase.
func (m *Machine) Logout(ctx context.Context) error {
	var err error
	if m.token != "" && m.sessions != nil {
		if err = m.sessions.Logout(ctx, m.token); err != nil {
			err = fmt.Errorf("revoke session: %w", err)
		}
	}
	if m.state.UserID != 0 {
		m.log.Info("logged out", zap.Int64("user_id", m.state.UserID))
	}
	m.reset()
	return err
}

func (m *Machine) enter(phase domain.Phase, userID int64) {
	m.state = domain.AuthSession{
		UserID:         userID,
		Phase:          phase,
		PhaseEnteredAt: m.now(),
	}
	m.samples = nil
	m.log.Debug("phase entered", zap.String("phase", string(phase)), zap.Int64("user_id", userID))
}

func (m *Machine) reset() {
	m.token = ""
	m.enter(domain.PhaseCredentials, 0)
}

func (m *Machine) elapsed() time.Duration {
	return m.now().Sub(m.state.PhaseEnteredAt)
}

func (m *Machine) release(src domain.FrameSource) {
	if err := src.Release(); err != nil {
		m.log.Warn("release camera", zap.Error(err))
	}
}
