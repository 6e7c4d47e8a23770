// Package cli is the interactive terminal front end of the login flow.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"liveauth/internal/app"
	"liveauth/internal/domain"

	"go.uber.org/zap"
)

// Flow is the part of app.Machine the terminal drives.
type Flow interface {
	Session() domain.AuthSession
	Token() string
	SubmitCredentials(ctx context.Context, email, password string) error
	RunGesture(ctx context.Context) error
	RunLiveness(ctx context.Context) (domain.AttemptRecord, error)
	Logout(ctx context.Context) error
}

// History reads past attempts.
type History interface {
	History(ctx context.Context, userID int64, limit int) ([]domain.AttemptRecord, error)
}

const historyLimit = 10

// App wires the terminal to the login flow.
type App struct {
	flow    Flow
	history History
	reader  *bufio.Reader
	out     io.Writer
	log     *zap.Logger
}

// New creates a terminal app reading from in and writing to out.
func New(flow Flow, history History, in io.Reader, out io.Writer, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	return &App{
		flow:    flow,
		history: history,
		reader:  bufio.NewReader(in),
		out:     out,
		log:     log,
	}
}

// OrientationPrinter returns a sample observer that prints the live head
// orientation readout.
func OrientationPrinter(out io.Writer) app.SampleObserver {
	return func(s domain.OrientationSample, remaining time.Duration) {
		fmt.Fprintf(out, "\r  x: %6.2f  y: %6.2f  z: %6.2f   %.1fs left ", s.Pitch, s.Yaw, s.Roll, remaining.Seconds())
	}
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format+"\n", args...)
}

func (a *App) isLoggedIn() bool {
	return a.flow.Session().Authenticated()
}

// status is shown in the prompt.
func (a *App) status() string {
	s := a.flow.Session()
	switch s.Phase {
	case domain.PhaseCredentials:
		return "signed out"
	case domain.PhaseCompleted:
		return fmt.Sprintf("user %d", s.UserID)
	default:
		return string(s.Phase)
	}
}

// Login asks for credentials when needed and then runs the remaining
// phases. In the gesture or face phase it resumes where the flow stopped.
func (a *App) Login(ctx context.Context) error {
	switch a.flow.Session().Phase {
	case domain.PhaseCompleted:
		a.printf("Already logged in. Use 'logout' first.")
		return nil
	case domain.PhaseCredentials:
		email, err := GetSimpleText(a.reader, "Email", a.out)
		if err != nil {
			return err
		}
		password, err := GetPassword(a.reader, a.out)
		if err != nil {
			return err
		}
		if err := a.flow.SubmitCredentials(ctx, email, password); err != nil {
			if errors.Is(err, app.ErrInvalidCredentials) {
				a.printf("Invalid email or password.")
				return err
			}
			a.printf("Login failed: %v", err)
			return err
		}
	}
	return a.resume(ctx)
}

func (a *App) resume(ctx context.Context) error {
	if a.flow.Session().Phase == domain.PhaseGesture {
		a.printf("Show a victory sign to the camera.")
		if err := a.flow.RunGesture(ctx); err != nil {
			switch {
			case errors.Is(err, app.ErrGestureTimeout):
				a.printf("No gesture seen in time. Please log in again.")
			case errors.Is(err, app.ErrAcquisition):
				a.printf("Camera error: %v. Type 'login' to retry.", err)
			default:
				a.printf("Gesture check failed: %v", err)
			}
			return err
		}
		a.printf("Gesture recognized.")
	}

	if a.flow.Session().Phase != domain.PhaseFaceVerify {
		return nil
	}
	a.printf("Look at the camera and move your head slowly.")
	rec, err := a.flow.RunLiveness(ctx)
	fmt.Fprintln(a.out)
	if err != nil && !errors.Is(err, app.ErrAcquisition) {
		if errors.Is(err, app.ErrPersistence) {
			a.printf("Could not save the login attempt. Please log in again.")
		} else {
			a.printf("Liveness check failed: %v", err)
		}
		return err
	}
	if err != nil {
		a.log.Warn("camera stopped during liveness check", zap.Error(err))
	}

	if !rec.Success {
		a.printf("Liveness check failed: %s. Please log in again.", rec.FailureReason)
		return nil
	}
	a.printf("Login successful (%d samples). Session token: %s", len(rec.Samples), a.flow.Token())
	return nil
}

// History prints the most recent attempts of the logged in user.
func (a *App) History(ctx context.Context) error {
	if !a.isLoggedIn() {
		a.printf("Log in to see your login history.")
		return nil
	}
	recs, err := a.history.History(ctx, a.flow.Session().UserID, historyLimit)
	if err != nil {
		a.printf("Could not load history: %v", err)
		return err
	}
	if len(recs) == 0 {
		a.printf("No attempts recorded.")
		return nil
	}
	for _, r := range recs {
		outcome := "success"
		if !r.Success {
			outcome = "failed: " + r.FailureReason
		}
		a.printf("%4d  %s  %s", r.ID, r.Timestamp.Local().Format(time.DateTime), outcome)
	}
	return nil
}

// Logout ends the session.
func (a *App) Logout(ctx context.Context) error {
	if err := a.flow.Logout(ctx); err != nil {
		a.printf("Logout: %v", err)
		return err
	}
	a.printf("Logged out.")
	return nil
}

// Run starts the command loop and returns when the user exits or input ends.
func (a *App) Run(ctx context.Context) {
	a.printf("liveauth: type 'help' for commands.")
	runREPL(ctx, a, a.status, a.reader)
}
