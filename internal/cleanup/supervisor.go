// Package cleanup forces every capture-related resource back to a released
// state when the session is torn down.
//
// Teardown is best-effort: each step runs even if an earlier one failed,
// panicked or hung, and failures are logged rather than returned to the UI.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jwulff/rehearse/internal/logging"
)

// Reason names what triggered a teardown.
type Reason string

const (
	ReasonHidden    Reason = "hidden"
	ReasonUnloading Reason = "unloading"
	ReasonEmergency Reason = "emergency"
	ReasonReset     Reason = "reset"
)

// DefaultStepTimeout bounds a step that sets no Timeout.
const DefaultStepTimeout = 3 * time.Second

// ErrStepTimeout is recorded for a step that did not return in time. The
// step is abandoned, not cancelled.
var ErrStepTimeout = errors.New("cleanup step timed out")

// Step is one teardown action.
type Step struct {
	Name    string
	Run     func() error
	Timeout time.Duration // zero means DefaultStepTimeout
}

// Failure records a step that returned an error or panicked.
type Failure struct {
	Step string
	Err  error
}

// Report summarizes one teardown.
type Report struct {
	Reason   Reason
	At       time.Time
	Failures []Failure
}

// OK reports whether every step succeeded.
func (r Report) OK() bool { return len(r.Failures) == 0 }

// Supervisor runs its steps, in order, on every trigger.
type Supervisor struct {
	logger logging.Logger
	steps  []Step

	mu   sync.Mutex // serializes teardowns
	runs int
	last Report
}

// New returns a Supervisor running steps in the given order.
func New(logger logging.Logger, steps ...Step) *Supervisor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Supervisor{logger: logger, steps: steps}
}

// Hidden is called when the UI goes to the background.
func (s *Supervisor) Hidden() Report { return s.Trigger(ReasonHidden) }

// Unloading is called when the process is about to exit.
func (s *Supervisor) Unloading() Report { return s.Trigger(ReasonUnloading) }

// Emergency is the explicit user-triggered shutdown.
func (s *Supervisor) Emergency() Report { return s.Trigger(ReasonEmergency) }

// Trigger runs every step and returns what failed. It never panics.
func (s *Supervisor) Trigger(reason Reason) Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := Report{Reason: reason, At: time.Now()}
	for _, step := range s.steps {
		if err := runStep(step); err != nil {
			report.Failures = append(report.Failures, Failure{Step: step.Name, Err: err})
			s.logger.Warnw("cleanup step failed", "reason", reason, "step", step.Name, "error", err)
		}
	}
	s.runs++
	s.last = report
	s.logger.Infow("cleanup complete", "reason", reason, "failures", len(report.Failures))
	return report
}

// Runs returns how many teardowns have run.
func (s *Supervisor) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// Last returns the most recent report.
func (s *Supervisor) Last() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Watch triggers ReasonUnloading when the process receives SIGTERM, SIGHUP
// or SIGINT, then calls onSignal (if non-nil). It returns when ctx is done.
func (s *Supervisor) Watch(ctx context.Context, onSignal func(os.Signal)) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGINT)
	defer signal.Stop(ch)
	s.watch(ctx, ch, onSignal)
}

func (s *Supervisor) watch(ctx context.Context, ch <-chan os.Signal, onSignal func(os.Signal)) {
	select {
	case <-ctx.Done():
		return
	case sig := <-ch:
		s.logger.Warnw("signal received, releasing capture", "signal", sig.String())
		s.Unloading()
		if onSignal != nil {
			onSignal(sig)
		}
	}
}

// runStep runs step on its own goroutine and waits at most its timeout, so
// one wedged step cannot keep the later ones from running.
func runStep(step Step) error {
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	done := make(chan error, 1)
	go func() { done <- callStep(step) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrStepTimeout, timeout)
	}
}

func callStep(step Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return step.Run()
}
