// Package transcript wraps a speech-to-text recognizer.
//
// Results arrive as (final, partial) pairs. Final text is appended to the
// committed transcript; partial text replaces the pending transcript
// wholesale. Appending partials instead duplicates words on screen, because
// every partial repeats the utterance so far.
package transcript

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jwulff/rehearse/internal/logging"
)

var (
	ErrUnsupported     = errors.New("speech recognition is not supported")
	ErrInsecureContext = errors.New("speech recognition requires a secure context")
)

// State is the engine state.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
)

// ErrorCode is a recognition error surfaced to the caller. None of them end
// the interview session.
type ErrorCode string

const (
	ErrorNetwork          ErrorCode = "network"
	ErrorPermissionDenied ErrorCode = "permission-denied"
	ErrorNoSpeech         ErrorCode = "no-speech"
	ErrorCaptureFailed    ErrorCode = "capture-failed"
	ErrorServiceBlocked   ErrorCode = "service-blocked"
	ErrorInterrupted      ErrorCode = "interrupted"
)

// NormalizeError maps raw recognizer codes onto the ErrorCode taxonomy.
func NormalizeError(raw string) ErrorCode {
	switch raw {
	case "network":
		return ErrorNetwork
	case "not-allowed", "permission-denied":
		return ErrorPermissionDenied
	case "no-speech":
		return ErrorNoSpeech
	case "audio-capture", "capture-failed":
		return ErrorCaptureFailed
	case "service-not-allowed", "service-blocked":
		return ErrorServiceBlocked
	default:
		return ErrorInterrupted
	}
}

// Message returns a user-facing description of the error.
func (c ErrorCode) Message() string {
	switch c {
	case ErrorNetwork:
		return "Speech service unreachable. Keep typing your answer."
	case ErrorPermissionDenied:
		return "Microphone access for speech was denied. Type your answer instead."
	case ErrorNoSpeech:
		return "No speech detected. Transcript capture stopped."
	case ErrorCaptureFailed:
		return "Could not capture audio for the transcript."
	case ErrorServiceBlocked:
		return "Speech service is blocked on this system."
	default:
		return "Transcript capture was interrupted."
	}
}

// Listener receives recognizer callbacks for one listen cycle.
type Listener interface {
	OnResult(final, partial string)
	OnError(code string)
	OnEnd()
}

// Recognizer is the platform speech-to-text engine.
type Recognizer interface {
	// Check reports ErrUnsupported or ErrInsecureContext when recognition
	// cannot run at all.
	Check() error
	Start(locale string, l Listener) error
	Stop() error
}

// EventKind identifies an engine event.
type EventKind string

const (
	EventStateChanged EventKind = "state_changed"
	EventFragment     EventKind = "fragment"
	EventError        EventKind = "error"
)

// Event is emitted to the handler registered with WithEventHandler.
type Event struct {
	Kind      EventKind
	State     State
	Final     string
	Committed string
	Pending   string
	Code      ErrorCode
}

// Engine is the transcript engine.
type Engine struct {
	rec     Recognizer
	logger  logging.Logger
	locale  string
	onEvent func(Event)

	mu        sync.Mutex
	state     State
	gen       uint64
	committed string
	pending   string
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l logging.Logger) Option     { return func(e *Engine) { e.logger = l } }
func WithLocale(locale string) Option        { return func(e *Engine) { e.locale = locale } }
func WithEventHandler(fn func(Event)) Option { return func(e *Engine) { e.onEvent = fn } }

// New returns an idle engine.
func New(rec Recognizer, opts ...Option) *Engine {
	e := &Engine{
		rec:    rec,
		logger: logging.NewNop(),
		locale: "en-US",
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins listening. Starting while already listening is a no-op.
func (e *Engine) Start() error {
	if err := e.rec.Check(); err != nil {
		return err
	}

	e.mu.Lock()
	if e.state == StateListening {
		e.mu.Unlock()
		return nil
	}
	e.gen++
	gen := e.gen
	if err := e.rec.Start(e.locale, &listener{e: e, gen: gen}); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("start recognizer: %w", err)
	}
	e.state = StateListening
	e.mu.Unlock()

	e.logger.Infow("transcript listening", "locale", e.locale)
	e.emit(Event{Kind: EventStateChanged, State: StateListening})
	return nil
}

// Stop returns to idle and clears pending text. Idempotent.
func (e *Engine) Stop() {
	if err := e.ForceStop(); err != nil {
		e.logger.Warnw("recognizer stop failed", "error", err)
	}
}

// ForceStop is Stop reporting the recognizer error instead of logging it.
func (e *Engine) ForceStop() error {
	e.mu.Lock()
	if e.state == StateIdle {
		e.pending = ""
		e.mu.Unlock()
		return nil
	}
	e.toIdleLocked()
	e.mu.Unlock()

	e.emit(Event{Kind: EventStateChanged, State: StateIdle})
	if err := e.rec.Stop(); err != nil {
		return fmt.Errorf("stop recognizer: %w", err)
	}
	return nil
}

// Clear drops committed and pending text. Listening continues.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.committed = ""
	e.pending = ""
	e.mu.Unlock()
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Committed returns the accumulated final text.
func (e *Engine) Committed() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.committed
}

// Pending returns the current partial text.
func (e *Engine) Pending() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// Text returns committed text followed by pending text.
func (e *Engine) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return joinText(e.committed, e.pending)
}

func (e *Engine) toIdleLocked() {
	e.state = StateIdle
	e.pending = ""
	e.gen++
}

func (e *Engine) result(gen uint64, final, partial string) {
	e.mu.Lock()
	if gen != e.gen || e.state != StateListening {
		e.mu.Unlock()
		return
	}
	final = strings.TrimSpace(final)
	if final != "" {
		e.committed = joinText(e.committed, final)
	}
	e.pending = strings.TrimSpace(partial)
	ev := Event{Kind: EventFragment, State: e.state, Final: final, Committed: e.committed, Pending: e.pending}
	e.mu.Unlock()

	e.emit(ev)
}

func (e *Engine) failed(gen uint64, raw string) {
	e.mu.Lock()
	if gen != e.gen || e.state != StateListening {
		e.mu.Unlock()
		return
	}
	e.toIdleLocked()
	e.mu.Unlock()

	code := NormalizeError(raw)
	e.logger.Warnw("recognition error", "code", code, "raw", raw)
	e.emit(Event{Kind: EventError, State: StateIdle, Code: code})
	if err := e.rec.Stop(); err != nil {
		e.logger.Debugw("recognizer stop after error failed", "error", err)
	}
}

func (e *Engine) ended(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.state != StateListening {
		e.mu.Unlock()
		return
	}
	e.toIdleLocked()
	e.mu.Unlock()

	e.logger.Infow("recognizer ended listening")
	e.emit(Event{Kind: EventStateChanged, State: StateIdle})
}

func (e *Engine) emit(ev Event) {
	if e.onEvent != nil {
		e.onEvent(ev)
	}
}

func joinText(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " " + b
}

type listener struct {
	e   *Engine
	gen uint64
}

func (l *listener) OnResult(final, partial string) { l.e.result(l.gen, final, partial) }
func (l *listener) OnError(code string)            { l.e.failed(l.gen, code) }
func (l *listener) OnEnd()                         { l.e.ended(l.gen) }
