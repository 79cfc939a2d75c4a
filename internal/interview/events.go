package interview

import (
	"time"

	"github.com/jwulff/rehearse/internal/recorder"
)

// Severity is a notice severity.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Notice is a user-facing message.
type Notice struct {
	Severity Severity
	Message  string
	At       time.Time
}

// EventKind identifies a controller event.
type EventKind string

const (
	EventState      EventKind = "state"
	EventRecording  EventKind = "recording"
	EventTranscript EventKind = "transcript"
	EventNotice     EventKind = "notice"
)

// Event tells the UI that something changed. Consumers re-read Snapshot
// for the full picture; Final and Pending carry transcript fragments and
// Notice carries the message for EventNotice.
type Event struct {
	Kind    EventKind
	Final   string
	Pending string
	Notice  *Notice
}

// Snapshot is an immutable copy of the controller state.
type Snapshot struct {
	State           State
	Session         *Session
	QuestionIndex   int
	CurrentQuestion string
	TotalQuestions  int
	Recording       bool
	Paused          bool
	Listening       bool
	CameraLive      bool
	VideoAvailable  bool
	Chunks          int
	Bytes           int
	Elapsed         time.Duration
	Format          recorder.Format
	Committed       string
	Pending         string
	Notice          *Notice
}

func (c *Controller) info(msg string) { c.post(SeverityInfo, msg) }
func (c *Controller) warn(msg string) { c.post(SeverityWarn, msg) }

func (c *Controller) post(sev Severity, msg string) {
	n := Notice{Severity: sev, Message: msg, At: c.clock()}
	c.mu.Lock()
	c.notice = &n
	c.mu.Unlock()
	c.emit(Event{Kind: EventNotice, Notice: &n})
}

// emit never blocks; a full buffer drops the event.
func (c *Controller) emit(ev Event) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if c.eventsClosed {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.logger.Debugw("controller event dropped", "kind", ev.Kind)
	}
}
