package app

import (
	"time"

	"github.com/jwulff/rehearse/internal/interview"
)

// ControllerEventMsg wraps an event from the interview controller.
type ControllerEventMsg struct {
	Event interview.Event
}

// ControllerClosedMsg is sent when the controller's event stream ends.
type ControllerClosedMsg struct{}

// ActionDoneMsg carries the outcome of a blocking controller call.
type ActionDoneMsg struct {
	Action string
	Err    error
}

// SubmittedMsg carries the outcome of SubmitAnswer.
type SubmittedMsg struct {
	Submission interview.Submission
	Err        error
}

// ExportedMsg carries the outcome of an export.
type ExportedMsg struct {
	Files    []string
	Warnings []string
	Err      error
	// HistoryErr is set when the files were written but could not be
	// recorded in the history database.
	HistoryErr error
}

// DaemonLostMsg is sent when the capture daemon connection drops.
type DaemonLostMsg struct {
	Err error
}

// ClearNoticeMsg clears an info notice after a timeout. At identifies the
// notice, so a newer one is left alone.
type ClearNoticeMsg struct {
	At time.Time
}

// TickMsg refreshes the elapsed-time display while recording.
type TickMsg struct{}
