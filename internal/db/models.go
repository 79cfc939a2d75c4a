// Package db records exported interview sessions in a local SQLite database.
package db

import "time"

// Session is one exported interview session.
type Session struct {
	ID            string
	StartedAt     time.Time
	EndedAt       *time.Time
	Completed     bool
	QuestionCount int
	AnswerCount   int
	DurationMs    int64
	MediaType     string
	JSONPath      string
	MediaPath     string
	ExportedAt    time.Time
}

// Answer is one submitted answer of an exported session.
type Answer struct {
	SessionID             string
	QuestionIndex         int
	QuestionText          string
	AnswerText            string
	SubmittedAtOffsetMs   int64
	VideoOffsetMsAtSubmit int64
}
