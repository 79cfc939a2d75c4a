// Package interview runs a practice-interview session: it owns the
// question/answer timeline and coordinates the capture device, the segment
// recorder and the transcript engine.
package interview

import (
	"strings"
	"time"
)

// DefaultQuestions is used when no questions are configured.
var DefaultQuestions = []string{
	"Tell me about yourself.",
	"Why are you interested in this role?",
	"Describe a challenging project you worked on and how you handled it.",
	"Tell me about a time you disagreed with a teammate. What happened?",
	"Where do you see yourself in five years?",
}

// Questions returns the non-blank entries of qs, or DefaultQuestions when
// none are left.
func Questions(qs []string) []string {
	var out []string
	for _, q := range qs {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		out = append(out, DefaultQuestions...)
	}
	return out
}

// EntryKind is the kind of a timeline entry.
type EntryKind string

const (
	EntryQuestion EntryKind = "question"
	EntryAnswer   EntryKind = "answer"
)

// TimelineEntry is one question or answer on the session timeline.
type TimelineEntry struct {
	Kind          EntryKind `json:"kind"`
	Content       string    `json:"content"`
	QuestionIndex int       `json:"questionIndex"`
	OffsetMs      int64     `json:"offsetMs"`
}

// AnswerRecord is the submitted answer to one question. Immutable once
// created.
type AnswerRecord struct {
	QuestionIndex         int    `json:"questionIndex"`
	QuestionText          string `json:"questionText"`
	AnswerText            string `json:"answerText"`
	SubmittedAtOffsetMs   int64  `json:"submittedAtOffsetMs"`
	VideoOffsetMsAtSubmit int64  `json:"videoOffsetMsAtSubmit"`
}

// Session is one run through the question list.
type Session struct {
	ID        string
	StartedAt time.Time
	EndedAt   *time.Time
	Questions []string
	Timeline  []TimelineEntry
	Answers   []AnswerRecord
	Completed bool
}

// Clone returns a deep copy.
func (s *Session) Clone() Session {
	out := *s
	out.Questions = append([]string(nil), s.Questions...)
	out.Timeline = append([]TimelineEntry(nil), s.Timeline...)
	out.Answers = append([]AnswerRecord(nil), s.Answers...)
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	return out
}

// Duration is EndedAt minus StartedAt, or now minus StartedAt while the
// session is still running.
func (s Session) Duration(now time.Time) time.Duration {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	if end.Before(s.StartedAt) {
		return 0
	}
	return end.Sub(s.StartedAt)
}
