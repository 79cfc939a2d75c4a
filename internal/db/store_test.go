package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jwulff/rehearse/internal/export"
	"github.com/jwulff/rehearse/internal/interview"
)

// openTestStore creates a fresh history database in a temp dir.
func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "history.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testDoc(id string, started time.Time, answers int) export.Document {
	doc := export.Document{
		SessionID:       id,
		StartTime:       started,
		EndTime:         started.Add(2 * time.Minute),
		Completed:       answers == 3,
		Questions:       []string{"Q1", "Q2", "Q3"},
		TotalDurationMs: 120000,
		MediaType:       "video/webm",
	}
	for i := 0; i < answers; i++ {
		doc.Responses = append(doc.Responses, interview.AnswerRecord{
			QuestionIndex:         i,
			QuestionText:          doc.Questions[i],
			AnswerText:            "answer",
			SubmittedAtOffsetMs:   int64(i+1) * 1000,
			VideoOffsetMsAtSubmit: int64(i+1) * 900,
		})
	}
	return doc
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.sqlite")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	// Opening again must not fail on the existing schema.
	again, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	again.Close()
}

func TestRecordExport(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	doc := testDoc("sess-1", started, 3)
	files := []string{"/tmp/rehearse-1.webm", "/tmp/rehearse-1.json"}
	if err := store.RecordExport(ctx, doc, files, started.Add(3*time.Minute)); err != nil {
		t.Fatalf("RecordExport: %v", err)
	}

	sess, err := store.LatestSession(ctx)
	if err != nil {
		t.Fatalf("LatestSession: %v", err)
	}
	if sess == nil {
		t.Fatal("expected session, got nil")
	}
	if sess.ID != "sess-1" {
		t.Errorf("session ID = %q, want %q", sess.ID, "sess-1")
	}
	if !sess.Completed {
		t.Error("completed = false, want true")
	}
	if sess.QuestionCount != 3 || sess.AnswerCount != 3 {
		t.Errorf("counts = %d/%d, want 3/3", sess.AnswerCount, sess.QuestionCount)
	}
	if sess.StartedAt.Unix() != started.Unix() {
		t.Errorf("startedAt = %v, want %v", sess.StartedAt, started)
	}
	if sess.EndedAt == nil || sess.EndedAt.Unix() != started.Add(2*time.Minute).Unix() {
		t.Errorf("endedAt = %v, want %v", sess.EndedAt, started.Add(2*time.Minute))
	}
	if sess.JSONPath != "/tmp/rehearse-1.json" || sess.MediaPath != "/tmp/rehearse-1.webm" {
		t.Errorf("paths = %q/%q", sess.JSONPath, sess.MediaPath)
	}
	if sess.MediaType != "video/webm" {
		t.Errorf("mediaType = %q, want %q", sess.MediaType, "video/webm")
	}

	answers, err := store.AnswersForSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("AnswersForSession: %v", err)
	}
	if len(answers) != 3 {
		t.Fatalf("got %d answers, want 3", len(answers))
	}
	if answers[1].QuestionText != "Q2" || answers[1].VideoOffsetMsAtSubmit != 1800 {
		t.Errorf("answers[1] = %+v", answers[1])
	}
}

func TestRecordExportReplaces(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	started := time.Now()

	if err := store.RecordExport(ctx, testDoc("sess-1", started, 1), []string{"/tmp/a.json"}, started); err != nil {
		t.Fatalf("first export: %v", err)
	}
	if err := store.RecordExport(ctx, testDoc("sess-1", started, 3), []string{"/tmp/b.json"}, started); err != nil {
		t.Fatalf("second export: %v", err)
	}

	sessions, err := store.RecentSessions(ctx, 0)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	if sessions[0].AnswerCount != 3 || sessions[0].JSONPath != "/tmp/b.json" {
		t.Errorf("session = %+v, want the second export", sessions[0])
	}
}

func TestRecentSessions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for i, id := range []string{"old", "mid", "new"} {
		doc := testDoc(id, now.Add(time.Duration(i)*time.Hour), 0)
		if err := store.RecordExport(ctx, doc, nil, now); err != nil {
			t.Fatalf("RecordExport %s: %v", id, err)
		}
	}

	sessions, err := store.RecentSessions(ctx, 2)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if sessions[0].ID != "new" || sessions[1].ID != "mid" {
		t.Errorf("order = %s, %s; want new, mid", sessions[0].ID, sessions[1].ID)
	}
	if sessions[0].MediaPath != "" {
		t.Errorf("mediaPath = %q, want empty", sessions[0].MediaPath)
	}
}

func TestLatestSessionEmpty(t *testing.T) {
	store := openTestStore(t)

	sess, err := store.LatestSession(context.Background())
	if err != nil {
		t.Fatalf("LatestSession: %v", err)
	}
	if sess != nil {
		t.Errorf("expected nil, got session %q", sess.ID)
	}
}

func TestAnswersForSessionEmpty(t *testing.T) {
	store := openTestStore(t)

	answers, err := store.AnswersForSession(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("AnswersForSession: %v", err)
	}
	if len(answers) != 0 {
		t.Errorf("got %d answers, want 0", len(answers))
	}
}

func TestForgetFiles(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	store.RecordExport(ctx, testDoc("gone", now, 2), []string{"/x/gone.json", "/x/gone.webm"}, now)
	store.RecordExport(ctx, testDoc("half", now.Add(time.Hour), 1), []string{"/x/half.json", "/x/half.webm"}, now)

	dropped, err := store.ForgetFiles(ctx, []string{"/x/gone.json", "/x/gone.webm", "/x/half.webm"})
	if err != nil {
		t.Fatalf("ForgetFiles: %v", err)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}

	sessions, _ := store.RecentSessions(ctx, 0)
	if len(sessions) != 1 || sessions[0].ID != "half" {
		t.Fatalf("sessions = %+v, want only half", sessions)
	}
	if sessions[0].MediaPath != "" || sessions[0].JSONPath != "/x/half.json" {
		t.Errorf("paths = %q/%q", sessions[0].JSONPath, sessions[0].MediaPath)
	}

	answers, _ := store.AnswersForSession(ctx, "gone")
	if len(answers) != 0 {
		t.Errorf("answers of dropped session = %d, want 0", len(answers))
	}
}

func TestTimeFromUnix(t *testing.T) {
	want := time.Date(2026, 1, 2, 3, 4, 5, 500_000_000, time.UTC)
	got := timeFromUnix(unixFromTime(want))
	if d := got.Sub(want); d < -time.Millisecond || d > time.Millisecond {
		t.Errorf("round trip = %v, want %v", got, want)
	}
}
