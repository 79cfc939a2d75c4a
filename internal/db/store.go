package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jwulff/rehearse/internal/export"
)

const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		startedAt REAL NOT NULL,
		endedAt REAL,
		completed INTEGER NOT NULL DEFAULT 0,
		questionCount INTEGER NOT NULL,
		durationMs INTEGER NOT NULL,
		mediaType TEXT,
		jsonPath TEXT,
		mediaPath TEXT,
		exportedAt REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS answers (
		sessionId TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		questionIndex INTEGER NOT NULL,
		questionText TEXT NOT NULL,
		answerText TEXT NOT NULL,
		submittedAtOffsetMs INTEGER NOT NULL,
		videoOffsetMs INTEGER NOT NULL,
		PRIMARY KEY (sessionId, questionIndex)
	);
`

// Store is the history database.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns the default database path.
func DefaultDBPath() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "rehearse", "history.sqlite")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "rehearse", "history.sqlite")
}

// Open opens or creates the database at path with WAL and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s, err := newStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func newStore(db *sql.DB) (*Store, error) {
	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordExport stores doc and the files it was written to. Exporting the
// same session again replaces the earlier record.
func (s *Store) RecordExport(ctx context.Context, doc export.Document, files []string, exportedAt time.Time) error {
	var jsonPath, mediaPath sql.NullString
	for _, f := range files {
		if strings.HasSuffix(f, ".json") {
			jsonPath = sql.NullString{String: f, Valid: true}
		} else {
			mediaPath = sql.NullString{String: f, Valid: true}
		}
	}
	var endedAt sql.NullFloat64
	if !doc.EndTime.IsZero() {
		endedAt = sql.NullFloat64{Float64: unixFromTime(doc.EndTime), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, startedAt, endedAt, completed, questionCount, durationMs, mediaType, jsonPath, mediaPath, exportedAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			endedAt = excluded.endedAt,
			completed = excluded.completed,
			durationMs = excluded.durationMs,
			mediaType = excluded.mediaType,
			jsonPath = excluded.jsonPath,
			mediaPath = excluded.mediaPath,
			exportedAt = excluded.exportedAt
	`, doc.SessionID, unixFromTime(doc.StartTime), endedAt, doc.Completed, len(doc.Questions),
		doc.TotalDurationMs, nullString(doc.MediaType), jsonPath, mediaPath, unixFromTime(exportedAt)); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM answers WHERE sessionId = ?`, doc.SessionID); err != nil {
		return fmt.Errorf("clear answers: %w", err)
	}
	for _, a := range doc.Responses {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO answers (sessionId, questionIndex, questionText, answerText, submittedAtOffsetMs, videoOffsetMs)
			VALUES (?, ?, ?, ?, ?, ?)
		`, doc.SessionID, a.QuestionIndex, a.QuestionText, a.AnswerText,
			a.SubmittedAtOffsetMs, a.VideoOffsetMsAtSubmit); err != nil {
			return fmt.Errorf("insert answer %d: %w", a.QuestionIndex, err)
		}
	}
	return tx.Commit()
}

const sessionColumns = `
	s.id, s.startedAt, s.endedAt, s.completed, s.questionCount,
	(SELECT COUNT(*) FROM answers a WHERE a.sessionId = s.id),
	s.durationMs, s.mediaType, s.jsonPath, s.mediaPath, s.exportedAt`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var sess Session
	var startedAt, exportedAt float64
	var endedAt sql.NullFloat64
	var mediaType, jsonPath, mediaPath sql.NullString

	if err := row.Scan(&sess.ID, &startedAt, &endedAt, &sess.Completed, &sess.QuestionCount,
		&sess.AnswerCount, &sess.DurationMs, &mediaType, &jsonPath, &mediaPath, &exportedAt); err != nil {
		return Session{}, err
	}

	sess.StartedAt = timeFromUnix(startedAt)
	sess.ExportedAt = timeFromUnix(exportedAt)
	if endedAt.Valid {
		t := timeFromUnix(endedAt.Float64)
		sess.EndedAt = &t
	}
	sess.MediaType = mediaType.String
	sess.JSONPath = jsonPath.String
	sess.MediaPath = mediaPath.String
	return sess, nil
}

// RecentSessions returns up to limit sessions, newest first. A limit of
// zero or less returns all of them.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions s
		ORDER BY s.startedAt DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// LatestSession returns the most recently started session, or nil.
func (s *Store) LatestSession(ctx context.Context) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions s
		ORDER BY s.startedAt DESC
		LIMIT 1
	`)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &sess, nil
}

// AnswersForSession returns a session's answers in question order.
func (s *Store) AnswersForSession(ctx context.Context, sessionID string) ([]Answer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sessionId, questionIndex, questionText, answerText, submittedAtOffsetMs, videoOffsetMs
		FROM answers
		WHERE sessionId = ?
		ORDER BY questionIndex ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	var answers []Answer
	for rows.Next() {
		var a Answer
		if err := rows.Scan(&a.SessionID, &a.QuestionIndex, &a.QuestionText, &a.AnswerText,
			&a.SubmittedAtOffsetMs, &a.VideoOffsetMsAtSubmit); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// ForgetFiles clears references to deleted artifact files and drops
// sessions left with none. It returns how many sessions were dropped.
func (s *Store) ForgetFiles(ctx context.Context, paths []string) (int64, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, p := range paths {
		if _, err := tx.ExecContext(ctx, `UPDATE sessions SET jsonPath = NULL WHERE jsonPath = ?`, p); err != nil {
			return 0, fmt.Errorf("forget %s: %w", p, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE sessions SET mediaPath = NULL WHERE mediaPath = ?`, p); err != nil {
			return 0, fmt.Errorf("forget %s: %w", p, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE jsonPath IS NULL AND mediaPath IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("drop sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
