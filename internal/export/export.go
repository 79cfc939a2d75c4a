// Package export turns a session and its recorded chunks into files.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jwulff/rehearse/internal/interview"
	"github.com/jwulff/rehearse/internal/recorder"
)

// WarnNoData is reported when chunks exist but hold no bytes.
const WarnNoData = "recording captured no data"

const (
	namePrefix      = "rehearse-"
	timestampLayout = "20060102-150405"
	fallbackMIME    = "application/octet-stream"
	fallbackExt     = ".bin"
)

// Document is the JSON artifact.
type Document struct {
	SessionID       string                    `json:"sessionId"`
	StartTime       time.Time                 `json:"startTime"`
	EndTime         time.Time                 `json:"endTime"`
	Completed       bool                      `json:"completed"`
	Questions       []string                  `json:"questions"`
	Responses       []interview.AnswerRecord  `json:"responses"`
	Timeline        []interview.TimelineEntry `json:"timeline,omitempty"`
	TotalDurationMs int64                     `json:"totalDurationMs"`
	MediaType       string                    `json:"mediaType,omitempty"`
}

// Artifact is one file to be written.
type Artifact struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Artifacts is the output of Build. Media is nil when there were no chunks.
type Artifacts struct {
	JSON     Artifact
	Media    *Artifact
	Warnings []string
}

// Build produces the JSON artifact and, when chunks is non-empty, the media
// artifact. An unfinished session is exported as ending at now. sess is not
// modified.
func Build(sess interview.Session, chunks [][]byte, format recorder.Format, now time.Time) (Artifacts, error) {
	end := now
	if sess.EndedAt != nil {
		end = *sess.EndedAt
	}
	doc := Document{
		SessionID:       sess.ID,
		StartTime:       sess.StartedAt,
		EndTime:         end,
		Completed:       sess.Completed,
		Questions:       append([]string{}, sess.Questions...),
		Responses:       append([]interview.AnswerRecord{}, sess.Answers...),
		Timeline:        append([]interview.TimelineEntry(nil), sess.Timeline...),
		TotalDurationMs: sess.Duration(now).Milliseconds(),
	}

	base := BaseName(sess)
	var out Artifacts
	if len(chunks) > 0 {
		mime, ext := format.MIMEType, format.Extension
		if mime == "" {
			mime, ext = fallbackMIME, fallbackExt
		}
		data := bytes.Join(chunks, nil)
		if len(data) == 0 {
			out.Warnings = append(out.Warnings, WarnNoData)
		}
		out.Media = &Artifact{Name: base + ext, MIMEType: mime, Data: data}
		doc.MediaType = mime
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Artifacts{}, fmt.Errorf("marshal session: %w", err)
	}
	out.JSON = Artifact{Name: base + ".json", MIMEType: "application/json", Data: data}
	return out, nil
}

// BaseName is the file name shared by a session's artifacts, without
// extension.
func BaseName(sess interview.Session) string {
	id := sess.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return namePrefix + sess.StartedAt.UTC().Format(timestampLayout) + "-" + id
}

// Parse decodes a JSON artifact.
func Parse(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parse session document: %w", err)
	}
	return doc, nil
}

// WriteFiles writes every artifact into dir and returns the written paths,
// JSON first.
func WriteFiles(ctx context.Context, dir string, a Artifacts) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	files := []Artifact{a.JSON}
	if a.Media != nil {
		files = append(files, *a.Media)
	}
	paths := make([]string, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		paths[i] = filepath.Join(dir, f.Name)
		path := paths[i]
		data := f.Data
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// Prune removes the artifacts of all but the keep most recent sessions in
// dir. With dryRun nothing is deleted. It returns the base names of the
// pruned sessions, oldest first.
func Prune(dir string, keep int, dryRun bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading export directory: %w", err)
	}

	groups := make(map[string][]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		base, ok := artifactBase(e.Name())
		if !ok {
			continue
		}
		groups[base] = append(groups[base], e.Name())
	}

	bases := make([]string, 0, len(groups))
	for b := range groups {
		bases = append(bases, b)
	}
	// Timestamped names sort chronologically.
	sort.Strings(bases)
	if keep < 0 {
		keep = 0
	}
	if len(bases) <= keep {
		return nil, nil
	}

	var pruned []string
	for _, b := range bases[:len(bases)-keep] {
		if !dryRun {
			for _, name := range groups[b] {
				if err := os.Remove(filepath.Join(dir, name)); err != nil {
					return pruned, fmt.Errorf("removing %s: %w", name, err)
				}
			}
		}
		pruned = append(pruned, b)
	}
	return pruned, nil
}

// artifactBase returns the session base name of an artifact file name.
func artifactBase(name string) (string, bool) {
	if !strings.HasPrefix(name, namePrefix) {
		return "", false
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	rest := strings.TrimPrefix(base, namePrefix)
	if len(rest) < len(timestampLayout) {
		return "", false
	}
	if _, err := time.Parse(timestampLayout, rest[:len(timestampLayout)]); err != nil {
		return "", false
	}
	return base, true
}
