package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jwulff/rehearse/internal/interview"
)

func TestConfigYAMLRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Questions = []string{"Why this team?"}
	cfg.Capture.Profile.Width = 640
	cfg.Transcript.Locale = "de-DE"
	cfg.Cleanup.ReleaseOnBlur = false

	if err := WriteConfig(tmpDir, cfg); err != nil {
		t.Fatalf("WriteConfig failed: %v", err)
	}

	loaded, err := ReadConfig(tmpDir)
	if err != nil {
		t.Fatalf("ReadConfig failed: %v", err)
	}

	if len(loaded.Questions) != 1 || loaded.Questions[0] != "Why this team?" {
		t.Errorf("Questions: got %v, want [Why this team?]", loaded.Questions)
	}
	if loaded.Capture.Profile.Width != 640 {
		t.Errorf("Capture.Profile.Width: got %d, want 640", loaded.Capture.Profile.Width)
	}
	if loaded.Transcript.Locale != "de-DE" {
		t.Errorf("Transcript.Locale: got %q, want %q", loaded.Transcript.Locale, "de-DE")
	}
	if loaded.Cleanup.ReleaseOnBlur {
		t.Error("Cleanup.ReleaseOnBlur: got true, want false")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Recording.Timeslice != 250 {
		t.Errorf("default Timeslice: got %d, want 250", cfg.Recording.Timeslice)
	}
	if cfg.Recording.StopTimeout != 400 {
		t.Errorf("default StopTimeout: got %d, want 400", cfg.Recording.StopTimeout)
	}
	if cfg.Capture.Profile.Width != 1280 || cfg.Capture.Profile.Height != 720 || cfg.Capture.Profile.FrameRate != 30 {
		t.Errorf("default profile: got %+v, want 1280x720@30", cfg.Capture.Profile)
	}
	if !cfg.Capture.VerifyRelease {
		t.Error("default VerifyRelease: got false, want true")
	}
	if len(cfg.Questions) != len(interview.DefaultQuestions) {
		t.Errorf("default questions: got %d, want %d", len(cfg.Questions), len(interview.DefaultQuestions))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestDefaultQuestionsAreCopied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Questions[0] = "changed"
	if interview.DefaultQuestions[0] == "changed" {
		t.Error("DefaultConfig shares the DefaultQuestions backing array")
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	partial := `version: 1
recording:
  timeslice_ms: 1000
`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(partial), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := ReadConfig(tmpDir)
	if err != nil {
		t.Fatalf("ReadConfig failed: %v", err)
	}
	if cfg.Recording.Timeslice != 1000 {
		t.Errorf("Timeslice: got %d, want 1000", cfg.Recording.Timeslice)
	}
	if cfg.Recording.StopTimeout != 400 {
		t.Errorf("StopTimeout: got %d, want default 400", cfg.Recording.StopTimeout)
	}
	if !cfg.Cleanup.ReleaseOnBlur {
		t.Error("ReleaseOnBlur: got false, want default true")
	}
}

func TestReadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"malformed", "recording: [", "parsing config"},
		{"zero timeslice", "recording:\n  timeslice_ms: 0\n", "timeslice_ms"},
		{"bad profile", "capture:\n  profile:\n    width: -1\n", "capture.profile"},
		{"negative keep", "export:\n  keep: -2\n", "export.keep"},
		{"zero command timeout", "daemon:\n  command_timeout_ms: 0\n", "command_timeout_ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(tt.content), 0644); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, err := ReadConfig(dir)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("Version: got %d, want 1", cfg.Version)
	}

	if _, err := ReadConfig(t.TempDir()); err == nil {
		t.Error("ReadConfig should fail on a missing file")
	}
}

func TestDirHonorsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := Dir(); got != "/tmp/xdg/rehearse" {
		t.Errorf("Dir() = %q, want %q", got, "/tmp/xdg/rehearse")
	}
	t.Setenv("XDG_STATE_HOME", "/tmp/state")
	if got := LogDir(); got != "/tmp/state/rehearse/logs" {
		t.Errorf("LogDir() = %q, want %q", got, "/tmp/state/rehearse/logs")
	}
}

func TestControllerOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transcript.Locale = "en-GB"
	opts := cfg.ControllerOptions(nil)

	if opts.Timeslice != 250*time.Millisecond {
		t.Errorf("Timeslice: got %v, want 250ms", opts.Timeslice)
	}
	if opts.StopTimeout != 400*time.Millisecond {
		t.Errorf("StopTimeout: got %v, want 400ms", opts.StopTimeout)
	}
	if opts.ProbeTimeout != time.Second {
		t.Errorf("ProbeTimeout: got %v, want 1s", opts.ProbeTimeout)
	}
	if opts.CleanupTimeout != 2*time.Second {
		t.Errorf("CleanupTimeout: got %v, want 2s", opts.CleanupTimeout)
	}
	if opts.Profile == nil || opts.Profile.Width != 1280 {
		t.Errorf("Profile: got %+v, want default", opts.Profile)
	}
	if opts.Locale != "en-GB" || !opts.AutoTranscript {
		t.Errorf("transcript options: got %q/%v", opts.Locale, opts.AutoTranscript)
	}

	// The profile is a copy.
	opts.Profile.Width = 1
	if cfg.Capture.Profile.Width != 1280 {
		t.Error("ControllerOptions shares the profile with the config")
	}
}

func TestLoggerOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Dir = t.TempDir()
	if got := len(cfg.LoggerOptions()); got != 4 {
		t.Errorf("LoggerOptions: got %d options, want 4", got)
	}
}
