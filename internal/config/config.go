// Package config handles reading and writing the rehearse config.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jwulff/rehearse/internal/capture"
	"github.com/jwulff/rehearse/internal/interview"
	"github.com/jwulff/rehearse/internal/logging"
)

// Config is the top-level structure for config.yaml.
type Config struct {
	Version    int              `yaml:"version"`
	Questions  []string         `yaml:"questions"`
	Capture    CaptureConfig    `yaml:"capture"`
	Recording  RecordingConfig  `yaml:"recording"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Daemon     DaemonConfig     `yaml:"daemon"`
	Export     ExportConfig     `yaml:"export"`
	History    HistoryConfig    `yaml:"history"`
	Cleanup    CleanupConfig    `yaml:"cleanup"`
	Log        LogConfig        `yaml:"log"`
}

// CaptureConfig controls camera and microphone acquisition.
type CaptureConfig struct {
	Profile       capture.Profile `yaml:"profile"`
	VerifyRelease bool            `yaml:"verify_release"`
	ProbeTimeout  int             `yaml:"probe_timeout_ms"`
}

// RecordingConfig controls the segment recorder.
type RecordingConfig struct {
	Timeslice   int `yaml:"timeslice_ms"`
	StopTimeout int `yaml:"stop_timeout_ms"`
}

// TranscriptConfig controls live speech-to-text.
type TranscriptConfig struct {
	Locale    string `yaml:"locale"` // empty means the recognizer's default
	AutoStart bool   `yaml:"auto_start"`
}

// DaemonConfig locates the capture daemon.
type DaemonConfig struct {
	Socket         string `yaml:"socket"` // empty means daemon.SocketPath()
	ConnectTimeout int    `yaml:"connect_timeout_ms"`
	CommandTimeout int    `yaml:"command_timeout_ms"` // bounds every command after connect
}

// ExportConfig controls where artifacts go and how many are kept.
type ExportConfig struct {
	Dir  string `yaml:"dir"`
	Keep int    `yaml:"keep"` // sessions kept by clean; 0 keeps all
}

// HistoryConfig controls the exported-session database.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // empty means db.DefaultDBPath()
}

// CleanupConfig controls when capture hardware is released.
type CleanupConfig struct {
	ReleaseOnBlur bool `yaml:"release_on_blur"`
}

// LogConfig controls the rotating log file.
type LogConfig struct {
	Level      string `yaml:"level"`
	Dir        string `yaml:"dir"` // empty means LogDir()
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

const configFile = "config.yaml"

// Dir returns the config directory.
func Dir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "rehearse")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "rehearse")
}

// Path returns the config file path inside dir.
func Path(dir string) string {
	return filepath.Join(dir, configFile)
}

// ReadConfig reads config.yaml from dir. Fields missing from the file keep
// their defaults. Returns an error if the file is not found or YAML is
// malformed.
func ReadConfig(dir string) (*Config, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is ReadConfig that falls back to DefaultConfig when the file does
// not exist.
func Load(dir string) (*Config, error) {
	cfg, err := ReadConfig(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

// WriteConfig writes cfg to config.yaml in dir, creating dir if needed.
func WriteConfig(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	if err := os.WriteFile(Path(dir), data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch {
	case c.Capture.Profile.Width <= 0 || c.Capture.Profile.Height <= 0:
		return fmt.Errorf("capture.profile: size %dx%d must be positive", c.Capture.Profile.Width, c.Capture.Profile.Height)
	case c.Capture.Profile.FrameRate <= 0:
		return fmt.Errorf("capture.profile.frame_rate: %d must be positive", c.Capture.Profile.FrameRate)
	case c.Recording.Timeslice <= 0:
		return fmt.Errorf("recording.timeslice_ms: %d must be positive", c.Recording.Timeslice)
	case c.Recording.StopTimeout <= 0:
		return fmt.Errorf("recording.stop_timeout_ms: %d must be positive", c.Recording.StopTimeout)
	case c.Daemon.CommandTimeout <= 0:
		return fmt.Errorf("daemon.command_timeout_ms: %d must be positive", c.Daemon.CommandTimeout)
	case c.Export.Keep < 0:
		return fmt.Errorf("export.keep: %d must not be negative", c.Export.Keep)
	}
	return nil
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Version:   1,
		Questions: append([]string(nil), interview.DefaultQuestions...),
		Capture: CaptureConfig{
			Profile:       capture.DefaultProfile(),
			VerifyRelease: true,
			ProbeTimeout:  1000,
		},
		Recording: RecordingConfig{
			Timeslice:   250,
			StopTimeout: 400,
		},
		Transcript: TranscriptConfig{
			AutoStart: true,
		},
		Daemon: DaemonConfig{
			ConnectTimeout: 3000,
			CommandTimeout: 2000,
		},
		Export: ExportConfig{
			Dir:  filepath.Join(home, "Movies", "rehearse"),
			Keep: 20,
		},
		History: HistoryConfig{
			Enabled: true,
		},
		Cleanup: CleanupConfig{
			ReleaseOnBlur: true,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// ControllerOptions converts c into interview.Options.
func (c *Config) ControllerOptions(logger logging.Logger) interview.Options {
	prof := c.Capture.Profile
	return interview.Options{
		Questions:      c.Questions,
		Profile:        &prof,
		VerifyRelease:  c.Capture.VerifyRelease,
		ProbeTimeout:   ms(c.Capture.ProbeTimeout),
		Timeslice:      ms(c.Recording.Timeslice),
		StopTimeout:    ms(c.Recording.StopTimeout),
		CleanupTimeout: ms(c.Daemon.CommandTimeout),
		Locale:         c.Transcript.Locale,
		AutoTranscript: c.Transcript.AutoStart,
		Logger:         logger,
	}
}

// LoggerOptions converts the log section into logging options.
func (c *Config) LoggerOptions() []logging.Option {
	opts := []logging.Option{
		logging.Name("rehearse"),
		logging.Level(c.Log.Level),
		logging.Rotation(c.Log.MaxSizeMB, c.Log.MaxBackups),
	}
	dir := c.Log.Dir
	if dir == "" {
		dir = LogDir()
	}
	return append(opts, logging.Path(dir))
}

// LogDir returns the default log directory.
func LogDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "rehearse", "logs")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "rehearse", "logs")
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
