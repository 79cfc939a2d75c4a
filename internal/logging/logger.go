// Package logging builds the application's structured logger.
//
// The TUI owns the terminal, so log output always goes to a rotating file
// rather than stdout or stderr.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logging surface components depend on. *zap.SugaredLogger
// satisfies it.
type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})

	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	Sync() error
}

type options struct {
	name       string
	path       string
	level      string
	maxSizeMB  int
	maxBackups int
}

// Option configures New.
type Option func(*options)

// Name sets the logger name and the log file's base name.
func Name(name string) Option {
	return func(o *options) { o.name = name }
}

// Path sets the directory log files are written to.
func Path(dir string) Option {
	return func(o *options) { o.path = dir }
}

// Level sets the minimum level: debug, info, warn or error.
func Level(level string) Option {
	return func(o *options) { o.level = level }
}

// Rotation sets the max file size in megabytes and the number of rotated
// files kept.
func Rotation(maxSizeMB, maxBackups int) Option {
	return func(o *options) {
		o.maxSizeMB = maxSizeMB
		o.maxBackups = maxBackups
	}
}

// New returns a file-backed logger.
func New(opts ...Option) (Logger, error) {
	o := options{
		name:       "rehearse",
		path:       os.TempDir(),
		level:      "info",
		maxSizeMB:  10,
		maxBackups: 3,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(o.level)); err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", o.level, err)
	}

	if err := os.MkdirAll(o.path, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(o.path, o.name+".log"),
		MaxSize:    o.maxSizeMB,
		MaxBackups: o.maxBackups,
	})

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, zap.NewAtomicLevelAt(lvl))
	return zap.New(core, zap.AddCaller()).Named(o.name).Sugar(), nil
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return zap.NewNop().Sugar()
}
