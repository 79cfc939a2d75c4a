// Package cli defines Cobra command definitions for the rehearse CLI.
// This file contains the root command, which launches the TUI.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jwulff/rehearse/internal/app"
	"github.com/jwulff/rehearse/internal/config"
	"github.com/jwulff/rehearse/internal/daemon"
	"github.com/jwulff/rehearse/internal/db"
	"github.com/jwulff/rehearse/internal/interview"
	"github.com/jwulff/rehearse/internal/logging"
)

var (
	configDir string
	version   = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "rehearse",
	Short: "Practice interview answers on camera",
	Long: `Rehearse walks you through a list of interview questions while
recording camera and microphone through the capture daemon. Answers are
typed or taken from the live transcript, and each session exports as a
JSON timeline plus the recorded video.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runRoot,
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Config directory (default $XDG_CONFIG_HOME/rehearse)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(cleanCmd)
}

func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func resolvedConfigDir() string {
	if configDir != "" {
		return configDir
	}
	return config.Dir()
}

func loadConfig() (*config.Config, error) {
	return config.Load(resolvedConfigDir())
}

func socketPath(cfg *config.Config) string {
	if cfg.Daemon.Socket != "" {
		return cfg.Daemon.Socket
	}
	return daemon.SocketPath()
}

func historyPath(cfg *config.Config) string {
	if cfg.History.Path != "" {
		return cfg.History.Path
	}
	return db.DefaultDBPath()
}

func dialDaemon(ctx context.Context, cfg *config.Config, logger logging.Logger) (*daemon.Platform, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Daemon.ConnectTimeout)*time.Millisecond)
	defer cancel()
	p, err := daemon.Dial(ctx, socketPath(cfg), logger,
		daemon.WithCommandTimeout(time.Duration(cfg.Daemon.CommandTimeout)*time.Millisecond))
	if err != nil {
		return nil, fmt.Errorf("connecting to capture daemon at %s: %w", socketPath(cfg), err)
	}
	return p, nil
}

func runRoot(cmd *cobra.Command, args []string) error {
	// The TUI needs a terminal; show help otherwise.
	if !isTTY() {
		return cmd.Help()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LoggerOptions()...)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	p, err := dialDaemon(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	ctrl := interview.New(interview.Platform{
		Source:     p,
		Encoder:    p,
		Recognizer: p.Recognizer(),
		Surface:    p,
	}, cfg.ControllerOptions(logger))
	defer ctrl.Close()

	var store *db.Store
	if cfg.History.Enabled {
		if store, err = db.Open(historyPath(cfg)); err != nil {
			logger.Warnw("history unavailable", "path", historyPath(cfg), "error", err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	model := app.New(app.Deps{
		Controller:    ctrl,
		Store:         store,
		ExportDir:     cfg.Export.Dir,
		ReleaseOnBlur: cfg.Cleanup.ReleaseOnBlur,
		Daemon:        p,
		Logger:        logger,
	})
	prog := tea.NewProgram(model, tea.WithAltScreen(), tea.WithReportFocus())

	// Release the camera before exiting on SIGTERM or SIGHUP.
	go ctrl.Supervisor().Watch(ctx, func(os.Signal) { prog.Quit() })

	logger.Infow("rehearse started", "version", version, "questions", len(cfg.Questions))
	_, err = prog.Run()
	return err
}
