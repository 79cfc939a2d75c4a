// history.go implements the "rehearse history" command listing exported
// sessions.
package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwulff/rehearse/internal/db"
)

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "List exported sessions",
	Long: `List recently exported sessions, newest first. With a session ID,
print that session's answers.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

var limitFlag int

func init() {
	historyCmd.Flags().IntVar(&limitFlag, "limit", 20, "Number of sessions to show (0 = all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !cfg.History.Enabled {
		fmt.Fprintln(out, "History is disabled (history.enabled in config.yaml).")
		return nil
	}

	path := historyPath(cfg)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(out, "No sessions exported yet.")
		return nil
	}
	store, err := db.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 1 {
		return printAnswers(cmd, store, args[0])
	}

	sessions, err := store.RecentSessions(cmd.Context(), limitFlag)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions exported yet.")
		return nil
	}
	printSessions(out, sessions)
	return nil
}

func printSessions(out io.Writer, sessions []db.Session) {
	fmt.Fprintf(out, "%-36s  %-16s  %-8s  %-7s  %s\n", "SESSION", "STARTED", "DURATION", "ANSWERS", "FILES")
	for _, s := range sessions {
		answers := fmt.Sprintf("%d/%d", s.AnswerCount, s.QuestionCount)
		if s.Completed {
			answers += "*"
		}
		files := s.JSONPath
		if s.MediaPath != "" {
			files += " " + s.MediaPath
		}
		fmt.Fprintf(out, "%-36s  %-16s  %-8s  %-7s  %s\n",
			s.ID,
			s.StartedAt.Local().Format("2006-01-02 15:04"),
			(time.Duration(s.DurationMs) * time.Millisecond).Round(time.Second),
			answers,
			files,
		)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "* completed")
}

func printAnswers(cmd *cobra.Command, store *db.Store, id string) error {
	answers, err := store.AnswersForSession(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("loading answers: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(answers) == 0 {
		fmt.Fprintf(out, "No answers recorded for %s.\n", id)
		return nil
	}
	for _, a := range answers {
		at := time.Duration(a.VideoOffsetMsAtSubmit) * time.Millisecond
		fmt.Fprintf(out, "Q%d  %s\n", a.QuestionIndex+1, a.QuestionText)
		fmt.Fprintf(out, "    [%s] %s\n\n", at.Round(time.Second), a.AnswerText)
	}
	return nil
}
