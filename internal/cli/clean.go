// clean.go implements the "rehearse clean" command for pruning exported
// sessions.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jwulff/rehearse/internal/db"
	"github.com/jwulff/rehearse/internal/export"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove old exported sessions",
	Long: `Remove exported sessions from the export directory, keeping the most
recent ones.

By default, keeps the configured export.keep sessions (default 20).
Use --keep to override it and --dry-run to preview what would be removed.
Removed sessions are also dropped from history.`,
	RunE: runClean,
}

var (
	keepFlag   int
	dryRunFlag bool
)

func init() {
	cleanCmd.Flags().IntVar(&keepFlag, "keep", -1, "Keep only the last N sessions (default export.keep)")
	cleanCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Preview what would be removed without deleting")
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	keep := cfg.Export.Keep
	if keepFlag >= 0 {
		keep = keepFlag
	}
	out := cmd.OutOrStdout()
	if keep == 0 && keepFlag < 0 {
		fmt.Fprintln(out, "export.keep is 0; nothing is pruned.")
		return nil
	}

	dir := cfg.Export.Dir
	pruned, err := export.Prune(dir, keep, true)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	if len(pruned) == 0 {
		fmt.Fprintln(out, "No sessions to clean up.")
		return nil
	}

	var files []string
	for _, base := range pruned {
		matches, _ := filepath.Glob(filepath.Join(dir, base+".*"))
		files = append(files, matches...)
	}

	verb := "Removed"
	if dryRunFlag {
		verb = "Would remove"
	} else if pruned, err = export.Prune(dir, keep, false); err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	for _, name := range pruned {
		fmt.Fprintf(out, "  %s %s\n", verb, name)
	}
	fmt.Fprintf(out, "%s %d session(s).\n", verb, len(pruned))

	if dryRunFlag || !cfg.History.Enabled {
		return nil
	}
	return forgetInHistory(cmd, historyPath(cfg), files)
}

func forgetInHistory(cmd *cobra.Command, path string, files []string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	store, err := db.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.ForgetFiles(cmd.Context(), files)
	if err != nil {
		return fmt.Errorf("updating history: %w", err)
	}
	if n > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Dropped %d session(s) from history.\n", n)
	}
	return nil
}
