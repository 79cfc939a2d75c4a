// init.go implements the "rehearse init" command.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jwulff/rehearse/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config.yaml",
	Long: `Write config.yaml with every default filled in, including the
built-in question list, so it can be edited.`,
	RunE: runInit,
}

var forceFlag bool

func init() {
	initCmd.Flags().BoolVar(&forceFlag, "force", false, "Overwrite an existing config.yaml")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := resolvedConfigDir()
	path := config.Path(dir)

	if _, err := os.Stat(path); err == nil && !forceFlag {
		return fmt.Errorf("%s already exists; use --force to overwrite", path)
	}

	if err := config.WriteConfig(dir, config.DefaultConfig()); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration written to %s\n", path)
	fmt.Fprintln(out, "Edit the questions list, then run: rehearse")
	return nil
}
