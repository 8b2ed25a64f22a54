package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/welth-app/receiptflow/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "receiptflow",
		Short:   "Receipt image normalization tools",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newNormalizeCommand())
	rootCmd.AddCommand(newInspectCommand())

	return rootCmd
}
