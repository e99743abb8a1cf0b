package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "deskhand",
	Short: "File-vault task orchestrator for a small-business inbox",
	Long: `deskhand turns external events (dropped files, emails, messages) into task
documents that move through a durable, human-auditable approval pipeline.

Collectors poll sources and create tasks; the orchestrator watches the vault,
routes tasks between stages, and gates risky actions behind security rules.

Running 'deskhand' without a subcommand is equivalent to 'deskhand run'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(collectCmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to deskhand.yaml config file")
	rootCmd.PersistentFlags().String("vault", "", "Override the vault root directory")
	rootCmd.PersistentFlags().String("dropzone", "", "Override the dropzone directory")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
