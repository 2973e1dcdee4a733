package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/gristips/gristips/internal/logging"
)

// Run the main CLI command with the given args. The args should not contain
// the name of the binary (ex: os.Args[1:]).
func Run(ctx context.Context, args ...string) error {
	cli := newCLI(ctx)
	cmd := NewRootCmd(cli)
	cmd.SetArgs(args)
	cmd.SetOut(cli.Stdout)
	cmd.SetErr(cli.Stderr)
	return cmd.ExecuteContext(ctx)
}

type rootOptions struct {
	LogLevel string
}

func NewRootCmd(cli *CLI) *cobra.Command {
	cobra.EnableCommandSorting = false

	var options rootOptions

	rootCmd := &cobra.Command{
		Use:               "gristips",
		Short:             "Share Grist documents between public agents",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return logging.SetLevel(options.LogLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(
		newServerCmd(),
		newGenerateKeyCmd(cli),
		newVersionCmd(cli))

	rootCmd.PersistentFlags().StringVar(&options.LogLevel, "log-level", "info", "Show logs when running the command [error, warn, info, debug]")
	return rootCmd
}
