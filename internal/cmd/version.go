package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gristips/gristips/internal"
)

func newVersionCmd(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display the Gristips version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli.Output("%s", internal.FullVersion())
			if internal.Commit != "" {
				cli.Output("commit: %s", internal.Commit)
			}
			if internal.Date != "" {
				cli.Output("built: %s", internal.Date)
			}
			return nil
		},
	}
}
