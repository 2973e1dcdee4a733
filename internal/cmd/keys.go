package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gristips/gristips/internal/encrypt"
)

func newGenerateKeyCmd(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "generate-key",
		Short: "Generate a master key for the server",
		Long: `Generate a random master key for the --master-key option of the server.

The master key encrypts the Grist API keys stored in the database. Stored keys
can not be decrypted after the master key is changed, and users have to enter
them again.`,
		Example: `
# Generate a key and use it to start the server
$ export GRISTIPS_MASTER_KEY=$(gristips generate-key)
$ gristips server
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := encrypt.GenerateMasterKey()
			if err != nil {
				return err
			}
			cli.Output("%s", key)
			return nil
		},
	}
}
