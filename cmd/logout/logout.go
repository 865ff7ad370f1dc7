package logout

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stephnangue/sessionpipe/cmd/helpers"
)

var LogoutCmd = &cobra.Command{
	Use:           "logout",
	SilenceUsage:  true,
	SilenceErrors: true,
	Short:         "End the current session",
	Long: `
Usage: sessionpipe logout

  Removes the credential pair from the local credential store. The server is
  not contacted.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := helpers.Client()
		if err != nil {
			return err
		}
		if err := c.Auth().Logout(cmd.Context()); err != nil {
			return fmt.Errorf("failed to clear credentials: %w", err)
		}
		fmt.Println("Success! Signed out.")
		return nil
	},
}
