package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/stephnangue/sessionpipe/cmd/basic"
	"github.com/stephnangue/sessionpipe/cmd/helpers"
	"github.com/stephnangue/sessionpipe/cmd/login"
	"github.com/stephnangue/sessionpipe/cmd/logout"
	"github.com/stephnangue/sessionpipe/cmd/status"
)

var (
	sessionpipeCmd = &cobra.Command{
		Use:   "sessionpipe",
		Short: "sessionpipe is an authenticated API client with transparent session refresh",
		Long: `sessionpipe calls an HTTP API on behalf of a signed-in user. Requests carry the
session's access token; when the server rejects an expired token the session is
refreshed once and the request is replayed. A session that cannot be recovered is
cleared and the user is asked to sign in again.`,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			helpers.Close()
		},
	}
)

func Execute() {
	if err := sessionpipeCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	sessionpipeCmd.PersistentFlags().StringVarP(&helpers.ConfigFile, "config", "c", "", "Path to an HCL configuration file")
	sessionpipeCmd.PersistentFlags().StringVarP(&helpers.Address, "address", "a", "", "Address of the API server (can also use SESSIONPIPE_ADDR env var)")
	sessionpipeCmd.PersistentFlags().StringVar(&helpers.LogLevel, "log-level", "", "Log level: trace, debug, info, warn, error")

	sessionpipeCmd.AddCommand(login.LoginCmd)
	sessionpipeCmd.AddCommand(logout.LogoutCmd)
	sessionpipeCmd.AddCommand(status.StatusCmd)
	sessionpipeCmd.AddCommand(basic.ReadCmd)
	sessionpipeCmd.AddCommand(basic.WriteCmd)
	sessionpipeCmd.AddCommand(basic.DeleteCmd)
}
