package login

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stephnangue/sessionpipe/api"
	"github.com/stephnangue/sessionpipe/cmd/helpers"
)

var (
	LoginCmd = &cobra.Command{
		Use:           "login",
		SilenceUsage:  true,
		SilenceErrors: true,
		Short:         "Start a new session",
		Long: `
Usage: sessionpipe login [options]

  Authenticates to the API server and stores the resulting credential pair in
  the local credential store. Later commands send the access token with every
  request and refresh it with the refresh token when the server reports it
  expired.

  Authenticate with a username and password:

      $ sessionpipe login --method=userpass --username=alice --password=@/path/to/password

  If the auth method is enabled at a non-standard path, the --path flag refers
  to the enabled path:

      $ sessionpipe login --method=userpass --path=userpass-prod --username=alice
`,
		RunE: run,
	}

	flagMethod   string
	flagPath     string
	flagUsername string
	flagPassword string

	Handlers = map[string]LoginHandler{
		"userpass": UserpassHandler{},
	}
)

// LoginHandler is the interface that any auth handlers must implement to enable
// auth via the CLI.
type LoginHandler interface {
	Auth(context.Context, *api.Client, map[string]string) (*api.Resource, error)
}

func init() {
	LoginCmd.Flags().StringVarP(&flagMethod, "method", "m", "userpass", "The auth method to use")
	LoginCmd.Flags().StringVarP(&flagPath, "path", "p", "", "The path on which the method was enabled")
	LoginCmd.Flags().StringVarP(&flagUsername, "username", "u", "", "The username to authenticate as")
	LoginCmd.Flags().StringVar(&flagPassword, "password", "", "The password, or @file to read it from a file (default: SESSIONPIPE_PASSWORD env var)")
}

func run(cmd *cobra.Command, args []string) error {
	authHandler, ok := Handlers[flagMethod]
	if !ok {
		return fmt.Errorf("unknown auth method: %s", flagMethod)
	}

	config := make(map[string]string)
	if flagPath != "" {
		config["mount"] = flagPath
	}

	switch flagMethod {
	case "userpass":
		if flagUsername == "" {
			return fmt.Errorf("username is required. Use -u or --username flag")
		}
		config["username"] = flagUsername

		password := flagPassword
		if password == "" {
			password = api.ReadEnvVariable(EnvPassword)
		}
		password, err := helpers.ResolveFileRef("password", password)
		if err != nil {
			return err
		}
		config["password"] = password
	default:
		return fmt.Errorf("unsupported auth method: %s", flagMethod)
	}

	c, err := helpers.Client()
	if err != nil {
		return err
	}
	helpers.EnterSignIn()

	result, err := authHandler.Auth(cmd.Context(), c, config)
	if err != nil {
		return fmt.Errorf("error authenticating: %w", err)
	}

	fmt.Println("Success! You are now authenticated.")
	if result != nil && result.Data != nil {
		helpers.PrintMapAsTable(helpers.MaskFields(helpers.SensitiveFields, result.Data))
	}
	return nil
}
