package status

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stephnangue/sessionpipe/cmd/helpers"
	"github.com/stephnangue/sessionpipe/helper"
	"github.com/stephnangue/sessionpipe/session"
)

var (
	StatusCmd = &cobra.Command{
		Use:           "status",
		SilenceUsage:  true,
		SilenceErrors: true,
		Short:         "Show the current session",
		Long: `
Usage: sessionpipe status

  Prints the server address and the state of the stored session. Tokens are
  shown as fingerprints only.
`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}

	outputFormat string
)

func init() {
	StatusCmd.Flags().StringVarP(&outputFormat, "format", "f", "table", "Output format: table, json")
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := helpers.Client()
	if err != nil {
		return err
	}

	pair, err := c.Store().Get()
	if err != nil {
		return fmt.Errorf("failed to read credentials: %w", err)
	}

	data := map[string]any{
		"address":       c.Address(),
		"authenticated": pair.AccessToken != "",
		"refreshable":   pair.HasRefreshToken(),
		"subject_id":    pair.SubjectID,
	}
	if pair.AccessToken != "" {
		data["token_fingerprint"] = helper.TokenFingerprint(pair.AccessToken)
	}
	if fs, ok := c.Store().(*session.FileStore); ok {
		data["store_path"] = fs.Path()
	}

	switch outputFormat {
	case "json":
		output, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		fmt.Println(string(output))
		return nil
	case "table":
		helpers.PrintMapAsTable(data)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", outputFormat)
	}
}
