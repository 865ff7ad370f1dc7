package basic

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/stephnangue/sessionpipe/cmd/helpers"
)

var (
	ReadCmd = &cobra.Command{
		Use:           "read",
		SilenceUsage:  true,
		SilenceErrors: true,
		Short:         "Read data from a path",
		Long: `
Usage: sessionpipe read PATH [K=V...]

  Read data from the given path with the current session. The /v1/ prefix is
  added to the path. Optional K=V pairs are sent as query parameters.

  Examples:

    Read the signed-in user's profile:

      $ sessionpipe read users/me

    List projects with a filter:

      $ sessionpipe read projects owner=alice
`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRead,
	}

	outputFormat string
)

func init() {
	ReadCmd.Flags().StringVarP(&outputFormat, "format", "f", "table", "Output format: table, json")
}

func runRead(cmd *cobra.Command, args []string) error {
	path := args[0]

	query, err := parseQuery(args[1:])
	if err != nil {
		return err
	}

	c, err := helpers.Client()
	if err != nil {
		return err
	}

	resource, err := c.Operator().ReadWithDataWithContext(cmd.Context(), path, query)
	if err != nil {
		return fmt.Errorf("failed to read from %s: %w", path, err)
	}

	if resource == nil || resource.Data == nil {
		fmt.Fprintf(os.Stderr, "No data found at path: %s\n", path)
		return nil
	}

	return printData(outputFormat, resource.Data)
}
