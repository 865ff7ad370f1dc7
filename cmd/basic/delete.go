package basic

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stephnangue/sessionpipe/cmd/helpers"
)

var (
	DeleteCmd = &cobra.Command{
		Use:           "delete",
		SilenceUsage:  true,
		SilenceErrors: true,
		Short:         "Delete data at a path",
		Long: `
Usage: sessionpipe delete PATH

  Delete data at the given path with the current session. The /v1/ prefix is
  added to the path.

  Examples:

      $ sessionpipe delete projects/demo
`,
		Args: cobra.ExactArgs(1),
		RunE: runDelete,
	}

	deleteOutputFormat string
)

func init() {
	DeleteCmd.Flags().StringVarP(&deleteOutputFormat, "format", "f", "table", "Output format: table, json")
}

func runDelete(cmd *cobra.Command, args []string) error {
	path := args[0]

	c, err := helpers.Client()
	if err != nil {
		return err
	}

	resource, err := c.Operator().DeleteWithContext(cmd.Context(), path)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}

	if resource == nil || resource.Data == nil {
		fmt.Printf("Success! Deleted: %s\n", path)
		return nil
	}

	if msg, ok := resource.Data["message"]; ok && deleteOutputFormat == "table" {
		fmt.Println(msg)
		return nil
	}
	return printData(deleteOutputFormat, resource.Data)
}
