package basic

import (
	"encoding/json"
	"fmt"

	"github.com/stephnangue/sessionpipe/cmd/helpers"
)

func printData(format string, data map[string]any) error {
	data = helpers.MaskFields(helpers.SensitiveFields, data)

	switch format {
	case "json":
		output, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}
		fmt.Println(string(output))
		return nil
	case "table":
		helpers.PrintMapAsTable(data)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
