package helpers

import (
	"fmt"
	"os"
	"strings"
)

// ResolveFileRef returns the contents of the referenced file when value is
// prefixed with "@" (similar to curl's @ syntax), and value otherwise.
func ResolveFileRef(key, value string) (string, error) {
	if !strings.HasPrefix(value, "@") {
		return value, nil
	}
	data, err := os.ReadFile(value[1:])
	if err != nil {
		return "", fmt.Errorf("failed to read file for key %q: %w", key, err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
