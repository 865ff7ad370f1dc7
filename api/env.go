package api

import (
	"os"
	"strings"
)

const (
	EnvPrefix = "SESSIONPIPE_"
)

// ReadEnvVariable returns the value of name when it carries the
// SESSIONPIPE_ prefix, and the empty string otherwise.
func ReadEnvVariable(name string) string {
	if strings.HasPrefix(name, EnvPrefix) {
		return os.Getenv(name)
	}
	return ""
}
