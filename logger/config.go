package logger

import (
	"io"
	"os"
)

// Config holds the configuration for the logger
type Config struct {
	Level        LogLevel
	Format       OutputFormat
	Outputs      []io.Writer
	Subsystem    string
	FileConfig   *FileConfig
	EnableCaller bool // Include caller information
}

// DefaultConfig logs human readable output to stderr, leaving stdout to the
// command being run.
func DefaultConfig() *Config {
	return &Config{
		Level:   InfoLevel,
		Format:  ConsoleFormat,
		Outputs: []io.Writer{os.Stderr},
	}
}

// FileOnlyConfig writes JSON entries to a rotated file and nothing to the
// terminal.
func FileOnlyConfig(filename string) *Config {
	return &Config{
		Level:        InfoLevel,
		Format:       JSONFormat,
		FileConfig:   DefaultFileConfig(filename),
		EnableCaller: true,
	}
}
