package logger

// FileConfig holds file rotation configuration
type FileConfig struct {
	Filename   string // File path
	MaxSize    int    // Maximum size in megabytes
	MaxAge     int    // Maximum age in days
	MaxBackups int    // Maximum number of backup files
	Compress   bool   // Whether to compress rotated files
}

// DefaultFileConfig returns a default file configuration
func DefaultFileConfig(filename string) *FileConfig {
	return &FileConfig{
		Filename:   filename,
		MaxSize:    10, // 10MB
		MaxAge:     14, // 14 days
		MaxBackups: 3,
		Compress:   true,
	}
}
