package logger

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents the logging level
type LogLevel int

const (
	TraceLevel LogLevel = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
	// Disabled silences the logger entirely
	Disabled
)

var levelNames = map[LogLevel]string{
	TraceLevel: "trace",
	DebugLevel: "debug",
	InfoLevel:  "info",
	WarnLevel:  "warn",
	ErrorLevel: "error",
	Disabled:   "off",
}

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "info"
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case TraceLevel:
		return zerolog.TraceLevel
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	case Disabled:
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// ParseLogLevel parses a string to LogLevel. Unknown values fall back to info.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return TraceLevel
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error", "err":
		return ErrorLevel
	case "off", "none", "disabled":
		return Disabled
	default:
		return InfoLevel
	}
}

// OutputFormat represents the output format
type OutputFormat int

const (
	JSONFormat OutputFormat = iota
	ConsoleFormat
)

// String returns the string representation of OutputFormat
func (o OutputFormat) String() string {
	if o == JSONFormat {
		return "json"
	}
	return "console"
}

// ParseOutputFormat parses a string to OutputFormat
func ParseOutputFormat(format string) OutputFormat {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return JSONFormat
	}
	return ConsoleFormat
}

// TypedField represents a type-safe field for structured logging
type TypedField interface {
	apply(ctx zerolog.Context) zerolog.Context
	applyEvent(event *zerolog.Event) *zerolog.Event
}

type (
	StringField struct {
		Key   string
		Value string
	}
	IntField struct {
		Key   string
		Value int
	}
	Int64Field struct {
		Key   string
		Value int64
	}
	BoolField struct {
		Key   string
		Value bool
	}
	DurationField struct {
		Key   string
		Value time.Duration
	}
	ErrorField struct {
		Key   string
		Value error
	}
	AnyField struct {
		Key   string
		Value interface{}
	}
)

func String(key, value string) TypedField {
	return StringField{Key: key, Value: value}
}

func Int(key string, value int) TypedField {
	return IntField{Key: key, Value: value}
}

func Int64(key string, value int64) TypedField {
	return Int64Field{Key: key, Value: value}
}

func Bool(key string, value bool) TypedField {
	return BoolField{Key: key, Value: value}
}

func Duration(key string, value time.Duration) TypedField {
	return DurationField{Key: key, Value: value}
}

func Err(value error) TypedField {
	return ErrorField{Key: zerolog.ErrorFieldName, Value: value}
}

func Any(key string, value interface{}) TypedField {
	return AnyField{Key: key, Value: value}
}

// Logger defines the public interface for logging
type Logger interface {
	Trace(msg string, fields ...TypedField)
	Debug(msg string, fields ...TypedField)
	Info(msg string, fields ...TypedField)
	Warn(msg string, fields ...TypedField)
	Error(msg string, fields ...TypedField)

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	// WithSubsystem returns a child logger whose module name is suffixed
	// with name, e.g. "api" becomes "api.refresh".
	WithSubsystem(name string) Logger

	// WithFields returns a child logger carrying fields on every entry.
	WithFields(fields ...TypedField) Logger

	IsLevelEnabled(level LogLevel) bool

	// Close releases file handles held by the logger.
	Close() error
}
