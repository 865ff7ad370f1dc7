package logger

import (
	"io"
	"log"

	"github.com/hashicorp/go-hclog"
)

// HCLogAdapter exposes a Logger as an hclog.Logger. go-retryablehttp takes
// its LeveledLogger in this shape, so transport retries end up in the same
// stream as the rest of the client's logs.
type HCLogAdapter struct {
	logger Logger
	name   string
	args   []interface{} // implied args from With()
}

var _ hclog.Logger = (*HCLogAdapter)(nil)

// NewHCLogAdapter wraps logger.
func NewHCLogAdapter(logger Logger) hclog.Logger {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &HCLogAdapter{logger: logger}
}

func (a *HCLogAdapter) Log(level hclog.Level, msg string, args ...interface{}) {
	switch level {
	case hclog.Trace:
		a.Trace(msg, args...)
	case hclog.Debug:
		a.Debug(msg, args...)
	case hclog.Warn:
		a.Warn(msg, args...)
	case hclog.Error:
		a.Error(msg, args...)
	case hclog.Off:
	default:
		a.Info(msg, args...)
	}
}

func (a *HCLogAdapter) Trace(msg string, args ...interface{}) {
	a.logger.Trace(msg, a.argsToFields(args)...)
}

func (a *HCLogAdapter) Debug(msg string, args ...interface{}) {
	a.logger.Debug(msg, a.argsToFields(args)...)
}

func (a *HCLogAdapter) Info(msg string, args ...interface{}) {
	a.logger.Info(msg, a.argsToFields(args)...)
}

func (a *HCLogAdapter) Warn(msg string, args ...interface{}) {
	a.logger.Warn(msg, a.argsToFields(args)...)
}

func (a *HCLogAdapter) Error(msg string, args ...interface{}) {
	a.logger.Error(msg, a.argsToFields(args)...)
}

// argsToFields converts hclog's alternating key/value pairs. A trailing key
// without a value and non-string keys are dropped.
func (a *HCLogAdapter) argsToFields(args []interface{}) []TypedField {
	all := make([]interface{}, 0, len(a.args)+len(args))
	all = append(all, a.args...)
	all = append(all, args...)

	fields := make([]TypedField, 0, len(all)/2)
	for i := 0; i+1 < len(all); i += 2 {
		key, ok := all[i].(string)
		if !ok {
			continue
		}
		if err, ok := all[i+1].(error); ok {
			fields = append(fields, ErrorField{Key: key, Value: err})
			continue
		}
		fields = append(fields, Any(key, all[i+1]))
	}
	return fields
}

// Named returns a logger with name appended, joined with ".".
func (a *HCLogAdapter) Named(name string) hclog.Logger {
	full := name
	if a.name != "" {
		full = a.name + "." + name
	}
	return &HCLogAdapter{
		logger: a.logger.WithSubsystem(name),
		name:   full,
		args:   a.args,
	}
}

func (a *HCLogAdapter) ResetNamed(name string) hclog.Logger {
	return &HCLogAdapter{
		logger: a.logger.WithSubsystem(name),
		name:   name,
		args:   a.args,
	}
}

func (a *HCLogAdapter) With(args ...interface{}) hclog.Logger {
	merged := make([]interface{}, 0, len(a.args)+len(args))
	merged = append(merged, a.args...)
	merged = append(merged, args...)
	return &HCLogAdapter{
		logger: a.logger,
		name:   a.name,
		args:   merged,
	}
}

func (a *HCLogAdapter) Name() string {
	return a.name
}

func (a *HCLogAdapter) ImpliedArgs() []interface{} {
	return a.args
}

func (a *HCLogAdapter) IsTrace() bool { return a.logger.IsLevelEnabled(TraceLevel) }
func (a *HCLogAdapter) IsDebug() bool { return a.logger.IsLevelEnabled(DebugLevel) }
func (a *HCLogAdapter) IsInfo() bool  { return a.logger.IsLevelEnabled(InfoLevel) }
func (a *HCLogAdapter) IsWarn() bool  { return a.logger.IsLevelEnabled(WarnLevel) }
func (a *HCLogAdapter) IsError() bool { return a.logger.IsLevelEnabled(ErrorLevel) }

func (a *HCLogAdapter) GetLevel() hclog.Level {
	switch {
	case a.IsTrace():
		return hclog.Trace
	case a.IsDebug():
		return hclog.Debug
	case a.IsInfo():
		return hclog.Info
	case a.IsWarn():
		return hclog.Warn
	case a.IsError():
		return hclog.Error
	default:
		return hclog.Off
	}
}

// SetLevel is a no-op; the level belongs to the wrapped Logger's Config.
func (a *HCLogAdapter) SetLevel(hclog.Level) {}

// StandardLogger is not supported and returns nil.
func (a *HCLogAdapter) StandardLogger(*hclog.StandardLoggerOptions) *log.Logger {
	return nil
}

// StandardWriter is not supported and returns nil.
func (a *HCLogAdapter) StandardWriter(*hclog.StandardLoggerOptions) io.Writer {
	return nil
}
