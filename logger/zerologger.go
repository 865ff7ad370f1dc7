package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

func (f StringField) apply(ctx zerolog.Context) zerolog.Context { return ctx.Str(f.Key, f.Value) }
func (f StringField) applyEvent(e *zerolog.Event) *zerolog.Event { return e.Str(f.Key, f.Value) }

func (f IntField) apply(ctx zerolog.Context) zerolog.Context { return ctx.Int(f.Key, f.Value) }
func (f IntField) applyEvent(e *zerolog.Event) *zerolog.Event { return e.Int(f.Key, f.Value) }

func (f Int64Field) apply(ctx zerolog.Context) zerolog.Context { return ctx.Int64(f.Key, f.Value) }
func (f Int64Field) applyEvent(e *zerolog.Event) *zerolog.Event { return e.Int64(f.Key, f.Value) }

func (f BoolField) apply(ctx zerolog.Context) zerolog.Context { return ctx.Bool(f.Key, f.Value) }
func (f BoolField) applyEvent(e *zerolog.Event) *zerolog.Event { return e.Bool(f.Key, f.Value) }

func (f DurationField) apply(ctx zerolog.Context) zerolog.Context { return ctx.Dur(f.Key, f.Value) }
func (f DurationField) applyEvent(e *zerolog.Event) *zerolog.Event { return e.Dur(f.Key, f.Value) }

func (f ErrorField) apply(ctx zerolog.Context) zerolog.Context { return ctx.AnErr(f.Key, f.Value) }
func (f ErrorField) applyEvent(e *zerolog.Event) *zerolog.Event { return e.AnErr(f.Key, f.Value) }

func (f AnyField) apply(ctx zerolog.Context) zerolog.Context { return ctx.Interface(f.Key, f.Value) }
func (f AnyField) applyEvent(e *zerolog.Event) *zerolog.Event { return e.Interface(f.Key, f.Value) }

// ZerologLogger implements Logger using zerolog
type ZerologLogger struct {
	// base carries everything except the module name, so that nested
	// subsystems replace it instead of repeating the key.
	base       zerolog.Logger
	logger     zerolog.Logger
	level      LogLevel
	subsystem  string
	fileWriter *lumberjack.Logger
}

func init() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
}

// NewZerologLogger creates a Logger from config. A nil config means
// DefaultConfig.
func NewZerologLogger(config *Config) Logger {
	if config == nil {
		config = DefaultConfig()
	}

	var writers []io.Writer
	var fileWriter *lumberjack.Logger

	if config.FileConfig != nil {
		if err := os.MkdirAll(filepath.Dir(config.FileConfig.Filename), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		} else {
			fileWriter = &lumberjack.Logger{
				Filename:   config.FileConfig.Filename,
				MaxSize:    config.FileConfig.MaxSize,
				MaxAge:     config.FileConfig.MaxAge,
				MaxBackups: config.FileConfig.MaxBackups,
				Compress:   config.FileConfig.Compress,
				LocalTime:  true,
			}
			writers = append(writers, fileWriter)
		}
	}

	for _, output := range config.Outputs {
		if config.Format == ConsoleFormat {
			writers = append(writers, zerolog.ConsoleWriter{
				Out:        output,
				TimeFormat: "15:04:05",
				PartsOrder: []string{
					zerolog.TimestampFieldName,
					zerolog.LevelFieldName,
					"module",
					zerolog.MessageFieldName,
				},
			})
		} else {
			writers = append(writers, output)
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zctx := zerolog.New(writer).Level(config.Level.zerolog()).With().Timestamp()
	if config.EnableCaller {
		zctx = zctx.CallerWithSkipFrameCount(4)
	}

	return newWithModule(zctx.Logger(), config.Level, config.Subsystem, fileWriter)
}

func newWithModule(base zerolog.Logger, level LogLevel, subsystem string, fw *lumberjack.Logger) *ZerologLogger {
	logger := base
	if subsystem != "" {
		logger = base.With().Str("module", subsystem).Logger()
	}
	return &ZerologLogger{
		base:       base,
		logger:     logger,
		level:      level,
		subsystem:  subsystem,
		fileWriter: fw,
	}
}

func (zl *ZerologLogger) log(level zerolog.Level, msg string, fields []TypedField) {
	event := zl.logger.WithLevel(level)
	if event == nil {
		return
	}
	for _, f := range fields {
		event = f.applyEvent(event)
	}
	event.Msg(msg)
}

func (zl *ZerologLogger) Trace(msg string, fields ...TypedField) {
	zl.log(zerolog.TraceLevel, msg, fields)
}

func (zl *ZerologLogger) Debug(msg string, fields ...TypedField) {
	zl.log(zerolog.DebugLevel, msg, fields)
}

func (zl *ZerologLogger) Info(msg string, fields ...TypedField) {
	zl.log(zerolog.InfoLevel, msg, fields)
}

func (zl *ZerologLogger) Warn(msg string, fields ...TypedField) {
	zl.log(zerolog.WarnLevel, msg, fields)
}

func (zl *ZerologLogger) Error(msg string, fields ...TypedField) {
	zl.log(zerolog.ErrorLevel, msg, fields)
}

func (zl *ZerologLogger) Debugf(format string, args ...interface{}) {
	zl.logger.Debug().Msgf(format, args...)
}

func (zl *ZerologLogger) Infof(format string, args ...interface{}) {
	zl.logger.Info().Msgf(format, args...)
}

func (zl *ZerologLogger) Warnf(format string, args ...interface{}) {
	zl.logger.Warn().Msgf(format, args...)
}

func (zl *ZerologLogger) Errorf(format string, args ...interface{}) {
	zl.logger.Error().Msgf(format, args...)
}

func (zl *ZerologLogger) WithSubsystem(name string) Logger {
	sub := name
	if zl.subsystem != "" {
		sub = zl.subsystem + "." + name
	}
	return newWithModule(zl.base, zl.level, sub, zl.fileWriter)
}

func (zl *ZerologLogger) WithFields(fields ...TypedField) Logger {
	if len(fields) == 0 {
		return zl
	}
	ctx := zl.base.With()
	for _, f := range fields {
		ctx = f.apply(ctx)
	}
	return newWithModule(ctx.Logger(), zl.level, zl.subsystem, zl.fileWriter)
}

func (zl *ZerologLogger) IsLevelEnabled(level LogLevel) bool {
	return level != Disabled && level >= zl.level && zl.level != Disabled
}

// Close closes the rotated log file, if any.
func (zl *ZerologLogger) Close() error {
	if zl.fileWriter != nil {
		return zl.fileWriter.Close()
	}
	return nil
}

// NewNopLogger returns a Logger that discards everything. It is the default
// for library consumers that do not configure logging.
func NewNopLogger() Logger {
	return newWithModule(zerolog.Nop(), Disabled, "", nil)
}
