package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	libOS "github.com/jupyterhub/binderhub-deployer/pkg/os"
)

type (
	Level  int8
	Format string
)

const (
	// Note: Numerically speaking, zap supports levels above or below those for
	// which it has defined constants. This is how we implement our own Discard
	// and Trace levels.
	DiscardLevel Level = Level(zapcore.FatalLevel + 1)
	ErrorLevel   Level = Level(zapcore.ErrorLevel)
	WarnLevel    Level = Level(zapcore.WarnLevel)
	InfoLevel    Level = Level(zapcore.InfoLevel)
	DebugLevel   Level = Level(zapcore.DebugLevel)
	TraceLevel   Level = DebugLevel - 1

	ConsoleFormat Format = "console"
	JSONFormat    Format = "json"
	DefaultFormat Format = ConsoleFormat

	LogLevelEnvVar  = "LOG_LEVEL"
	LogFormatEnvVar = "LOG_FORMAT"
)

var globalLogger *Logger

func init() {
	level, err := ParseLevel(libOS.GetEnv(LogLevelEnvVar, "info"))
	if err != nil {
		panic(err)
	}
	format := Format(libOS.GetEnv(LogFormatEnvVar, string(DefaultFormat)))
	if globalLogger, err = newLoggerInternal(level, format, os.Stderr); err != nil {
		panic(err)
	}
}

// Logger is a simple wrapper around zap.Logger that provides a more ergonomic
// API.
type Logger struct {
	logger *zap.SugaredLogger
	level  Level
}

// NewDiscardLoggerOrDie returns a new *Logger that discards all log output or
// panics if there is an error configuring the logger. This is primarily useful
// for tests.
func NewDiscardLoggerOrDie() *Logger {
	return NewLoggerOrDie(DiscardLevel, ConsoleFormat)
}

// NewLoggerOrDie returns a new *Logger with the provided log level or panics if
// there is an error configuring the logger.
func NewLoggerOrDie(level Level, format Format) *Logger {
	logger, err := NewLogger(level, format)
	if err != nil {
		panic(err)
	}
	return logger
}

// NewLogger returns a new *Logger with the provided log level and format that
// writes to stderr.
func NewLogger(level Level, format Format) (*Logger, error) {
	return newLoggerInternal(level, format, os.Stderr)
}

// NewLoggerTo is like NewLogger, but writes to the provided io.Writer.
func NewLoggerTo(w io.Writer, level Level, format Format) (*Logger, error) {
	return newLoggerInternal(level, format, w)
}

func newLoggerInternal(level Level, format Format, w io.Writer) (*Logger, error) {
	if level == DiscardLevel {
		// Building a leveled logger with the level set higher than FatalLevel
		// may work, but zap documents it as invalid. Use a no-op logger instead.
		return &Logger{
			logger: zap.NewNop().Sugar(),
			level:  DiscardLevel,
		}, nil
	}
	if level < TraceLevel || level > ErrorLevel {
		return nil, fmt.Errorf("invalid log level: %d", level)
	}
	// Re-parsing the format we were given has the side effects of validating and
	// normalizing it.
	format, err := ParseFormat(string(format))
	if err != nil {
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = func(
		t time.Time,
		encoder zapcore.PrimitiveArrayEncoder,
	) {
		zapcore.RFC3339TimeEncoder(t.UTC(), encoder)
	}
	encoderCfg.EncodeLevel = traceEncoder

	var encoder zapcore.Encoder
	switch format { // format was already validated above
	case ConsoleFormat:
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	case JSONFormat:
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}
	core := zapcore.NewCore(
		encoder,
		zapcore.Lock(zapcore.AddSync(w)),
		zap.NewAtomicLevelAt(zapcore.Level(level)),
	)
	logger := Wrap(zap.New(core, zap.AddCaller()))
	logger.level = level
	return logger, nil
}

func traceEncoder(
	level zapcore.Level,
	enc zapcore.PrimitiveArrayEncoder,
) {
	if level == zapcore.Level(TraceLevel) {
		enc.AppendString("TRACE")
	} else {
		zapcore.CapitalLevelEncoder(level, enc)
	}
}

// Wrap returns a new *Logger that wraps the provided zap.Logger.
func Wrap(zapLogger *zap.Logger) *Logger {
	return &Logger{
		logger: zapLogger.Sugar().WithOptions(zap.AddCallerSkip(1)),
		level:  InfoLevel,
	}
}

// WithValues adds key-value pairs to a logger's context.
func (l *Logger) WithValues(keysAndValues ...any) *Logger {
	return &Logger{
		logger: l.logger.With(keysAndValues...),
		level:  l.level,
	}
}

// Error logs a message at the error level.
func (l *Logger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(fmt.Sprintf("%s: %v", msg, err), keysAndValues...)
}

// Warn logs a message at the warn level.
func (l *Logger) Warn(msg string, keysAndValues ...any) {
	l.logger.Warnw(msg, keysAndValues...)
}

// Info logs a message at the info level.
func (l *Logger) Info(msg string, keysAndValues ...any) {
	l.logger.Infow(msg, keysAndValues...)
}

// Debug logs a message at the debug level.
func (l *Logger) Debug(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

// Trace logs a message at the trace level.
func (l *Logger) Trace(msg string, keysAndValues ...any) {
	// Zap doesn't have a Trace method, but we've defined TraceLevel as one less
	// than DebugLevel, and traceEncoder renders it as TRACE.
	l.logger.With(keysAndValues...).Log(zapcore.Level(TraceLevel), msg)
}

// Enabled reports whether messages at the provided level would be written.
func (l *Logger) Enabled(level Level) bool {
	return l.logger.Desugar().Core().Enabled(zapcore.Level(level))
}

// StdLog returns a *log.Logger that writes each line it receives to this
// Logger at the provided level. It is used to capture the output of libraries
// that only know how to log to the standard library's logger.
func (l *Logger) StdLog(level Level) *log.Logger {
	zapLogger := l.logger.Desugar().WithOptions(zap.AddCallerSkip(-1))
	stdLogger, err := zap.NewStdLogAt(zapLogger, zapcore.Level(level))
	if err != nil {
		// NewStdLogAt rejects levels zap has no method for, such as trace.
		stdLogger, _ = zap.NewStdLogAt(zapLogger, zapcore.DebugLevel)
	}
	return stdLogger
}
