package log

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Level represents the severity level of a log message.
type Level int

// Log levels
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("log: unknown level %q", s)
	}
}

// Field is a single structured key/value pair.
type Field struct {
	Key   string
	Value interface{}
}

// F builds a Field from any value.
func F(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Str builds a string Field.
func Str(key, value string) Field { return Field{Key: key, Value: value} }

// Int builds an int Field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Bool builds a bool Field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Dur builds a duration Field rendered as a string.
func Dur(key string, value time.Duration) Field { return Field{Key: key, Value: value.String()} }

// Err builds the conventional "error" Field.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Component tags a logger with the emitting component.
func Component(name string) Field { return Field{Key: ComponentKey, Value: name} }

// ComponentKey is the field key used by Component.
const ComponentKey = "component"

// Logger defines the logging interface used across the connector.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a child logger that always carries fields.
	With(fields ...Field) Logger

	// WithComponent is shorthand for With(Component(name)).
	WithComponent(name string) Logger

	SetLevel(level Level)
	GetLevel() Level
}

// LoggerOption configures a BaseLogger.
type LoggerOption func(*BaseLogger)

// BaseLogger implements Logger on top of slog.
type BaseLogger struct {
	core *core
	sl   *slog.Logger
}

// core is shared between a logger and all of its children.
type core struct {
	mu        sync.Mutex
	level     Level
	formatter Formatter
	outputs   []Output
	redact    map[string]struct{}
}

func (c *core) getLevel() Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// NewLogger creates a new logger with the given options. Without options it
// logs JSON at info level to the console.
func NewLogger(options ...LoggerOption) Logger {
	l := &BaseLogger{core: &core{
		level:     InfoLevel,
		formatter: &JSONFormatter{},
	}}
	for _, opt := range options {
		opt(l)
	}
	if len(l.core.outputs) == 0 {
		l.core.outputs = append(l.core.outputs, NewConsoleOutput())
	}
	l.sl = slog.New(newBridgeHandler(l.core))
	return l
}

// WithLevel sets the minimum log level.
func WithLevel(level Level) LoggerOption {
	return func(l *BaseLogger) { l.core.level = level }
}

// WithFormatter sets the log formatter.
func WithFormatter(formatter Formatter) LoggerOption {
	return func(l *BaseLogger) { l.core.formatter = formatter }
}

// WithOutput adds an output to the logger.
func WithOutput(output Output) LoggerOption {
	return func(l *BaseLogger) { l.core.outputs = append(l.core.outputs, output) }
}

// WithRedactions replaces the value of the listed keys with "[REDACTED]".
func WithRedactions(keys ...string) LoggerOption {
	return func(l *BaseLogger) {
		if l.core.redact == nil {
			l.core.redact = make(map[string]struct{}, len(keys))
		}
		for _, k := range keys {
			l.core.redact[k] = struct{}{}
		}
	}
}

func (l *BaseLogger) log(level Level, msg string, fields []Field) {
	if level < l.core.getLevel() {
		return
	}
	l.sl.LogAttrs(context.Background(), toSlogLevel(level), msg, attrsFromFields(fields)...)
}

func (l *BaseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *BaseLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *BaseLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *BaseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

// With returns a child logger sharing outputs and level.
func (l *BaseLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	return &BaseLogger{core: l.core, sl: l.sl.With(attrsToAny(attrsFromFields(fields))...)}
}

// WithComponent tags logs with a component name.
func (l *BaseLogger) WithComponent(name string) Logger { return l.With(Component(name)) }

// SetLevel sets the minimum level for this logger and its children.
func (l *BaseLogger) SetLevel(level Level) {
	l.core.mu.Lock()
	l.core.level = level
	l.core.mu.Unlock()
}

// GetLevel returns the current minimum level.
func (l *BaseLogger) GetLevel() Level { return l.core.getLevel() }

// Slog exposes the underlying slog.Logger for libraries that accept one.
func (l *BaseLogger) Slog() *slog.Logger { return l.sl }

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return NewLogger(WithLevel(ErrorLevel+1), WithOutput(NullOutput{}))
}
