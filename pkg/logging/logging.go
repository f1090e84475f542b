package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// LogLevel defines the severity of the log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	// LevelSuccess is an informational entry that reports a completed step.
	// Sinks that render for humans (console, browser terminal) style it apart from info.
	LevelSuccess
	LevelWarn
	LevelError
)

// String makes LogLevel satisfy the fmt.Stringer interface.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelSuccess:
		return "SUCCESS"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Tag returns the lowercase severity tag used by the log stream
// (info, success, warning, error).
func (l LogLevel) Tag() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelSuccess:
		return "success"
	case LevelWarn:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo, LevelSuccess:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo // Default to INFO for unknown
	}
}

// ParseLevel maps a user supplied level name to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug, nil
	case "", "info", "INFO":
		return LevelInfo, nil
	case "warn", "warning", "WARN":
		return LevelWarn, nil
	case "error", "ERROR":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// LogEntry is the structured log entry handed to every registered sink.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Subsystem string
	Message   string
	Err       error
}

// Sink receives every log entry at or above the configured level.
// Sinks are called synchronously and must not block.
type Sink func(LogEntry)

var (
	defaultLogger *slog.Logger
	filterLevel   = LevelInfo

	sinksMu sync.RWMutex
	sinks   = make(map[int]Sink)
	nextID  int
)

// InitForCLI initializes the logging system for CLI mode.
// Logs will be written as slog text lines to output.
func InitForCLI(level LogLevel, output io.Writer) {
	opts := &slog.HandlerOptions{
		Level: level.SlogLevel(),
	}
	filterLevel = level
	defaultLogger = slog.New(slog.NewTextHandler(output, opts))
	slog.SetDefault(defaultLogger) // Set for any global slog calls if necessary
}

// InitQuiet installs no slog handler; entries only reach the registered sinks.
// Used when a sink (e.g. the styled console writer) renders everything itself.
func InitQuiet(level LogLevel) {
	filterLevel = level
	defaultLogger = nil
}

// AddSink registers a sink and returns a function that removes it again.
func AddSink(s Sink) (remove func()) {
	sinksMu.Lock()
	id := nextID
	nextID++
	sinks[id] = s
	sinksMu.Unlock()

	return func() {
		sinksMu.Lock()
		delete(sinks, id)
		sinksMu.Unlock()
	}
}

func logInternal(level LogLevel, subsystem string, err error, messageFmt string, args ...interface{}) {
	if level < filterLevel {
		return
	}

	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Subsystem: subsystem,
		Message:   msg,
		Err:       err,
	}

	sinksMu.RLock()
	for _, s := range sinks {
		s(entry)
	}
	sinksMu.RUnlock()

	if defaultLogger == nil {
		return
	}

	var slogAttrs []slog.Attr
	slogAttrs = append(slogAttrs, slog.String("subsystem", subsystem))
	if level == LevelSuccess {
		slogAttrs = append(slogAttrs, slog.String("severity", level.Tag()))
	}
	if err != nil {
		slogAttrs = append(slogAttrs, slog.String("error", err.Error()))
	}

	defaultLogger.LogAttrs(context.Background(), level.SlogLevel(), msg, slogAttrs...)
}

// Debug logs a debug message.
func Debug(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, subsystem, nil, messageFmt, args...)
}

// Info logs an informational message.
func Info(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, subsystem, nil, messageFmt, args...)
}

// Success logs the successful completion of a step.
func Success(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelSuccess, subsystem, nil, messageFmt, args...)
}

// Warn logs a warning message.
func Warn(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, subsystem, nil, messageFmt, args...)
}

// Error logs an error message.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, subsystem, err, messageFmt, args...)
}

func init() {
	InitForCLI(LevelInfo, os.Stderr)
}
