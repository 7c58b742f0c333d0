package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// LogFileName is the name of the debug log inside the log directory.
const LogFileName = "debug.log"

// Logger provides structured logging with context propagation.
// It is safe for concurrent use.
type Logger struct {
	logger *slog.Logger
	closer io.Closer
	mu     *sync.Mutex // Protects closer; shared by child loggers
	attrs  []slog.Attr // Persistent attributes (agent, task, phase)
}

// NewLogger creates a new Logger that writes JSON-formatted logs to
// {logDir}/debug.log without rotation.
//
// If logDir is empty, logs will be written to stderr.
func NewLogger(logDir string, level string) (*Logger, error) {
	return NewLoggerWithRotation(logDir, level, RotationConfig{})
}

// NewLoggerWithRotation creates a Logger whose file is rotated according to config.
// If logDir is empty, logs will be written to stderr and config is ignored.
func NewLoggerWithRotation(logDir string, level string, config RotationConfig) (*Logger, error) {
	var writer io.Writer = os.Stderr
	var closer io.Closer

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		rw, err := NewRotatingWriter(filepath.Join(logDir, LogFileName), config)
		if err != nil {
			return nil, err
		}
		writer = rw
		closer = rw
	}

	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: parseLevel(level),
	})

	return &Logger{
		logger: slog.New(handler),
		closer: closer,
		mu:     &sync.Mutex{},
	}, nil
}

// parseLevel converts a string log level to slog.Level.
// Defaults to INFO if the level string is not recognized.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithAgent returns a child Logger tagging every entry with the agent ID.
func (l *Logger) WithAgent(agentID string) *Logger {
	return l.withAttr(slog.String("agent_id", agentID))
}

// WithTask returns a child Logger tagging every entry with the task directory.
func (l *Logger) WithTask(taskDir string) *Logger {
	return l.withAttr(slog.String("task_dir", taskDir))
}

// WithPhase returns a child Logger tagging every entry with the workflow
// action being run ("implement", "check", ...).
func (l *Logger) WithPhase(phase string) *Logger {
	return l.withAttr(slog.String("phase", phase))
}

// With returns a new Logger with arbitrary key-value attributes.
// Keys and values are provided as alternating arguments.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}

	newAttrs := make([]slog.Attr, 0, len(l.attrs)+len(args)/2)
	newAttrs = append(newAttrs, l.attrs...)

	for i := 0; i < len(args)-1; i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		newAttrs = append(newAttrs, slog.Any(key, args[i+1]))
	}

	return &Logger{
		logger: l.logger,
		closer: l.closer,
		mu:     l.mu,
		attrs:  newAttrs,
	}
}

// withAttr creates a new Logger with an additional attribute.
func (l *Logger) withAttr(attr slog.Attr) *Logger {
	newAttrs := make([]slog.Attr, len(l.attrs)+1)
	copy(newAttrs, l.attrs)
	newAttrs[len(l.attrs)] = attr

	return &Logger{
		logger: l.logger,
		closer: l.closer,
		mu:     l.mu,
		attrs:  newAttrs,
	}
}

// Debug logs a message at DEBUG level with optional key-value pairs.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, msg, args...)
}

// Info logs a message at INFO level with optional key-value pairs.
func (l *Logger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, msg, args...)
}

// Warn logs a message at WARN level with optional key-value pairs.
func (l *Logger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, msg, args...)
}

// Error logs a message at ERROR level with optional key-value pairs.
func (l *Logger) Error(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
}

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	allArgs := make([]any, 0, len(l.attrs)*2+len(args))
	for _, attr := range l.attrs {
		allArgs = append(allArgs, attr.Key, attr.Value.Any())
	}
	allArgs = append(allArgs, args...)

	l.logger.Log(context.Background(), level, msg, allArgs...)
}

// Close flushes and closes the log file.
// If the logger writes to stderr, this method is a no-op.
func (l *Logger) Close() error {
	if l.mu == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closer != nil {
		if err := l.closer.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
		l.closer = nil
	}
	return nil
}

// NopLogger returns a Logger that discards all log output.
// Useful for testing or when logging is disabled.
func NopLogger() *Logger {
	return &Logger{
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
		mu:     &sync.Mutex{},
	}
}

// ParseLevel converts a string level to the corresponding constant.
// Returns LevelInfo if the level string is not recognized.
func ParseLevel(level string) string {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn:
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

// ValidLevels returns the list of valid log level strings.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
