// Package observability provides structured logging, metrics and tracing
// for the Craftdeck daemon.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Logger provides structured logging with request correlation and
// redaction of credentials that must never reach log output (RCON
// passwords, catalog API keys).
//
// Built on Go's slog package:
//   - configurable levels (debug, info, warn, error)
//   - JSON output for production, text for development
//   - server/scan correlation fields pulled from context
//   - redaction of sensitive values
type Logger struct {
	logger  *slog.Logger
	config  LogConfig
	redacts []*regexp.Regexp
}

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// Format is "json" or "text". JSON is the production default.
	Format string `yaml:"format"`

	// Output is the writer for log output (defaults to os.Stdout).
	Output io.Writer `yaml:"-"`

	// AddSource includes file and line in log records.
	AddSource bool `yaml:"add_source"`

	// RedactPatterns are additional regex patterns for sensitive data.
	RedactPatterns []string `yaml:"redact_patterns"`
}

// ContextKey is the type for context keys used in logging.
type ContextKey string

const (
	// RequestIDKey correlates log lines of one API request.
	RequestIDKey ContextKey = "request_id"

	// ServerIDKey correlates log lines of one managed server.
	ServerIDKey ContextKey = "server_id"

	// ScanIDKey correlates log lines of one scan run.
	ScanIDKey ContextKey = "scan_id"
)

// WithRequestID returns a context carrying an API request correlation ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithServerID returns a context carrying a managed server ID.
func WithServerID(ctx context.Context, serverID string) context.Context {
	return context.WithValue(ctx, ServerIDKey, serverID)
}

// DefaultRedactPatterns covers credentials Craftdeck handles.
var DefaultRedactPatterns = []string{
	`(?i)(rcon[_-]?password|password|passwd|pwd)[\s:=]+["']?([^\s"']{4,})["']?`,
	`(?i)(api[_-]?key|apikey|x-api-key)[\s:=]+["']?([a-zA-Z0-9$_\-\.]{16,})["']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-\.]{16,})`,
}

// NewLogger creates a structured logger.
//
// Empty fields select defaults: info level, JSON format, stdout.
func NewLogger(config LogConfig) *Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Level == "" {
		config.Level = "info"
	}
	if config.Format == "" {
		config.Format = "json"
	}

	var level slog.Level
	switch strings.ToLower(config.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.AddSource,
	}
	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(config.Output, opts)
	} else {
		handler = slog.NewTextHandler(config.Output, opts)
	}

	redacts := make([]*regexp.Regexp, 0)
	for _, pattern := range append(append([]string{}, DefaultRedactPatterns...), config.RedactPatterns...) {
		if re, err := regexp.Compile(pattern); err == nil {
			redacts = append(redacts, re)
		}
	}

	return &Logger{
		logger:  slog.New(handler),
		config:  config,
		redacts: redacts,
	}
}

// With returns a logger carrying additional fixed attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		logger:  l.logger.With(args...),
		config:  l.config,
		redacts: l.redacts,
	}
}

// Debug logs a debug-level message with optional key-value pairs.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

// Info logs an info-level message with optional key-value pairs.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args...)
}

// Warn logs a warning-level message with optional key-value pairs.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

// Error logs an error-level message with optional key-value pairs.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args...)
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	msg = l.redactString(msg)

	attrs := make([]any, 0, len(args)+6)
	for i := 0; i+1 < len(args); i += 2 {
		attrs = append(attrs, args[i], l.redactValue(args[i+1]))
	}
	if len(args)%2 == 1 {
		attrs = append(attrs, "arg", l.redactValue(args[len(args)-1]))
	}

	if ctx != nil {
		if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
			attrs = append(attrs, "request_id", requestID)
		}
		if serverID, ok := ctx.Value(ServerIDKey).(string); ok && serverID != "" {
			attrs = append(attrs, "server_id", serverID)
		}
		if scanID, ok := ctx.Value(ScanIDKey).(string); ok && scanID != "" {
			attrs = append(attrs, "scan_id", scanID)
		}
	}

	l.logger.Log(ctx, level, msg, attrs...)
}

func (l *Logger) redactString(s string) string {
	for _, re := range l.redacts {
		s = re.ReplaceAllStringFunc(s, func(match string) string {
			sub := re.FindStringSubmatch(match)
			if len(sub) >= 3 {
				return strings.Replace(match, sub[len(sub)-1], "[REDACTED]", 1)
			}
			return "[REDACTED]"
		})
	}
	return s
}

func (l *Logger) redactValue(v any) any {
	switch typed := v.(type) {
	case string:
		return l.redactString(typed)
	case error:
		if typed == nil {
			return nil
		}
		return l.redactString(typed.Error())
	case fmt.Stringer:
		return l.redactString(typed.String())
	default:
		return v
	}
}
