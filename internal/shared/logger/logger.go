package logger

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/lmittmann/tint"

	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
)

// Logger wraps slog.Logger with domain-specific helpers while staying thin
type Logger struct {
	*slog.Logger
	config LoggerConfig
}

// LogLevel represents the logging level
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// OutputFormat represents the log output format
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatText OutputFormat = "text"
)

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	Level      LogLevel     `mapstructure:"level"`
	Format     OutputFormat `mapstructure:"format"`
	AddSource  bool         `mapstructure:"add_source"`
	Component  string       `mapstructure:"component"`
	Version    string       `mapstructure:"version"`
	TimeFormat string       `mapstructure:"time_format"`
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() LoggerConfig {
	return LoggerConfig{
		Level:      LevelInfo,
		Format:     FormatText,
		Component:  "ixfsync",
		Version:    "unknown",
		TimeFormat: time.RFC3339,
	}
}

// New creates a new logger writing to stdout
func New(config LoggerConfig) *Logger {
	return NewWithWriter(config, os.Stdout)
}

// NewWithWriter creates a new logger writing to w
func NewWithWriter(config LoggerConfig, w io.Writer) *Logger {
	if config.TimeFormat == "" {
		config.TimeFormat = time.RFC3339
	}
	level := parseLogLevel(config.Level)
	return &Logger{
		Logger: slog.New(createHandler(config, level, w)),
		config: config,
	}
}

// NewDevelopment creates a logger optimized for development
func NewDevelopment(component string) *Logger {
	return New(LoggerConfig{
		Level:      LevelDebug,
		Format:     FormatText,
		AddSource:  true,
		Component:  component,
		Version:    "dev",
		TimeFormat: time.Kitchen,
	})
}

// NewProduction creates a logger optimized for production
func NewProduction(component, version string) *Logger {
	return New(LoggerConfig{
		Level:      LevelInfo,
		Format:     FormatJSON,
		Component:  component,
		Version:    version,
		TimeFormat: time.RFC3339,
	})
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return NewWithWriter(LoggerConfig{Level: LevelError, Format: FormatJSON}, io.Discard)
}

// With returns a new logger with additional attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		config: l.config,
	}
}

// WithComponent returns a logger scoped to a sub-component
func (l *Logger) WithComponent(name string) *Logger {
	cfg := l.config
	cfg.Component = name
	return &Logger{
		Logger: l.Logger,
		config: cfg,
	}
}

// Component returns the component name the logger is scoped to
func (l *Logger) Component() string {
	return l.config.Component
}

// WithContext extracts logging context and returns a scoped logger
func (l *Logger) WithContext(ctx context.Context) *Logger {
	attrs := extractContextAttrs(ctx)
	if l.config.Component != "" {
		attrs = append(attrs, slog.String("component", l.config.Component))
	}
	if l.config.Version != "" {
		attrs = append(attrs, slog.String("version", l.config.Version))
	}
	if len(attrs) == 0 {
		return l
	}

	return &Logger{
		Logger: l.Logger.With(attrsToAny(attrs)...),
		config: l.config,
	}
}

// Unwrap returns the underlying slog.Logger for direct access
func (l *Logger) Unwrap() *slog.Logger {
	return l.Logger
}

// ErrorCtx logs an error with automatic context enrichment
func (l *Logger) ErrorCtx(ctx context.Context, msg string, err error, args ...any) {
	l.WithContext(ctx).Error(msg, append(errorAttrs(err), args...)...)
}

// WarnCtx logs a non-fatal error, typically a notification failure
func (l *Logger) WarnCtx(ctx context.Context, msg string, err error, args ...any) {
	l.WithContext(ctx).Warn(msg, append(errorAttrs(err), args...)...)
}

// DBQuery logs database operations with slow query detection
func (l *Logger) DBQuery(ctx context.Context, operation, table string, duration time.Duration, args ...any) {
	attrs := []any{
		slog.String("db_operation", operation),
		slog.String("db_table", table),
		slog.Duration("duration_ms", duration),
	}
	attrs = append(attrs, args...)

	msg := operation + " " + table
	if duration > 100*time.Millisecond {
		l.WithContext(ctx).Warn(msg+" (slow)", attrs...)
	} else {
		l.WithContext(ctx).Debug(msg, attrs...)
	}
}

func errorAttrs(err error) []any {
	if err == nil {
		return nil
	}
	attrs := []any{slog.String("error", err.Error())}

	var domainErr apperrors.DomainError
	if stderrors.As(err, &domainErr) {
		attrs = append(attrs,
			slog.String("error_domain", domainErr.Domain()),
			slog.String("error_code", domainErr.Code()),
			slog.Bool("retryable", domainErr.Retryable()),
		)
		for k, v := range domainErr.Metadata() {
			attrs = append(attrs, slog.Any(k, v))
		}
	}
	return attrs
}

func parseLogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func createHandler(config LoggerConfig, level slog.Level, w io.Writer) slog.Handler {
	switch config.Format {
	case FormatText:
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: config.TimeFormat,
			AddSource:  config.AddSource,
		})
	default:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     level,
			AddSource: config.AddSource,
		})
	}
}

// Context keys for structured logging
type contextKey string

const (
	RequestIDKey   contextKey = "request_id"
	ImportRunIDKey contextKey = "import_run_id"
	LANIDKey       contextKey = "lan_id"
	ASNKey         contextKey = "asn"
	OperationKey   contextKey = "operation"
	UserIDKey      contextKey = "user_id"
)

var contextKeys = []contextKey{
	RequestIDKey, ImportRunIDKey, LANIDKey, ASNKey, OperationKey, UserIDKey,
}

func extractContextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	for _, key := range contextKeys {
		if val := getFromContext[string](ctx, key); val != "" {
			attrs = append(attrs, slog.String(string(key), val))
		}
	}
	return attrs
}

func getFromContext[T any](ctx context.Context, key contextKey) T {
	if val, ok := ctx.Value(key).(T); ok {
		return val
	}
	var zero T
	return zero
}

func attrsToAny(attrs []slog.Attr) []any {
	result := make([]any, len(attrs))
	for i, attr := range attrs {
		result[i] = attr
	}
	return result
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

func WithImportRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ImportRunIDKey, id)
}

func WithLANID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, LANIDKey, strconv.FormatInt(id, 10))
}

func WithASN(ctx context.Context, asn int64) context.Context {
	return context.WithValue(ctx, ASNKey, strconv.FormatInt(asn, 10))
}

func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, OperationKey, operation)
}

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}

func GetRequestID(ctx context.Context) string {
	return getFromContext[string](ctx, RequestIDKey)
}

func GetImportRunID(ctx context.Context) string {
	return getFromContext[string](ctx, ImportRunIDKey)
}

func GetOperation(ctx context.Context) string {
	return getFromContext[string](ctx, OperationKey)
}

func GetUserID(ctx context.Context) string {
	return getFromContext[string](ctx, UserIDKey)
}
