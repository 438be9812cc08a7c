package logger

import (
	"context"
	"log/slog"
	"time"

	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
)

// Operation logs one unit of work: a debug line when it starts, optional
// progress lines, then Complete or Fail.
type Operation struct {
	logger  *Logger
	ctx     context.Context
	name    string
	started time.Time
	attrs   []any
}

// StartOp begins tracking an operation
func (l *Logger) StartOp(ctx context.Context, name string, args ...any) *Operation {
	op := &Operation{
		logger:  l,
		ctx:     ctx,
		name:    name,
		started: time.Now(),
		attrs:   args,
	}
	l.WithContext(ctx).Debug("operation started", append([]any{slog.String("operation", name)}, args...)...)
	return op
}

// With adds attributes carried by every later line of the operation
func (op *Operation) With(args ...any) *Operation {
	op.attrs = append(op.attrs, args...)
	return op
}

// Session tags the operation with the session it touches
func (op *Operation) Session(id int64) *Operation {
	return op.With(slog.Int64("session_id", id))
}

// Staging tags the operation with a staged proposal
func (op *Operation) Staging(id int64) *Operation {
	return op.With(slog.Int64("staging_id", id))
}

// ImportLog tags the operation with an import log
func (op *Operation) ImportLog(id int64) *Operation {
	return op.With(slog.Int64("import_log_id", id))
}

// Elapsed returns the time since the operation started
func (op *Operation) Elapsed() time.Duration {
	return time.Since(op.started)
}

// Complete logs successful completion at info level
func (op *Operation) Complete(msg string, args ...any) {
	if msg == "" {
		msg = "operation completed"
	}
	op.emit(slog.LevelInfo, msg, "duration_ms", nil, args)
}

// Fail logs a failure with the attributes of domain errors. Validation
// failures are an expected outcome of reconciling member data and go out
// at warn level.
func (op *Operation) Fail(err error, msg string, args ...any) {
	if msg == "" {
		msg = "operation failed"
	}
	level := slog.LevelError
	if apperrors.IsValidation(err) {
		level = slog.LevelWarn
	}
	op.emit(level, msg, "duration_ms", errorAttrs(err), args)
}

// Progress logs an intermediate step at debug level
func (op *Operation) Progress(msg string, args ...any) {
	op.emit(slog.LevelDebug, msg, "elapsed_ms", nil, args)
}

func (op *Operation) emit(level slog.Level, msg, timing string, lead, args []any) {
	attrs := make([]any, 0, 2+len(lead)+len(op.attrs)+len(args))
	attrs = append(attrs, slog.String("operation", op.name), slog.Duration(timing, op.Elapsed()))
	attrs = append(attrs, lead...)
	attrs = append(attrs, op.attrs...)
	attrs = append(attrs, args...)
	op.logger.WithContext(op.ctx).Log(op.ctx, level, msg, attrs...)
}
