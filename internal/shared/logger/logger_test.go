package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var entry map[string]any
		if err := dec.Decode(&entry); err != nil {
			t.Fatalf("failed to decode log output: %v", err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestErrorCtx_EnrichesAndOutputsJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = FormatJSON
	cfg.Component = "test-component"
	cfg.Version = "v1"
	l := NewWithWriter(cfg, &buf)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = WithOperation(ctx, "op-test")
	ctx = WithLANID(ctx, 42)
	ctx = WithASN(ctx, 65001)

	domainErr := apperrors.NewValidationError(apperrors.DomainSession, apperrors.FieldIPAddr4, "address outside of prefix")
	l.ErrorCtx(ctx, "operation failed", fmt.Errorf("wrapped: %w", domainErr), slog.String("extra", "value"))

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]

	for _, k := range []string{
		"error", "error_domain", "error_code", "retryable", "field",
		"request_id", "operation", "lan_id", "asn",
		"component", "version", "extra", "msg", "time", "level",
	} {
		if _, ok := entry[k]; !ok {
			t.Errorf("missing key %q in log entry: %+v", k, entry)
		}
	}

	if got := entry["error_code"]; got != apperrors.ErrCodeValidation {
		t.Errorf("unexpected error_code: got %v want %v", got, apperrors.ErrCodeValidation)
	}
	if got := entry["lan_id"]; got != "42" {
		t.Errorf("unexpected lan_id: %v", got)
	}
}

func TestOperationLifecycle(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(LoggerConfig{Level: LevelDebug, Format: FormatJSON}, &buf)

	op := l.StartOp(context.Background(), "Import", slog.Int64("lan_id", 7))
	op.With(slog.Int("entries", 3)).Progress("halfway")
	op.Complete("import done")

	op = l.StartOp(context.Background(), "Rollback")
	op.Fail(errors.New("boom"), "rollback failed")

	entries := decodeLines(t, &buf)
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	if entries[2]["msg"] != "import done" || entries[2]["operation"] != "Import" {
		t.Errorf("unexpected completion entry: %+v", entries[2])
	}
	if entries[2]["entries"] != float64(3) {
		t.Errorf("operation attrs not carried: %+v", entries[2])
	}
	if entries[4]["level"] != "ERROR" || entries[4]["error"] != "boom" {
		t.Errorf("unexpected failure entry: %+v", entries[4])
	}
}

func TestOperationDomainTagsAndValidationLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(LoggerConfig{Level: LevelDebug, Format: FormatJSON}, &buf)

	op := l.StartOp(context.Background(), "Apply").Staging(12)
	op.Session(34).Fail(apperrors.NewValidationError(apperrors.DomainSession, apperrors.FieldSpeed, "speed too high"), "apply failed")

	l.StartOp(context.Background(), "Rollback").ImportLog(56).Complete("")

	entries := decodeLines(t, &buf)
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	failed := entries[1]
	if failed["level"] != "WARN" {
		t.Errorf("validation failures should log at warn: %+v", failed)
	}
	if failed["staging_id"] != float64(12) || failed["session_id"] != float64(34) {
		t.Errorf("domain tags not carried: %+v", failed)
	}
	done := entries[3]
	if done["msg"] != "operation completed" || done["import_log_id"] != float64(56) {
		t.Errorf("unexpected completion entry: %+v", done)
	}
}

func TestTextFormatUsesTint(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(LoggerConfig{Level: LevelInfo, Format: FormatText}, &buf)
	l.Info("hello", slog.String("k", "v"))

	out := buf.String()
	if !strings.Contains(out, "hello") || !strings.Contains(out, "k=") || !strings.Contains(out, "v") {
		t.Errorf("unexpected text output %q", out)
	}
}

func TestWithComponentDoesNotMutateParent(t *testing.T) {
	l := NewNop().WithComponent("parent")
	child := l.WithComponent("child")
	if l.Component() != "parent" || child.Component() != "child" {
		t.Errorf("components leaked: %s %s", l.Component(), child.Component())
	}
}
