package security

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newCaptureLogger(r *Redactor) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewRedactingHandler(inner, r)), &buf
}

func TestRedactingHandlerMessage(t *testing.T) {
	t.Parallel()

	log, buf := newCaptureLogger(NewRedactor())
	log.Info("provider rejected key sk-abcdefghijklmnopqrstuvwxyz")

	out := buf.String()
	if strings.Contains(out, "sk-abcdefghijklmnop") {
		t.Errorf("secret leaked into log output: %s", out)
	}
	if !strings.Contains(out, RedactPlaceholder) {
		t.Errorf("placeholder missing from log output: %s", out)
	}
}

func TestRedactingHandlerAttrs(t *testing.T) {
	t.Parallel()

	r := NewRedactor()
	r.AddLiteral("literal-secret-value")
	log, buf := newCaptureLogger(r)

	log.Info("request failed",
		"api_key", "literal-secret-value",
		"uid", "user-1",
	)

	out := buf.String()
	if strings.Contains(out, "literal-secret-value") {
		t.Errorf("literal leaked: %s", out)
	}
	if !strings.Contains(out, "uid=user-1") {
		t.Errorf("benign attr mangled: %s", out)
	}
}

func TestRedactingHandlerErrorValues(t *testing.T) {
	t.Parallel()

	log, buf := newCaptureLogger(NewRedactor())
	err := errors.New("401 unauthorized: Bearer abcdef0123456789abcd rejected")
	log.Error("provider call failed", "error", err)

	out := buf.String()
	if strings.Contains(out, "abcdef0123456789abcd") {
		t.Errorf("token inside error leaked: %s", out)
	}
}

func TestRedactingHandlerWithAttrsAndGroup(t *testing.T) {
	t.Parallel()

	r := NewRedactor()
	r.AddLiteral("grouped-secret-1")
	log, buf := newCaptureLogger(r)

	log.With("token", "grouped-secret-1").WithGroup("turn").Info("started", "session", "s-1")

	out := buf.String()
	if strings.Contains(out, "grouped-secret-1") {
		t.Errorf("WithAttrs secret leaked: %s", out)
	}
	if !strings.Contains(out, "turn.session=s-1") {
		t.Errorf("group attr missing: %s", out)
	}
}
