package log

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestAuthCategoryRedactsSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{
		DefaultLevel: LevelDebug,
		Output:       &buf,
		Format:       FormatText,
	})

	l.Auth().Info("authenticating", "password", "hunter2", "user", "alice")

	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Fatalf("password leaked into log output: %q", out)
	}
	if !strings.Contains(out, "[redacted]") {
		t.Fatalf("expected redaction marker in output: %q", out)
	}
	if !strings.Contains(out, "alice") {
		t.Fatalf("expected non-sensitive field to survive: %q", out)
	}
}

func TestNonAuthCategoryDoesNotRedact(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{
		DefaultLevel: LevelDebug,
		Output:       &buf,
		Format:       FormatText,
	})

	l.Connection().Info("dialing", "password", "hunter2")

	if !strings.Contains(buf.String(), "hunter2") {
		t.Fatalf("expected non-auth category to pass fields through unredacted")
	}
}

func TestMinLevelFloorOverridesPermissiveCategoryLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{
		DefaultLevel: LevelWarn,
		Output:       &buf,
		Format:       FormatText,
	})
	l.SetMinLevel(LevelWarn)
	l.SetLevel(CategoryAuth, LevelDebug)

	l.Auth().Debug("verbose auth detail")

	if buf.Len() != 0 {
		t.Fatalf("expected global floor to suppress entry below it, got %q", buf.String())
	}

	l.Auth().Warn("auth warning")
	if buf.Len() == 0 {
		t.Fatalf("expected entry at or above the floor to be written")
	}
}

func TestCategoryLoggerContextCarriesConnectionAndStatement(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{
		DefaultLevel: LevelDebug,
		Output:       &buf,
		Format:       FormatText,
	})

	ctx := WithConnectionID(context.Background(), "conn-7")
	ctx = WithStatementName(ctx, "cumulus_stmt_3")

	l.Protocol().Context(ctx).Info("executing")

	out := buf.String()
	if !strings.Contains(out, "conn-7") || !strings.Contains(out, "cumulus_stmt_3") {
		t.Fatalf("expected connection/statement correlation fields in output: %q", out)
	}
}
