package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWritesAuditThroughRotatingFile(t *testing.T) {
	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit", "transfers.log")
	appPath := filepath.Join(dir, "app.log")

	if err := Init(Config{
		Service:     "toolboxd",
		Level:       "debug",
		Format:      "json",
		OutputPaths: []string{appPath},
		Audit:       AuditConfig{Enabled: true, Path: auditPath},
	}); err != nil {
		t.Fatalf("init logger: %v", err)
	}

	Named("adapter").Debug("stage transition", slog.String("stage", "built"))
	Audit().Info("transfer confirmed", slog.String("tx_hash", "0xabc"), slog.String("api_key", "ops-secret"))
	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	audit, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if !strings.Contains(string(audit), "transfer confirmed") {
		t.Fatalf("audit log missing entry: %s", audit)
	}
	if strings.Contains(string(audit), "ops-secret") || !strings.Contains(string(audit), Redacted) {
		t.Fatalf("audit log should redact api keys: %s", audit)
	}
	if !strings.Contains(string(audit), `"service":"toolboxd"`) {
		t.Fatalf("audit log missing service attribute: %s", audit)
	}

	app, err := os.ReadFile(appPath)
	if err != nil {
		t.Fatalf("read app log: %v", err)
	}
	if !strings.Contains(string(app), `"component":"adapter"`) {
		t.Fatalf("app log missing component attribute: %s", app)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRedactMasksSensitiveKeys(t *testing.T) {
	if got := redact(nil, slog.String("Authorization", "Bearer x")); got.Value.String() != Redacted {
		t.Fatalf("authorization should be redacted, got %v", got.Value)
	}
	if got := redact(nil, slog.String("tx_hash", "0xabc")); got.Value.String() != "0xabc" {
		t.Fatalf("ordinary attributes should pass through, got %v", got.Value)
	}
}
