package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegramd/internal/config"
	"telegramd/internal/domain"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"":        slog.LevelInfo,
		"trace":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestNewLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "warn")
	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestRenderTemplate_Systemd(t *testing.T) {
	unit := renderTemplate(systemdTemplate, map[string]string{
		"EXEC":    "/usr/local/bin/telegramd",
		"CONFIG":  "/etc/telegramd/config.yaml",
		"WORKDIR": "/var/lib/telegramd",
	})
	assert.Contains(t, unit, "ExecStart=/usr/local/bin/telegramd serve --config /etc/telegramd/config.yaml")
	assert.Contains(t, unit, "WorkingDirectory=/var/lib/telegramd")
	assert.NotContains(t, unit, "{{")
}

func TestRenderTemplate_Launchd(t *testing.T) {
	plist := renderTemplate(launchdTemplate, map[string]string{
		"LABEL":   launchdLabel,
		"EXEC":    "/opt/telegramd",
		"CONFIG":  "/Users/me/.telegramd/config.json",
		"WORKDIR": "/Users/me",
		"LOG":     "/tmp/out.log",
		"ERR_LOG": "/tmp/err.log",
	})
	assert.Contains(t, plist, "<string>com.telegramd.serve</string>")
	assert.Contains(t, plist, "<string>serve</string>")
	assert.NotContains(t, plist, "{{")
}

func TestPrintDeliveries(t *testing.T) {
	var buf bytes.Buffer
	recs := []domain.DeliveryRecord{
		{
			BatchID:   "0123456789abcdef",
			Kind:      domain.DeliveryDocument,
			ChatID:    "42",
			Target:    "report.txt",
			Status:    domain.DeliveryFailed,
			Error:     "telegram: Bad Request",
			CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	require.NoError(t, printDeliveries(&buf, recs))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "TIME"))
	assert.Contains(t, lines[1], "01234567 ")
	assert.NotContains(t, lines[1], "89abcdef")
	assert.Contains(t, lines[1], "report.txt")
	assert.Contains(t, lines[1], "telegram: Bad Request")
}

func TestReport_Finish(t *testing.T) {
	var buf bytes.Buffer
	r := &report{w: &buf}
	r.pass("a", "ok")
	r.warn("b", "meh")
	require.NoError(t, r.finish())
	assert.Contains(t, buf.String(), "1 passed, 1 warnings, 0 failed")

	buf.Reset()
	r = &report{w: &buf}
	r.fail("c", "broken")
	assert.EqualError(t, r.finish(), "1 check(s) failed")
	assert.Contains(t, buf.String(), "[FAIL] c")
}

func TestSetConfigValue_DoesNotLeakEnvironment(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "secret-from-env")
	t.Setenv("TELEGRAMD_UPLOAD_DIR", "/env/uploads")
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"telegram": {"token": "${TELEGRAM_BOT_TOKEN}"},
		"deliveryLog": {"enabled": true, "dbPath": "~/.telegramd/deliveries.db", "retentionDays": 30}
	}`), 0o600))

	require.NoError(t, setConfigValue(path, "deliveryLog.retentionDays", "7"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.NotContains(t, text, "secret-from-env")
	assert.NotContains(t, text, "/env/uploads")
	assert.Contains(t, text, "${TELEGRAM_BOT_TOKEN}")
	assert.Contains(t, text, "~/.telegramd/deliveries.db")

	raw, err := config.LoadRaw(path)
	require.NoError(t, err)
	assert.Equal(t, 7, raw.DeliveryLog.RetentionDays)
}

func TestSetConfigValue_RejectsInvalidValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log": {"level": "info"}}`), 0o600))

	require.Error(t, setConfigValue(path, "log.level", "verbose"))

	raw, err := config.LoadRaw(path)
	require.NoError(t, err)
	assert.Equal(t, "info", raw.Log.Level)
}
