package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLogger_PlainLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)

	l.LogWebhook("CT-1-0007-ab", "order marked PAID")
	l.LogCheckin("INVALID", "ALREADY_USED", "ticket 4")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "INFO  [WEBHOOK   ] CT-1-0007-ab - order marked PAID")
	assert.Contains(t, lines[0], "logger_test.go:")
	assert.Contains(t, lines[1], "[INVALID/ALREADY_USED] ticket 4")
	assert.NotContains(t, buf.String(), "\x1b[", "writer logger must not emit color codes")
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)

	require.NoError(t, l.SetLevel("warn"))
	l.Info("APP", "hidden")
	l.Debug("APP", "hidden")
	l.LogSecurity("INVALID_SIGNATURE", "checksum mismatch")
	l.Error("APP", "shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN  [SECURITY  ] [INVALID_SIGNATURE] checksum mismatch")
	assert.Contains(t, out, "ERROR [APP       ] shown")

	assert.Error(t, l.SetLevel("verbose"))
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{"debug": DEBUG, "INFO": INFO, " Warn ": WARN, "error": ERROR, "FATAL": FATAL}
	for name, want := range cases {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	assert.Equal(t, "INFO", LogLevel(42).String())
}
