package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]string {
	t.Helper()
	var out []map[string]string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]string
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, WARN)
	l.Info("dropped")
	l.Warn("kept", "k", "v")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["msg"])
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "v", lines[0]["k"])
}

func TestLogger_WithBindsFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, DEBUG).With("component", "dispatch")
	l.Debug("cycle", "jobs", 3)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "dispatch", lines[0]["component"])
	assert.Equal(t, "3", lines[0]["jobs"])
}

func TestLogger_RedactsEmails(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, INFO)
	l.Info("sent", "recipient", "john.doe@example.com", "note", "reply from ab@example.org")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "jo***@example.com", lines[0]["recipient"])
	assert.Equal(t, "reply from ***@example.org", lines[0]["note"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("WARNING"))
	assert.Equal(t, ERROR, ParseLevel(" error "))
	assert.Equal(t, INFO, ParseLevel("nonsense"))
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
	assert.Equal(t, "da***@outreach.test", RedactEmail("Dana Reyes <dana@outreach.test>"))
	assert.Equal(t, "***@***", RedactEmail("@example.com"))
}

func TestRedactPIIValue(t *testing.T) {
	assert.Equal(t, "le***@acme.test", redactPIIValue("to", "lead@acme.test"))
	assert.Equal(t, "le***@acme.test", redactPIIValue("recipient_email", "lead@acme.test"))
	assert.Equal(t, "bounce for le***@acme.test", redactPIIValue("reason", "bounce for lead@acme.test"))
	assert.Equal(t, "acct-1", redactPIIValue("account_id", "acct-1"))
}
