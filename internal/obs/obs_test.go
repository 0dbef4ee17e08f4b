package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &got))
	return got
}

func TestFrom_AddsCorrelation(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	ctx := WithCorrelation(context.Background(), Correlation{RunID: "run-1", Reference: "login.png"})
	ctx = WithCorrelation(ctx, Correlation{Browser: "firefox"})
	From(ctx).Info("compared")

	got := lastLine(t, &buf)
	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, "login.png", got["reference"])
	assert.Equal(t, "firefox", got["browser"])
	assert.True(t, strings.HasSuffix(got["time"].(string), "Z"))
}

func TestPkg_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	Pkg("config").Debug("loaded", "aws_secret_access_key", "hunter2", "bucket", "refs")
	got := lastLine(t, &buf)
	assert.Equal(t, "config", got["pkg"])
	assert.Equal(t, "[REDACTED]", got["aws_secret_access_key"])
	assert.Equal(t, "refs", got["bucket"])
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	SetLevel("warn")
	Pkg("x").Info("hidden")
	assert.Zero(t, buf.Len())
	Pkg("x").Warn("shown")
	assert.Contains(t, buf.String(), "shown")

	SetLevel("bogus")
	Pkg("x").Info("still hidden")
	assert.NotContains(t, buf.String(), "still hidden")
}

func TestCorrelationFromContext_Empty(t *testing.T) {
	assert.Equal(t, Correlation{}, CorrelationFromContext(context.Background()))
}
