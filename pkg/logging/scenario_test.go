package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioLoggerBuffersOutput(t *testing.T) {
	sl := NewScenarioLogger("set", "scenario-a", "20240315_100000", "INFO", "")

	sl.Info("tick loop starting", "ticks", 1000)
	sl.Warn("insufficient warmup")
	sl.Debug("suppressed at INFO level")

	out := sl.Buffer()
	assert.Contains(t, out, "tick loop starting")
	assert.Contains(t, out, "insufficient warmup")
	assert.NotContains(t, out, "suppressed at INFO level")
	assert.Contains(t, out, "scenario-a")
}

func TestScenarioLoggerWithFieldSharesBuffer(t *testing.T) {
	sl := NewScenarioLogger("set", "scenario-b", "20240315_100000", "INFO", "")

	child := sl.WithField("component", "broker")
	child.Info("order filled")

	out := sl.Buffer()
	assert.Contains(t, out, "order filled")
	assert.Contains(t, out, "broker")
}

func TestScenarioLoggerFlushWritesFile(t *testing.T) {
	dir := t.TempDir()
	sl := NewScenarioLogger("set", "scenario-c", "20240315_100000", "INFO", dir)

	sl.Info("first message")
	require.NoError(t, sl.Flush())

	path := filepath.Join(dir, "20240315_100000", "scenario-c.log")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "first message")

	// A second flush with no new output appends nothing.
	require.NoError(t, sl.Flush())
	again, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, again)

	// Output after a flush is written as a continuation.
	sl.Info("second message")
	require.NoError(t, sl.Flush())
	final, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(final), "second message")
	assert.Contains(t, string(final), "continued")
}

func TestParseZapLevelFallsBackToInfo(t *testing.T) {
	assert.Equal(t, parseZapLevel("INFO"), parseZapLevel("unknown"))
	assert.NotEqual(t, parseZapLevel("DEBUG"), parseZapLevel("ERROR"))
}
