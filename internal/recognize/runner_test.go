package recognize

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunnerLogsThroughInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	runner := newExecRunner(logger)

	_, _, err := runner.Run(context.Background(), "definitely-not-a-binary-4f2a")
	require.Error(t, err)

	assert.Contains(t, buf.String(), "exec failed")
	assert.Contains(t, buf.String(), "definitely-not-a-binary-4f2a")
}

func TestNewExecRunnerNilLoggerFallsBack(t *testing.T) {
	runner := newExecRunner(nil)
	assert.NotNil(t, runner.logger)
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", 100)
	assert.Equal(t, long, truncate(long, 100))
	assert.Equal(t, long[:10]+"...(truncated)", truncate(long, 10))
}
