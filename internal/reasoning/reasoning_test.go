package reasoning

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests drive real unix processes")
	}
}

func TestNewCommandClientRejectsEmptyCommand(t *testing.T) {
	_, err := NewCommandClient(nil, time.Minute, testLogger())
	assert.Error(t, err)
}

func TestAnalyzeReadsStdout(t *testing.T) {
	requireUnix(t)

	c, err := NewCommandClient([]string{"sh", "-c", "echo analysis result"}, time.Minute, testLogger())
	require.NoError(t, err)

	result := c.Analyze(context.Background(), Request{TaskID: "t1", Body: "do the thing"})
	assert.True(t, result.Success)
	assert.Equal(t, "analysis result", result.Content)
	assert.NotEmpty(t, result.Usage["correlation_id"])
}

func TestAnalyzePassesPromptOnStdin(t *testing.T) {
	requireUnix(t)

	c, err := NewCommandClient([]string{"cat"}, time.Minute, testLogger())
	require.NoError(t, err)

	result := c.Analyze(context.Background(), Request{
		TaskID:   "t1",
		Body:     "review the invoice from the dropzone",
		Metadata: map[string]string{"source": "dropzone"},
	})
	require.True(t, result.Success)
	assert.Contains(t, result.Content, "review the invoice from the dropzone")
	assert.Contains(t, result.Content, "source: dropzone")
}

func TestAnalyzeFailureProducesResultNotPanic(t *testing.T) {
	requireUnix(t)

	c, err := NewCommandClient([]string{"sh", "-c", "echo broken >&2; exit 1"}, time.Minute, testLogger())
	require.NoError(t, err)

	result := c.Analyze(context.Background(), Request{TaskID: "t1", Body: "x"})
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Err)
}

func TestAnalyzeTimesOut(t *testing.T) {
	requireUnix(t)

	c, err := NewCommandClient([]string{"sleep", "60"}, 100*time.Millisecond, testLogger())
	require.NoError(t, err)

	start := time.Now()
	result := c.Analyze(context.Background(), Request{TaskID: "t1", Body: "x"})
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, result.Success)
	assert.Contains(t, result.Err, "timed out")
}

func TestAnalyzeHonorsCallerContext(t *testing.T) {
	requireUnix(t)

	c, err := NewCommandClient([]string{"sleep", "60"}, time.Minute, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	result := c.Analyze(ctx, Request{TaskID: "t1", Body: "x"})
	assert.False(t, result.Success)
}
