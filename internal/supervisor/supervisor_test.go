package supervisor

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

func waitForState(t *testing.T, p *CollectorProcess, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if p.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("process never reached state %s, still %s", want, p.State())
}

func TestStartAndGracefulStop(t *testing.T) {
	requireUnix(t)

	p := NewCollectorProcess("test", []string{"sleep", "60"}, nil, testLogger())
	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, StateRunning, p.State())

	err := p.Stop(5 * time.Second)
	assert.NoError(t, err, "sleep dies on SIGINT within the grace period")
	assert.Equal(t, StateStopped, p.State())
}

func TestCrashedProcessIsMarkedFailed(t *testing.T) {
	requireUnix(t)

	p := NewCollectorProcess("test", []string{"sh", "-c", "exit 3"}, nil, testLogger())
	require.NoError(t, p.Start(context.Background()))

	waitForState(t, p, StateFailed)
	assert.Error(t, p.ExitError())
}

func TestCleanExitIsStillUnexpected(t *testing.T) {
	requireUnix(t)

	// Collectors are long-running; even a zero exit while supposedly running
	// counts as a failure for the health check.
	p := NewCollectorProcess("test", []string{"true"}, nil, testLogger())
	require.NoError(t, p.Start(context.Background()))

	waitForState(t, p, StateFailed)
	assert.NoError(t, p.ExitError())
}

func TestStopKillsAfterGracePeriod(t *testing.T) {
	requireUnix(t)

	p := NewCollectorProcess("test",
		[]string{"sh", "-c", "trap '' INT; sleep 60"}, nil, testLogger())
	require.NoError(t, p.Start(context.Background()))

	// Give the shell a moment to install the trap.
	time.Sleep(100 * time.Millisecond)

	err := p.Stop(200 * time.Millisecond)
	assert.Error(t, err, "a process ignoring SIGINT must be killed")
}

func TestStopOnNeverStartedProcessIsNoop(t *testing.T) {
	p := NewCollectorProcess("test", []string{"sleep", "60"}, nil, testLogger())
	assert.NoError(t, p.Stop(time.Second))
	assert.Equal(t, StateIdle, p.State())
}

func TestDoubleStartRejected(t *testing.T) {
	requireUnix(t)

	p := NewCollectorProcess("test", []string{"sleep", "60"}, nil, testLogger())
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop(time.Second)

	assert.Error(t, p.Start(context.Background()))
}

func TestStartUnknownBinary(t *testing.T) {
	p := NewCollectorProcess("test", []string{"/nonexistent/binary"}, nil, testLogger())
	assert.Error(t, p.Start(context.Background()))
	assert.Equal(t, StateIdle, p.State())
}
