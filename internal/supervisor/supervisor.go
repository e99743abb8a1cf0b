// Package supervisor manages one collector child process: launch, health
// polling, and graceful stop. A crashed collector is marked failed and logged
// but not restarted; the restart gap is a stated policy, surfaced on every
// health check rather than silently papered over.
package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// DefaultStopGrace is how long a collector gets to exit after SIGTERM before
// it is killed.
const DefaultStopGrace = 5 * time.Second

// State of a supervised collector process.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateFailed  State = "failed"
)

// CollectorProcess supervises a single collector child.
type CollectorProcess struct {
	name   string
	cmd    []string
	env    map[string]string
	logger *slog.Logger

	mu       sync.Mutex
	process  *exec.Cmd
	state    State
	exitErr  error
	exitChan chan error
}

// NewCollectorProcess prepares a supervised process; Start launches it.
func NewCollectorProcess(name string, cmd []string, env map[string]string, logger *slog.Logger) *CollectorProcess {
	return &CollectorProcess{
		name:   name,
		cmd:    cmd,
		env:    env,
		logger: logger.With("collector", name),
		state:  StateIdle,
	}
}

// Name returns the collector name.
func (p *CollectorProcess) Name() string { return p.name }

// Start launches the child process and begins watching for its exit.
func (p *CollectorProcess) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateRunning {
		p.mu.Unlock()
		return fmt.Errorf("collector %s already running", p.name)
	}
	p.mu.Unlock()

	p.logger.Info("starting collector process", "cmd", p.cmd)

	proc := exec.CommandContext(ctx, p.cmd[0], p.cmd[1:]...)
	proc.Env = os.Environ()
	for k, v := range p.env {
		proc.Env = append(proc.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stderr, err := proc.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := proc.Start(); err != nil {
		stderr.Close()
		return fmt.Errorf("failed to start collector %s: %w", p.name, err)
	}

	p.mu.Lock()
	p.process = proc
	p.state = StateRunning
	p.exitErr = nil
	p.exitChan = make(chan error, 1)
	p.mu.Unlock()

	p.logger.Info("collector started", "pid", proc.Process.Pid)

	go p.relayStderr(stderr)
	go p.waitForExit()

	return nil
}

// State returns the current process state. The health check distinguishes a
// deliberate stop (StateStopped) from an unexpected exit (StateFailed).
func (p *CollectorProcess) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ExitError returns the error the process exited with, if any.
func (p *CollectorProcess) ExitError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Stop terminates the child with a grace period before a forced kill.
func (p *CollectorProcess) Stop(grace time.Duration) error {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return nil
	}
	proc := p.process
	exitChan := p.exitChan
	p.state = StateStopped
	p.mu.Unlock()

	p.logger.Info("stopping collector")

	if proc.Process != nil {
		if err := proc.Process.Signal(os.Interrupt); err != nil {
			p.logger.Warn("failed to signal collector", "error", err)
		}
	}

	select {
	case err := <-exitChan:
		if err != nil {
			p.logger.Warn("collector exited with error on stop", "error", err)
		} else {
			p.logger.Info("collector stopped gracefully")
		}
		return nil
	case <-time.After(grace):
		p.logger.Warn("collector did not stop in time, killing")
		if proc.Process != nil {
			proc.Process.Kill()
		}
		<-exitChan
		return fmt.Errorf("collector %s killed after grace period", p.name)
	}
}

func (p *CollectorProcess) relayStderr(stderr io.ReadCloser) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 4096), 1024*1024)
	for scanner.Scan() {
		p.logger.Debug("collector stderr", "line", scanner.Text())
	}
}

func (p *CollectorProcess) waitForExit() {
	p.mu.Lock()
	proc := p.process
	exitChan := p.exitChan
	p.mu.Unlock()

	err := proc.Wait()

	p.mu.Lock()
	p.exitErr = err
	// A process that exits while supposedly running crashed; one stopped on
	// purpose keeps StateStopped.
	if p.state == StateRunning {
		p.state = StateFailed
	}
	p.mu.Unlock()

	exitChan <- err

	if err != nil {
		p.logger.Warn("collector process exited", "error", err)
	} else {
		p.logger.Info("collector process exited cleanly")
	}
}
