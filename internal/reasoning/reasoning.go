// Package reasoning is the narrow boundary to the external reasoning
// collaborator: one blocking request per task carrying the document body plus
// metadata, one textual response. Calls are bounded by a timeout so an
// unresponsive collaborator cannot hang stage transitions indefinitely.
package reasoning

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout bounds one reasoning call.
const DefaultTimeout = 120 * time.Second

// Request carries the task to analyze.
type Request struct {
	TaskID   string
	Body     string
	Metadata map[string]string
}

// Result is the collaborator's answer. A failed call still produces a Result,
// with Success false and Err set.
type Result struct {
	Success bool
	Content string
	Usage   map[string]string
	Err     string
}

// Client analyzes task text and proposes a next action.
type Client interface {
	Analyze(ctx context.Context, req Request) Result
}

// CommandClient runs a configured command per request, writes the task body to
// its stdin, and reads the response from stdout.
type CommandClient struct {
	cmd     []string
	timeout time.Duration
	logger  *slog.Logger
}

// NewCommandClient builds a client around cmd (program plus arguments).
func NewCommandClient(cmd []string, timeout time.Duration, logger *slog.Logger) (*CommandClient, error) {
	if len(cmd) == 0 {
		return nil, fmt.Errorf("reasoning command is empty")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CommandClient{cmd: cmd, timeout: timeout, logger: logger}, nil
}

// Analyze implements Client.
func (c *CommandClient) Analyze(ctx context.Context, req Request) Result {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	correlationID := uuid.New().String()
	c.logger.Info("reasoning call started",
		"task_id", req.TaskID, "correlation_id", correlationID)

	proc := exec.CommandContext(callCtx, c.cmd[0], c.cmd[1:]...)
	proc.Stdin = strings.NewReader(buildPrompt(req))

	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	start := time.Now()
	err := proc.Run()
	elapsed := time.Since(start)

	if err != nil {
		reason := err.Error()
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			reason = fmt.Sprintf("timed out after %s", c.timeout)
		}
		c.logger.Error("reasoning call failed",
			"task_id", req.TaskID,
			"correlation_id", correlationID,
			"elapsed", elapsed,
			"stderr", strings.TrimSpace(stderr.String()),
			"error", reason)
		return Result{Success: false, Err: reason}
	}

	c.logger.Info("reasoning call completed",
		"task_id", req.TaskID, "correlation_id", correlationID, "elapsed", elapsed)

	return Result{
		Success: true,
		Content: strings.TrimSpace(stdout.String()),
		Usage: map[string]string{
			"elapsed":        elapsed.String(),
			"correlation_id": correlationID,
		},
	}
}

func buildPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following task and respond with the next action.\n")
	sb.WriteString("State explicitly if the task requires approval or a plan.\n\n")
	for key, value := range req.Metadata {
		fmt.Fprintf(&sb, "%s: %s\n", key, value)
	}
	sb.WriteString("\n")
	sb.WriteString(req.Body)
	return sb.String()
}
