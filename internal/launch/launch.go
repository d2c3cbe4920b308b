// Package launch notifies the downstream agent that a task artifact is
// ready. The agent process itself is outside this system; the contract is
// "receives an artifact path, returns success or failure."
package launch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Trigger is invoked after a successful dispatch with the artifact path.
type Trigger interface {
	Fire(ctx context.Context, artifactPath string) error
}

// ExecTrigger runs a configured shell command with the artifact path
// appended as its last argument.
type ExecTrigger struct {
	Command string
	Timeout time.Duration
}

// NewExecTrigger creates a trigger running command with the given timeout.
func NewExecTrigger(command string, timeout time.Duration) *ExecTrigger {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ExecTrigger{Command: command, Timeout: timeout}
}

// Fire runs the configured command.
func (t *ExecTrigger) Fire(ctx context.Context, artifactPath string) error {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", t.Command+" "+shellQuote(artifactPath))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("launch command timed out after %s", t.Timeout)
		}
		if s := strings.TrimSpace(stderr.String()); s != "" {
			return fmt.Errorf("launch command: %w: %s", err, s)
		}
		return fmt.Errorf("launch command: %w", err)
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// NopTrigger logs the artifact path and does nothing else. Used when no
// launch command is configured.
type NopTrigger struct{}

// Fire logs the ready artifact.
func (NopTrigger) Fire(_ context.Context, artifactPath string) error {
	slog.Info("Task ready", "artifact", artifactPath)
	return nil
}
