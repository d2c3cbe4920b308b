package task

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/eralabs/clcl/internal/command"
	"github.com/eralabs/clcl/internal/launch"
)

// Dispatcher is what listeners hand matched commands to.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd *command.Command) (string, error)
}

// Pipeline couples the sink with the launch trigger: write the artifact,
// then poke the trigger with its path. A trigger failure is logged and never
// propagated, since the dispatch itself already succeeded and the listener
// may mark the source message consumed.
type Pipeline struct {
	sink    Sink
	trigger launch.Trigger
}

// NewPipeline creates a dispatch pipeline.
func NewPipeline(sink Sink, trigger launch.Trigger) *Pipeline {
	return &Pipeline{sink: sink, trigger: trigger}
}

// Dispatch writes the command through the sink and fires the launch trigger.
func (p *Pipeline) Dispatch(ctx context.Context, cmd *command.Command) (string, error) {
	id := uuid.New().String()[:8]

	path, err := p.sink.Dispatch(cmd)
	if err != nil {
		slog.Error("Dispatch failed", "id", id, "channel", cmd.Channel, "err", err)
		return "", err
	}

	slog.Info("Task dispatched",
		"id", id,
		"channel", cmd.Channel,
		"from", cmd.Sender,
		"artifact", filepath.Base(path),
		"preview", preview(cmd))

	if p.trigger != nil {
		if err := p.trigger.Fire(ctx, path); err != nil {
			slog.Warn("Launch trigger failed", "id", id, "err", err)
		}
	}
	return path, nil
}

func preview(cmd *command.Command) string {
	text := cmd.Subject
	if text == "" {
		text = cmd.Body
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if len(text) > 120 {
		text = text[:120] + "…"
	}
	return text
}
