// Package orchestrator discovers the channels available on this host and
// runs them concurrently, keeping their failures isolated from each other.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eralabs/clcl/internal/channel"
	"github.com/eralabs/clcl/internal/config"
	"github.com/eralabs/clcl/internal/task"
)

// statusInterval is how often the running channel states are logged.
const statusInterval = 5 * time.Minute

// CheckResult is one channel's dependency-check outcome.
type CheckResult struct {
	Name   string
	OK     bool
	Detail string
}

// Orchestrator runs a set of channel listeners.
type Orchestrator struct {
	regs     []channel.Registration
	cfg      *config.Config
	dispatch task.Dispatcher

	listeners []channel.Listener
}

// New creates an orchestrator over the given registrations.
func New(regs []channel.Registration, cfg *config.Config, dispatch task.Dispatcher) *Orchestrator {
	return &Orchestrator{regs: regs, cfg: cfg, dispatch: dispatch}
}

// Discover instantiates the listeners available on this platform,
// optionally filtered to the requested channel names. Unknown requested
// names are warnings, not errors, and filtered-out channels are never
// instantiated.
func (o *Orchestrator) Discover(names []string) []channel.Listener {
	known := make(map[string]bool, len(o.regs))
	for _, r := range o.regs {
		known[r.Name] = true
	}

	var requested map[string]bool
	if len(names) > 0 {
		requested = make(map[string]bool, len(names))
		for _, name := range names {
			if !known[name] {
				slog.Warn("Unknown channel requested, skipping", "channel", name)
				continue
			}
			requested[name] = true
		}
	}

	o.listeners = nil
	for _, r := range o.regs {
		if requested != nil && !requested[r.Name] {
			continue
		}
		if !r.Available() {
			if requested != nil {
				slog.Warn("Channel not available on this platform", "channel", r.Name)
			}
			continue
		}
		o.listeners = append(o.listeners, r.New(o.cfg, o.dispatch))
	}
	return o.listeners
}

// Listeners returns the discovered listeners.
func (o *Orchestrator) Listeners() []channel.Listener {
	return o.listeners
}

// CheckAll runs every discovered listener's dependency check and aggregates
// the results. No side effects beyond reporting.
func (o *Orchestrator) CheckAll() ([]CheckResult, bool) {
	results := make([]CheckResult, 0, len(o.listeners))
	all := true
	for _, l := range o.listeners {
		ok, detail := l.CheckDependencies()
		if !ok {
			all = false
		}
		results = append(results, CheckResult{Name: l.Name(), OK: ok, Detail: detail})
	}
	return results, all
}

// StartAll starts every dependency-passing listener concurrently and waits
// for all of them. One listener's unrecoverable failure never stops the
// others; an error is returned only when no channel could start at all.
func (o *Orchestrator) StartAll(ctx context.Context) error {
	var started int
	var g errgroup.Group
	var mu sync.Mutex
	var failed []string

	for _, l := range o.listeners {
		ok, detail := l.CheckDependencies()
		if !ok {
			slog.Warn("Channel disabled (missing dependency)", "channel", l.Name(), "detail", detail)
			continue
		}
		started++

		g.Go(func() error {
			slog.Info("Channel starting", "channel", l.Name())
			if err := l.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Channel terminated", "channel", l.Name(), "err", err)
				mu.Lock()
				failed = append(failed, l.Name())
				mu.Unlock()
			}
			return nil
		})
	}

	if started == 0 {
		return errors.New("no channel could start")
	}

	reportCtx, stopReport := context.WithCancel(ctx)
	defer stopReport()
	go o.report(reportCtx)

	g.Wait()

	if ctx.Err() == nil && len(failed) == started {
		return fmt.Errorf("all channels terminated: %v", failed)
	}
	return nil
}

// StopAll requests Stop on every listener.
func (o *Orchestrator) StopAll() error {
	var errs []error
	for _, l := range o.listeners {
		if err := l.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", l.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// report periodically logs each channel's state so a stalled or
// reconnecting channel is visible in the logs.
func (o *Orchestrator) report(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, l := range o.listeners {
				slog.Info("Channel status", "channel", l.Name(), "state", l.State())
			}
		}
	}
}
