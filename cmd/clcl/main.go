package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/eralabs/clcl/internal/channel"
	"github.com/eralabs/clcl/internal/cli"
	"github.com/eralabs/clcl/internal/config"
	"github.com/eralabs/clcl/internal/launch"
	"github.com/eralabs/clcl/internal/logging"
	"github.com/eralabs/clcl/internal/orchestrator"
	"github.com/eralabs/clcl/internal/task"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "listen":
		cmdListen()
	case "check":
		cmdCheck()
	case "channels":
		cli.RunChannels(channel.Registrations())
	case "status":
		cmdStatus()
	case "onboard":
		cli.RunOnboard()
	case "version", "--version", "-v":
		fmt.Println(cli.TitleStyle.Render(
			fmt.Sprintf("  %s clcl v%s", cli.Logo, cli.Version),
		))
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	dim := cli.DimStyle.Render
	fmt.Println()
	fmt.Println(cli.TitleStyle.Render(fmt.Sprintf("  %s clcl", cli.Logo)) + dim(" — wake-command listener"))
	fmt.Println()
	fmt.Println("  " + cli.BoldStyle.Render("Usage"))
	fmt.Println()
	fmt.Printf("    clcl %-18s %s\n", "listen", dim("Watch all available channels"))
	fmt.Printf("    clcl %-18s %s\n", "listen -c email,…", dim("Watch selected channels only"))
	fmt.Printf("    clcl %-18s %s\n", "check", dim("Run channel dependency checks"))
	fmt.Printf("    clcl %-18s %s\n", "channels", dim("List registered channels"))
	fmt.Printf("    clcl %-18s %s\n", "status", dim("Show configuration"))
	fmt.Printf("    clcl %-18s %s\n", "onboard", dim("Initialize setup"))
	fmt.Printf("    clcl %-18s %s\n", "version", dim("Show version"))
	fmt.Println()
}

// --- listen command ---

func cmdListen() {
	cfg := mustLoadConfig()
	logging.Setup(slog.LevelInfo)

	if names := channelFlag(os.Args[2:]); names != nil {
		cfg.Channels.Enabled = names
		if err := cfg.Validate(); err != nil {
			fatal(err)
		}
	}

	fmt.Println()
	fmt.Println(cli.TitleStyle.Render(fmt.Sprintf("  %s clcl Listener", cli.Logo)))
	fmt.Println()

	orch := newOrchestrator(cfg)
	orch.Discover(cfg.Channels.Enabled)

	results, _ := orch.CheckAll()
	for _, r := range results {
		fmt.Printf("  %s %-16s %s\n", cli.StatusBadge(r.OK), r.Name, cli.DimStyle.Render(r.Detail))
	}
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- orch.StartAll(ctx) }()

	fmt.Println(cli.DimStyle.Render("  Press Ctrl+C to stop"))

	select {
	case err := <-done:
		if err != nil {
			fatal(err)
		}
	case <-ctx.Done():
		fmt.Println("\n  Shutting down...")
		orch.StopAll()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			slog.Warn("Shutdown timed out")
		}
	}
}

// --- check command ---

func cmdCheck() {
	cfg := mustLoadConfig()
	logging.Setup(slog.LevelWarn)

	orch := newOrchestrator(cfg)
	orch.Discover(cfg.Channels.Enabled)
	results, ok := orch.CheckAll()

	fmt.Println()
	fmt.Println(cli.TitleStyle.Render(fmt.Sprintf("  %s clcl Check", cli.Logo)))
	fmt.Println()
	for _, r := range results {
		fmt.Printf("  %s %-16s %s\n", cli.StatusBadge(r.OK), r.Name, cli.DimStyle.Render(r.Detail))
	}
	fmt.Println()

	if !ok {
		os.Exit(1)
	}
}

// --- status command ---

func cmdStatus() {
	cfg, _ := config.Load()
	cli.RunStatus(cfg, channel.Registrations())
}

// --- helpers ---

func newOrchestrator(cfg *config.Config) *orchestrator.Orchestrator {
	var trigger launch.Trigger = launch.NopTrigger{}
	if cfg.Launch.Command != "" {
		trigger = launch.NewExecTrigger(cfg.Launch.Command, time.Duration(cfg.Launch.TimeoutS)*time.Second)
	}
	pipeline := task.NewPipeline(task.NewDirSink(cfg.InboxDir()), trigger)
	return orchestrator.New(channel.Registrations(), cfg, pipeline)
}

// channelFlag parses -c/--channels from args, returning nil when absent.
func channelFlag(args []string) []string {
	for i, a := range args {
		if (a == "-c" || a == "--channels") && i+1 < len(args) {
			var names []string
			for _, n := range strings.Split(args[i+1], ",") {
				if n = strings.TrimSpace(n); n != "" {
					names = append(names, n)
				}
			}
			return names
		}
	}
	return nil
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}
	return cfg
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, cli.ErrStyle.Render("  Error: "+err.Error()))
	os.Exit(1)
}
