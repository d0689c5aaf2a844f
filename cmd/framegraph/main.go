package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ritzau/framegraph/pkg/config"
	"github.com/ritzau/framegraph/pkg/framegraph"
	"github.com/ritzau/framegraph/pkg/logging"
	"github.com/ritzau/framegraph/pkg/model"
	"github.com/ritzau/framegraph/pkg/output"
	"github.com/ritzau/framegraph/pkg/pool"
	"github.com/ritzau/framegraph/pkg/script"
	"github.com/ritzau/framegraph/pkg/watcher"
	"github.com/ritzau/framegraph/pkg/web"
	"github.com/spf13/pflag"
)

func main() {
	// Parse command-line flags
	flags := pflag.NewFlagSet("framegraph", pflag.ExitOnError)
	config.RegisterFlags(flags)
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	configureLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	alloc := pool.New(nil, cfg.Pool.Capacity)
	defer alloc.Drain()

	var server *web.Server
	if cfg.WebMode {
		server = web.NewServer()
		addr := fmt.Sprintf(":%d", cfg.Port)
		fmt.Printf("Starting web server on http://localhost:%d\n", cfg.Port)
		go func() {
			if err := server.ListenAndServe(ctx, addr); err != nil {
				logging.Fatal("web server failed", "error", err)
			}
		}()
	}

	err = runOnce(ctx, cfg, alloc, server)
	if err != nil && !cfg.Watch && !cfg.WebMode {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err != nil {
		logging.Error("frame failed", "frame", cfg.Frame, "error", err)
	}

	switch {
	case cfg.Watch:
		if err := watch(ctx, flags, cfg, alloc, server); err != nil {
			logging.Fatal("watching failed", "error", err)
		}
	case cfg.WebMode:
		<-ctx.Done()
	}
}

func configureLogging(cfg *config.Config) {
	level := logging.ParseLevel(cfg.Verbosity, cfg.VerboseCnt)
	if cfg.Log.JSON {
		logging.SetJSONOutput(level)
		return
	}
	logging.SetLevel(level)
}

// runOnce loads, compiles and executes the configured frame, then reports it.
func runOnce(ctx context.Context, cfg *config.Config, alloc *pool.Pool, server *web.Server) error {
	status := func(state, message, frame string) {
		if server == nil {
			return
		}
		if err := server.PublishFrameStatus(state, message, frame); err != nil {
			logging.Warn("failed to publish status", "error", err)
		}
	}

	status("loading", "Loading "+cfg.Frame, "")
	frame, err := buildFrame(ctx, cfg.Frame, alloc)
	if err != nil {
		status("failed", err.Error(), "")
		return err
	}

	stats := alloc.Stats()
	output.PrintPlan(os.Stdout, frame.Name, frame.Plan, stats)
	if logging.ParseLevel(cfg.Verbosity, cfg.VerboseCnt) < slog.LevelInfo {
		output.PrintExecutions(os.Stdout, frame.Executions)
	}

	if err := writeOutputs(cfg, frame); err != nil {
		status("failed", err.Error(), frame.Plan.Frame)
		return err
	}

	if server != nil {
		server.SetPoolStats(stats)
		if err := server.SetFrame(frame); err != nil {
			logging.Warn("failed to publish frame", "error", err)
		}
	}
	status("ready", fmt.Sprintf("%d passes executed", len(frame.Executions)), frame.Plan.Frame)
	return nil
}

func buildFrame(ctx context.Context, path string, alloc *pool.Pool) (*web.Frame, error) {
	desc, err := script.Load(path)
	if err != nil {
		return nil, err
	}

	fg := framegraph.New(framegraph.WithAllocator(alloc))
	rec := &script.Recorder{}
	if err := desc.Build(fg, rec); err != nil {
		return nil, fmt.Errorf("building %s: %w", path, err)
	}
	if err := compile(fg); err != nil {
		return nil, fmt.Errorf("compiling %s: %w", path, err)
	}
	if err := execute(ctx, fg); err != nil {
		return nil, fmt.Errorf("executing %s: %w", path, err)
	}

	return &web.Frame{
		Name:       desc.Name,
		Graph:      fg.Snapshot(),
		Plan:       fg.Plan(),
		Executions: rec.Executions(),
	}, nil
}

func compile(fg *framegraph.FrameGraph) (err error) {
	defer framegraph.Recover(&err)
	fg.Compile()
	return nil
}

func execute(ctx context.Context, fg *framegraph.FrameGraph) (err error) {
	defer framegraph.Recover(&err)
	return fg.Execute(ctx)
}

func writeOutputs(cfg *config.Config, frame *web.Frame) error {
	if cfg.DOT != "" {
		data, err := frame.Graph.MarshalDOT(frame.Name)
		if err != nil {
			return fmt.Errorf("rendering DOT: %w", err)
		}
		if err := writeFile(cfg.DOT, data); err != nil {
			return err
		}
	}
	if cfg.JSON != "" {
		snapshot := struct {
			Graph *model.Graph `json:"graph"`
			Plan  *model.Plan  `json:"plan"`
		}{frame.Graph, frame.Plan}
		data, err := json.MarshalIndent(snapshot, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding snapshot: %w", err)
		}
		if err := writeFile(cfg.JSON, append(data, '\n')); err != nil {
			return err
		}
	}
	return nil
}

// writeFile writes data to path, or to stdout when path is "-".
func writeFile(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// watch recompiles whenever the frame description or the config file changes.
func watch(ctx context.Context, flags *pflag.FlagSet, cfg *config.Config, alloc *pool.Pool, server *web.Server) error {
	fw, err := watcher.NewFileWatcher(cfg.Frame, config.DefaultFile)
	if err != nil {
		return err
	}
	defer fw.Stop()
	if err := fw.Start(ctx); err != nil {
		return err
	}

	defer func() { alloc.Drain() }()

	debouncer := watcher.NewDebouncer(fw.Events(), 300*time.Millisecond, 2*time.Second)
	debouncer.Start(ctx)
	logging.Info("watching for changes", "frame", cfg.Frame)

	for event := range debouncer.Output() {
		analysis := watcher.AnalyzeChanges(event)
		logging.Info("files changed", "type", event.Type, "files", analysis.ChangedFiles)

		if analysis.NeedReconfigure {
			next, err := config.Load(flags)
			if err != nil {
				logging.Error("failed to reload config", "error", err)
				continue
			}
			configureLogging(next)
			if next.Pool.Capacity != cfg.Pool.Capacity {
				alloc.Drain()
				alloc = pool.New(nil, next.Pool.Capacity)
			}
			if next.Frame != cfg.Frame {
				logging.Warn("frame file changed in config; restart to watch it", "frame", next.Frame)
			}
			cfg = next
		}

		if analysis.NeedReload {
			if err := runOnce(ctx, cfg, alloc, server); err != nil {
				logging.Error("frame failed", "frame", cfg.Frame, "error", err)
			}
		}
	}
	return nil
}
