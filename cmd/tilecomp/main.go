package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/1broseidon/tilecomp/internal/compositor"
	"github.com/1broseidon/tilecomp/internal/config"
	"github.com/1broseidon/tilecomp/internal/daemon"
	"github.com/1broseidon/tilecomp/internal/ipc"
	"github.com/1broseidon/tilecomp/internal/runtimepath"
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "daemon":
		os.Exit(runDaemon(os.Args[2:]))
	case "status":
		os.Exit(runStatus(os.Args[2:]))
	case "outputs":
		os.Exit(runOutputs(os.Args[2:]))
	case "windows":
		os.Exit(runWindows(os.Args[2:]))
	case "repaint":
		os.Exit(runSimple("repaint", "Damage the whole screen.", os.Args[2:], func(c *ipc.Client) error { return c.Repaint() }))
	case "reload":
		os.Exit(runSimple("reload", "Reload the daemon configuration.", os.Args[2:], func(c *ipc.Client) error { return c.Reload() }))
	case "redirect":
		os.Exit(runWindowCommand("redirect", os.Args[2:], func(c *ipc.Client, id uint32) error { return c.Redirect(id) }))
	case "unredirect":
		os.Exit(runWindowCommand("unredirect", os.Args[2:], func(c *ipc.Client, id uint32) error { return c.Unredirect(id) }))
	case "limiter":
		os.Exit(runLimiter(os.Args[2:]))
	case "config":
		os.Exit(runConfig(os.Args[2:]))
	case "mcp":
		os.Exit(runMCP(os.Args[2:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(2)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: tilecomp <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  daemon              Start the compositor (foreground)")
	fmt.Fprintln(w, "  status              Show compositing status")
	fmt.Fprintln(w, "  outputs             List outputs and refresh rates")
	fmt.Fprintln(w, "  windows             List tracked windows")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  repaint             Repaint the whole screen")
	fmt.Fprintln(w, "  reload              Reload configuration")
	fmt.Fprintln(w, "  limiter [mode]      Set or cycle the fps limiter")
	fmt.Fprintln(w, "  redirect <id>       Composite a window again")
	fmt.Fprintln(w, "  unredirect <id>     Stop compositing a window")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate     Validate configuration")
	fmt.Fprintln(w, "  config print        Print configuration")
	fmt.Fprintln(w, "  config explain      Explain a config value")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  mcp serve           Start MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'tilecomp <command> --help' for command-specific options.")
}

// loadConfig loads path, or the default configuration file when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	res, err := config.LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	return res.Config, nil
}

// newLogger builds the daemon logger. The returned function closes the log
// file, if any.
func newLogger(cfg *config.Config, stderr io.Writer) (*slog.Logger, func(), error) {
	var w io.Writer = stderr
	closer := func() {}
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(stderr, f)
		closer = func() { f.Close() }
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	return logger, closer, nil
}

func runDaemon(args []string) int {
	fs := flag.NewFlagSet("daemon", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	path := fs.String("path", "", "Config file path (default: ~/.config/tilecomp/config.yaml)")
	replace := fs.Bool("replace", false, "Take over from a running compositor")
	dryRun := fs.Bool("dry-run", false, "Track windows and schedule frames without drawing or claiming the display")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: tilecomp daemon [--replace] [--dry-run] [--path PATH]")
		fmt.Fprintln(os.Stderr, "")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon takes no arguments")
		fs.Usage()
		return 2
	}

	cfg, err := loadConfig(*path)
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return 1
	}
	logger, closeLog, err := newLogger(cfg, os.Stderr)
	if err != nil {
		log.Printf("Failed to set up logging: %v", err)
		return 1
	}
	defer closeLog()
	slog.SetDefault(logger)

	if cfg.XAuthority != "" {
		os.Setenv("XAUTHORITY", cfg.XAuthority)
	}

	socket, err := runtimepath.SocketPath()
	if err != nil {
		logger.Error("resolve IPC socket path", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SIGHUP goes through the same path as `tilecomp reload`.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				logger.Info("received SIGHUP, reloading config")
				if err := ipc.NewClientAt(socket).Reload(); err != nil {
					logger.Warn("config reload failed", "error", err)
				}
			}
		}
	}()

	err = daemon.RunX11(ctx, daemon.X11Options{
		Config:  cfg,
		Reload:  func() (*config.Config, error) { return loadConfig(*path) },
		Socket:  socket,
		DryRun:  *dryRun,
		Replace: *replace,
		Logger:  logger,
	})
	switch {
	case err == nil:
		logger.Info("tilecomp daemon stopped")
		return 0
	case errors.Is(err, compositor.ErrCompositorRunning):
		logger.Error("another compositor is running; use --replace to take over", "error", err)
		return 1
	case errors.Is(err, compositor.ErrCapabilityMissing):
		logger.Error("the X server cannot composite", "error", err)
		return 1
	default:
		logger.Error("daemon failed", "error", err)
		return 1
	}
}
