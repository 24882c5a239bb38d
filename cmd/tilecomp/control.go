package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"golang.org/x/term"

	"github.com/1broseidon/tilecomp/internal/ipc"
)

func parseNoArgs(fs *flag.FlagSet, name string, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0, false
		}
		return 2, false
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "%s takes no arguments\n", name)
		fs.Usage()
		return 2, false
	}
	return 0, true
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	asJSON := fs.Bool("json", false, "Print JSON")
	watch := fs.Bool("watch", false, "Refresh until interrupted")
	interval := fs.Duration("interval", time.Second, "Refresh interval with --watch")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: tilecomp status [--json] [--watch [--interval 1s]]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Show compositing status via IPC.")
	}
	if code, ok := parseNoArgs(fs, "status", args); !ok {
		return code
	}

	client := ipc.NewClient()
	clearScreen := *watch && !*asJSON && term.IsTerminal(int(os.Stdout.Fd()))
	for {
		status, err := client.GetStatus()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if clearScreen {
			fmt.Print("\033[H\033[2J")
		}
		if *asJSON {
			if err := writeJSON(os.Stdout, status); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
		} else {
			printStatus(os.Stdout, status)
		}
		if !*watch {
			return 0
		}
		time.Sleep(*interval)
	}
}

func printStatus(w io.Writer, status *ipc.StatusData) {
	s := status.Session
	fmt.Fprintf(w, "daemon_running:  %v\n", status.DaemonRunning)
	fmt.Fprintf(w, "dry_run:         %v\n", status.DryRun)
	fmt.Fprintf(w, "uptime_seconds:  %d\n", status.UptimeSeconds)
	fmt.Fprintf(w, "active:          %v\n", s.Active)
	fmt.Fprintf(w, "screen:          %s\n", s.Screen.String())
	fmt.Fprintf(w, "limiter:         %s\n", s.Limiter)
	fmt.Fprintf(w, "refresh_hz:      %.2f\n", s.RefreshRate)
	fmt.Fprintf(w, "redraw_time:     %s (optimal %s, x%d)\n", s.RedrawTime, s.OptimalRedrawTime, s.TimeMultiplier)
	fmt.Fprintf(w, "frame_status:    %d\n", s.FrameStatus)
	fmt.Fprintf(w, "idle:            %v\n", s.Idle)
	fmt.Fprintf(w, "frames_painted:  %d\n", s.FramesPainted)
	fmt.Fprintf(w, "idle_cycles:     %d\n", s.IdleCycles)
	fmt.Fprintf(w, "windows:         %d (redirected %d, bound %d, overlays %d)\n", s.Windows, s.Redirected, s.BuffersBound, s.Overlays)
	fmt.Fprintf(w, "damage:          %s (%d rects)\n", s.DamageMask, s.DamageRects)
	fmt.Fprintf(w, "frame_trackers:  %d\n", s.FrameTrackers)
}

func runOutputs(args []string) int {
	fs := flag.NewFlagSet("outputs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	asJSON := fs.Bool("json", false, "Print JSON")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: tilecomp outputs [--json]")
	}
	if code, ok := parseNoArgs(fs, "outputs", args); !ok {
		return code
	}

	data, err := ipc.NewClient().GetOutputs()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *asJSON {
		if err := writeJSON(os.Stdout, data); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}
	for _, o := range data.Outputs {
		fmt.Printf("%d  %-10s %dx%d+%d+%d  %.2f Hz\n", o.ID, o.Name, o.Width, o.Height, o.X, o.Y, o.RefreshRate)
	}
	return 0
}

func runWindows(args []string) int {
	fs := flag.NewFlagSet("windows", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	asJSON := fs.Bool("json", false, "Print JSON")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: tilecomp windows [--json]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "List tracked windows, bottom to top.")
	}
	if code, ok := parseNoArgs(fs, "windows", args); !ok {
		return code
	}

	data, err := ipc.NewClient().ListWindows()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *asJSON {
		if err := writeJSON(os.Stdout, data); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}
	for _, w := range data.Windows {
		fmt.Printf("%#010x  %4dx%-4d %+5d%+5d  %-5s %s\n", w.ID, w.Width, w.Height, w.X, w.Y, windowFlags(w), windowLabel(w))
	}
	return 0
}

// windowFlags condenses the compositing state into a short column:
// m=mapped r=redirected b=bound o=overlay a=auto-unredirected s=sync wait.
func windowFlags(w ipc.WindowInfo) string {
	flags := []byte("-----")
	set := func(i int, on bool, c byte) {
		if on {
			flags[i] = c
		}
	}
	set(0, w.Mapped, 'm')
	set(1, w.Redirected, 'r')
	set(2, w.BufferBound, 'b')
	set(3, w.Overlay, 'o')
	set(3, w.AutoUnredirected, 'a')
	set(4, w.SyncWaiting, 's')
	return string(flags)
}

func windowLabel(w ipc.WindowInfo) string {
	switch {
	case w.AppID != "" && w.Title != "":
		return w.AppID + ": " + w.Title
	case w.Title != "":
		return w.Title
	default:
		return w.AppID
	}
}

func runSimple(name, help string, args []string, fn func(*ipc.Client) error) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tilecomp %s\n\n%s\n", name, help)
	}
	if code, ok := parseNoArgs(fs, name, args); !ok {
		return code
	}
	if err := fn(ipc.NewClient()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("%s: ok\n", name)
	return 0
}

// parseWindowID accepts decimal or 0x-prefixed window ids.
func parseWindowID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid window id %q", s)
	}
	if id == 0 {
		return 0, fmt.Errorf("window id must be non-zero")
	}
	return uint32(id), nil
}

func runWindowCommand(name string, args []string, fn func(*ipc.Client, uint32) error) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tilecomp %s <window-id>\n", name)
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	id, err := parseWindowID(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if err := fn(ipc.NewClient(), id); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("%s %#x: ok\n", name, id)
	return 0
}

func runLimiter(args []string) int {
	fs := flag.NewFlagSet("limiter", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: tilecomp limiter [adaptive|vsync|disabled]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Without a mode the limiter cycles adaptive, vsync, disabled.")
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return 2
	}
	mode, err := ipc.NewClient().SetLimiter(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("limiter: %s\n", mode)
	return 0
}
