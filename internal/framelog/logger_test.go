package framelog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/1broseidon/tilecomp/internal/region"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return string(data)
}

func TestLogger_Disabled(t *testing.T) {
	l, err := NewLogger(LogConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	l.Log(EventActivate, nil)
	l.PreparePaint(time.Millisecond)
	l.DonePaint()
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestLogger_NilIsSafe(t *testing.T) {
	var l *Logger
	l.Log(EventActivate, nil)
	l.ObserveDamage(region.FromRect(region.R(0, 0, 1, 1)))
	l.PreparePaint(0)
	l.DonePaint()
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestLogger_FrameEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "frames.log")
	l, err := NewLogger(LogConfig{Enabled: true, Level: LevelDebug, FilePath: path, MaxSizeMB: 1, MaxFiles: 2})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer l.Close()

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start
	l.now = func() time.Time { return now }

	l.ObserveDamage(region.New(region.R(0, 0, 10, 10), region.R(20, 20, 5, 5)))
	l.PreparePaint(16 * time.Millisecond)
	now = now.Add(2 * time.Millisecond)
	l.DonePaint()

	got := readLog(t, path)
	for _, want := range []string{
		"[FRAME]",
		"damage_area=125",
		"damage_rects=2",
		"frame=1",
		"paint=2.000ms",
		"since_last=16.000ms",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("log %q missing %q", got, want)
		}
	}

	// Counters reset after each frame.
	l.PreparePaint(0)
	l.DonePaint()
	lines := strings.Split(strings.TrimSpace(readLog(t, path)), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "damage_rects=0") {
		t.Fatalf("expected a second frame without damage, got %q", lines)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.log")
	l, err := NewLogger(LogConfig{Enabled: true, Level: LevelInfo, FilePath: path, MaxSizeMB: 1, MaxFiles: 2})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer l.Close()

	l.PreparePaint(0)
	l.DonePaint()
	l.Log(EventLimiter, map[string]interface{}{"mode": "vsync"})

	got := readLog(t, path)
	if strings.Contains(got, "[FRAME]") {
		t.Errorf("debug-level frame entry written at info level: %q", got)
	}
	if !strings.Contains(got, `[LIMITER] mode="vsync"`) {
		t.Errorf("expected limiter entry, got %q", got)
	}
}

func TestLogger_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.log")
	l, err := NewLogger(LogConfig{Enabled: true, Level: LevelDebug, FilePath: path, MaxSizeMB: 1, MaxFiles: 2})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer l.Close()

	l.currentSize = 1024 * 1024
	l.Log(EventActivate, nil)

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("expected rotated file: %v", err)
	}
	if got := readLog(t, path); !strings.Contains(got, "[ACTIVATE]") {
		t.Fatalf("expected entry in fresh file, got %q", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
