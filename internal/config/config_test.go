package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/1broseidon/tilecomp/internal/compositor"
)

func writeConfig(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if cfg.Limiter() != compositor.LimiterAdaptive {
		t.Fatalf("expected adaptive limiter, got %v", cfg.Limiter())
	}
	if cfg.FrameHistory != compositor.DefaultFrameHistory {
		t.Fatalf("expected frame_history %d, got %d", compositor.DefaultFrameHistory, cfg.FrameHistory)
	}
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	res, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(res.Files) != 0 {
		t.Fatalf("expected no files loaded, got %v", res.Files)
	}
	if res.Config.Damage.RectLimit != compositor.DefaultRectLimit {
		t.Fatalf("expected rect_limit %d, got %d", compositor.DefaultRectLimit, res.Config.Damage.RectLimit)
	}
}

func TestLoadFromPath_EmptyFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "# empty\n")

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Config.FPSLimiter != "adaptive" {
		t.Fatalf("expected fps_limiter adaptive, got %q", res.Config.FPSLimiter)
	}
	if len(res.Files) != 1 {
		t.Fatalf("expected one file, got %v", res.Files)
	}
}

func TestLoadFromPath_CompositorSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := strings.Join([]string{
		"refresh_rate: 144",
		"fps_limiter: vsync",
		"force_independent_output_painting: true",
		"unredirect_fullscreen_windows: true",
		"frame_history: 4",
		"damage:",
		"  rect_limit: 32",
		"frame_sync_timeout_ms: 50",
		"",
	}, "\n")
	writeConfig(t, path, data)

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tuning := res.Config.Tuning()
	if tuning.Limiter != compositor.LimiterVSync {
		t.Errorf("limiter = %v, want vsync", tuning.Limiter)
	}
	if tuning.RefreshRate != 144 {
		t.Errorf("refresh = %v, want 144", tuning.RefreshRate)
	}
	if !tuning.ForceIndependentOutputs || !tuning.UnredirectFullscreen {
		t.Errorf("expected output and unredirect flags, got %+v", tuning)
	}
	if tuning.RectLimit != 32 {
		t.Errorf("rect limit = %d, want 32", tuning.RectLimit)
	}
	if res.Config.FrameHistory != 4 {
		t.Errorf("frame_history = %d, want 4", res.Config.FrameHistory)
	}
	if got := res.Config.FrameSyncTimeout(); got != 50*time.Millisecond {
		t.Errorf("frame sync timeout = %v, want 50ms", got)
	}
}

func TestLoadFromPath_DisplayAndXAuthority(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := strings.Join([]string{
		"display: \":1\"",
		"xauthority: \"/tmp/test-xauth\"",
		"",
	}, "\n")
	writeConfig(t, path, data)

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Config.Display != ":1" {
		t.Fatalf("expected display :1, got %q", res.Config.Display)
	}
	if res.Config.XAuthority != "/tmp/test-xauth" {
		t.Fatalf("expected xauthority /tmp/test-xauth, got %q", res.Config.XAuthority)
	}

	val, src, err := Explain(res, "display")
	if err != nil {
		t.Fatalf("explain display: %v", err)
	}
	if val != ":1" {
		t.Fatalf("expected explain display :1, got %#v", val)
	}
	if src.Kind != SourceFile || src.Line != 1 {
		t.Fatalf("expected display source file line 1, got %#v", src)
	}
}

func TestExplain_DefaultsAndNestedPaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "frame_log:\n  max_files: 7\n")

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	val, src, err := Explain(res, "frame_log.max_files")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if val != 7 || src.Kind != SourceFile {
		t.Fatalf("expected 7 from file, got %#v from %#v", val, src)
	}

	val, src, err = Explain(res, "damage.rect_limit")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if val != compositor.DefaultRectLimit || src.Kind != SourceDefault {
		t.Fatalf("expected default rect_limit, got %#v from %#v", val, src)
	}

	if _, _, err := Explain(res, "damage.bogus"); err == nil {
		t.Fatalf("expected unknown path error")
	}
	if _, _, err := Explain(nil, "display"); err == nil {
		t.Fatalf("expected error for nil result")
	}
}

func TestLoadFromPath_StrictUnknownKeyErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "unknown_key: 1\n")

	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatalf("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "unknown_key") && !strings.Contains(err.Error(), "field") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
	if !strings.Contains(err.Error(), path) {
		t.Fatalf("expected error to include file path, got %v", err)
	}
}

func TestLoadFromPath_IncludeDirectoryOrderAndMainOverrides(t *testing.T) {
	dir := t.TempDir()

	// config.d loaded first, in sorted order.
	configD := filepath.Join(dir, "config.d")
	if err := os.MkdirAll(configD, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeConfig(t, filepath.Join(configD, "10-base.yaml"), "frame_history: 5\nshadow_margin: 8\n")
	writeConfig(t, filepath.Join(configD, "20-override.yaml"), "frame_history: 6\n")
	writeConfig(t, filepath.Join(configD, "README"), "not yaml\n")

	// Main file overrides includes.
	path := filepath.Join(dir, "config.yaml")
	main := strings.Join([]string{
		"include:",
		"  - config.d",
		"frame_history: 7",
		"",
	}, "\n")
	writeConfig(t, path, main)

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Config.FrameHistory != 7 {
		t.Fatalf("expected frame_history to be 7, got %d", res.Config.FrameHistory)
	}
	if res.Config.ShadowMargin != 8 {
		t.Fatalf("expected shadow_margin from include, got %d", res.Config.ShadowMargin)
	}
	if len(res.Files) != 3 {
		t.Fatalf("expected 3 loaded files, got %v", res.Files)
	}
	if !strings.HasSuffix(res.Files[2], "config.yaml") {
		t.Fatalf("expected main file last, got %v", res.Files)
	}
}

func TestLoadFromPath_SourcesPointAtLastWriter(t *testing.T) {
	dir := t.TempDir()
	inc := filepath.Join(dir, "base.yaml")
	writeConfig(t, inc, "shadow_margin: 8\nframe_history: 5\n")
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "include: base.yaml\nframe_history: 7\n")

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if src := res.Sources["shadow_margin"]; src.File != inc || src.Line != 1 {
		t.Fatalf("expected shadow_margin from %s:1, got %+v", inc, src)
	}
	if src := res.Sources["frame_history"]; src.File != path || src.Line != 2 {
		t.Fatalf("expected frame_history from %s:2, got %+v", path, src)
	}
	if _, ok := res.Sources["log_level"]; ok {
		t.Fatalf("default values must not have a file source")
	}
}

func TestLoadFromPath_IncludeMergesNestedBlocks(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, filepath.Join(dir, "log.yaml"), "frame_log:\n  enabled: true\n  max_size_mb: 4\n")

	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "include: log.yaml\nframe_log:\n  level: info\n")

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	fl := res.Config.FrameLog
	if !fl.Enabled || fl.MaxSizeMB != 4 || fl.Level != "info" {
		t.Fatalf("expected merged frame_log, got %+v", fl)
	}
}

func TestLoadFromPath_IncludeMissingPathHasContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "include:\n  - missing.yaml\n")

	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "include") || !strings.Contains(err.Error(), "missing.yaml") {
		t.Fatalf("expected include error, got %v", err)
	}
	if !strings.Contains(err.Error(), path+":") {
		t.Fatalf("expected error to include file:line:col prefix, got %v", err)
	}
}

func TestLoadFromPath_IncludeCycleDetection(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	writeConfig(t, a, "include: b.yaml\n")
	writeConfig(t, b, "include: a.yaml\n")

	_, err := LoadFromPath(a)
	if err == nil {
		t.Fatalf("expected cycle error")
	}
	if !strings.Contains(err.Error(), "include cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestLoadFromPath_ValidationErrorHasSourceContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "log_level: info\nfps_limiter: turbo\n")

	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if verr.Path != "fps_limiter" {
		t.Fatalf("expected fps_limiter path, got %q", verr.Path)
	}
	if !strings.Contains(err.Error(), path+":2:") {
		t.Fatalf("expected file:line prefix, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"negative refresh", func(c *Config) { c.RefreshRate = -1 }, "refresh_rate"},
		{"short history", func(c *Config) { c.FrameHistory = 1 }, "frame_history"},
		{"rect limit", func(c *Config) { c.Damage.RectLimit = 0 }, "damage.rect_limit"},
		{"shadow margin", func(c *Config) { c.ShadowMargin = -2 }, "shadow_margin"},
		{"frame sync", func(c *Config) { c.FrameSyncTimeoutMS = -1 }, "frame_sync_timeout_ms"},
		{"same hotkeys", func(c *Config) { c.LimiterHotkey = c.RepaintHotkey }, "limiter_hotkey"},
		{"frame log level", func(c *Config) { c.FrameLog.Level = "trace" }, "frame_log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Path != tt.path {
				t.Fatalf("path = %q, want %q", verr.Path, tt.path)
			}
		})
	}
}

func TestRefreshOverride(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.RefreshOverride(); got != 0 {
		t.Fatalf("expected detection by default, got %v", got)
	}
	cfg.DetectRefreshRate = false
	if got := cfg.RefreshOverride(); got != compositor.DefaultRefreshRate {
		t.Fatalf("expected default refresh without detection, got %v", got)
	}
	cfg.RefreshRate = 75
	if got := cfg.RefreshOverride(); got != 75 {
		t.Fatalf("expected explicit refresh, got %v", got)
	}
}

func TestGetFrameLogConfig_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := DefaultConfig()
	fl := cfg.GetFrameLogConfig()
	if fl.MaxSizeMB != 10 || fl.MaxFiles != 3 || fl.Level != "debug" {
		t.Fatalf("unexpected defaults: %+v", fl)
	}
	if !strings.HasSuffix(fl.File, filepath.Join("tilecomp", "frames.log")) {
		t.Fatalf("unexpected default file %q", fl.File)
	}
}

func TestSlogLevel(t *testing.T) {
	cfg := DefaultConfig()
	for in, want := range map[string]string{"debug": "DEBUG", "info": "INFO", "warning": "WARN", "error": "ERROR"} {
		cfg.LogLevel = in
		if got := cfg.SlogLevel().String(); got != want {
			t.Errorf("SlogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
