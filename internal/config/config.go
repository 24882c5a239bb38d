package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/1broseidon/tilecomp/internal/compositor"
	"github.com/1broseidon/tilecomp/internal/runtimepath"
)

const (
	DefaultFrameSyncTimeoutMS = 100
	DefaultShadowMargin       = 0
	DefaultReconcileMS        = 2000

	maxRefreshRate  = 1000
	maxFrameHistory = 64
	maxShadowMargin = 256
)

// DamageConfig tunes damage accumulation.
type DamageConfig struct {
	// RectLimit is the rectangle count above which damage escalates to the full screen.
	RectLimit int `yaml:"rect_limit"`
}

// FrameLogConfig configures the frame timing trace.
type FrameLogConfig struct {
	// Enabled turns the frame trace on/off
	Enabled bool `yaml:"enabled,omitempty"`
	// Level controls verbosity: debug logs every frame, info only events
	Level string `yaml:"level,omitempty"`
	// File is the log file path (default: ~/.local/share/tilecomp/frames.log)
	File string `yaml:"file,omitempty"`
	// MaxSizeMB is the maximum log file size before rotation (default: 10)
	MaxSizeMB int `yaml:"max_size_mb,omitempty"`
	// MaxFiles is the number of rotated files to keep (default: 3)
	MaxFiles int `yaml:"max_files,omitempty"`
}

// Config holds the application configuration.
type Config struct {
	Display    string `yaml:"display,omitempty"`
	XAuthority string `yaml:"xauthority,omitempty"`
	LogLevel   string `yaml:"log_level"`
	LogFile    string `yaml:"log_file,omitempty"`

	// RefreshRate overrides the detected refresh rate when positive.
	RefreshRate       float64 `yaml:"refresh_rate"`
	DetectRefreshRate bool    `yaml:"detect_refresh_rate"`
	FPSLimiter        string  `yaml:"fps_limiter"`

	ForceIndependentOutputPainting bool         `yaml:"force_independent_output_painting"`
	UnredirectFullscreenWindows    bool         `yaml:"unredirect_fullscreen_windows"`
	FrameHistory                   int          `yaml:"frame_history"`
	Damage                         DamageConfig `yaml:"damage"`
	ShadowMargin                   int          `yaml:"shadow_margin"`
	FrameSyncTimeoutMS             int          `yaml:"frame_sync_timeout_ms"`
	ReconcileIntervalMS            int          `yaml:"reconcile_interval_ms"`
	ReplaceExisting                bool         `yaml:"replace_existing"`

	RepaintHotkey string `yaml:"repaint_hotkey"`
	LimiterHotkey string `yaml:"limiter_hotkey"`

	FrameLog FrameLogConfig `yaml:"frame_log,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:            "info",
		DetectRefreshRate:   true,
		FPSLimiter:          "adaptive",
		FrameHistory:        compositor.DefaultFrameHistory,
		Damage:              DamageConfig{RectLimit: compositor.DefaultRectLimit},
		ShadowMargin:        DefaultShadowMargin,
		FrameSyncTimeoutMS:  DefaultFrameSyncTimeoutMS,
		ReconcileIntervalMS: DefaultReconcileMS,
		RepaintHotkey:       "Mod4-Mod1-r", // Super+Alt+R for "repaint"
		LimiterHotkey:       "Mod4-Mod1-f", // Super+Alt+F for "fps limiter"
	}
}

// Limiter returns the parsed fps_limiter mode.
func (c *Config) Limiter() compositor.LimiterMode {
	mode, err := compositor.ParseLimiterMode(c.FPSLimiter)
	if err != nil {
		return compositor.LimiterAdaptive
	}
	return mode
}

// RefreshOverride returns the refresh rate the session should use instead
// of detection, or 0 to detect.
func (c *Config) RefreshOverride() float64 {
	if c.RefreshRate > 0 {
		return c.RefreshRate
	}
	if !c.DetectRefreshRate {
		return compositor.DefaultRefreshRate
	}
	return 0
}

// FrameSyncTimeout returns frame_sync_timeout_ms as a duration.
func (c *Config) FrameSyncTimeout() time.Duration {
	return time.Duration(c.FrameSyncTimeoutMS) * time.Millisecond
}

// ReconcileInterval returns reconcile_interval_ms as a duration.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalMS) * time.Millisecond
}

// SlogLevel maps log_level onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Tuning returns the options that a reload can apply to a live session.
func (c *Config) Tuning() compositor.Tuning {
	return compositor.Tuning{
		Limiter:                 c.Limiter(),
		RefreshRate:             c.RefreshOverride(),
		ForceIndependentOutputs: c.ForceIndependentOutputPainting,
		UnredirectFullscreen:    c.UnredirectFullscreenWindows,
		RectLimit:               c.Damage.RectLimit,
	}
}

// GetFrameLogConfig returns the frame log configuration with defaults applied.
func (c *Config) GetFrameLogConfig() FrameLogConfig {
	if c == nil {
		return FrameLogConfig{}
	}
	cfg := c.FrameLog
	if cfg.File == "" {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			home = os.Getenv("HOME")
		}
		if home != "" {
			cfg.File = filepath.Join(home, ".local/share/tilecomp/frames.log")
		} else if fallback, err := runtimepath.FrameLogFallbackPath(); err == nil {
			cfg.File = fallback
		} else {
			cfg.File = "frames.log"
		}
	}
	if cfg.MaxSizeMB == 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxFiles == 0 {
		cfg.MaxFiles = 3
	}
	if cfg.Level == "" {
		cfg.Level = "debug"
	}
	return cfg
}

// Validate performs strict validation of the effective configuration.
func (c *Config) Validate() error {
	if c.LogLevel != "debug" && c.LogLevel != "info" && c.LogLevel != "warning" && c.LogLevel != "error" {
		return &ValidationError{Path: "log_level", Err: fmt.Errorf("log_level must be one of: debug, info, warning, error")}
	}
	if _, err := compositor.ParseLimiterMode(c.FPSLimiter); err != nil {
		return &ValidationError{Path: "fps_limiter", Err: fmt.Errorf("fps_limiter must be one of: adaptive, vsync, disabled")}
	}
	if c.RefreshRate < 0 || c.RefreshRate > maxRefreshRate {
		return &ValidationError{Path: "refresh_rate", Err: fmt.Errorf("refresh_rate must be between 0 and %d", maxRefreshRate)}
	}
	if c.FrameHistory < 2 || c.FrameHistory > maxFrameHistory {
		return &ValidationError{Path: "frame_history", Err: fmt.Errorf("frame_history must be between 2 and %d", maxFrameHistory)}
	}
	if c.Damage.RectLimit < 1 {
		return &ValidationError{Path: "damage.rect_limit", Err: fmt.Errorf("rect_limit must be >= 1")}
	}
	if c.ShadowMargin < 0 || c.ShadowMargin > maxShadowMargin {
		return &ValidationError{Path: "shadow_margin", Err: fmt.Errorf("shadow_margin must be between 0 and %d", maxShadowMargin)}
	}
	if c.FrameSyncTimeoutMS < 0 {
		return &ValidationError{Path: "frame_sync_timeout_ms", Err: fmt.Errorf("frame_sync_timeout_ms must be >= 0")}
	}
	if c.ReconcileIntervalMS < 0 {
		return &ValidationError{Path: "reconcile_interval_ms", Err: fmt.Errorf("reconcile_interval_ms must be >= 0")}
	}
	if c.RepaintHotkey != "" && c.RepaintHotkey == c.LimiterHotkey {
		return &ValidationError{Path: "limiter_hotkey", Err: fmt.Errorf("limiter_hotkey must differ from repaint_hotkey")}
	}
	switch strings.ToLower(c.FrameLog.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return &ValidationError{Path: "frame_log.level", Err: fmt.Errorf("level must be one of: debug, info, warn, error")}
	}
	if c.FrameLog.MaxSizeMB < 0 {
		return &ValidationError{Path: "frame_log.max_size_mb", Err: fmt.Errorf("max_size_mb must be >= 0")}
	}
	if c.FrameLog.MaxFiles < 0 {
		return &ValidationError{Path: "frame_log.max_files", Err: fmt.Errorf("max_files must be >= 0")}
	}

	if warnings := c.validationWarnings(); len(warnings) > 0 {
		for _, w := range warnings {
			fmt.Fprintln(os.Stderr, "warning:", w)
		}
	}

	return nil
}

func (c *Config) validationWarnings() []string {
	if c == nil {
		return nil
	}

	var warnings []string

	if c.RefreshRate > 0 && c.DetectRefreshRate {
		warnings = append(warnings, fmt.Sprintf("refresh_rate %.2f overrides detect_refresh_rate", c.RefreshRate))
	}
	if c.FrameSyncTimeoutMS == 0 {
		warnings = append(warnings, fmt.Sprintf("frame_sync_timeout_ms is 0; using %dms", DefaultFrameSyncTimeoutMS))
	}

	return warnings
}
