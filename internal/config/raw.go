package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// IncludeList supports either:
//
//	include: "/path/to/file.yaml"
//
// or:
//
//	include:
//	  - "/path/to/file.yaml"
//	  - "/path/to/dir"
type IncludeList []string

func (l *IncludeList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case 0:
		// Not present.
		*l = nil
		return nil
	case yaml.ScalarNode:
		if value.Tag != "!!str" {
			return fmt.Errorf("include must be a string or list of strings")
		}
		*l = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return fmt.Errorf("include entries must be strings")
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("include must be a string or list of strings")
	}
}

type RawDamageConfig struct {
	RectLimit *int `yaml:"rect_limit"`
}

type RawFrameLogConfig struct {
	Enabled   *bool   `yaml:"enabled"`
	Level     *string `yaml:"level"`
	File      *string `yaml:"file"`
	MaxSizeMB *int    `yaml:"max_size_mb"`
	MaxFiles  *int    `yaml:"max_files"`
}

type RawConfig struct {
	Include    IncludeList `yaml:"include"`
	Display    *string     `yaml:"display"`
	XAuthority *string     `yaml:"xauthority"`
	LogLevel   *string     `yaml:"log_level"`
	LogFile    *string     `yaml:"log_file"`

	RefreshRate       *float64 `yaml:"refresh_rate"`
	DetectRefreshRate *bool    `yaml:"detect_refresh_rate"`
	FPSLimiter        *string  `yaml:"fps_limiter"`

	ForceIndependentOutputPainting *bool            `yaml:"force_independent_output_painting"`
	UnredirectFullscreenWindows    *bool            `yaml:"unredirect_fullscreen_windows"`
	FrameHistory                   *int             `yaml:"frame_history"`
	Damage                         *RawDamageConfig `yaml:"damage"`
	ShadowMargin                   *int             `yaml:"shadow_margin"`
	FrameSyncTimeoutMS             *int             `yaml:"frame_sync_timeout_ms"`
	ReconcileIntervalMS            *int             `yaml:"reconcile_interval_ms"`
	ReplaceExisting                *bool            `yaml:"replace_existing"`

	RepaintHotkey *string `yaml:"repaint_hotkey"`
	LimiterHotkey *string `yaml:"limiter_hotkey"`

	FrameLog *RawFrameLogConfig `yaml:"frame_log"`
}

func (c RawConfig) merge(overlay RawConfig) RawConfig {
	out := c

	if overlay.Display != nil {
		out.Display = overlay.Display
	}
	if overlay.XAuthority != nil {
		out.XAuthority = overlay.XAuthority
	}
	if overlay.LogLevel != nil {
		out.LogLevel = overlay.LogLevel
	}
	if overlay.LogFile != nil {
		out.LogFile = overlay.LogFile
	}
	if overlay.RefreshRate != nil {
		out.RefreshRate = overlay.RefreshRate
	}
	if overlay.DetectRefreshRate != nil {
		out.DetectRefreshRate = overlay.DetectRefreshRate
	}
	if overlay.FPSLimiter != nil {
		out.FPSLimiter = overlay.FPSLimiter
	}
	if overlay.ForceIndependentOutputPainting != nil {
		out.ForceIndependentOutputPainting = overlay.ForceIndependentOutputPainting
	}
	if overlay.UnredirectFullscreenWindows != nil {
		out.UnredirectFullscreenWindows = overlay.UnredirectFullscreenWindows
	}
	if overlay.FrameHistory != nil {
		out.FrameHistory = overlay.FrameHistory
	}
	if overlay.Damage != nil {
		if out.Damage == nil {
			out.Damage = &RawDamageConfig{}
		}
		if overlay.Damage.RectLimit != nil {
			out.Damage.RectLimit = overlay.Damage.RectLimit
		}
	}
	if overlay.ShadowMargin != nil {
		out.ShadowMargin = overlay.ShadowMargin
	}
	if overlay.FrameSyncTimeoutMS != nil {
		out.FrameSyncTimeoutMS = overlay.FrameSyncTimeoutMS
	}
	if overlay.ReconcileIntervalMS != nil {
		out.ReconcileIntervalMS = overlay.ReconcileIntervalMS
	}
	if overlay.ReplaceExisting != nil {
		out.ReplaceExisting = overlay.ReplaceExisting
	}
	if overlay.RepaintHotkey != nil {
		out.RepaintHotkey = overlay.RepaintHotkey
	}
	if overlay.LimiterHotkey != nil {
		out.LimiterHotkey = overlay.LimiterHotkey
	}

	if overlay.FrameLog != nil {
		if out.FrameLog == nil {
			out.FrameLog = &RawFrameLogConfig{}
		}
		merged := mergeRawFrameLog(*out.FrameLog, *overlay.FrameLog)
		out.FrameLog = &merged
	}

	return out
}

func mergeRawFrameLog(base RawFrameLogConfig, overlay RawFrameLogConfig) RawFrameLogConfig {
	out := base
	if overlay.Enabled != nil {
		out.Enabled = overlay.Enabled
	}
	if overlay.Level != nil {
		out.Level = overlay.Level
	}
	if overlay.File != nil {
		out.File = overlay.File
	}
	if overlay.MaxSizeMB != nil {
		out.MaxSizeMB = overlay.MaxSizeMB
	}
	if overlay.MaxFiles != nil {
		out.MaxFiles = overlay.MaxFiles
	}
	return out
}
