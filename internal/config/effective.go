package config

import (
	"fmt"
)

type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// BuildEffectiveConfig applies raw settings over the defaults.
func BuildEffectiveConfig(raw RawConfig) (*Config, error) {
	cfg := DefaultConfig()

	if raw.Display != nil {
		cfg.Display = *raw.Display
	}
	if raw.XAuthority != nil {
		cfg.XAuthority = *raw.XAuthority
	}
	if raw.LogLevel != nil {
		cfg.LogLevel = *raw.LogLevel
	}
	if raw.LogFile != nil {
		cfg.LogFile = *raw.LogFile
	}
	if raw.RefreshRate != nil {
		cfg.RefreshRate = *raw.RefreshRate
	}
	if raw.DetectRefreshRate != nil {
		cfg.DetectRefreshRate = *raw.DetectRefreshRate
	}
	if raw.FPSLimiter != nil {
		cfg.FPSLimiter = *raw.FPSLimiter
	}
	if raw.ForceIndependentOutputPainting != nil {
		cfg.ForceIndependentOutputPainting = *raw.ForceIndependentOutputPainting
	}
	if raw.UnredirectFullscreenWindows != nil {
		cfg.UnredirectFullscreenWindows = *raw.UnredirectFullscreenWindows
	}
	if raw.FrameHistory != nil {
		cfg.FrameHistory = *raw.FrameHistory
	}
	if raw.Damage != nil {
		cfg.Damage.RectLimit = derefInt(raw.Damage.RectLimit, cfg.Damage.RectLimit)
	}
	if raw.ShadowMargin != nil {
		cfg.ShadowMargin = *raw.ShadowMargin
	}
	if raw.FrameSyncTimeoutMS != nil {
		cfg.FrameSyncTimeoutMS = *raw.FrameSyncTimeoutMS
	}
	if raw.ReconcileIntervalMS != nil {
		cfg.ReconcileIntervalMS = *raw.ReconcileIntervalMS
	}
	if raw.ReplaceExisting != nil {
		cfg.ReplaceExisting = *raw.ReplaceExisting
	}
	if raw.RepaintHotkey != nil {
		cfg.RepaintHotkey = *raw.RepaintHotkey
	}
	if raw.LimiterHotkey != nil {
		cfg.LimiterHotkey = *raw.LimiterHotkey
	}

	if raw.FrameLog != nil {
		if raw.FrameLog.Enabled != nil {
			cfg.FrameLog.Enabled = *raw.FrameLog.Enabled
		}
		if raw.FrameLog.Level != nil {
			cfg.FrameLog.Level = *raw.FrameLog.Level
		}
		if raw.FrameLog.File != nil {
			cfg.FrameLog.File = *raw.FrameLog.File
		}
		cfg.FrameLog.MaxSizeMB = derefInt(raw.FrameLog.MaxSizeMB, cfg.FrameLog.MaxSizeMB)
		cfg.FrameLog.MaxFiles = derefInt(raw.FrameLog.MaxFiles, cfg.FrameLog.MaxFiles)
	}

	return cfg, nil
}

func derefInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
