package config

import (
	"fmt"
	"strings"
)

// Explain returns the effective value at the given YAML-like path and its source.
//
// Supported paths include:
//
//	display
//	log_level
//	refresh_rate
//	fps_limiter
//	frame_history
//	damage.rect_limit
//	frame_sync_timeout_ms
//	repaint_hotkey
//	frame_log.max_size_mb
func Explain(res *LoadResult, path string) (any, Source, error) {
	if res == nil || res.Config == nil {
		return nil, Source{}, fmt.Errorf("no config loaded")
	}
	if path == "" {
		return nil, Source{}, fmt.Errorf("path is empty")
	}

	value, err := lookupValue(res.Config, path)
	if err != nil {
		return nil, Source{}, err
	}

	// Exact-path file source wins.
	if src, ok := res.Sources[path]; ok {
		return value, src, nil
	}

	return value, Source{Kind: SourceDefault, Name: "defaults"}, nil
}

func lookupValue(cfg *Config, path string) (any, error) {
	parts := strings.Split(path, ".")
	if len(parts) == 1 {
		if v, ok := scalarValue(cfg, parts[0]); ok {
			return v, nil
		}
	}

	switch parts[0] {
	case "damage":
		if len(parts) == 1 {
			return cfg.Damage, nil
		}
		if len(parts) == 2 && parts[1] == "rect_limit" {
			return cfg.Damage.RectLimit, nil
		}
	case "frame_log":
		if len(parts) == 1 {
			return cfg.FrameLog, nil
		}
		if len(parts) != 2 {
			break
		}
		switch parts[1] {
		case "enabled":
			return cfg.FrameLog.Enabled, nil
		case "level":
			return cfg.FrameLog.Level, nil
		case "file":
			return cfg.FrameLog.File, nil
		case "max_size_mb":
			return cfg.FrameLog.MaxSizeMB, nil
		case "max_files":
			return cfg.FrameLog.MaxFiles, nil
		}
	}
	return nil, fmt.Errorf("unknown path: %s", path)
}

func scalarValue(cfg *Config, key string) (any, bool) {
	switch key {
	case "display":
		return cfg.Display, true
	case "xauthority":
		return cfg.XAuthority, true
	case "log_level":
		return cfg.LogLevel, true
	case "log_file":
		return cfg.LogFile, true
	case "refresh_rate":
		return cfg.RefreshRate, true
	case "detect_refresh_rate":
		return cfg.DetectRefreshRate, true
	case "fps_limiter":
		return cfg.FPSLimiter, true
	case "force_independent_output_painting":
		return cfg.ForceIndependentOutputPainting, true
	case "unredirect_fullscreen_windows":
		return cfg.UnredirectFullscreenWindows, true
	case "frame_history":
		return cfg.FrameHistory, true
	case "shadow_margin":
		return cfg.ShadowMargin, true
	case "frame_sync_timeout_ms":
		return cfg.FrameSyncTimeoutMS, true
	case "reconcile_interval_ms":
		return cfg.ReconcileIntervalMS, true
	case "replace_existing":
		return cfg.ReplaceExisting, true
	case "repaint_hotkey":
		return cfg.RepaintHotkey, true
	case "limiter_hotkey":
		return cfg.LimiterHotkey, true
	default:
		return nil, false
	}
}
