// Package framelog writes a size-rotated trace of paint cycles and
// compositor events.
package framelog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/1broseidon/tilecomp/internal/region"
)

// LogLevel defines the logging verbosity.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// EventType represents the kind of compositor event being logged.
type EventType string

const (
	EventFrame         EventType = "FRAME"
	EventActivate      EventType = "ACTIVATE"
	EventTeardown      EventType = "TEARDOWN"
	EventOutputChange  EventType = "OUTPUT-CHANGE"
	EventLimiter       EventType = "LIMITER"
	EventUnredirect    EventType = "UNREDIRECT"
	EventRedirect      EventType = "REDIRECT"
	EventSelectionLost EventType = "SELECTION-LOST"
)

// eventLevel returns the log level for an event type.
func eventLevel(event EventType) LogLevel {
	switch event {
	case EventFrame:
		return LevelDebug
	case EventSelectionLost:
		return LevelWarn
	default:
		return LevelInfo
	}
}

// LogConfig holds configuration for the frame logger.
type LogConfig struct {
	Enabled   bool
	Level     LogLevel
	FilePath  string
	MaxSizeMB int
	MaxFiles  int
}

// Logger handles frame trace logging with file rotation. It is also a
// paint participant and a damage observer, so it can be registered with a
// compositing session directly.
type Logger struct {
	mu          sync.Mutex
	file        *os.File
	config      LogConfig
	currentSize int64
	now         func() time.Time

	// Per-frame bookkeeping, touched only from the paint loop.
	frame       uint64
	paintStart  time.Time
	elapsed     time.Duration
	damageRects int
	damageArea  int
}

// NewLogger creates a new logger with the given configuration.
func NewLogger(cfg LogConfig) (*Logger, error) {
	if !cfg.Enabled {
		return &Logger{config: cfg, now: time.Now}, nil
	}

	// Ensure directory exists
	dir := filepath.Dir(cfg.FilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", cfg.FilePath, err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	return &Logger{
		file:        f,
		config:      cfg,
		currentSize: stat.Size(),
		now:         time.Now,
	}, nil
}

// Log records an event to the log file.
func (l *Logger) Log(event EventType, details map[string]interface{}) {
	if l == nil || !l.config.Enabled {
		return
	}

	if eventLevel(event) < l.config.Level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return
	}

	maxBytes := int64(l.config.MaxSizeMB) * 1024 * 1024
	if maxBytes > 0 && l.currentSize >= maxBytes {
		if err := l.rotate(); err != nil {
			// Log rotation failed, but continue logging
			fmt.Fprintf(os.Stderr, "frame log rotation failed: %v\n", err)
		}
		if l.file == nil {
			return
		}
	}

	var sb strings.Builder
	sb.WriteString(l.now().Format("2006-01-02 15:04:05.000"))
	sb.WriteString(" [")
	sb.WriteString(string(event))
	sb.WriteString("]")

	// Add details in sorted order for consistent output
	if len(details) > 0 {
		keys := make([]string, 0, len(details))
		for k := range details {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			switch val := details[k].(type) {
			case string:
				sb.WriteString(fmt.Sprintf(" %s=%q", k, val))
			case time.Duration:
				sb.WriteString(fmt.Sprintf(" %s=%.3fms", k, float64(val)/float64(time.Millisecond)))
			default:
				sb.WriteString(fmt.Sprintf(" %s=%v", k, val))
			}
		}
	}

	sb.WriteString("\n")
	n, err := l.file.WriteString(sb.String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to write frame log entry: %v\n", err)
		return
	}
	l.currentSize += int64(n)
}

// ObserveDamage counts damage reported while a frame is being built.
func (l *Logger) ObserveDamage(r region.Region) {
	if l == nil {
		return
	}
	l.damageRects += r.NumRects()
	l.damageArea += r.Area()
}

// PreparePaint marks the start of a paint cycle.
func (l *Logger) PreparePaint(elapsed time.Duration) {
	if l == nil {
		return
	}
	l.elapsed = elapsed
	l.paintStart = l.now()
}

// DonePaint logs the finished paint cycle.
func (l *Logger) DonePaint() {
	if l == nil {
		return
	}
	l.frame++
	l.Log(EventFrame, map[string]interface{}{
		"frame":        l.frame,
		"since_last":   l.elapsed,
		"paint":        l.now().Sub(l.paintStart),
		"damage_rects": l.damageRects,
		"damage_area":  l.damageArea,
	})
	l.damageRects = 0
	l.damageArea = 0
}

// Close closes the logger and releases resources.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// rotate performs log file rotation.
func (l *Logger) rotate() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	// frames.log.1 -> frames.log.2 and so on; the oldest is removed.
	basePath := l.config.FilePath
	for i := l.config.MaxFiles; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", basePath, i)
		newPath := fmt.Sprintf("%s.%d", basePath, i+1)
		if i == l.config.MaxFiles {
			os.Remove(oldPath)
		} else {
			os.Rename(oldPath, newPath)
		}
	}

	if err := os.Rename(basePath, basePath+".1"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	f, err := os.OpenFile(basePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open new log file: %w", err)
	}

	l.file = f
	l.currentSize = 0
	return nil
}

// ParseLogLevel converts a string to LogLevel.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}
