package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/1broseidon/tilecomp/internal/compositor"
)

// WindowLister returns the current top-level windows, bottom to top.
type WindowLister func() ([]compositor.WindowID, error)

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Reconciler periodically checks the tracked window stack for drift caused
// by missed notifications and corrects it.
type Reconciler struct {
	interval    time.Duration
	sync        *StateSynchronizer
	listWindows WindowLister
	post        func(func())
	logger      *slog.Logger
}

// NewReconciler creates a new reconciler. post runs a function on the event
// loop; the window listing happens on the reconciler goroutine.
func NewReconciler(cfg ReconcilerConfig, sync *StateSynchronizer, listWindows WindowLister, post func(func())) *Reconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		interval:    interval,
		sync:        sync,
		listWindows: listWindows,
		post:        post,
		logger:      logger,
	}
}

// Run starts the reconciliation loop. Blocks until context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			actual, err := r.listWindows()
			if err != nil {
				r.logger.Error("reconciler: failed to list windows", "error", err)
				continue
			}
			r.post(func() { r.reconcile(actual) })
		}
	}
}

// reconcile performs a single reconciliation pass on the event loop.
func (r *Reconciler) reconcile(actual []compositor.WindowID) {
	// Recover from panics to prevent crashing the daemon
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("reconciler panic recovered", "error", err)
		}
	}()

	added, removed := r.sync.Reconcile(actual)
	if added > 0 || removed > 0 {
		r.logger.Info("reconciler: window drift corrected", "added", added, "removed", removed)
	}
}

// ReconcileNow lists windows and reconciles immediately. It must be called
// on the event loop.
func (r *Reconciler) ReconcileNow() error {
	actual, err := r.listWindows()
	if err != nil {
		return err
	}
	r.reconcile(actual)
	return nil
}
