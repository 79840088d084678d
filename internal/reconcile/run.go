package reconcile

import (
	"context"
	"errors"
	"time"
)

// Run drives the loop until ctx is cancelled. While the feed reports a
// backlog, passes run back to back; otherwise the loop waits one poll
// interval. A resync runs at start and every ResyncInterval when enabled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	var resyncC <-chan time.Time
	if l.config.ResyncInterval > 0 {
		resync := time.NewTicker(l.config.ResyncInterval)
		defer resync.Stop()
		resyncC = resync.C
		l.resync(ctx)
	}

	l.logger.Info("reconcile loop started", "poll", l.config.PollInterval, "resync", l.config.ResyncInterval, "workers", l.config.Workers)
	for {
		l.drainPending(ctx)

		select {
		case <-ctx.Done():
			l.logger.Info("reconcile loop stopping")
			return ctx.Err()
		case <-ticker.C:
		case <-resyncC:
			l.resync(ctx)
		}
	}
}

// drainPending runs batches while the feed has a backlog.
func (l *Loop) drainPending(ctx context.Context) {
	if l.feed == nil {
		return
	}
	for ctx.Err() == nil {
		pending, err := l.feed.HasPending(ctx)
		if err != nil {
			l.logger.Error("checking change feed", "error", err)
			return
		}
		if !pending {
			return
		}
		if _, err := l.ReconcileBatch(ctx); err != nil {
			if !errors.Is(err, ErrPassInProgress) && ctx.Err() == nil {
				l.logger.Error("reconcile batch failed", "error", err)
			}
			return
		}
	}
}

func (l *Loop) resync(ctx context.Context) {
	if _, err := l.Resync(ctx); err != nil && !errors.Is(err, ErrPassInProgress) && ctx.Err() == nil {
		l.logger.Error("resync failed", "error", err)
	}
}

// Start runs the loop in the background.
func (l *Loop) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		_ = l.Run(ctx)
	}()
}

// Stop cancels the loop and waits for the in-flight pass to finish, or for
// ctx to expire.
func (l *Loop) Stop(ctx context.Context) {
	if l.cancel != nil {
		l.cancel()
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.logger.Info("reconcile loop stopped")
	case <-ctx.Done():
		l.logger.Warn("reconcile loop stop timed out")
	}
}
