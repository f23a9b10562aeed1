package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/arcade-backend/internal/config"
	"github.com/arcade-backend/internal/leaderboard"
	"github.com/arcade-backend/internal/postgres"
)

// RecoveryWorker repairs the materialized high-score records in the
// key-value store from the durable archive: once at startup (recovery
// after data loss) and then periodically (drift repair).
type RecoveryWorker struct {
	engine  *leaderboard.Engine
	archive *postgres.Archive
	config  *config.RecoveryConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewRecoveryWorker creates a recovery worker
func NewRecoveryWorker(
	engine *leaderboard.Engine,
	archive *postgres.Archive,
	cfg *config.RecoveryConfig,
	logger *slog.Logger,
) *RecoveryWorker {
	return &RecoveryWorker{
		engine:  engine,
		archive: archive,
		config:  cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the background repair process
func (w *RecoveryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("recovery worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background repair process
func (w *RecoveryWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("recovery worker stopped")
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *RecoveryWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// run is the main worker loop
func (w *RecoveryWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.repairAll(ctx)
		}
	}
}

// RepairAll runs a single repair cycle over every configured game
func (w *RecoveryWorker) RepairAll(ctx context.Context) {
	w.repairAll(ctx)
}

func (w *RecoveryWorker) repairAll(ctx context.Context) {
	w.logger.Info("starting high score repair cycle")
	startTime := time.Now()

	repaired := 0
	errorCount := 0
	for _, game := range w.engine.Games() {
		if err := w.repairGame(ctx, game); err != nil {
			w.logger.Error("failed to repair high score",
				"game", game,
				"error", err,
			)
			errorCount++
		} else {
			repaired++
		}
	}

	w.logger.Info("high score repair cycle completed",
		"duration", time.Since(startTime),
		"repaired", repaired,
		"errors", errorCount,
	)
}

// repairGame reinstalls the archived maximum for one game. RestoreTop
// only ever raises the materialized record, so a fresher in-store high
// score is never overwritten by a stale archive read.
func (w *RecoveryWorker) repairGame(ctx context.Context, game string) error {
	top, err := w.archive.TopScore(ctx, game)
	if err != nil {
		return err
	}
	if top == nil {
		w.logger.Debug("no archived scores for game", "game", game)
		return nil
	}

	if err := w.engine.RestoreTop(ctx, game, *top); err != nil {
		return err
	}

	count, err := w.archive.ScoreEventCount(ctx, game)
	if err != nil {
		return err
	}
	w.logger.Debug("repaired high score from archive",
		"game", game,
		"top_score", top.Score,
		"archived_events", count,
	)
	return nil
}
