// Package worker runs periodic background maintenance.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/game-lobby/internal/config"
)

// RoomPruner deletes rooms nobody is in any more
type RoomPruner interface {
	PruneEmptyRooms(ctx context.Context) (int, error)
}

// Janitor periodically removes rooms left without participants. The registry never leaves a
// room empty, so this only catches rows written outside it, such as legacy or hand-edited data.
type Janitor struct {
	pruner  RoomPruner
	config  *config.JanitorConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewJanitor creates a new janitor
func NewJanitor(pruner RoomPruner, cfg *config.JanitorConfig, logger *slog.Logger) *Janitor {
	return &Janitor{
		pruner: pruner,
		config: cfg,
		logger: logger,
	}
}

// Start begins the background sweep
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})

	j.logger.Info("janitor started", "interval", j.config.Interval)

	go j.run(ctx, j.stopCh, j.doneCh)
	return nil
}

// Stop stops the background sweep and waits for a running pass to finish
func (j *Janitor) Stop() error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = false
	stopCh, doneCh := j.stopCh, j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.logger.Info("janitor stopped")
	return nil
}

// IsRunning returns whether the janitor is running
func (j *Janitor) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *Janitor) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep and returns the number of rooms removed
func (j *Janitor) RunOnce(ctx context.Context) int {
	startTime := time.Now()

	pruned, err := j.pruner.PruneEmptyRooms(ctx)
	if err != nil {
		j.logger.Error("janitor pass failed", "pruned", pruned, "error", err)
		return pruned
	}

	j.logger.Info("janitor pass completed",
		"duration", time.Since(startTime),
		"pruned", pruned,
	)
	return pruned
}
