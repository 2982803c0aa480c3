package storage

import (
	"context"
	"time"

	"github.com/tenup/docgate/internal/log"
)

// CleanupManager periodically prunes members who have not signed in within
// the retention period
type CleanupManager struct {
	storage   Storage
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(storage Storage, interval, retention time.Duration) *CleanupManager {
	return &CleanupManager{
		storage:   storage,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start begins the cleanup loop in a goroutine
func (cm *CleanupManager) Start(ctx context.Context) {
	log.LogInfoWithFields("cleanup", "Starting member cleanup manager", map[string]any{
		"interval":  cm.interval.String(),
		"retention": cm.retention.String(),
	})

	go cm.run(ctx)
}

// Stop gracefully stops the cleanup loop
func (cm *CleanupManager) Stop() {
	log.Logf("Stopping member cleanup manager...")
	close(cm.stopChan)
	<-cm.doneChan // Wait for cleanup loop to finish
	log.Logf("Member cleanup manager stopped")
}

// run is the main cleanup loop
func (cm *CleanupManager) run(ctx context.Context) {
	defer close(cm.doneChan)

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run cleanup immediately on start
	cm.cleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.cleanup(ctx)
		case <-cm.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// cleanup performs the actual cleanup operation
func (cm *CleanupManager) cleanup(ctx context.Context) {
	count, err := cm.storage.PruneMembers(ctx, cm.now().Add(-cm.retention))
	if err != nil {
		log.LogErrorWithFields("cleanup", "Failed to prune members", map[string]any{
			"error": err.Error(),
		})
		return
	}

	if count > 0 {
		log.LogInfoWithFields("cleanup", "Pruned inactive members", map[string]any{
			"count": count,
		})
	}
}
