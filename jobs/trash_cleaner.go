package jobs

import (
	"context"
	"log"
	"time"

	"github.com/fyerfyer/fyer-drive-sub000/services"
)

// TrashCleaner periodically purges trash entries older than the retention
// window through the batch delete path, so quota accounting and object
// cleanup match a user-issued permanent delete.
type TrashCleaner struct {
	batchService *services.BatchService
	interval     time.Duration
	logger       *log.Logger
}

func NewTrashCleaner(batchService *services.BatchService, interval time.Duration) *TrashCleaner {
	return &TrashCleaner{
		batchService: batchService,
		interval:     interval,
		logger:       log.New(log.Writer(), "[TRASH_CLEANER] ", log.LstdFlags),
	}
}

// Start runs cleanup immediately and then on every tick until ctx is done.
func (tc *TrashCleaner) Start(ctx context.Context) {
	tc.logger.Println("Starting trash cleaner job...")

	tc.runCleanup(ctx)

	ticker := time.NewTicker(tc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			tc.logger.Println("Trash cleaner stopped")
			return
		case <-ticker.C:
			tc.runCleanup(ctx)
		}
	}
}

func (tc *TrashCleaner) runCleanup(ctx context.Context) {
	tc.logger.Println("Running trash cleanup...")

	runCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	purged, err := tc.batchService.PurgeExpired(runCtx)
	if err != nil {
		tc.logger.Printf("Error purging expired trash: %v", err)
	}
	tc.logger.Printf("Trash cleanup completed. Items purged: %d", purged)
}
