package jobs

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"docutrack/internal/services"
)

// RollupRebuildJob recomputes the daily_stats rollups from the raw event
// log every night. The nightly pass replaces the approximate distinct
// counts accumulated incrementally during the day with exact values.
type RollupRebuildJob struct {
	rollups *services.RollupService
	redis   *services.RedisService

	// days of history to recompute each run
	days       int
	instanceID string
}

// RollupRebuildCron fires daily at 02:10 UTC, after the busiest ingest
// hours in every deployment region.
const RollupRebuildCron = "10 2 * * *"

const rebuildLockKey = "lock:rollup:rebuild"

// NewRollupRebuildJob creates the nightly rebuild job
func NewRollupRebuildJob(rollups *services.RollupService, redis *services.RedisService, days int) *RollupRebuildJob {
	if days <= 0 {
		days = 7
	}
	return &RollupRebuildJob{
		rollups:    rollups,
		redis:      redis,
		days:       days,
		instanceID: uuid.New().String(),
	}
}

// Run executes one rebuild pass. When Redis is available a distributed
// lock ensures only one instance rebuilds per night.
func (j *RollupRebuildJob) Run(ctx context.Context) {
	if j.rollups == nil {
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	if j.redis != nil {
		acquired, err := j.redis.AcquireLock(runCtx, rebuildLockKey, j.instanceID, 15*time.Minute)
		if err != nil {
			log.Printf("⚠️  [ROLLUP] Lock check failed, skipping rebuild: %v", err)
			return
		}
		if !acquired {
			log.Println("⏭️  [ROLLUP] Another instance holds the rebuild lock, skipping")
			return
		}
		defer func() {
			if _, err := j.redis.ReleaseLock(context.Background(), rebuildLockKey, j.instanceID); err != nil {
				log.Printf("⚠️  [ROLLUP] Failed to release rebuild lock: %v", err)
			}
		}()
	}

	start := time.Now()
	if err := j.rollups.RebuildDailyStats(runCtx, j.days); err != nil {
		log.Printf("❌ [ROLLUP] Nightly rebuild failed: %v", err)
		return
	}
	log.Printf("✅ [ROLLUP] Nightly rebuild finished in %v", time.Since(start))
}
