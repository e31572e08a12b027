package counter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/FactFox/app/models"
	"github.com/ManuelReschke/FactFox/internal/pkg/cache"
	"github.com/ManuelReschke/FactFox/internal/pkg/database"
)

const factCheckCountersKey = "factcheck:counters"

const (
	kindSubmitted = "submitted"
	kindCompleted = "completed"
	kindFailed    = "failed"
)

// AddSubmitted increments the pending submission counter for today in Redis
func AddSubmitted() {
	increment(kindSubmitted)
}

// AddCompleted increments the pending completion counter for today in Redis
func AddCompleted() {
	increment(kindCompleted)
}

// AddFailed increments the pending failure counter for today in Redis
func AddFailed() {
	increment(kindFailed)
}

// increment is best-effort; losing a counter tick never affects the pipeline
func increment(kind string) {
	ctx := context.Background()
	field := models.QuotaDay(time.Now()) + ":" + kind
	if err := cache.GetClient().HIncrBy(ctx, factCheckCountersKey, field, 1).Err(); err != nil {
		log.Debugf("[Counter] Failed to increment %s: %v", field, err)
	}
}

// FlushAll drains the pending counters from Redis and applies them as
// batched increments to the fact_check_stats table. Uses RENAME to a
// temporary key for an atomic drain without losing in-flight increments.
func FlushAll() error {
	ctx := context.Background()
	rdb := cache.GetClient()

	tmpKey := fmt.Sprintf("%s:tmp:%d", factCheckCountersKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", factCheckCountersKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") || err.Error() == "redis: nil" {
			return nil
		}
		return err
	}

	// Ensure cleanup of tmpKey even if later steps fail
	defer rdb.Del(ctx, tmpKey)

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	type dayCounts struct {
		submitted int64
		completed int64
		failed    int64
	}
	byDay := make(map[string]*dayCounts)
	for field, raw := range data {
		day, kind, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		n, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil || n == 0 {
			continue
		}
		counts, exists := byDay[day]
		if !exists {
			counts = &dayCounts{}
			byDay[day] = counts
		}
		switch kind {
		case kindSubmitted:
			counts.submitted += n
		case kindCompleted:
			counts.completed += n
		case kindFailed:
			counts.failed += n
		}
	}

	db := database.GetDB()
	if db == nil {
		return fmt.Errorf("database unavailable")
	}

	for day, counts := range byDay {
		row := models.FactCheckStats{
			Date:      day,
			Submitted: counts.submitted,
			Completed: counts.completed,
			Failed:    counts.failed,
		}
		err := db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "date"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"submitted": gorm.Expr("submitted + ?", counts.submitted),
				"completed": gorm.Expr("completed + ?", counts.completed),
				"failed":    gorm.Expr("failed + ?", counts.failed),
			}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("failed to flush counters for %s: %w", day, err)
		}
	}

	return nil
}
