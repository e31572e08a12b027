package counter

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ManuelReschke/FactFox/app/models"
	"github.com/ManuelReschke/FactFox/internal/pkg/cache"
	"github.com/ManuelReschke/FactFox/internal/pkg/database"
)

func setupCounterTest(t *testing.T) (*miniredis.Miniredis, *gorm.DB) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	cache.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.FactCheckStats{}))
	database.SetDB(db)

	return mr, db
}

func TestCountersAccumulateInRedis(t *testing.T) {
	mr, _ := setupCounterTest(t)

	AddSubmitted()
	AddSubmitted()
	AddCompleted()
	AddFailed()

	day := models.QuotaDay(time.Now())
	assert.Equal(t, "2", mr.HGet(factCheckCountersKey, day+":submitted"))
	assert.Equal(t, "1", mr.HGet(factCheckCountersKey, day+":completed"))
	assert.Equal(t, "1", mr.HGet(factCheckCountersKey, day+":failed"))
}

func TestFlushAllUpsertsStats(t *testing.T) {
	mr, db := setupCounterTest(t)

	AddSubmitted()
	AddSubmitted()
	AddCompleted()
	AddFailed()
	require.NoError(t, FlushAll())

	day := models.QuotaDay(time.Now())
	var row models.FactCheckStats
	require.NoError(t, db.Where("date = ?", day).First(&row).Error)
	assert.Equal(t, int64(2), row.Submitted)
	assert.Equal(t, int64(1), row.Completed)
	assert.Equal(t, int64(1), row.Failed)

	// the drained hash is gone; flushing again is a no-op
	assert.False(t, mr.Exists(factCheckCountersKey))
	require.NoError(t, FlushAll())

	// later ticks add onto the existing row
	AddSubmitted()
	require.NoError(t, FlushAll())
	require.NoError(t, db.Where("date = ?", day).First(&row).Error)
	assert.Equal(t, int64(3), row.Submitted)
}
