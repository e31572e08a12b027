package repository

import (
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ManuelReschke/FactFox/app/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	// A single connection keeps the in-memory database shared across the pool
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.UserSettings{},
		&models.FactCheckRequest{},
		&models.DailyQuota{},
		&models.FactCheckStats{},
	))
	return db
}

func TestCheckRemainingFullLimitWithoutRow(t *testing.T) {
	repo := NewQuotaRepository(newTestDB(t))

	remaining, hasAccess, err := repo.CheckRemaining(1)
	require.NoError(t, err)
	assert.Equal(t, models.DailyRequestLimit, remaining)
	assert.True(t, hasAccess)
}

func TestConsumeOneCountsDown(t *testing.T) {
	repo := NewQuotaRepository(newTestDB(t))

	for n := 1; n <= models.DailyRequestLimit; n++ {
		count, err := repo.ConsumeOne(7)
		require.NoError(t, err)
		assert.Equal(t, n, count)

		remaining, hasAccess, err := repo.CheckRemaining(7)
		require.NoError(t, err)
		assert.Equal(t, models.DailyRequestLimit-n, remaining)
		assert.Equal(t, n < models.DailyRequestLimit, hasAccess)
	}

	// The 21st consumption is rejected and does not move the counter
	_, err := repo.ConsumeOne(7)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	remaining, hasAccess, err := repo.CheckRemaining(7)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
	assert.False(t, hasAccess)
}

func TestConsumeOneIsPerUser(t *testing.T) {
	repo := NewQuotaRepository(newTestDB(t))

	_, err := repo.ConsumeOne(1)
	require.NoError(t, err)

	remaining, hasAccess, err := repo.CheckRemaining(2)
	require.NoError(t, err)
	assert.Equal(t, models.DailyRequestLimit, remaining)
	assert.True(t, hasAccess)
}

func TestConsumeOneConcurrentLastSlot(t *testing.T) {
	db := newTestDB(t)
	repo := NewQuotaRepository(db)

	// Spend all but the last slot
	day := models.QuotaDay(time.Now())
	require.NoError(t, db.Create(&models.DailyQuota{
		UserID:       9,
		Date:         day,
		RequestCount: models.DailyRequestLimit - 1,
	}).Error)

	const k = 8
	var wg sync.WaitGroup
	results := make(chan error, k)
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.ConsumeOne(9)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes, exceeded := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case err == ErrQuotaExceeded:
			exceeded++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes, "exactly one caller may take the last slot")
	assert.Equal(t, k-1, exceeded)

	var quota models.DailyQuota
	require.NoError(t, db.Where("user_id = ? AND date = ?", 9, day).First(&quota).Error)
	assert.Equal(t, models.DailyRequestLimit, quota.RequestCount)
}

func TestConsumeOneOnlyOneRowPerDay(t *testing.T) {
	db := newTestDB(t)
	repo := NewQuotaRepository(db)

	_, err := repo.ConsumeOne(4)
	require.NoError(t, err)
	_, err = repo.ConsumeOne(4)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.DailyQuota{}).Where("user_id = ?", 4).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
