package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/FactFox/app/models"
)

// quotaRepository implements the QuotaRepository interface
type quotaRepository struct {
	db *gorm.DB
}

// NewQuotaRepository creates a new quota repository instance
func NewQuotaRepository(db *gorm.DB) QuotaRepository {
	return &quotaRepository{db: db}
}

// CheckRemaining reports how many submissions the user has left today.
// Read-only; a missing row means the full limit is available.
func (r *quotaRepository) CheckRemaining(userID uint) (int, bool, error) {
	day := models.QuotaDay(time.Now())

	var quota models.DailyQuota
	err := r.db.Where("user_id = ? AND date = ?", userID, day).First(&quota).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.DailyRequestLimit, true, nil
		}
		return 0, false, err
	}

	remaining := models.DailyRequestLimit - quota.RequestCount
	if remaining < 0 {
		remaining = 0
	}
	return remaining, remaining > 0, nil
}

// ConsumeOne atomically spends one quota unit for today, creating the day's
// row on first use. Concurrent submissions for the same user are serialized
// by the conditional UPDATE: two callers can never both take the last slot.
// Returns the new count, or ErrQuotaExceeded when the cap is already reached.
func (r *quotaRepository) ConsumeOne(userID uint) (int, error) {
	day := models.QuotaDay(time.Now())

	if n, ok, err := r.tryIncrement(userID, day); err != nil || ok {
		return n, err
	}

	// No spendable row yet: either the day's row is missing or it is at the
	// limit. Try to create it; the unique (user, date) index turns a losing
	// race into a no-op insert.
	quota := models.DailyQuota{UserID: userID, Date: day, RequestCount: 1}
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoNothing: true,
	}).Create(&quota)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 1 {
		return 1, nil
	}

	// Row exists after all (concurrent creator or cap reached); one more
	// conditional increment decides which.
	if n, ok, err := r.tryIncrement(userID, day); err != nil || ok {
		return n, err
	}

	return 0, ErrQuotaExceeded
}

// tryIncrement performs the guarded increment and reads back the new count.
// ok is false when no row was eligible (missing or at the limit).
func (r *quotaRepository) tryIncrement(userID uint, day string) (int, bool, error) {
	res := r.db.Model(&models.DailyQuota{}).
		Where("user_id = ? AND date = ? AND request_count < ?", userID, day, models.DailyRequestLimit).
		UpdateColumn("request_count", gorm.Expr("request_count + 1"))
	if res.Error != nil {
		return 0, false, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, false, nil
	}

	var quota models.DailyQuota
	if err := r.db.Where("user_id = ? AND date = ?", userID, day).First(&quota).Error; err != nil {
		return 0, false, err
	}
	return quota.RequestCount, true, nil
}
