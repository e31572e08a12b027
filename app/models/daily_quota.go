package models

import (
	"time"
)

// DailyRequestLimit is the fixed per-user cap on fact-check submissions per day
const DailyRequestLimit = 20

// DailyQuota tracks how many fact-check submissions a user made on a given
// calendar day (UTC). One row per (user, date); increments go through the
// quota repository's conditional update so concurrent submissions cannot
// both spend the same slot.
type DailyQuota struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"uniqueIndex:idx_user_date" json:"user_id"`
	Date         string    `gorm:"type:char(10);uniqueIndex:idx_user_date" json:"date"` // YYYY-MM-DD
	RequestCount int       `gorm:"default:0" json:"request_count"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// QuotaDay formats a point in time as the UTC calendar day used as quota key
func QuotaDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
