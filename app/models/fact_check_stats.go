package models

import (
	"time"
)

// FactCheckStats holds per-day aggregate counters for the fact-check
// pipeline. Rows are written by the counter flush job, not by request
// handlers directly.
type FactCheckStats struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Date      string    `gorm:"type:char(10);uniqueIndex" json:"date"` // YYYY-MM-DD
	Submitted int64     `gorm:"default:0" json:"submitted"`
	Completed int64     `gorm:"default:0" json:"completed"`
	Failed    int64     `gorm:"default:0" json:"failed"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
