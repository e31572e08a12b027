package repository

import (
	"gorm.io/gorm"

	"github.com/ManuelReschke/FactFox/app/models"
)

// statsRepository implements the StatsRepository interface
type statsRepository struct {
	db *gorm.DB
}

// NewStatsRepository creates a new stats repository instance
func NewStatsRepository(db *gorm.DB) StatsRepository {
	return &statsRepository{db: db}
}

// GetRecent returns the aggregate rows for the last N days, newest first
func (r *statsRepository) GetRecent(days int) ([]models.FactCheckStats, error) {
	if days <= 0 {
		days = 7
	}
	var stats []models.FactCheckStats
	err := r.db.Order("date DESC").Limit(days).Find(&stats).Error
	return stats, err
}
