package repository

import (
	"gorm.io/gorm"

	"github.com/ManuelReschke/FactFox/app/models"
)

// factCheckRepository implements the FactCheckRepository interface
type factCheckRepository struct {
	db *gorm.DB
}

// NewFactCheckRepository creates a new fact-check repository instance
func NewFactCheckRepository(db *gorm.DB) FactCheckRepository {
	return &factCheckRepository{db: db}
}

// Create persists a new fact-check request row
func (r *factCheckRepository) Create(request *models.FactCheckRequest) error {
	return r.db.Create(request).Error
}

// GetByUUID retrieves a request by its public identifier
func (r *factCheckRepository) GetByUUID(uuid string) (*models.FactCheckRequest, error) {
	var request models.FactCheckRequest
	err := r.db.Where("uuid = ?", uuid).First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// GetByUUIDForUser retrieves a request by identifier, scoped to its owner.
// A request owned by somebody else surfaces as record-not-found so the
// existence of other users' requests is never revealed.
func (r *factCheckRepository) GetByUUIDForUser(uuid string, userID uint) (*models.FactCheckRequest, error) {
	var request models.FactCheckRequest
	err := r.db.Where("uuid = ? AND user_id = ?", uuid, userID).First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// ListByUser returns the user's requests, newest first
func (r *factCheckRepository) ListByUser(userID uint, limit int) ([]models.FactCheckRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	var requests []models.FactCheckRequest
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&requests).Error
	return requests, err
}

// MarkCompleted writes the terminal completed state. The update is guarded on
// the row still being pending: a request that already reached a terminal
// state is left untouched and false is returned.
func (r *factCheckRepository) MarkCompleted(uuid string, result string, score *int) (bool, error) {
	res := r.db.Model(&models.FactCheckRequest{}).
		Where("uuid = ? AND status = ?", uuid, models.FACTCHECK_STATUS_PENDING).
		Updates(map[string]interface{}{
			"status":             models.FACTCHECK_STATUS_COMPLETED,
			"result":             result,
			"authenticity_score": score,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkFailed writes the terminal failed state with a human-readable message.
// Same pending guard as MarkCompleted; the score stays unset.
func (r *factCheckRepository) MarkFailed(uuid string, message string) (bool, error) {
	var result interface{}
	if message != "" {
		result = message
	}
	res := r.db.Model(&models.FactCheckRequest{}).
		Where("uuid = ? AND status = ?", uuid, models.FACTCHECK_STATUS_PENDING).
		Updates(map[string]interface{}{
			"status": models.FACTCHECK_STATUS_FAILED,
			"result": result,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CountByStatus returns how many requests currently carry the given status
func (r *factCheckRepository) CountByStatus(status string) (int64, error) {
	var count int64
	err := r.db.Model(&models.FactCheckRequest{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}
