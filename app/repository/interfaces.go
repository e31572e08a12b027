package repository

import (
	"errors"

	"github.com/ManuelReschke/FactFox/app/models"
)

// ErrQuotaExceeded is returned by ConsumeOne when the daily cap is reached
var ErrQuotaExceeded = errors.New("daily request limit exceeded")

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, *models.UserSettings, error)
	Update(user *models.User) error
	Count() (int64, error)
}

// FactCheckRepository defines the interface for fact-check request operations.
// Terminal transitions (MarkCompleted/MarkFailed) are conditional on the row
// still being pending; a second terminal write is a no-op.
type FactCheckRepository interface {
	Create(request *models.FactCheckRequest) error
	GetByUUID(uuid string) (*models.FactCheckRequest, error)
	GetByUUIDForUser(uuid string, userID uint) (*models.FactCheckRequest, error)
	ListByUser(userID uint, limit int) ([]models.FactCheckRequest, error)
	MarkCompleted(uuid string, result string, score *int) (bool, error)
	MarkFailed(uuid string, message string) (bool, error)
	CountByStatus(status string) (int64, error)
}

// QuotaRepository defines the interface for the per-user daily quota ledger
type QuotaRepository interface {
	CheckRemaining(userID uint) (remaining int, hasAccess bool, err error)
	ConsumeOne(userID uint) (int, error)
}

// StatsRepository exposes the per-day pipeline aggregate counters
type StatsRepository interface {
	GetRecent(days int) ([]models.FactCheckStats, error)
}
