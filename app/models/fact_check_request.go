package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	FACTCHECK_STATUS_PENDING   = "pending"
	FACTCHECK_STATUS_COMPLETED = "completed"
	FACTCHECK_STATUS_FAILED    = "failed"
)

// FactCheckRequest is one user-submitted URL and its analysis lifecycle.
// Status only ever moves pending -> completed or pending -> failed; the
// terminal write is the single mutation after creation.
type FactCheckRequest struct {
	ID                uint      `gorm:"primaryKey" json:"-"`
	UUID              string    `gorm:"type:char(36);uniqueIndex" json:"id"`
	UserID            uint      `gorm:"index" json:"-"`
	URL               string    `gorm:"type:varchar(2048)" json:"url" validate:"required,url,max=2048"`
	Status            string    `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	Result            *string   `gorm:"type:longtext" json:"result,omitempty"`
	AuthenticityScore *int      `json:"authenticity_score,omitempty"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"-"`
}

func (r *FactCheckRequest) Validate() error {
	v := validator.New()

	return v.Struct(r)
}

// NewFactCheckRequest builds a pending request for the given owner and URL
func NewFactCheckRequest(userID uint, url string) (*FactCheckRequest, error) {
	r := &FactCheckRequest{
		UUID:   uuid.New().String(),
		UserID: userID,
		URL:    url,
		Status: FACTCHECK_STATUS_PENDING,
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}

	return r, nil
}

// IsTerminal reports whether the request has reached a final state
func (r *FactCheckRequest) IsTerminal() bool {
	return r.Status == FACTCHECK_STATUS_COMPLETED || r.Status == FACTCHECK_STATUS_FAILED
}
