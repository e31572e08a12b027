package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeFactCheck JobType = "fact_check"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
}

// MarkAsProcessing sets the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.ProcessedAt = &now
	j.UpdatedAt = now
}

// MarkAsCompleted sets the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// MarkAsFailed sets the job status to failed with an error message
func (j *Job) MarkAsFailed(errorMsg string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.ErrorMsg = errorMsg
	j.UpdatedAt = now
}

// FactCheckJobPayload contains the payload for fact-check jobs. The payload
// deliberately carries only the request identifier; everything else is read
// fresh from the request row when the job runs.
type FactCheckJobPayload struct {
	RequestUUID string `json:"request_uuid"`
}

// ToMap converts the payload to a map for storage
func (p FactCheckJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"request_uuid": p.RequestUUID,
	}
}

// FactCheckJobPayloadFromMap creates a payload from a map
func FactCheckJobPayloadFromMap(data map[string]interface{}) (*FactCheckJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload FactCheckJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}
