package entity

import (
	"time"

	"github.com/google/uuid"
)

// JobState is the persisted state of one extraction request.
type JobState string

const (
	JobStatePending     JobState = "PENDING"
	JobStateUploading   JobState = "UPLOADING"
	JobStateExtracting  JobState = "EXTRACTING"
	JobStateNormalizing JobState = "NORMALIZING"
	JobStateCommitted   JobState = "COMMITTED"
	JobStateFailed      JobState = "FAILED"
)

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool {
	return s == JobStateCommitted || s == JobStateFailed
}

// Job tracks one run of the extraction state machine. Every transition is
// written through the job repository so the current state survives a crash.
type Job struct {
	ID         uuid.UUID `json:"id"`
	CompanyID  uuid.UUID `json:"company_id"`
	DocumentID uuid.UUID `json:"document_id,omitempty"`
	State      JobState  `json:"state"`
	Reason     string    `json:"reason,omitempty"` // reason code when FAILED
	Attempts   int       `json:"attempts"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
