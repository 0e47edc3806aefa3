package recruiting

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus is the lifecycle state of a job posting.
type JobStatus string

const (
	JobStatusActive    JobStatus = "ACTIVE"
	JobStatusInactive  JobStatus = "INACTIVE"
	JobStatusCancelled JobStatus = "CANCELLED"
	JobStatusDeleted   JobStatus = "DELETED"
)

func (s JobStatus) String() string { return string(s) }

func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusActive, JobStatusInactive, JobStatusCancelled, JobStatusDeleted:
		return true
	}
	return false
}

// ParseJobStatus validates a status received from a client. Matching is exact:
// stored values are upper case and clients are expected to send them as such.
func ParseJobStatus(raw string) (JobStatus, error) {
	s := JobStatus(strings.TrimSpace(raw))
	if !s.IsValid() {
		return "", fmt.Errorf("%w: invalid status value: %s", ErrInvalidRequest, raw)
	}
	return s, nil
}

// JobPosting is a recruiter-owned job description CVs are scored against.
type JobPosting struct {
	PK          string    `dynamodbav:"pk" json:"-"`
	SK          string    `dynamodbav:"sk" json:"-"`
	JobID       string    `dynamodbav:"job_id" json:"job_id"`
	UserID      string    `dynamodbav:"user_id" json:"user_id"`
	Title       string    `dynamodbav:"title" json:"title"`
	Description string    `dynamodbav:"description" json:"description"`
	Location    string    `dynamodbav:"location" json:"location"`
	Level       string    `dynamodbav:"level" json:"level"`
	Skills      []string  `dynamodbav:"skills" json:"skills"`
	Status      JobStatus `dynamodbav:"status" json:"status"`
	CreatedAt   time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt   time.Time `dynamodbav:"updated_at" json:"updated_at"`
}

// NewJobPosting fills the key attributes and defaults of a fresh posting.
func NewJobPosting(jobID, userID string, now time.Time) *JobPosting {
	return &JobPosting{
		PK:        JobPK(jobID),
		SK:        UserSK(userID),
		JobID:     jobID,
		UserID:    userID,
		Status:    JobStatusActive,
		CreatedAt: now.UTC(),
	}
}

// PostingPatch carries the optional fields of a posting update. Nil means
// "leave unchanged".
type PostingPatch struct {
	Description *string
	Status      *JobStatus
}

func (p PostingPatch) Empty() bool {
	return p.Description == nil && p.Status == nil
}
