// Package domain defines the invoice job state machine persisted by the
// pipeline. A job tracks one payment event from receipt to completion and is
// the dedup and resume anchor for the whole pipeline.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Stage is the last durably completed step of a job. A job at stage S resumes
// by executing the step after S.
type Stage string

const (
	StageReceived         Stage = "Received"
	StageBrandingResolved Stage = "BrandingResolved"
	StageComposed         Stage = "Composed"
	StageRendered         Stage = "Rendered"
	StageNotified         Stage = "Notified"
	StagePersisted        Stage = "Persisted"
	StageCompleted        Stage = "Completed"
)

// stageOrder drives resume: a job restarts at the step after its recorded
// stage, never before it.
var stageOrder = []Stage{
	StageReceived,
	StageBrandingResolved,
	StageComposed,
	StageRendered,
	StageNotified,
	StagePersisted,
	StageCompleted,
}

// Next returns the stage that follows s, or s itself when s is terminal.
func (s Stage) Next() Stage {
	for i, stage := range stageOrder {
		if stage == s && i+1 < len(stageOrder) {
			return stageOrder[i+1]
		}
	}
	return s
}

// Before reports whether s completes earlier in the pipeline than other.
func (s Stage) Before(other Stage) bool {
	return s.index() < other.index()
}

func (s Stage) index() int {
	for i, stage := range stageOrder {
		if stage == s {
			return i
		}
	}
	return -1
}

type JobStatus string

const (
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// FailureKind classifies why a stage failed. Only transient kinds are
// retried; the rest fail the job on first occurrence.
type FailureKind string

const (
	KindInvalidEvent FailureKind = "INVALID_EVENT"
	KindNotFound     FailureKind = "NOT_FOUND"
	KindTransient    FailureKind = "TRANSIENT"
	KindPermanent    FailureKind = "PERMANENT"
	KindRenderError  FailureKind = "RENDER_ERROR"
	KindStoreError   FailureKind = "STORE_ERROR"
)

// Retryable reports whether a failure of this kind may succeed on a later
// attempt.
func (k FailureKind) Retryable() bool {
	switch k {
	case KindTransient, KindStoreError:
		return true
	default:
		return false
	}
}

var (
	ErrJobNotFound = errors.New("job_not_found")
	ErrJobOwned    = errors.New("job_owned_elsewhere")
)

// Job is the durable record of one payment event moving through the
// pipeline. PaymentID carries a unique index; the resulting duplicate-key
// error on insert is the dedup mechanism. Event holds the original payload so
// a crashed job can resume without the upstream redelivering it.
type Job struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	PaymentID   string         `gorm:"uniqueIndex:ux_job_payment;not null" json:"payment_id"`
	MerchantID  string         `gorm:"index;not null" json:"merchant_id"`
	Stage       Stage          `gorm:"type:varchar(32);not null" json:"stage"`
	Status      JobStatus      `gorm:"type:varchar(16);index;not null" json:"status"`
	InvoiceID   *snowflake.ID  `json:"invoice_id,omitempty"`
	FailedStage Stage          `gorm:"type:varchar(32)" json:"failed_stage,omitempty"`
	FailureKind FailureKind    `gorm:"type:varchar(16)" json:"failure_kind,omitempty"`
	LastError   string         `gorm:"type:text" json:"last_error,omitempty"`
	Attempts    int            `json:"attempts"`
	Event       datatypes.JSON `gorm:"not null" json:"event"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `gorm:"index" json:"updated_at"`
}

func (Job) TableName() string {
	return "invoice_jobs"
}

// Result is what the pipeline reports back for an accepted event.
type Result struct {
	JobID        snowflake.ID  `json:"job_id"`
	PaymentID    string        `json:"payment_id"`
	Status       JobStatus     `json:"status"`
	InvoiceID    *snowflake.ID `json:"invoice_id,omitempty"`
	FailedStage  Stage         `json:"failed_stage,omitempty"`
	FailureKind  FailureKind   `json:"failure_kind,omitempty"`
	Deduplicated bool          `json:"deduplicated,omitempty"`
	Ignored      bool          `json:"ignored,omitempty"`
}
