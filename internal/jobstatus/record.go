// Package jobstatus tracks the lifecycle of repository ingest jobs.
//
// Each job has one durable record that moves through a small state
// machine: pending -> processing -> done or failed. Completed jobs are
// deleted from the store; they become discoverable through the vector
// store's own metadata instead. Failed jobs remain visible for diagnosis.
package jobstatus

import (
	"time"
)

// Status is the lifecycle state of an ingest job.
type Status string

// Job lifecycle states.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Record is the state snapshot for one repository ingestion job.
// Progress is only meaningful while Status is processing; it is nil after
// a failure.
type Record struct {
	ID             string    `json:"id"`
	URL            string    `json:"url"`
	Status         Status    `json:"status"`
	RepoName       string    `json:"repo_name,omitempty"`
	ProcessMessage string    `json:"process_message,omitempty"`
	FailReason     string    `json:"fail_reason,omitempty"`
	Progress       *int      `json:"progress"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// clampProgress forces p into [0, 100].
func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func progressPtr(p int) *int {
	p = clampProgress(p)
	return &p
}
