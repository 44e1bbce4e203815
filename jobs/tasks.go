// Package jobs runs background work for the billing service: post-creation
// email dispatch and the nightly counter audit. All jobs are best-effort;
// document creation never waits on them.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeDocumentEmail dispatches a created document to its customer.
	TaskTypeDocumentEmail = "document:email"
	// TaskTypeCounterAudit recomputes sequence floors from stored documents
	// and reports counters that have fallen behind.
	TaskTypeCounterAudit = "counters:audit"
)

// DocumentEmailPayload identifies the document to send and its recipient.
type DocumentEmailPayload struct {
	DocumentID string `json:"documentId"`
	Recipient  string `json:"recipient"`
}

// NewDocumentEmailTask constructs the email dispatch task.
func NewDocumentEmailTask(payload DocumentEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDocumentEmail, data), nil
}

// NewCounterAuditTask constructs the audit task. It carries no payload.
func NewCounterAuditTask() *asynq.Task {
	return asynq.NewTask(TaskTypeCounterAudit, nil)
}
