// Package events defines the notifications published after bulk operations.
package events

import (
	"context"
	"time"
)

// Event types.
const (
	TypeTransactionsIngested = "transactions_ingested"
	TypeTransactionsDeleted  = "transactions_deleted"
)

// TransactionsIngested is published after an ingest call.
type TransactionsIngested struct {
	Type         string    `json:"type"`
	RunID        string    `json:"run_id"`
	Strategy     string    `json:"strategy"`
	Allocation   string    `json:"allocation"`
	Success      int       `json:"success"`
	Failed       int       `json:"failed"`
	AccountIDs   []string  `json:"bank_account_ids"`
	NeedsReview  bool      `json:"needs_review"`
	OccurredAt   time.Time `json:"occurred_at"`
	DurationMsec int64     `json:"duration_ms"`
}

// TransactionsDeleted is published after a bulk delete.
type TransactionsDeleted struct {
	Type       string    `json:"type"`
	RunID      string    `json:"run_id"`
	Success    int       `json:"success"`
	Failed     int       `json:"failed"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher sends events. key groups related events on the broker.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, key string, event any) error {
	return nil
}

var _ Publisher = NopPublisher{}
