package model

import (
	"time"

	"gorm.io/datatypes"
)

// Outbox job types dispatched by the poller and executed by the kafka
// consumer.
const (
	JobWebhookReconcile = "webhook.reconcile"
	JobSellerTransfer   = "transfer.seller"
	JobSellerEmail      = "email.seller"
	JobBuyerEmail       = "email.buyer"
	JobOrderAlert       = "alert.order_unmatched"
)

// OutboxEntry is a durable side-effect job. processed_at set means
// terminal success; attempts counts executions so far.
type OutboxEntry struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Type           string         `gorm:"size:48;index;not null" json:"type"`
	Payload        datatypes.JSON `gorm:"not null" json:"payload"`
	OrderID        string         `gorm:"size:64;index" json:"orderId"`
	IdempotencyKey string         `gorm:"size:128;uniqueIndex;not null" json:"idempotencyKey"`
	Attempts       int            `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt  time.Time      `gorm:"index" json:"nextAttemptAt"`
	ProcessedAt    *time.Time     `json:"processedAt,omitempty"`
	LastError      string         `gorm:"type:text" json:"lastError,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"createdAt"`
}

func (OutboxEntry) TableName() string { return "event_outbox" }

// DeadLetterEntry holds a job that exhausted its retry budget. Only
// operator requeue or purge moves it out.
type DeadLetterEntry struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Queue          string         `gorm:"size:32;index;not null" json:"queue"`
	Type           string         `gorm:"size:48;not null" json:"type"`
	Payload        datatypes.JSON `gorm:"not null" json:"payload"`
	OrderID        string         `gorm:"size:64;index" json:"orderId"`
	IdempotencyKey string         `gorm:"size:128;not null" json:"idempotencyKey"`
	Reason         string         `gorm:"size:64;not null" json:"reason"`
	Attempts       int            `gorm:"not null;default:0" json:"attempts"`
	LastError      string         `gorm:"type:text" json:"lastError,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"createdAt"`
}

func (DeadLetterEntry) TableName() string { return "dlq" }

// ProcessedWebhookEvent is the dedup ledger. The unique index on
// (provider, event_id) is what closes the duplicate-delivery race:
// the insert either claims the event or conflicts.
type ProcessedWebhookEvent struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Provider    string    `gorm:"size:16;not null;uniqueIndex:ux_processed_provider_event,priority:1" json:"provider"`
	EventID     string    `gorm:"size:128;not null;uniqueIndex:ux_processed_provider_event,priority:2" json:"eventId"`
	ProcessedAt time.Time `gorm:"autoCreateTime" json:"processedAt"`
}

func (ProcessedWebhookEvent) TableName() string { return "processed_webhook_events" }

// StripeEventRecord keeps every verified stripe event for replay from
// the admin console.
type StripeEventRecord struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	EventID   string         `gorm:"size:128;uniqueIndex;not null" json:"eventId"`
	EventType string         `gorm:"size:64;index" json:"eventType"`
	Payload   datatypes.JSON `gorm:"not null" json:"payload"`
	Processed bool           `gorm:"default:false;index" json:"processed"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"createdAt"`
}

func (StripeEventRecord) TableName() string { return "stripe_events" }
