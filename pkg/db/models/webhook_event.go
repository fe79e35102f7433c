package models

import "time"

// WebhookEvent records each processed payment-processor event. The unique
// EventID makes reconciliation idempotent under webhook redelivery: the
// insert and the writes it guards share one transaction, so a duplicate key
// conflict means the event already committed.
type WebhookEvent struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	EventID     string    `gorm:"column:event_id;not null;uniqueIndex:ux_webhook_events_event_id"`
	EventType   string    `gorm:"column:event_type;not null"`
	ProcessedAt time.Time `gorm:"column:processed_at;not null"`
}
