package models

import "time"

// WebhookEvent is the append-only record of an applied provider event.
// The unique (provider, provider_event_id) pair is the idempotency guard:
// rows are inserted after processing, never updated, and purged by retention.
type WebhookEvent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Provider        string    `gorm:"type:varchar(20);not null;index:ux_webhook_events_provider_event,unique,priority:1" json:"provider"`
	ProviderEventID string    `gorm:"type:varchar(191);not null;index:ux_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string    `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string    `gorm:"type:longtext;not null" json:"payload_json"`
	Outcome         string    `gorm:"type:varchar(255);not null;default:''" json:"outcome"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
