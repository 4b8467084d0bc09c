package models

import "time"

const (
	SubscriptionStatusPending   = "PENDING"
	SubscriptionStatusActive    = "ACTIVE"
	SubscriptionStatusCancelled = "CANCELLED"
)

// Subscription links a fan to a creator's pricing tier.
type Subscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	FanID                  uint       `gorm:"not null;index:idx_subscriptions_fan_tier,priority:1" json:"fan_id"`
	TierID                 uint       `gorm:"not null;index:idx_subscriptions_fan_tier,priority:2" json:"tier_id"`
	CreatorID              uint       `gorm:"not null;index" json:"creator_id"`
	Status                 string     `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"status"`
	StartDate              *time.Time `gorm:"type:timestamp;default:null" json:"start_date,omitempty"`
	EndDate                *time.Time `gorm:"type:timestamp;default:null" json:"end_date,omitempty"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);not null;default:'';index" json:"provider_subscription_id,omitempty"`
	CancelledAt            *time.Time `gorm:"type:timestamp;default:null" json:"cancelled_at,omitempty"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
