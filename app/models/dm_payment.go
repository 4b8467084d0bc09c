package models

import "time"

// DMPayment buys a bundle of direct messages to a creator.
type DMPayment struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	MessagesAllowed int        `gorm:"not null" json:"messages_allowed"`
	MessagesUsed    int        `gorm:"not null;default:0" json:"messages_used"`
	ValidityDays    int        `gorm:"not null;default:0" json:"validity_days"`
	ExpiresAt       *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	Charge          `gorm:"embedded"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// RemainingMessages never goes below zero.
func (d *DMPayment) RemainingMessages() int {
	if d.MessagesUsed >= d.MessagesAllowed {
		return 0
	}
	return d.MessagesAllowed - d.MessagesUsed
}

func (DMPayment) TableName() string {
	return "dm_payments"
}
