package models

import "time"

const (
	RefundStatusPending   = "PENDING"
	RefundStatusApproved  = "APPROVED"
	RefundStatusRejected  = "REJECTED"
	RefundStatusCompleted = "COMPLETED"
)

// Refund sources.
const (
	RefundSourcePayment  = "payment"
	RefundSourcePurchase = "purchase"
)

// RefundActiveStatuses are the states that block another refund on the same source.
var RefundActiveStatuses = []string{RefundStatusPending, RefundStatusApproved}

// Refund is a request to reverse a completed Payment or Purchase.
type Refund struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Reference        string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"reference"`
	RequesterID      uint       `gorm:"not null;index" json:"requester_id"`
	SourceKind       string     `gorm:"type:varchar(16);not null;index:idx_refunds_source,priority:1" json:"source_kind"`
	SourceID         uint       `gorm:"not null;index:idx_refunds_source,priority:2" json:"source_id"`
	Amount           int64      `gorm:"not null" json:"amount"`
	Currency         string     `gorm:"type:varchar(3);not null" json:"currency"`
	Reason           string     `gorm:"type:text;not null" json:"reason"`
	Status           string     `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"status"`
	ReviewNote       string     `gorm:"type:varchar(500);not null;default:''" json:"review_note,omitempty"`
	ReviewerID       *uint      `json:"reviewer_id,omitempty"`
	ProviderRefundID string     `gorm:"type:varchar(191);not null;default:''" json:"provider_refund_id,omitempty"`
	ResolvedAt       *time.Time `gorm:"type:timestamp;default:null" json:"resolved_at,omitempty"`
	CompletedAt      *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
