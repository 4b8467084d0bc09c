package models

import "time"

const (
	PurchaseKindProduct = "product"
	PurchaseKindPPV     = "ppv"
)

// Purchase is a one-time unlock of a digital product or a pay-per-view post.
type Purchase struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Kind      string    `gorm:"type:varchar(16);not null" json:"kind"`
	ProductID *uint     `gorm:"index" json:"product_id,omitempty"`
	PostID    *uint     `gorm:"index" json:"post_id,omitempty"`
	Charge    `gorm:"embedded"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ResourceID returns the id of the unlocked product or post.
func (p *Purchase) ResourceID() uint {
	if p.ProductID != nil {
		return *p.ProductID
	}
	if p.PostID != nil {
		return *p.PostID
	}
	return 0
}
