package models

import "time"

// SubscriptionTier is a creator-defined monthly price point.
type SubscriptionTier struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatorID uint      `gorm:"not null;index" json:"creator_id"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	Price     int64     `gorm:"not null" json:"price"`
	Currency  string    `gorm:"type:varchar(3);not null" json:"currency"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Product is a downloadable digital good stored in object storage.
type Product struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatorID uint      `gorm:"not null;index" json:"creator_id"`
	Title     string    `gorm:"type:varchar(200);not null" json:"title"`
	Price     int64     `gorm:"not null" json:"price"`
	Currency  string    `gorm:"type:varchar(3);not null" json:"currency"`
	ObjectKey string    `gorm:"type:varchar(500);not null;default:''" json:"-"`
	FileName  string    `gorm:"type:varchar(255);not null;default:''" json:"file_name"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Post is creator content; a non-zero PPVPrice locks it behind a purchase.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatorID uint      `gorm:"not null;index" json:"creator_id"`
	Title     string    `gorm:"type:varchar(200);not null" json:"title"`
	PPVPrice  int64     `gorm:"not null;default:0" json:"ppv_price"`
	Currency  string    `gorm:"type:varchar(3);not null" json:"currency"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
