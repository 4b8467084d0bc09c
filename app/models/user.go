package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	ROLE_USER       = "user"
	ROLE_CREATOR    = "creator"
	ROLE_ADMIN      = "admin"
	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
	STATUS_DISABLED = "disabled"
)

// Commission tiers known to the default fee schedule.
const (
	CommissionTierStandard = "STANDARD"
	CommissionTierPartner  = "PARTNER"
)

// User is the authenticated principal. Creators carry their commission tier
// and the offer used to price paid direct messages.
type User struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Name           string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email          string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Role           string         `gorm:"type:varchar(50);default:'user'" json:"role" validate:"oneof=user creator admin"`
	Status         string         `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive disabled"`
	CommissionTier string         `gorm:"type:varchar(32);not null;default:'STANDARD'" json:"commission_tier"`
	Phone          string         `gorm:"type:varchar(32);default:''" json:"-"`
	APIKeyHash     string         `gorm:"type:char(64);default:'';index" json:"-"`
	APIKeyPrefix   string         `gorm:"type:varchar(20);default:''" json:"api_key_prefix"`
	DMPrice        int64          `gorm:"not null;default:0" json:"dm_price"`
	DMCurrency     string         `gorm:"type:varchar(3);not null;default:'INR'" json:"dm_currency"`
	DMMessageCount int            `gorm:"not null;default:0" json:"dm_message_count"`
	DMValidityDays int            `gorm:"not null;default:0" json:"dm_validity_days"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

func (u *User) IsCreator() bool {
	return u != nil && u.Role == ROLE_CREATOR
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == ROLE_ADMIN
}

// OffersPaidDMs reports whether the creator sells message bundles.
func (u *User) OffersPaidDMs() bool {
	return u.IsCreator() && u.DMPrice > 0 && u.DMMessageCount > 0
}

// IssueAPIKey generates a new API key, stores its hash on the struct and returns the raw secret.
// The raw key is only available at creation time.
func (u *User) IssueAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	rawKey := "cvk_" + hex.EncodeToString(buf)
	u.APIKeyHash = HashAPIKey(rawKey)
	u.APIKeyPrefix = rawKey[:12]
	return rawKey, nil
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
