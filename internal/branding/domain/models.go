package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// MerchantBranding is a merchant's presentation configuration. It is owned by
// the merchant account management system and read-only here; callers fetch it
// fresh per invoice and snapshot the fields they need.
type MerchantBranding struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	MerchantID   string            `gorm:"type:text;not null;uniqueIndex" json:"merchant_id"`
	DisplayName  string            `gorm:"type:text;not null" json:"display_name"`
	LogoURL      string            `gorm:"type:text" json:"logo_url,omitempty"`
	ThemeColor   string            `gorm:"type:text" json:"theme_color,omitempty"`
	CustomDomain string            `gorm:"type:text" json:"custom_domain,omitempty"`
	SenderEmail  string            `gorm:"type:text;not null" json:"sender_email"`
	TaxID        string            `gorm:"type:text" json:"tax_id,omitempty"`
	Address      string            `gorm:"type:text" json:"address,omitempty"`
	Phone        string            `gorm:"type:text" json:"phone,omitempty"`
	Website      string            `gorm:"type:text" json:"website,omitempty"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (MerchantBranding) TableName() string { return "merchant_brandings" }
