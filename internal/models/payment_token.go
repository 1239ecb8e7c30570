package models

import (
	"time"

	"gorm.io/gorm"
)

// PaymentToken is an opaque reusable charge reference issued by the gateway.
// Replace semantics per user: storing a new token deactivates the old one.
type PaymentToken struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID      uint       `gorm:"index" json:"user_id"`
	Token       string     `gorm:"type:varchar(100)" json:"token"`
	TokenExpiry *time.Time `json:"token_expiry"`
	CardBrand   string     `gorm:"type:varchar(50)" json:"card_brand"`
	Last4       string     `gorm:"type:varchar(4)" json:"last4"`
	IsActive    bool       `gorm:"default:true;index" json:"is_active"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
