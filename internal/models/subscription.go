package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// SubscriptionStatus represents the state of a member's subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrial    SubscriptionStatus = "trial"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// SubscriptionRecord holds the member's current access state. It is mutated
// only by the reconciliation service and the renewal procedure.
type SubscriptionRecord struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID              uint               `gorm:"uniqueIndex" json:"user_id"`
	PlanType            string             `gorm:"type:varchar(50)" json:"plan_type"`
	Status              SubscriptionStatus `gorm:"type:varchar(20)" json:"status"`
	TrialEndsAt         *time.Time         `json:"trial_ends_at"`
	CurrentPeriodEndsAt time.Time          `json:"current_period_ends_at"`
	PaymentMethod       json.RawMessage    `gorm:"type:jsonb" json:"payment_method"`
	PaymentTokenID      *uint              `json:"payment_token_id"`
	NextChargeDate      *time.Time         `gorm:"index" json:"next_charge_date"`

	// LastAppliedCorrelationID records which payment last extended the
	// period, so replaying the same notification never extends it twice.
	LastAppliedCorrelationID string `gorm:"type:varchar(100)" json:"last_applied_correlation_id"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
