package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// PaymentLogStatus is the outcome recorded in the audit trail
type PaymentLogStatus string

const (
	PaymentLogStatusSuccess PaymentLogStatus = "success"
	PaymentLogStatusFailed  PaymentLogStatus = "failed"
)

// PaymentLogEntry is the append-only audit row written once per applied
// payment. Entries are never updated or deleted.
type PaymentLogEntry struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID               uint             `gorm:"index" json:"user_id"`
	SubscriptionID       uint             `gorm:"index" json:"subscription_id"`
	GatewayCorrelationID string           `gorm:"type:varchar(100);index" json:"gateway_correlation_id"`
	Amount               float64          `gorm:"type:decimal(15,2)" json:"amount"`
	Status               PaymentLogStatus `gorm:"type:varchar(20)" json:"status"`
	TransactionID        string           `gorm:"type:varchar(100)" json:"transaction_id"`
	PaymentData          json.RawMessage  `gorm:"type:jsonb" json:"payment_data"`
}
