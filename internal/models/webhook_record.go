package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// WebhookType identifies the kind of gateway notification stored
type WebhookType string

const (
	WebhookTypePaymentResult WebhookType = "payment_result"
	WebhookTypeRecoveredScan WebhookType = "recovered_scan"
)

// WebhookRecord stores a gateway notification verbatim before any processing.
// Once Processed is set the record is never reprocessed with mutating effect
// except through the explicit manual recovery path.
type WebhookRecord struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	WebhookType          WebhookType     `gorm:"type:varchar(50);not null" json:"webhook_type"`
	GatewayCorrelationID string          `gorm:"type:varchar(100);index" json:"gateway_correlation_id"`
	Payload              json.RawMessage `gorm:"type:jsonb" json:"payload"`
	Processed            bool            `gorm:"default:false;index" json:"processed"`
	ProcessedAt          *time.Time      `json:"processed_at"`
	ProcessingResult     json.RawMessage `gorm:"type:jsonb" json:"processing_result"`
}
