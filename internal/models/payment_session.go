package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// SessionStatus represents the lifecycle state of a payment session
type SessionStatus string

const (
	SessionStatusInitiated SessionStatus = "initiated"
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusExpired   SessionStatus = "expired"
)

// OperationType selects what the hosted form does with the card
type OperationType string

const (
	OperationChargeOnly        OperationType = "charge_only"
	OperationChargeAndTokenize OperationType = "charge_and_tokenize"
	OperationTokenizeOnly      OperationType = "tokenize_only"
)

// statusRank orders session statuses; transitions may only move forward
var statusRank = map[SessionStatus]int{
	SessionStatusInitiated: 0,
	SessionStatusPending:   1,
	SessionStatusCompleted: 2,
	SessionStatusFailed:    2,
	SessionStatusExpired:   2,
}

// CanTransition reports whether a session may move from one status to another.
// Terminal statuses (completed/failed/expired) never change again.
func CanTransition(from, to SessionStatus) bool {
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	if from == to {
		return false
	}
	// completed/failed/expired share a rank and are all terminal
	if fromRank >= 2 {
		return false
	}
	return toRank > fromRank
}

// IsTerminal reports whether the status is final
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed || s == SessionStatusExpired
}

// PaymentSession tracks one payment/tokenization attempt from initiation to
// its terminal outcome. GatewayCorrelationID is the only join key between the
// hosted form instance and the later gateway notification.
type PaymentSession struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID        *uint           `gorm:"index" json:"user_id"`
	AnonymousData json.RawMessage `gorm:"type:jsonb" json:"anonymous_data"`
	PlanID        uint            `gorm:"index" json:"plan_id"`
	Amount        float64         `gorm:"type:decimal(15,2)" json:"amount"`
	Currency      string          `gorm:"type:varchar(10);default:'ILS'" json:"currency"`
	OperationType OperationType   `gorm:"type:varchar(50)" json:"operation_type"`

	// Reference is generated locally before the gateway call so a correlation
	// point exists even when the outbound call fails.
	Reference            string `gorm:"type:varchar(100);index" json:"reference"`
	GatewayCorrelationID string `gorm:"type:varchar(100);uniqueIndex" json:"gateway_correlation_id"`

	Status         SessionStatus   `gorm:"type:varchar(20);default:'initiated'" json:"status"`
	ExpiresAt      time.Time       `json:"expires_at"`
	PaymentDetails json.RawMessage `gorm:"type:jsonb" json:"payment_details"`

	// Relationships
	Plan Plan  `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// AnonymousContact is the contact snapshot stored on sessions without an identity
type AnonymousContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}
