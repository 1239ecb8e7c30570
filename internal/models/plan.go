package models

import (
	"time"

	"gorm.io/gorm"
)

// Plan codes known to the catalog
const (
	PlanCodeMonthly = "monthly"
	PlanCodeAnnual  = "annual"
	PlanCodeVIP     = "vip"
)

// Plan is a catalog row describing a purchasable subscription tier
type Plan struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Code            string  `gorm:"type:varchar(50);uniqueIndex" json:"code"`
	Name            string  `gorm:"type:varchar(255)" json:"name"`
	Price           float64 `gorm:"type:decimal(15,2)" json:"price"`
	BillingInterval string  `gorm:"type:varchar(20)" json:"billing_interval"` // 'monthly', 'yearly', 'onetime'
	TrialDays       int     `gorm:"default:0" json:"trial_days"`
	IsActive        bool    `gorm:"default:true" json:"is_active"`
}

// OperationType resolves the hosted-form operation for this plan. Monthly
// plans start with a free trial so only a token is captured; annual plans
// charge and tokenize in one pass; one-time VIP access charges without
// storing a token.
func (p Plan) OperationType() OperationType {
	switch p.BillingInterval {
	case "monthly":
		return OperationTokenizeOnly
	case "yearly":
		return OperationChargeAndTokenize
	default:
		return OperationChargeOnly
	}
}

// ChargeAmount is the amount sent to the gateway at checkout. Tokenize-only
// plans charge nothing up front.
func (p Plan) ChargeAmount() float64 {
	if p.OperationType() == OperationTokenizeOnly {
		return 0
	}
	return p.Price
}

// PeriodEnd returns the subscription period end for a purchase applied at t
func (p Plan) PeriodEnd(t time.Time) time.Time {
	switch p.BillingInterval {
	case "monthly":
		return t.AddDate(0, 1, 0)
	case "yearly":
		return t.AddDate(1, 0, 0)
	default:
		// one-time access does not roll over; grant a year
		return t.AddDate(1, 0, 0)
	}
}
