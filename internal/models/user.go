package models

import (
	"time"

	"gorm.io/gorm"
)

// UserType represents the type of user
type UserType string

const (
	UserTypeAdmin  UserType = "Admin"
	UserTypeMember UserType = "Member"
)

// User represents a member of the trading community
type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name        string   `gorm:"type:varchar(255)" json:"name"`
	Phone       string   `gorm:"type:varchar(50)" json:"phone"`
	Email       string   `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	FirebaseUID string   `gorm:"type:varchar(128);index" json:"firebase_uid"`
	UserType    UserType `gorm:"type:varchar(20);default:'Member'" json:"user_type"`

	// Relationships
	Subscription *SubscriptionRecord `gorm:"foreignKey:UserID" json:"subscription,omitempty"`
	Tokens       []PaymentToken      `gorm:"foreignKey:UserID" json:"tokens,omitempty"`
	PaymentLogs  []PaymentLogEntry   `gorm:"foreignKey:UserID" json:"payment_logs,omitempty"`
}
