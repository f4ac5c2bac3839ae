package model

import (
	"time"

	"github.com/google/uuid"
)

// PolicyAuditModel mirrors the 'token_policy_audit' table. ID is a ULID, so ordering by ID follows creation order.
type PolicyAuditModel struct {
	ID                        string     `gorm:"type:char(26);primary_key"`
	Action                    string     `gorm:"type:varchar(64);not null"`
	AccessTokenExpiryMinutes  int        `gorm:"not null"`
	RefreshTokenExpiryDays    float64    `gorm:"not null"`
	RememberMeTokenExpiryDays float64    `gorm:"not null"`
	UpdatedByID               *uuid.UUID `gorm:"type:uuid"`
	UpdatedByUsername         string     `gorm:"type:varchar(64)"`
	CreatedAt                 time.Time  `gorm:"not null"`
}

// TableName explicitly sets the table name for GORM.
func (PolicyAuditModel) TableName() string {
	return "token_policy_audit"
}

// All lists every model, in migration order.
func All() []any {
	return []any{
		&UserModel{},
		&SessionModel{},
		&PolicyAuditModel{},
	}
}
