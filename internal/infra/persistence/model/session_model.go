package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionModel mirrors the 'sessions' table. One row per link of a rotation chain.
type SessionModel struct {
	ID                uuid.UUID `gorm:"type:uuid;primary_key"`
	TokenHash         string    `gorm:"type:char(64);uniqueIndex;not null"`
	FamilyID          uuid.UUID `gorm:"type:uuid;index;not null"`
	UserID            uuid.UUID `gorm:"type:uuid;index;not null"`
	DeviceDescription string    `gorm:"type:varchar(255)"`
	UserAgent         string    `gorm:"type:varchar(512)"`
	IPAddress         string    `gorm:"type:varchar(64)"`
	IsRememberMe      bool      `gorm:"not null;default:false"`
	ExpiresAt         time.Time `gorm:"index;not null"`
	CreatedAt         time.Time `gorm:"not null"`
	LastUsedAt        *time.Time
	Revoked           bool `gorm:"not null;default:false"`
	RevokedAt         *time.Time
	ReplacedBy        *uuid.UUID `gorm:"type:uuid"`
}

// TableName explicitly sets the table name for GORM.
func (SessionModel) TableName() string {
	return "sessions"
}
