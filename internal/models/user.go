package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Operator account roles
const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"
	RoleScorer   = "scorer"
)

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User is an operator (or service) account allowed to call the console API.
type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string     `gorm:"uniqueIndex;not null" json:"email"`
	Password     string     `gorm:"not null" json:"-"`
	Name         string     `gorm:"not null" json:"name"`
	Role         string     `gorm:"size:16;not null;default:'operator'" json:"role"`
	Status       string     `gorm:"size:16;not null;default:'active'" json:"status"`
	TokenVersion int        `gorm:"not null;default:1" json:"token_version"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
