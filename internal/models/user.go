package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the marketplace role a session carries.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

// User is a marketplace account: a buyer, a dealer/seller or an operator.
type User struct {
	ID         string `gorm:"primaryKey" json:"id"`
	Name       string `gorm:"type:text" json:"name"`
	Role       Role   `gorm:"type:text;not null;default:customer" json:"role"`
	TelegramID int64  `gorm:"index" json:"-"` // 0 when the account is not linked
	Language   string `gorm:"type:text;default:en" json:"language"`
}

// BeforeCreate is a GORM hook that assigns a UUID when the ID is empty.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}
