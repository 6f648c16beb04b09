package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleAdmin   UserRole = "admin"
)

// Roles lists every role in display order.
var Roles = []UserRole{RoleStudent, RoleTeacher, RoleAdmin}

func (r UserRole) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// ParseRole accepts only the closed set of roles.
func ParseRole(s string) (UserRole, error) {
	r := UserRole(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
	}
	return r, nil
}

type User struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Username     string   `gorm:"uniqueIndex;size:80;not null" validate:"required,max=80"`
	PasswordHash string   `gorm:"size:120;not null" json:"-" validate:"required"`
	Role         UserRole `gorm:"type:varchar(20);not null" validate:"role"`
	DisplayName  string   `gorm:"size:100" validate:"max=100"`
}

// Label is what the UI shows for a user: display name, falling back to username.
func (u User) Label() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

func (u *User) Validate() error {
	return check(u)
}

func (u *User) BeforeSave(*gorm.DB) error {
	return u.Validate()
}
