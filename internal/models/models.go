package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var Roles = []string{RoleUser, RoleAdmin}

func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"                  json:"id"`
	Email        string    `gorm:"uniqueIndex:idx_users_email;not null" json:"email"`
	Name         string    `gorm:"not null"                              json:"name"`
	PasswordHash string    `gorm:"not null"                              json:"-"`
	Role         string    `gorm:"not null;default:user"                 json:"role"`
	Active       bool      `gorm:"not null;default:true"                 json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"                       json:"-"`
	Token     string    `gorm:"uniqueIndex:idx_refresh_token;not null" json:"token"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null"         json:"user_id"`
	UserEmail string    `gorm:"not null"                         json:"user_email"`
	ExpiresAt time.Time `gorm:"not null"                         json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
