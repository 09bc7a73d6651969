package auth

import (
	"time"

	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAnalyst Role = "analyst"
	RoleReader  Role = "reader"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAnalyst, RoleReader:
		return true
	}
	return false
}

// UserRecord is the persisted identity row. It never leaves this package;
// callers receive User instead.
type UserRecord struct {
	gorm.Model     `json:"-"`
	UserID         string     `gorm:"uniqueIndex;size:36"`
	Username       string     `gorm:"uniqueIndex;size:100"`
	Email          string     `gorm:"size:254"`
	FirstName      string     `gorm:"size:150"`
	LastName       string     `gorm:"size:150"`
	HashedPassword string     `json:"-"`
	Role           Role       `gorm:"size:16"`
	OrgID          string     `gorm:"index;size:36"`
	LastLoginAt    *time.Time
}

func (UserRecord) TableName() string { return "users" }

// SessionRecord is a server side session. Only the SHA-256 of the cookie
// token is stored.
type SessionRecord struct {
	ID        uint      `gorm:"primarykey"`
	TokenHash string    `gorm:"uniqueIndex;size:64"`
	UserID    string    `gorm:"index;size:36"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
}

func (SessionRecord) TableName() string { return "sessions" }

// User is the public view of an identity. It carries no credential material.
type User struct {
	ID          string     `json:"user_id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name,omitempty"`
	LastName    string     `json:"last_name,omitempty"`
	Role        Role       `json:"role"`
	OrgID       string     `json:"org_id"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func (r *UserRecord) toUser() User {
	return User{
		ID:          r.UserID,
		Username:    r.Username,
		Email:       r.Email,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		Role:        r.Role,
		OrgID:       r.OrgID,
		CreatedAt:   r.CreatedAt,
		LastLoginAt: r.LastLoginAt,
	}
}

// Registration is the input to Register.
type Registration struct {
	Username        string `json:"username" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
	FirstName       string `json:"first_name" validate:"max=150"`
	LastName        string `json:"last_name" validate:"max=150"`
	// OrgID joins an existing organization. A new one is created when empty.
	OrgID string `json:"org_id" validate:"omitempty,max=36"`
}

// ProfileUpdate carries the editable profile fields. Nil fields are left
// unchanged.
type ProfileUpdate struct {
	Email     *string `json:"email" validate:"omitempty,email,max=254"`
	FirstName *string `json:"first_name" validate:"omitempty,max=150"`
	LastName  *string `json:"last_name" validate:"omitempty,max=150"`
}

// Credentials is a username and password pair.
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse represents the JWT token response
type TokenResponse struct {
	Token      string    `json:"jwt_token"`
	Expiration time.Time `json:"expiration"`
}
