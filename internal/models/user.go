// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the platform role carried by an authenticated actor.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleEditor     Role = "editor"
	RoleAuthor     Role = "author"
	RoleSubscriber Role = "subscriber"
	RoleReader     Role = "reader"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleAuthor, RoleSubscriber, RoleReader:
		return true
	}
	return false
}

// Elevated reports whether the role may moderate content it does not own.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleEditor
}

// CanAuthor reports whether the role may create posts.
func (r Role) CanAuthor() bool {
	return r == RoleAdmin || r == RoleEditor || r == RoleAuthor
}

// Actor is the authenticated caller of a mutating operation.
type Actor struct {
	UserID uuid.UUID
	Role   Role
	// Username is the name the token carries, if any.
	Username string
}

// MaxUsernameLength bounds usernames, in bytes.
const MaxUsernameLength = 50

// User is a platform account. Credentials live with the identity provider.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Username  string    `gorm:"size:50;not null;uniqueIndex" json:"username"`
	FullName  string    `gorm:"size:100" json:"full_name"`
	Role      Role      `gorm:"type:varchar(20);not null;default:'reader'" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns an id when the caller did not.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = RoleReader
	}
	return nil
}

// DisplayName prefers the full name and falls back to the username.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}
