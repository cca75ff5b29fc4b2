package models

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
)

// UserUsernameField is the field name for the unique username column
const UserUsernameField = "username"

// User represents a user imported from the external provider
type User struct {
	gorm.Model
	Name     string          `json:"name" gorm:"not null"`
	Username string          `json:"username" gorm:"not null;uniqueIndex"`
	Email    string          `json:"email" gorm:"not null;uniqueIndex"`
	Phone    string          `json:"phone,omitempty"`
	Website  string          `json:"website,omitempty"`
	Address  json.RawMessage `json:"address,omitempty" gorm:"type:jsonb"`
	Company  json.RawMessage `json:"company,omitempty" gorm:"type:jsonb"`
}

// Validate ensures that the user data is valid
func (u *User) Validate() error {
	if u.Username == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if u.Email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new user
func (u *User) BeforeCreate(_ *gorm.DB) error {
	return u.Validate()
}
