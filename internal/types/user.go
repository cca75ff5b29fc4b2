// Package types defines the wire-level schemas exchanged with the external
// user-data provider and the API clients.
package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/userpipe/userpipe/internal/db/models"
)

// Address is the nested address object of the external user schema
type Address struct {
	Street  string            `json:"street"`
	Suite   string            `json:"suite"`
	City    string            `json:"city"`
	Zipcode string            `json:"zipcode"`
	Geo     map[string]string `json:"geo,omitempty"`
}

// Company is the nested company object of the external user schema
type Company struct {
	Name        string `json:"name"`
	CatchPhrase string `json:"catchPhrase"`
	BS          string `json:"bs"`
}

// ExternalUser is one raw record returned by the external provider
type ExternalUser struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone"`
	Website  string   `json:"website"`
	Address  *Address `json:"address,omitempty"`
	Company  *Company `json:"company,omitempty"`
}

// UserCreate is the internal schema a validated external record is
// transformed into before it is persisted
type UserCreate struct {
	Name     string   `json:"name"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone,omitempty"`
	Website  string   `json:"website,omitempty"`
	Address  *Address `json:"address,omitempty"`
	Company  *Company `json:"company,omitempty"`
}

// Validate ensures the record carries the fields the user table requires
func (u *UserCreate) Validate() error {
	if u.Name == "" {
		return fmt.Errorf("name is required")
	}
	if u.Username == "" {
		return fmt.Errorf("username is required")
	}
	if u.Email == "" || !strings.Contains(u.Email, "@") {
		return fmt.Errorf("invalid email: %q", u.Email)
	}
	return nil
}

// Transform converts a raw external record into the internal schema,
// validating it on the way
func (e *ExternalUser) Transform() (*UserCreate, error) {
	user := &UserCreate{
		Name:     e.Name,
		Username: e.Username,
		Email:    e.Email,
		Phone:    e.Phone,
		Website:  e.Website,
		Address:  e.Address,
		Company:  e.Company,
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	return user, nil
}

// ToModel converts the internal schema into the persistence model
func (u *UserCreate) ToModel() (*models.User, error) {
	user := &models.User{
		Name:     u.Name,
		Username: u.Username,
		Email:    u.Email,
		Phone:    u.Phone,
		Website:  u.Website,
	}
	if u.Address != nil {
		raw, err := json.Marshal(u.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to encode address: %w", err)
		}
		user.Address = raw
	}
	if u.Company != nil {
		raw, err := json.Marshal(u.Company)
		if err != nil {
			return nil, fmt.Errorf("failed to encode company: %w", err)
		}
		user.Company = raw
	}
	return user, nil
}
