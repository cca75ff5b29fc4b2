package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Field names for the queue message model
const (
	// MessageStateField is the field name for the message delivery state
	MessageStateField = "state"
	// MessageNotBeforeField is the field name for the earliest delivery time
	MessageNotBeforeField = "not_before"
)

// MessageState represents the delivery state of a queued message
type MessageState string

// Message state constants
const (
	// MessageStatePending indicates the message is waiting to be leased
	MessageStatePending MessageState = "pending"
	// MessageStateLeased indicates a worker holds an exclusive lease on the message
	MessageStateLeased MessageState = "leased"
)

// Message is a durable queue row. A pending row is claimed by exactly one
// worker via a conditional update; an acknowledged row is deleted; a leased
// row whose lease expired becomes pending again without losing its attempt
// count.
type Message struct {
	gorm.Model
	MessageID      string          `json:"message_id" gorm:"not null;uniqueIndex"`
	Queue          string          `json:"queue" gorm:"not null;index"`
	JobID          string          `json:"job_id" gorm:"not null;index"`
	Stage          string          `json:"stage" gorm:"not null"`
	Payload        json.RawMessage `json:"payload,omitempty" gorm:"type:jsonb"`
	Attempts       int             `json:"attempts" gorm:"not null;default:0"`
	State          MessageState    `json:"state" gorm:"not null;index"`
	NotBefore      time.Time       `json:"not_before" gorm:"index"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty" gorm:"index"`
	FailureStage   string          `json:"failure_stage,omitempty"`
	FailedStage    string          `json:"failed_stage,omitempty"`
	ErrorText      string          `json:"error_text,omitempty" gorm:"type:text"`
}

// String returns the string representation of the message state
func (s MessageState) String() string {
	return string(s)
}

// Validate ensures that the message data is valid
func (m *Message) Validate() error {
	if m.MessageID == "" {
		return fmt.Errorf("message id cannot be empty")
	}
	if m.Stage == "" {
		return fmt.Errorf("message stage cannot be empty")
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new message
func (m *Message) BeforeCreate(_ *gorm.DB) error {
	if m.State == "" {
		m.State = MessageStatePending
	}
	return m.Validate()
}
