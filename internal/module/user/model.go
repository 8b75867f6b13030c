package user

import (
	"time"

	"github.com/google/uuid"
)

// MaxPushTokens is the cap on stored push tokens per user.
const MaxPushTokens = 10

// User represents an application user. Identity lives in the external
// identity provider; this record is materialized from its webhook events.
type User struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Email      string     `json:"email" gorm:"uniqueIndex;not null"`
	Name       string     `json:"name"`
	ImageURL   string     `json:"image_url,omitempty"`
	PushTokens []string   `json:"-" gorm:"serializer:json"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName returns the database table name.
func (User) TableName() string {
	return "users"
}

// HasPushToken returns true if the token is already stored.
func (u *User) HasPushToken(token string) bool {
	for _, t := range u.PushTokens {
		if t == token {
			return true
		}
	}
	return false
}

// EventData is the identity-provider payload describing a user.
type EventData struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	ImageURL string    `json:"image_url"`
}

// PushTokenInput is the input payload of the push-token-update workflow.
type PushTokenInput struct {
	UserID uuid.UUID `json:"user_id"`
	Token  string    `json:"token"`
}
