package hangout

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Visibility controls who can view a hangout.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilityFriends Visibility = "friends"
)

// Valid reports whether v is a known visibility value.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityFriends:
		return true
	}
	return false
}

// Status represents the lifecycle status of a hangout.
type Status string

const (
	StatusPending   Status = "pending"
	StatusFinalized Status = "finalized"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusFinalized, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// SuggestionType classifies what a suggestion proposes.
type SuggestionType string

const (
	SuggestionTypeLocation SuggestionType = "location"
	SuggestionTypeActivity SuggestionType = "activity"
	SuggestionTypeTime     SuggestionType = "time"
)

// SuggestionStatus represents the review status of a suggestion.
type SuggestionStatus string

const (
	SuggestionStatusPending  SuggestionStatus = "pending"
	SuggestionStatusAccepted SuggestionStatus = "accepted"
	SuggestionStatusRejected SuggestionStatus = "rejected"
)

// Hangout represents a planned or proposed event owned by a user.
type Hangout struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UUID        uuid.UUID `json:"uuid" gorm:"type:uuid;uniqueIndex;not null"`
	OwnerID     uuid.UUID `json:"owner_id" gorm:"type:uuid;not null;index"`
	Title       string    `json:"title" gorm:"not null"`
	Description string    `json:"description,omitempty"`

	Location  string     `json:"location,omitempty"`
	Latitude  *float64   `json:"latitude,omitempty"`
	Longitude *float64   `json:"longitude,omitempty"`
	Date      *time.Time `json:"date,omitempty"`

	Visibility        Visibility `json:"visibility" gorm:"not null;default:private"`
	Status            Status     `json:"status" gorm:"not null;default:pending"`
	CollaborationMode bool       `json:"collaboration_mode" gorm:"not null;default:false"`

	// Group decision settings, meaningful only in collaboration mode.
	AnonymousSuggestions bool       `json:"anonymous_suggestions" gorm:"not null;default:false"`
	AnonymousVotes       bool       `json:"anonymous_votes" gorm:"not null;default:false"`
	VotesPerPerson       *int       `json:"votes_per_person,omitempty"`
	SuggestionsPerPerson *int       `json:"suggestions_per_person,omitempty"`
	SuggestionDeadline   *time.Time `json:"suggestion_deadline,omitempty"`
	VotingDeadline       *time.Time `json:"voting_deadline,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations (not loaded by default)
	Suggestions []Suggestion `json:"suggestions,omitempty" gorm:"foreignKey:HangoutID"`
}

// TableName returns the database table name.
func (Hangout) TableName() string {
	return "hangouts"
}

// BeforeCreate assigns the primary id. Generated here rather than by the
// database so sqlite-backed tests behave like postgres.
func (h *Hangout) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// IsOwnedBy returns true if the hangout belongs to the given user.
func (h *Hangout) IsOwnedBy(userID uuid.UUID) bool {
	return h.OwnerID == userID
}

// VisibleTo reports whether the given viewer may see this hangout. A nil
// viewer is an anonymous caller. Private and friends hangouts are visible
// only to their owner; friends visibility never consults a friendship
// relation.
func (h *Hangout) VisibleTo(viewerID *uuid.UUID) bool {
	if h.Visibility == VisibilityPublic {
		return true
	}
	return viewerID != nil && h.OwnerID == *viewerID
}

// Suggestion represents a proposed location, activity or time attached to a
// hangout. Payload fields are conditionally required by Type.
type Suggestion struct {
	ID        uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	HangoutID uuid.UUID        `json:"hangout_id" gorm:"type:uuid;not null;index"`
	Type      SuggestionType   `json:"type" gorm:"not null"`
	Status    SuggestionStatus `json:"status" gorm:"not null;default:pending"`

	LocationName *string    `json:"location_name,omitempty"`
	ActivityName *string    `json:"activity_name,omitempty"`
	Date         *time.Time `json:"date,omitempty"`
	StartTime    *string    `json:"start_time,omitempty"`

	SuggestedBy uuid.UUID `json:"suggested_by" gorm:"type:uuid;not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (Suggestion) TableName() string {
	return "hangout_suggestions"
}

// BeforeCreate assigns the primary id.
func (s *Suggestion) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
