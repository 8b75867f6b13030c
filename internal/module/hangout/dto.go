package hangout

import (
	"time"

	"github.com/google/uuid"
)

// dateLayout is the accepted format for date-only input fields.
const dateLayout = "2006-01-02"

// parseDate parses a date-only or RFC3339 input string.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// SuggestionInput is a suggestion submitted with hangout creation.
type SuggestionInput struct {
	Type         SuggestionType `json:"type" binding:"required"`
	LocationName *string        `json:"location_name,omitempty"`
	ActivityName *string        `json:"activity_name,omitempty"`
	Date         *string        `json:"date,omitempty"`
	StartTime    *string        `json:"start_time,omitempty"`
}

// CreateHangoutRequest is the hangout creation payload.
type CreateHangoutRequest struct {
	Title       string   `json:"title" binding:"required"`
	Description string   `json:"description,omitempty"`
	Location    string   `json:"location,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Date        *string  `json:"date,omitempty"`

	Visibility        Visibility `json:"visibility,omitempty"`
	CollaborationMode bool       `json:"collaboration_mode,omitempty"`

	AnonymousSuggestions bool       `json:"anonymous_suggestions,omitempty"`
	AnonymousVotes       bool       `json:"anonymous_votes,omitempty"`
	VotesPerPerson       *int       `json:"votes_per_person,omitempty"`
	SuggestionsPerPerson *int       `json:"suggestions_per_person,omitempty"`
	SuggestionDeadline   *time.Time `json:"suggestion_deadline,omitempty"`
	VotingDeadline       *time.Time `json:"voting_deadline,omitempty"`

	Suggestions []SuggestionInput `json:"suggestions,omitempty"`
}

// UpdateHangoutRequest is a partial update. Nil fields are untouched; an
// explicit empty string on Date or Location clears the stored value.
type UpdateHangoutRequest struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Location    *string  `json:"location,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Date        *string  `json:"date,omitempty"`

	Visibility        *Visibility `json:"visibility,omitempty"`
	Status            *Status     `json:"status,omitempty"`
	CollaborationMode *bool       `json:"collaboration_mode,omitempty"`

	AnonymousSuggestions *bool      `json:"anonymous_suggestions,omitempty"`
	AnonymousVotes       *bool      `json:"anonymous_votes,omitempty"`
	VotesPerPerson       *int       `json:"votes_per_person,omitempty"`
	SuggestionsPerPerson *int       `json:"suggestions_per_person,omitempty"`
	SuggestionDeadline   *time.Time `json:"suggestion_deadline,omitempty"`
	VotingDeadline       *time.Time `json:"voting_deadline,omitempty"`
}

// hasGroupDecisionSettings reports whether the update touches the deadline
// pair that must be re-validated.
func (r *UpdateHangoutRequest) hasGroupDecisionSettings() bool {
	return r.SuggestionDeadline != nil || r.VotingDeadline != nil
}

// ListHangoutsQuery carries list filters.
type ListHangoutsQuery struct {
	Q                 string  `form:"q"`
	From              *string `form:"from"`
	To                *string `form:"to"`
	CollaborationMode *bool   `form:"collaboration_mode"`
	Status            *Status `form:"status"`
	NextToken         string  `form:"next_token"`
	Limit             int     `form:"limit"`
}

// ListHangoutsResult is the list envelope.
type ListHangoutsResult struct {
	Hangouts  []*Hangout `json:"hangouts"`
	NextToken *string    `json:"next_token,omitempty"`
	Total     int64      `json:"total"`
}

// ListFilters are the resolved repository-level filters.
type ListFilters struct {
	ViewerID          *uuid.UUID
	Search            string
	From              *time.Time
	To                *time.Time
	CollaborationMode *bool
	Status            *Status
}
