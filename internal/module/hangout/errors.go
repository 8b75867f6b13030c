package hangout

import "errors"

// Module errors.
var (
	ErrHangoutNotFound = errors.New("Hangout not found")
	ErrNotOwner        = errors.New("Only the owner can modify this hangout")

	ErrInvalidTitle      = errors.New("Title is required")
	ErrInvalidVisibility = errors.New("Invalid visibility")
	ErrInvalidStatus     = errors.New("Invalid status")
	ErrInvalidDate       = errors.New("Invalid date format")

	ErrSuggestionDeadlinePast = errors.New("Suggestion deadline must be in the future")
	ErrVotingDeadlinePast     = errors.New("Voting deadline must be in the future")
	ErrDeadlineOrder          = errors.New("Suggestion deadline must be before voting deadline")

	ErrSuggestionLocationRequired = errors.New("Location suggestions require a location name")
	ErrSuggestionActivityRequired = errors.New("Activity suggestions require an activity name")
	ErrSuggestionTimeRequired     = errors.New("Time suggestions require a date and start time")
	ErrInvalidSuggestionType      = errors.New("Invalid suggestion type")
)
