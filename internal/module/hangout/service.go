package hangout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hangouthub/server/internal/utils/pagination"
)

// Service handles hangout business logic.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService creates a new hangout service.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// validateDeadlines checks the group decision deadline pair. Each supplied
// deadline must be in the future; when both are present the suggestion
// deadline must come first.
func validateDeadlines(suggestion, voting *time.Time, now time.Time) error {
	if suggestion != nil && !suggestion.After(now) {
		return ErrSuggestionDeadlinePast
	}
	if voting != nil && !voting.After(now) {
		return ErrVotingDeadlinePast
	}
	if suggestion != nil && voting != nil && !suggestion.Before(*voting) {
		return ErrDeadlineOrder
	}
	return nil
}

// validateSuggestionInput checks the type-conditional payload.
func validateSuggestionInput(input SuggestionInput) error {
	switch input.Type {
	case SuggestionTypeLocation:
		if input.LocationName == nil || *input.LocationName == "" {
			return ErrSuggestionLocationRequired
		}
	case SuggestionTypeActivity:
		if input.ActivityName == nil || *input.ActivityName == "" {
			return ErrSuggestionActivityRequired
		}
	case SuggestionTypeTime:
		if input.Date == nil || *input.Date == "" || input.StartTime == nil || *input.StartTime == "" {
			return ErrSuggestionTimeRequired
		}
	default:
		return ErrInvalidSuggestionType
	}
	return nil
}

// Create creates a hangout and its attached suggestions in one transaction.
func (s *Service) Create(ctx context.Context, req *CreateHangoutRequest, ownerID uuid.UUID) (*Hangout, error) {
	if req.Title == "" {
		return nil, ErrInvalidTitle
	}

	visibility := req.Visibility
	if visibility == "" {
		visibility = VisibilityPrivate
	}
	if !visibility.Valid() {
		return nil, ErrInvalidVisibility
	}

	h := &Hangout{
		UUID:              uuid.New(),
		OwnerID:           ownerID,
		Title:             req.Title,
		Description:       req.Description,
		Location:          req.Location,
		Latitude:          req.Latitude,
		Longitude:         req.Longitude,
		Visibility:        visibility,
		Status:            StatusPending,
		CollaborationMode: req.CollaborationMode,
	}

	if req.Date != nil && *req.Date != "" {
		date, err := parseDate(*req.Date)
		if err != nil {
			return nil, err
		}
		h.Date = &date
	}

	if req.CollaborationMode {
		h.AnonymousSuggestions = req.AnonymousSuggestions
		h.AnonymousVotes = req.AnonymousVotes
		h.VotesPerPerson = req.VotesPerPerson
		h.SuggestionsPerPerson = req.SuggestionsPerPerson

		if req.SuggestionDeadline != nil || req.VotingDeadline != nil {
			if err := validateDeadlines(req.SuggestionDeadline, req.VotingDeadline, time.Now()); err != nil {
				return nil, err
			}
			h.SuggestionDeadline = req.SuggestionDeadline
			h.VotingDeadline = req.VotingDeadline
		}
	}

	suggestions := make([]*Suggestion, 0, len(req.Suggestions))
	for _, input := range req.Suggestions {
		if err := validateSuggestionInput(input); err != nil {
			return nil, err
		}

		sg := &Suggestion{
			Type:         input.Type,
			Status:       SuggestionStatusPending,
			LocationName: input.LocationName,
			ActivityName: input.ActivityName,
			StartTime:    input.StartTime,
			SuggestedBy:  ownerID,
		}
		if input.Date != nil && *input.Date != "" {
			date, err := parseDate(*input.Date)
			if err != nil {
				return nil, err
			}
			sg.Date = &date
		}
		suggestions = append(suggestions, sg)
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	txRepo := s.repo.WithTx(tx)

	if err := txRepo.Create(ctx, h); err != nil {
		return nil, err
	}

	for _, sg := range suggestions {
		sg.HangoutID = h.ID
	}
	if err := txRepo.CreateSuggestions(ctx, suggestions); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	s.logger.Info("hangout created",
		zap.String("hangout_id", h.ID.String()),
		zap.String("owner_id", ownerID.String()),
		zap.Bool("collaboration_mode", h.CollaborationMode),
		zap.Int("suggestions", len(suggestions)),
	)

	return h, nil
}

// Update applies a partial update. Only the owner may update a hangout.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req *UpdateHangoutRequest, requesterID uuid.UUID) (*Hangout, error) {
	h, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !h.IsOwnedBy(requesterID) {
		return nil, ErrNotOwner
	}

	if req.Title != nil {
		if *req.Title == "" {
			return nil, ErrInvalidTitle
		}
		h.Title = *req.Title
	}
	if req.Description != nil {
		h.Description = *req.Description
	}
	if req.Location != nil {
		// Empty string clears the location
		h.Location = *req.Location
		if *req.Location == "" {
			h.Latitude = nil
			h.Longitude = nil
		}
	}
	if req.Latitude != nil {
		h.Latitude = req.Latitude
	}
	if req.Longitude != nil {
		h.Longitude = req.Longitude
	}
	if req.Date != nil {
		if *req.Date == "" {
			h.Date = nil
		} else {
			date, err := parseDate(*req.Date)
			if err != nil {
				return nil, err
			}
			h.Date = &date
		}
	}
	if req.Visibility != nil {
		if !req.Visibility.Valid() {
			return nil, ErrInvalidVisibility
		}
		h.Visibility = *req.Visibility
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, ErrInvalidStatus
		}
		h.Status = *req.Status
	}
	if req.CollaborationMode != nil {
		h.CollaborationMode = *req.CollaborationMode
	}
	if req.AnonymousSuggestions != nil {
		h.AnonymousSuggestions = *req.AnonymousSuggestions
	}
	if req.AnonymousVotes != nil {
		h.AnonymousVotes = *req.AnonymousVotes
	}
	if req.VotesPerPerson != nil {
		h.VotesPerPerson = req.VotesPerPerson
	}
	if req.SuggestionsPerPerson != nil {
		h.SuggestionsPerPerson = req.SuggestionsPerPerson
	}

	if req.hasGroupDecisionSettings() {
		suggestion := h.SuggestionDeadline
		voting := h.VotingDeadline
		if req.SuggestionDeadline != nil {
			suggestion = req.SuggestionDeadline
		}
		if req.VotingDeadline != nil {
			voting = req.VotingDeadline
		}
		if err := validateDeadlines(suggestion, voting, time.Now()); err != nil {
			return nil, err
		}
		h.SuggestionDeadline = suggestion
		h.VotingDeadline = voting
	}

	if err := s.repo.Update(ctx, h); err != nil {
		return nil, err
	}

	s.logger.Info("hangout updated",
		zap.String("hangout_id", h.ID.String()),
		zap.String("requester_id", requesterID.String()),
	)

	return h, nil
}

// Delete removes a hangout and everything attached to it.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, requesterID uuid.UUID) error {
	h, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !h.IsOwnedBy(requesterID) {
		return ErrNotOwner
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.repo.WithTx(tx).Delete(ctx, id); err != nil {
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return err
	}

	s.logger.Info("hangout deleted",
		zap.String("hangout_id", id.String()),
		zap.String("requester_id", requesterID.String()),
	)

	return nil
}

// GetByID returns a hangout if the viewer may see it. A nil viewer is an
// anonymous caller. Hidden hangouts are reported as not found.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID, viewerID *uuid.UUID) (*Hangout, error) {
	h, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !h.VisibleTo(viewerID) {
		return nil, ErrHangoutNotFound
	}
	return h, nil
}

// GetByUUID returns a hangout by public uuid under the same visibility rules.
func (s *Service) GetByUUID(ctx context.Context, u uuid.UUID, viewerID *uuid.UUID) (*Hangout, error) {
	h, err := s.repo.GetByUUID(ctx, u)
	if err != nil {
		return nil, err
	}
	if !h.VisibleTo(viewerID) {
		return nil, ErrHangoutNotFound
	}
	return h, nil
}

// List returns visible hangouts for the viewer with offset paging.
func (s *Service) List(ctx context.Context, query *ListHangoutsQuery, viewerID *uuid.UUID) (*ListHangoutsResult, error) {
	p, err := pagination.FromToken(query.NextToken, query.Limit)
	if err != nil {
		return nil, err
	}

	filters := ListFilters{
		ViewerID:          viewerID,
		Search:            query.Q,
		CollaborationMode: query.CollaborationMode,
		Status:            query.Status,
	}
	if query.From != nil && *query.From != "" {
		from, err := parseDate(*query.From)
		if err != nil {
			return nil, err
		}
		filters.From = &from
	}
	if query.To != nil && *query.To != "" {
		to, err := parseDate(*query.To)
		if err != nil {
			return nil, err
		}
		filters.To = &to
	}

	hangouts, total, err := s.repo.List(ctx, filters, p.Limit(), p.Offset)
	if err != nil {
		return nil, err
	}

	return &ListHangoutsResult{
		Hangouts:  hangouts,
		NextToken: p.NextToken(len(hangouts), total),
		Total:     total,
	}, nil
}
