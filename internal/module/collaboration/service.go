package collaboration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hangouthub/server/internal/module/hangout"
	"github.com/hangouthub/server/internal/module/workflow"
	"github.com/hangouthub/server/internal/shared/monitoring"
	"github.com/hangouthub/server/internal/utils/pagination"
)

// HangoutStore is the slice of the hangout module the service needs.
type HangoutStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*hangout.Hangout, error)
}

// Service handles collaboration business logic.
type Service struct {
	repo     Repository
	hangouts HangoutStore
	engine   *workflow.Engine
	reporter monitoring.Reporter
	logger   *zap.Logger
}

// NewService creates a new collaboration service.
func NewService(repo Repository, hangouts HangoutStore, engine *workflow.Engine, reporter monitoring.Reporter, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		hangouts: hangouts,
		engine:   engine,
		reporter: reporter,
		logger:   logger,
	}
}

// AddCollaborator adds a user as collaborator on a hangout. Only the owner
// may add collaborators, and only while the hangout is in collaboration mode.
func (s *Service) AddCollaborator(ctx context.Context, hangoutID, userID uuid.UUID, role *Role, requesterID uuid.UUID) (*Collaborator, error) {
	h, err := s.hangouts.GetByID(ctx, hangoutID)
	if err != nil {
		if errors.Is(err, hangout.ErrHangoutNotFound) {
			return nil, ErrHangoutNotFound
		}
		return nil, err
	}
	if !h.CollaborationMode {
		return nil, ErrNotCollaborationMode
	}
	if !h.IsOwnedBy(requesterID) {
		return nil, ErrNotOwner
	}

	collaboratorRole := RoleCollaborator
	if role != nil {
		if !role.Valid() {
			return nil, ErrInvalidRole
		}
		collaboratorRole = *role
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	txRepo := s.repo.WithTx(tx)

	// Check-then-act; the unique constraint is the final arbiter.
	if _, err := txRepo.GetCollaborator(ctx, hangoutID, userID); err == nil {
		return nil, ErrAlreadyCollaborator
	} else if !errors.Is(err, ErrCollaboratorNotFound) {
		return nil, err
	}

	collaborator := &Collaborator{
		HangoutID: hangoutID,
		UserID:    userID,
		Role:      collaboratorRole,
		InvitedBy: &requesterID,
	}
	if err := txRepo.CreateCollaborator(ctx, collaborator); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	s.logger.Info("collaborator added",
		zap.String("hangout_id", hangoutID.String()),
		zap.String("user_id", userID.String()),
		zap.String("role", string(collaboratorRole)),
	)

	return collaborator, nil
}

// RemoveCollaborator removes a collaborator. The organizer role cannot be
// removed.
func (s *Service) RemoveCollaborator(ctx context.Context, hangoutID, userID, requesterID uuid.UUID) error {
	h, err := s.hangouts.GetByID(ctx, hangoutID)
	if err != nil {
		if errors.Is(err, hangout.ErrHangoutNotFound) {
			return ErrHangoutNotFound
		}
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

	txRepo := s.repo.WithTx(tx)

	collaborator, err := txRepo.GetCollaborator(ctx, hangoutID, userID)
	if err != nil {
		return err
	}
	if collaborator.Role == RoleOrganizer {
		return ErrCannotRemoveOrganizer
	}

	if err := txRepo.DeleteCollaborator(ctx, hangoutID, userID); err != nil {
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return err
	}

	s.logger.Info("collaborator removed",
		zap.String("hangout_id", hangoutID.String()),
		zap.String("user_id", userID.String()),
	)

	return nil
}

// InviteUser invites a user to a hangout. The owner may always invite; other
// collaborators may invite only in collaboration mode.
func (s *Service) InviteUser(ctx context.Context, hangoutID, inviteeID uuid.UUID, message string, requesterID uuid.UUID) (*Invitation, error) {
	h, err := s.hangouts.GetByID(ctx, hangoutID)
	if err != nil {
		if errors.Is(err, hangout.ErrHangoutNotFound) {
			return nil, ErrHangoutNotFound
		}
		return nil, err
	}
	if inviteeID == requesterID {
		return nil, ErrSelfInvite
	}

	if !h.IsOwnedBy(requesterID) {
		if !h.CollaborationMode {
			return nil, ErrNotAuthorized
		}
		if _, err := s.repo.GetCollaborator(ctx, hangoutID, requesterID); err != nil {
			if errors.Is(err, ErrCollaboratorNotFound) {
				return nil, ErrNotAuthorized
			}
			return nil, err
		}
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	txRepo := s.repo.WithTx(tx)

	// Any existing invitation for this invitee blocks a new one, regardless
	// of its status.
	if _, err := txRepo.GetInvitation(ctx, hangoutID, inviteeID); err == nil {
		return nil, ErrAlreadyInvited
	} else if !errors.Is(err, ErrInvitationNotFound) {
		return nil, err
	}

	invitation := &Invitation{
		HangoutID: hangoutID,
		InviteeID: inviteeID,
		InviterID: requesterID,
		Status:    InvitationStatusPending,
		Message:   message,
	}
	if err := txRepo.CreateInvitation(ctx, invitation); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	s.logger.Info("user invited",
		zap.String("hangout_id", hangoutID.String()),
		zap.String("invitee_id", inviteeID.String()),
		zap.String("inviter_id", requesterID.String()),
	)

	return invitation, nil
}

// UninviteUser withdraws an invitation. Only the hangout owner or the
// original inviter may withdraw it.
func (s *Service) UninviteUser(ctx context.Context, hangoutID, inviteeID, requesterID uuid.UUID) error {
	h, err := s.hangouts.GetByID(ctx, hangoutID)
	if err != nil {
		if errors.Is(err, hangout.ErrHangoutNotFound) {
			return ErrHangoutNotFound
		}
		return err
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	txRepo := s.repo.WithTx(tx)

	invitation, err := txRepo.GetInvitation(ctx, hangoutID, inviteeID)
	if err != nil {
		return err
	}
	if !h.IsOwnedBy(requesterID) && invitation.InviterID != requesterID {
		return ErrNotAuthorized
	}

	if err := txRepo.DeleteInvitation(ctx, invitation.ID); err != nil {
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return err
	}

	s.logger.Info("invitation withdrawn",
		zap.String("hangout_id", hangoutID.String()),
		zap.String("invitee_id", inviteeID.String()),
	)

	return nil
}

// RespondToInvitation records the invitee's response. Accepted, declined and
// maybe are all re-enterable; pending is not a valid response. Acceptance
// starts the invitation-accepted workflow without blocking the caller.
func (s *Service) RespondToInvitation(ctx context.Context, invitationID uuid.UUID, status InvitationStatus, requesterID uuid.UUID) (*Invitation, error) {
	if !status.ValidResponse() {
		if status == InvitationStatusPending {
			return nil, ErrPendingResponse
		}
		return nil, ErrInvalidStatus
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	txRepo := s.repo.WithTx(tx)

	invitation, err := txRepo.GetInvitationByID(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if invitation.InviteeID != requesterID {
		return nil, ErrNotInvitee
	}

	now := time.Now()
	if err := txRepo.UpdateInvitationResponse(ctx, invitationID, status, now); err != nil {
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	invitation.Status = status
	invitation.RespondedAt = &now

	s.logger.Info("invitation response recorded",
		zap.String("invitation_id", invitationID.String()),
		zap.String("status", string(status)),
	)

	if status == InvitationStatusAccepted {
		s.startAcceptedWorkflow(ctx, invitation)
	}

	return invitation, nil
}

// startAcceptedWorkflow starts the invitation-accepted pipeline. The
// response has already committed, so start failures are reported but never
// surfaced as a mutation failure. The workflow id is derived from the
// invitation alone, so a repeated acceptance reuses the original run.
func (s *Service) startAcceptedWorkflow(ctx context.Context, invitation *Invitation) {
	workflowID := fmt.Sprintf("%s-%s", WorkflowInvitationAccepted, invitation.ID)
	input := &AcceptedInput{
		InvitationID: invitation.ID,
		HangoutID:    invitation.HangoutID,
		InviteeID:    invitation.InviteeID,
		InviterID:    invitation.InviterID,
	}

	err := s.engine.Start(ctx, WorkflowInvitationAccepted, workflowID, input)
	if err != nil {
		if errors.Is(err, workflow.ErrAlreadyStarted) {
			s.logger.Debug("invitation-accepted workflow already started",
				zap.String("workflow_id", workflowID))
			return
		}
		s.logger.Error("failed to start invitation-accepted workflow",
			zap.String("workflow_id", workflowID),
			zap.Error(err))
		s.reporter.ReportError(ctx, err, map[string]string{
			"component":   "collaboration",
			"workflow_id": workflowID,
		})
	}
}

// GetCollaborators returns a cursor-paginated connection of a hangout's
// collaborators. The hangout must be visible to the requester.
func (s *Service) GetCollaborators(ctx context.Context, hangoutID uuid.UUID, args pagination.Args, requesterID *uuid.UUID) (*pagination.Connection[*Collaborator], error) {
	h, err := s.hangouts.GetByID(ctx, hangoutID)
	if err != nil {
		if errors.Is(err, hangout.ErrHangoutNotFound) {
			return nil, ErrHangoutNotFound
		}
		return nil, err
	}
	if !h.VisibleTo(requesterID) {
		return nil, ErrHangoutNotFound
	}

	w, err := args.Window(CollaboratorPageSize, 0)
	if err != nil {
		return nil, err
	}

	collaborators, err := s.repo.ListCollaborators(ctx, hangoutID, w)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.CountCollaborators(ctx, hangoutID)
	if err != nil {
		return nil, err
	}

	return pagination.Build(collaborators, w, total, func(c *Collaborator) time.Time {
		return c.CreatedAt
	}), nil
}

// GetInvitations returns a cursor-paginated connection of invitations the
// requester may see.
func (s *Service) GetInvitations(ctx context.Context, query *ListInvitationsQuery, requesterID uuid.UUID) (*pagination.Connection[*Invitation], error) {
	if query.Status != nil {
		switch *query.Status {
		case InvitationStatusPending, InvitationStatusAccepted, InvitationStatusDeclined, InvitationStatusMaybe:
		default:
			return nil, ErrInvalidStatus
		}
	}

	w, err := query.Args.Window(InvitationPageSize, InvitationMaxPageSize)
	if err != nil {
		return nil, err
	}

	filters := InvitationFilters{
		RequesterID: requesterID,
		Status:      query.Status,
		HangoutID:   query.HangoutID,
	}

	invitations, err := s.repo.ListInvitations(ctx, filters, w)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.CountInvitations(ctx, filters)
	if err != nil {
		return nil, err
	}

	return pagination.Build(invitations, w, total, func(i *Invitation) time.Time {
		return i.CreatedAt
	}), nil
}
