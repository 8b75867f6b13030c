package collaboration

import (
	"github.com/google/uuid"

	"github.com/hangouthub/server/internal/utils/pagination"
)

// Page sizes.
const (
	CollaboratorPageSize  = 20
	InvitationPageSize    = 20
	InvitationMaxPageSize = 100
)

// AddCollaboratorRequest is the payload for adding a collaborator.
type AddCollaboratorRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	Role   *Role     `json:"role,omitempty"`
}

// InviteUserRequest is the payload for inviting a user.
type InviteUserRequest struct {
	InviteeID uuid.UUID `json:"invitee_id" binding:"required"`
	Message   string    `json:"message,omitempty"`
}

// RespondRequest is the payload for responding to an invitation.
type RespondRequest struct {
	Status InvitationStatus `json:"status" binding:"required"`
}

// ListInvitationsQuery carries invitation list filters plus cursor args.
type ListInvitationsQuery struct {
	pagination.Args
	Status    *InvitationStatus `form:"status"`
	HangoutID *uuid.UUID        `form:"hangout_id"`
}

// InvitationFilters are the resolved repository-level filters. The requester
// predicate restricts results to invitations where the requester is the
// invitee, the inviter, or the owning hangout's owner.
type InvitationFilters struct {
	RequesterID uuid.UUID
	Status      *InvitationStatus
	HangoutID   *uuid.UUID
}
