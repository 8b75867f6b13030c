package collaboration

import "errors"

// Module errors.
var (
	ErrHangoutNotFound      = errors.New("Hangout not found")
	ErrCollaboratorNotFound = errors.New("Collaborator not found")
	ErrInvitationNotFound   = errors.New("Invitation not found")

	ErrNotCollaborationMode  = errors.New("Cannot add collaborators to a hangout not in collaboration mode")
	ErrAlreadyCollaborator   = errors.New("User is already a collaborator")
	ErrCannotRemoveOrganizer = errors.New("Cannot remove the organizer")
	ErrAlreadyInvited        = errors.New("User is already invited")
	ErrSelfInvite            = errors.New("Cannot invite yourself")
	ErrPendingResponse       = errors.New("Cannot respond with pending status")

	ErrNotOwner      = errors.New("Only the owner can perform this action")
	ErrNotAuthorized = errors.New("Not authorized to perform this action")
	ErrNotInvitee    = errors.New("Only the invitee can respond to this invitation")
	ErrInvalidRole   = errors.New("Invalid role")
	ErrInvalidStatus = errors.New("Invalid invitation status")
)
