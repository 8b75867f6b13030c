package collaboration

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/hangouthub/server/internal/shared/errors"
	"github.com/hangouthub/server/internal/shared/monitoring"
	"github.com/hangouthub/server/internal/utils/middleware"
	"github.com/hangouthub/server/internal/utils/pagination"
)

// Handler handles HTTP requests for collaborators and invitations.
type Handler struct {
	service  *Service
	reporter monitoring.Reporter
}

// NewHandler creates a new collaboration handler.
func NewHandler(service *Service, reporter monitoring.Reporter) *Handler {
	return &Handler{
		service:  service,
		reporter: reporter,
	}
}

// RegisterRoutes registers collaboration routes.
func (h *Handler) RegisterRoutes(authed, public *gin.RouterGroup) {
	hangouts := authed.Group("/hangouts")
	{
		hangouts.POST("/:id/collaborators", h.AddCollaborator)
		hangouts.DELETE("/:id/collaborators/:user_id", h.RemoveCollaborator)
		hangouts.POST("/:id/invitations", h.InviteUser)
		hangouts.DELETE("/:id/invitations/:invitee_id", h.UninviteUser)
	}

	invitations := authed.Group("/invitations")
	{
		invitations.GET("", h.ListInvitations)
		invitations.POST("/:id/respond", h.RespondToInvitation)
	}

	public.GET("/hangouts/:id/collaborators", h.ListCollaborators)
}

// AddCollaborator handles adding a collaborator to a hangout.
//
//	@Summary		Add collaborator
//	@Tags			Collaboration
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string					true	"Hangout ID"
//	@Param			request	body		AddCollaboratorRequest	true	"Add collaborator request"
//	@Success		201		{object}	Collaborator
//	@Failure		409		{object}	apperrors.ErrorResponse
//	@Router			/hangouts/{id}/collaborators [post]
func (h *Handler) AddCollaborator(c *gin.Context) {
	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	hangoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hangout id"})
		return
	}

	var req AddCollaboratorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	collaborator, err := h.service.AddCollaborator(c.Request.Context(), hangoutID, req.UserID, req.Role, userID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, collaborator)
}

// RemoveCollaborator handles removing a collaborator.
//
//	@Summary		Remove collaborator
//	@Tags			Collaboration
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path	string	true	"Hangout ID"
//	@Param			user_id	path	string	true	"User ID"
//	@Success		204
//	@Failure		409	{object}	apperrors.ErrorResponse
//	@Router			/hangouts/{id}/collaborators/{user_id} [delete]
func (h *Handler) RemoveCollaborator(c *gin.Context) {
	requesterID, ok := h.getUserID(c)
	if !ok {
		return
	}

	hangoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hangout id"})
		return
	}
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	if err := h.service.RemoveCollaborator(c.Request.Context(), hangoutID, userID, requesterID); err != nil {
		h.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListCollaborators handles listing a hangout's collaborators.
//
//	@Summary		List collaborators
//	@Tags			Collaboration
//	@Produce		json
//	@Param			id		path		string	true	"Hangout ID"
//	@Param			first	query		int		false	"Forward page size"
//	@Param			after	query		string	false	"Forward cursor"
//	@Param			last	query		int		false	"Backward page size"
//	@Param			before	query		string	false	"Backward cursor"
//	@Success		200		{object}	pagination.Connection[Collaborator]
//	@Router			/hangouts/{id}/collaborators [get]
func (h *Handler) ListCollaborators(c *gin.Context) {
	hangoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hangout id"})
		return
	}

	var args pagination.Args
	if err := c.ShouldBindQuery(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.service.GetCollaborators(c.Request.Context(), hangoutID, args, h.tryGetUserID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, conn)
}

// InviteUser handles inviting a user to a hangout.
//
//	@Summary		Invite user
//	@Tags			Collaboration
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string				true	"Hangout ID"
//	@Param			request	body		InviteUserRequest	true	"Invite request"
//	@Success		201		{object}	Invitation
//	@Failure		409		{object}	apperrors.ErrorResponse
//	@Router			/hangouts/{id}/invitations [post]
func (h *Handler) InviteUser(c *gin.Context) {
	requesterID, ok := h.getUserID(c)
	if !ok {
		return
	}

	hangoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hangout id"})
		return
	}

	var req InviteUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	invitation, err := h.service.InviteUser(c.Request.Context(), hangoutID, req.InviteeID, req.Message, requesterID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, invitation)
}

// UninviteUser handles withdrawing an invitation.
//
//	@Summary		Withdraw invitation
//	@Tags			Collaboration
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id			path	string	true	"Hangout ID"
//	@Param			invitee_id	path	string	true	"Invitee ID"
//	@Success		204
//	@Failure		403	{object}	apperrors.ErrorResponse
//	@Router			/hangouts/{id}/invitations/{invitee_id} [delete]
func (h *Handler) UninviteUser(c *gin.Context) {
	requesterID, ok := h.getUserID(c)
	if !ok {
		return
	}

	hangoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hangout id"})
		return
	}
	inviteeID, err := uuid.Parse(c.Param("invitee_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invitee id"})
		return
	}

	if err := h.service.UninviteUser(c.Request.Context(), hangoutID, inviteeID, requesterID); err != nil {
		h.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// RespondToInvitation handles the invitee's response.
//
//	@Summary		Respond to invitation
//	@Tags			Collaboration
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string			true	"Invitation ID"
//	@Param			request	body		RespondRequest	true	"Response"
//	@Success		200		{object}	Invitation
//	@Failure		422		{object}	apperrors.ErrorResponse
//	@Router			/invitations/{id}/respond [post]
func (h *Handler) RespondToInvitation(c *gin.Context) {
	requesterID, ok := h.getUserID(c)
	if !ok {
		return
	}

	invitationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invitation id"})
		return
	}

	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	invitation, err := h.service.RespondToInvitation(c.Request.Context(), invitationID, req.Status, requesterID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, invitation)
}

// ListInvitations handles listing invitations visible to the requester.
//
//	@Summary		List invitations
//	@Tags			Collaboration
//	@Produce		json
//	@Security		BearerAuth
//	@Param			status		query		string	false	"Status filter"
//	@Param			hangout_id	query		string	false	"Hangout filter"
//	@Param			first		query		int		false	"Forward page size"
//	@Param			after		query		string	false	"Forward cursor"
//	@Success		200			{object}	pagination.Connection[Invitation]
//	@Router			/invitations [get]
func (h *Handler) ListInvitations(c *gin.Context) {
	requesterID, ok := h.getUserID(c)
	if !ok {
		return
	}

	var query ListInvitationsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.service.GetInvitations(c.Request.Context(), &query, requesterID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, conn)
}

// getUserID extracts the authenticated user id from context.
func (h *Handler) getUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, apperrors.Unauthorized("").ToResponse())
		return uuid.Nil, false
	}
	return userID, true
}

// tryGetUserID returns the user id when authenticated, nil otherwise.
func (h *Handler) tryGetUserID(c *gin.Context) *uuid.UUID {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return nil
	}
	return &userID
}

// handleError translates service errors. Expected domain errors keep their
// message; anything else is reported and replaced by a generic one.
func (h *Handler) handleError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	switch {
	case errors.Is(err, ErrHangoutNotFound):
		appErr = apperrors.NotFound("Hangout")
	case errors.Is(err, ErrCollaboratorNotFound):
		appErr = apperrors.NotFound("Collaborator")
	case errors.Is(err, ErrInvitationNotFound):
		appErr = apperrors.NotFound("Invitation")
	case errors.Is(err, ErrNotOwner),
		errors.Is(err, ErrNotAuthorized),
		errors.Is(err, ErrNotInvitee):
		appErr = apperrors.Forbidden(err.Error())
	case errors.Is(err, ErrNotCollaborationMode),
		errors.Is(err, ErrAlreadyCollaborator),
		errors.Is(err, ErrCannotRemoveOrganizer),
		errors.Is(err, ErrAlreadyInvited),
		errors.Is(err, ErrSelfInvite),
		errors.Is(err, ErrPendingResponse):
		appErr = apperrors.Conflict(err.Error())
	case errors.Is(err, ErrInvalidRole),
		errors.Is(err, ErrInvalidStatus):
		appErr = apperrors.ValidationError(err.Error())
	default:
		var known *apperrors.AppError
		if errors.As(err, &known) && known.StatusCode < http.StatusInternalServerError {
			appErr = known
		} else {
			h.reporter.ReportError(c.Request.Context(), err, map[string]string{"component": "collaboration"})
			appErr = apperrors.Internal("Failed to process collaboration request", nil)
		}
	}

	c.JSON(appErr.StatusCode, appErr.ToResponse())
}
