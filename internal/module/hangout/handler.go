package hangout

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/hangouthub/server/internal/shared/errors"
	"github.com/hangouthub/server/internal/shared/monitoring"
	"github.com/hangouthub/server/internal/utils/middleware"
)

// Handler handles HTTP requests for hangouts.
type Handler struct {
	service  *Service
	reporter monitoring.Reporter
}

// NewHandler creates a new hangout handler.
func NewHandler(service *Service, reporter monitoring.Reporter) *Handler {
	return &Handler{
		service:  service,
		reporter: reporter,
	}
}

// RegisterRoutes registers hangout routes. The read endpoints tolerate
// anonymous callers; the caller mounts them behind optional auth.
func (h *Handler) RegisterRoutes(authed, public *gin.RouterGroup) {
	hangouts := authed.Group("/hangouts")
	{
		hangouts.POST("", h.CreateHangout)
		hangouts.PATCH("/:id", h.UpdateHangout)
		hangouts.DELETE("/:id", h.DeleteHangout)
	}

	reads := public.Group("/hangouts")
	{
		reads.GET("", h.ListHangouts)
		reads.GET("/:id", h.GetHangout)
		reads.GET("/uuid/:uuid", h.GetHangoutByUUID)
	}
}

// CreateHangout handles hangout creation.
//
//	@Summary		Create hangout
//	@Tags			Hangouts
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		CreateHangoutRequest	true	"Create hangout request"
//	@Success		201		{object}	Hangout
//	@Failure		422		{object}	apperrors.ErrorResponse
//	@Router			/hangouts [post]
func (h *Handler) CreateHangout(c *gin.Context) {
	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	var req CreateHangoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hangout, err := h.service.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, hangout)
}

// GetHangout handles fetching a hangout by id.
//
//	@Summary		Get hangout
//	@Tags			Hangouts
//	@Produce		json
//	@Param			id	path		string	true	"Hangout ID"
//	@Success		200	{object}	Hangout
//	@Failure		404	{object}	apperrors.ErrorResponse
//	@Router			/hangouts/{id} [get]
func (h *Handler) GetHangout(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hangout id"})
		return
	}

	hangout, err := h.service.GetByID(c.Request.Context(), id, h.tryGetUserID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, hangout)
}

// GetHangoutByUUID handles fetching a hangout by its public uuid.
//
//	@Summary		Get hangout by uuid
//	@Tags			Hangouts
//	@Produce		json
//	@Param			uuid	path		string	true	"Hangout UUID"
//	@Success		200		{object}	Hangout
//	@Failure		404		{object}	apperrors.ErrorResponse
//	@Router			/hangouts/uuid/{uuid} [get]
func (h *Handler) GetHangoutByUUID(c *gin.Context) {
	u, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hangout uuid"})
		return
	}

	hangout, err := h.service.GetByUUID(c.Request.Context(), u, h.tryGetUserID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, hangout)
}

// ListHangouts handles listing visible hangouts.
//
//	@Summary		List hangouts
//	@Tags			Hangouts
//	@Produce		json
//	@Param			q			query		string	false	"Free-text search"
//	@Param			next_token	query		string	false	"Offset token"
//	@Param			limit		query		int		false	"Page size"
//	@Success		200			{object}	ListHangoutsResult
//	@Router			/hangouts [get]
func (h *Handler) ListHangouts(c *gin.Context) {
	var query ListHangoutsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.List(c.Request.Context(), &query, h.tryGetUserID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// UpdateHangout handles partial hangout updates.
//
//	@Summary		Update hangout
//	@Tags			Hangouts
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string					true	"Hangout ID"
//	@Param			request	body		UpdateHangoutRequest	true	"Update hangout request"
//	@Success		200		{object}	Hangout
//	@Failure		403		{object}	apperrors.ErrorResponse
//	@Router			/hangouts/{id} [patch]
func (h *Handler) UpdateHangout(c *gin.Context) {
	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hangout id"})
		return
	}

	var req UpdateHangoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hangout, err := h.service.Update(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, hangout)
}

// DeleteHangout handles hangout deletion.
//
//	@Summary		Delete hangout
//	@Tags			Hangouts
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Hangout ID"
//	@Success		204
//	@Failure		403	{object}	apperrors.ErrorResponse
//	@Router			/hangouts/{id} [delete]
func (h *Handler) DeleteHangout(c *gin.Context) {
	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hangout id"})
		return
	}

	if err := h.service.Delete(c.Request.Context(), id, userID); err != nil {
		h.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
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
	case errors.Is(err, ErrNotOwner):
		appErr = apperrors.Forbidden(ErrNotOwner.Error())
	case errors.Is(err, ErrInvalidTitle),
		errors.Is(err, ErrInvalidVisibility),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrInvalidDate),
		errors.Is(err, ErrSuggestionDeadlinePast),
		errors.Is(err, ErrVotingDeadlinePast),
		errors.Is(err, ErrDeadlineOrder),
		errors.Is(err, ErrSuggestionLocationRequired),
		errors.Is(err, ErrSuggestionActivityRequired),
		errors.Is(err, ErrSuggestionTimeRequired),
		errors.Is(err, ErrInvalidSuggestionType):
		appErr = apperrors.ValidationError(err.Error())
	default:
		var known *apperrors.AppError
		if errors.As(err, &known) && known.StatusCode < http.StatusInternalServerError {
			appErr = known
		} else {
			h.reporter.ReportError(c.Request.Context(), err, map[string]string{"component": "hangout"})
			appErr = apperrors.Internal("Failed to process hangout request", nil)
		}
	}

	c.JSON(appErr.StatusCode, appErr.ToResponse())
}
