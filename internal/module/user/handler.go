package user

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hangouthub/server/internal/module/workflow"
	apperrors "github.com/hangouthub/server/internal/shared/errors"
	"github.com/hangouthub/server/internal/shared/monitoring"
	"github.com/hangouthub/server/internal/utils/middleware"
)

// pushTokenWait bounds how long the handler waits for the push-token
// workflow before falling back to an accepted-but-pending response.
const pushTokenWait = 5 * time.Second

// Handler handles HTTP requests for users.
type Handler struct {
	service  *Service
	engine   *workflow.Engine
	reporter monitoring.Reporter
}

// NewHandler creates a new user handler.
func NewHandler(service *Service, engine *workflow.Engine, reporter monitoring.Reporter) *Handler {
	return &Handler{
		service:  service,
		engine:   engine,
		reporter: reporter,
	}
}

// RegisterRoutes registers user routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.GET("/me", h.GetMe)
		users.POST("/me/push-tokens", h.AddPushToken)
	}
}

// GetMe handles fetching the authenticated user's profile.
//
//	@Summary		Get current user
//	@Tags			Users
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	User
//	@Failure		404	{object}	apperrors.ErrorResponse
//	@Router			/users/me [get]
func (h *Handler) GetMe(c *gin.Context) {
	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	u, err := h.service.GetByID(c.Request.Context(), userID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, u)
}

// AddPushToken handles registering a push token through the push-token
// workflow with a bounded wait.
//
//	@Summary		Register push token
//	@Tags			Users
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		PushTokenRequest	true	"Push token"
//	@Success		200		{object}	map[string]string
//	@Success		202		{object}	map[string]string
//	@Failure		409		{object}	apperrors.ErrorResponse
//	@Router			/users/me/push-tokens [post]
func (h *Handler) AddPushToken(c *gin.Context) {
	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	var req PushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	workflowID := fmt.Sprintf("%s-%s-%d", WorkflowPushTokenUpdate, userID, time.Now().Unix())
	handle, err := h.engine.Execute(c.Request.Context(), WorkflowPushTokenUpdate, workflowID, &PushTokenInput{
		UserID: userID,
		Token:  req.Token,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	waitCtx, cancel := context.WithTimeout(c.Request.Context(), pushTokenWait)
	defer cancel()

	if err := handle.Wait(waitCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			// The wait expired, not the workflow; stop it and degrade.
			handle.Cancel()
			c.JSON(http.StatusAccepted, gin.H{"status": "pending", "workflow_id": workflowID})
			return
		}
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "stored"})
}

// PushTokenRequest is the push token registration payload.
type PushTokenRequest struct {
	Token string `json:"token" binding:"required"`
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

// handleError translates service errors. Expected domain errors keep their
// message; anything else is reported and replaced by a generic one.
func (h *Handler) handleError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	switch {
	case errors.Is(err, ErrUserNotFound):
		appErr = apperrors.NotFound("User")
	case errors.Is(err, ErrPushTokenLimit):
		appErr = apperrors.Conflict(ErrPushTokenLimit.Error())
	case errors.Is(err, ErrPushTokenRequired):
		appErr = apperrors.ValidationError(ErrPushTokenRequired.Error())
	default:
		h.reporter.ReportError(c.Request.Context(), err, map[string]string{"component": "user"})
		appErr = apperrors.Internal("Failed to process user request", nil)
	}

	c.JSON(appErr.StatusCode, appErr.ToResponse())
}
