package webhook

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hangouthub/server/internal/module/user"
	"github.com/hangouthub/server/internal/module/workflow"
	"github.com/hangouthub/server/internal/shared/monitoring"
	"github.com/hangouthub/server/internal/utils/metrics"
)

// dedupKeyPrefix namespaces processed event ids in redis.
const dedupKeyPrefix = "webhook:event:"

// Supported identity event types, each mapped to a user lifecycle workflow.
var eventWorkflows = map[string]string{
	"user.created":    user.WorkflowUserCreated,
	"user.updated":    user.WorkflowUserUpdated,
	"user.deleted":    user.WorkflowUserDeleted,
	"session.created": user.WorkflowSessionCreated,
}

// Envelope is the signed webhook payload.
type Envelope struct {
	Type string         `json:"type"`
	Data user.EventData `json:"data"`
}

// Handler handles verified webhook ingress.
type Handler struct {
	verifier *Verifier
	redis    redis.UniversalClient
	engine   *workflow.Engine
	metrics  *metrics.Metrics
	reporter monitoring.Reporter
	logger   *zap.Logger
	dedupTTL time.Duration
}

// NewHandler creates a new webhook handler.
func NewHandler(verifier *Verifier, redisClient redis.UniversalClient, engine *workflow.Engine, m *metrics.Metrics, reporter monitoring.Reporter, logger *zap.Logger, dedupTTL time.Duration) *Handler {
	if dedupTTL <= 0 {
		dedupTTL = 24 * time.Hour
	}
	return &Handler{
		verifier: verifier,
		redis:    redisClient,
		engine:   engine,
		metrics:  m,
		reporter: reporter,
		logger:   logger,
		dedupTTL: dedupTTL,
	}
}

// RegisterRoutes registers the webhook ingress route.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/webhooks/identity", h.HandleIdentityEvent)
}

// HandleIdentityEvent handles a signed identity-provider event. The
// signature must verify before any workflow is started; duplicate event ids
// are acknowledged without starting a second workflow.
func (h *Handler) HandleIdentityEvent(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	eventID := c.GetHeader(HeaderID)
	timestamp := c.GetHeader(HeaderTimestamp)
	signature := c.GetHeader(HeaderSignature)

	if err := h.verifier.Verify(eventID, timestamp, signature, body); err != nil {
		h.metrics.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		h.logger.Warn("webhook verification failed",
			zap.String("event_id", eventID),
			zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	workflowName, ok := eventWorkflows[envelope.Type]
	if !ok {
		// Unknown types are acknowledged so the provider stops retrying.
		h.metrics.WebhookEventsTotal.WithLabelValues(envelope.Type, "ignored").Inc()
		h.logger.Info("ignoring unsupported webhook event type",
			zap.String("type", envelope.Type))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if h.isDuplicate(c, eventID, envelope.Type) {
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	workflowID := fmt.Sprintf("%s-%s-%d", envelope.Type, envelope.Data.ID, time.Now().Unix())
	if err := h.engine.Start(c.Request.Context(), workflowName, workflowID, &envelope.Data); err != nil {
		h.metrics.WebhookEventsTotal.WithLabelValues(envelope.Type, "failed").Inc()
		h.logger.Error("failed to start lifecycle workflow",
			zap.String("workflow_id", workflowID),
			zap.Error(err))
		h.reporter.ReportError(c.Request.Context(), err, map[string]string{
			"component": "webhook",
			"type":      envelope.Type,
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
		return
	}

	h.metrics.WebhookEventsTotal.WithLabelValues(envelope.Type, "accepted").Inc()
	h.logger.Info("webhook event accepted",
		zap.String("event_id", eventID),
		zap.String("type", envelope.Type),
		zap.String("workflow_id", workflowID))

	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// isDuplicate claims the event id in redis. A failed claim means another
// delivery already processed it. Redis being down never blocks ingestion;
// activities are idempotent, so reprocessing is safe.
func (h *Handler) isDuplicate(c *gin.Context, eventID, eventType string) bool {
	if h.redis == nil {
		return false
	}

	claimed, err := h.redis.SetNX(c.Request.Context(), dedupKeyPrefix+eventID, 1, h.dedupTTL).Result()
	if err != nil {
		h.logger.Warn("webhook dedup check failed, processing anyway",
			zap.String("event_id", eventID),
			zap.Error(err))
		return false
	}
	if !claimed {
		h.metrics.WebhookEventsTotal.WithLabelValues(eventType, "duplicate").Inc()
		h.logger.Info("duplicate webhook event",
			zap.String("event_id", eventID),
			zap.String("type", eventType))
		return true
	}
	return false
}
