package app

import (
	"go.uber.org/zap"

	"github.com/hangouthub/server/internal/module/collaboration"
	"github.com/hangouthub/server/internal/shared/events"
)

// newAnalyticsHandler records acceptance events for analytics. The handler
// keys on the event id, which the workflow derives from the invitation, so
// replays log the same logical event.
func newAnalyticsHandler(logger *zap.Logger) events.Handler {
	return events.NewHandlerFunc(
		[]string{collaboration.EventInvitationAccepted},
		func(e events.Event) error {
			logger.Info("analytics event",
				zap.String("event_type", e.EventType()),
				zap.String("event_id", e.EventID().String()),
				zap.String("aggregate_type", e.AggregateType()),
				zap.String("aggregate_id", e.AggregateID().String()),
				zap.Time("occurred_at", e.OccurredAt()),
			)
			return nil
		},
	)
}
