package collaboration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hangouthub/server/internal/module/hangout"
	"github.com/hangouthub/server/internal/module/notification"
	"github.com/hangouthub/server/internal/module/user"
	"github.com/hangouthub/server/internal/module/workflow"
	"github.com/hangouthub/server/internal/shared/events"
)

// Workflow names and queues.
const (
	WorkflowInvitationAccepted = "invitation-accepted"
	TaskQueueHangoutEvents     = "hangout-events"

	// EventInvitationAccepted is published by the analytics step.
	EventInvitationAccepted = "invitation.accepted"
)

// AcceptedInput is the input of the invitation-accepted workflow.
type AcceptedInput struct {
	InvitationID uuid.UUID `json:"invitation_id"`
	HangoutID    uuid.UUID `json:"hangout_id"`
	InviteeID    uuid.UUID `json:"invitee_id"`
	InviterID    uuid.UUID `json:"inviter_id"`
}

// UserStore is the slice of the user module the workflow needs.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// AcceptedEvent is the analytics event recorded when an invitation is
// accepted. Its id is derived from the invitation so re-execution publishes
// the same logical event.
type AcceptedEvent struct {
	events.BaseEvent
	HangoutID uuid.UUID `json:"hangout_id"`
	InviteeID uuid.UUID `json:"invitee_id"`
	InviterID uuid.UUID `json:"inviter_id"`
}

// AcceptedWorkflow builds the invitation-accepted workflow: notify the
// inviter, materialize a collaborator record, record an analytics event.
// Every step is idempotent; the engine may re-run any of them after a
// failure.
func AcceptedWorkflow(svc *Service, users UserStore, dispatcher notification.Dispatcher, bus *events.Bus, logger *zap.Logger) *workflow.Definition {
	decode := func(raw []byte) (*AcceptedInput, error) {
		var input AcceptedInput
		if err := json.Unmarshal(raw, &input); err != nil {
			return nil, workflow.Permanent(fmt.Errorf("decode invitation-accepted input: %w", err))
		}
		return &input, nil
	}

	return &workflow.Definition{
		Name:      WorkflowInvitationAccepted,
		TaskQueue: TaskQueueHangoutEvents,
		Steps: []workflow.Step{
			{
				Name: "send-acceptance-notification",
				Run: func(ctx context.Context, raw []byte) error {
					input, err := decode(raw)
					if err != nil {
						return err
					}

					inviter, err := users.GetByID(ctx, input.InviterID)
					if err != nil {
						if errors.Is(err, user.ErrUserNotFound) {
							logger.Info("inviter missing, skipping acceptance notification",
								zap.String("inviter_id", input.InviterID.String()))
							return nil
						}
						return err
					}
					if len(inviter.PushTokens) == 0 {
						return nil
					}

					return dispatcher.Send(ctx, inviter.PushTokens, notification.Notification{
						Title: "Invitation accepted",
						Body:  "Your hangout invitation was accepted",
						Data: map[string]string{
							"hangout_id":    input.HangoutID.String(),
							"invitation_id": input.InvitationID.String(),
						},
					})
				},
			},
			{
				Name: "materialize-collaborator",
				Run: func(ctx context.Context, raw []byte) error {
					input, err := decode(raw)
					if err != nil {
						return err
					}

					h, err := svc.hangouts.GetByID(ctx, input.HangoutID)
					if err != nil {
						if errors.Is(err, hangout.ErrHangoutNotFound) {
							logger.Info("hangout missing, skipping collaborator materialization",
								zap.String("hangout_id", input.HangoutID.String()))
							return nil
						}
						return err
					}
					if !h.CollaborationMode {
						return nil
					}

					if _, err := svc.repo.GetCollaborator(ctx, input.HangoutID, input.InviteeID); err == nil {
						return nil
					} else if !errors.Is(err, ErrCollaboratorNotFound) {
						return err
					}

					err = svc.repo.CreateCollaborator(ctx, &Collaborator{
						HangoutID: input.HangoutID,
						UserID:    input.InviteeID,
						Role:      RoleCollaborator,
						InvitedBy: &input.InviterID,
					})
					if errors.Is(err, ErrAlreadyCollaborator) {
						// A concurrent run won the insert; same end state.
						return nil
					}
					return err
				},
			},
			{
				Name: "record-acceptance-event",
				Run: func(ctx context.Context, raw []byte) error {
					input, err := decode(raw)
					if err != nil {
						return err
					}

					bus.Publish(&AcceptedEvent{
						BaseEvent: events.BaseEvent{
							ID:            input.InvitationID,
							Type:          EventInvitationAccepted,
							Timestamp:     time.Now(),
							AggregateUUID: input.InvitationID,
							AggregateName: "Invitation",
						},
						HangoutID: input.HangoutID,
						InviteeID: input.InviteeID,
						InviterID: input.InviterID,
					})
					return nil
				},
			},
		},
	}
}
