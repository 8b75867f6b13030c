package user

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hangouthub/server/internal/module/workflow"
)

// Workflow names. Lifecycle workflows carry one idempotent activity each and
// are started from verified webhook ingestion.
const (
	WorkflowUserCreated     = "user-created"
	WorkflowUserUpdated     = "user-updated"
	WorkflowUserDeleted     = "user-deleted"
	WorkflowSessionCreated  = "session-created"
	WorkflowPushTokenUpdate = "push-token-update"

	// TaskQueueUserEvents is the queue for user-facing workflows.
	TaskQueueUserEvents = "user-events"
)

// LifecycleWorkflows builds the user-lifecycle workflow definitions backed
// by the given service.
func LifecycleWorkflows(svc *Service) []*workflow.Definition {
	activity := func(handle func(context.Context, *EventData) error) workflow.ActivityFunc {
		return func(ctx context.Context, input []byte) error {
			var data EventData
			if err := json.Unmarshal(input, &data); err != nil {
				return workflow.Permanent(fmt.Errorf("decode user event: %w", err))
			}
			return handle(ctx, &data)
		}
	}

	return []*workflow.Definition{
		{
			Name:      WorkflowUserCreated,
			TaskQueue: TaskQueueUserEvents,
			Steps: []workflow.Step{
				{Name: "materialize-user", Run: activity(svc.HandleUserCreated)},
			},
		},
		{
			Name:      WorkflowUserUpdated,
			TaskQueue: TaskQueueUserEvents,
			Steps: []workflow.Step{
				{Name: "refresh-user", Run: activity(svc.HandleUserUpdated)},
			},
		},
		{
			Name:      WorkflowUserDeleted,
			TaskQueue: TaskQueueUserEvents,
			Steps: []workflow.Step{
				{Name: "remove-user", Run: activity(svc.HandleUserDeleted)},
			},
		},
		{
			Name:      WorkflowSessionCreated,
			TaskQueue: TaskQueueUserEvents,
			Steps: []workflow.Step{
				{Name: "record-session", Run: activity(svc.HandleSessionCreated)},
			},
		},
	}
}

// PushTokenWorkflow builds the push-token-update workflow definition.
// Exceeding the token cap is a defined failure; retrying cannot fix it, so
// the activity marks it permanent.
func PushTokenWorkflow(svc *Service) *workflow.Definition {
	return &workflow.Definition{
		Name:      WorkflowPushTokenUpdate,
		TaskQueue: TaskQueueUserEvents,
		Steps: []workflow.Step{
			{
				Name: "append-push-token",
				Run: func(ctx context.Context, input []byte) error {
					var in PushTokenInput
					if err := json.Unmarshal(input, &in); err != nil {
						return workflow.Permanent(fmt.Errorf("decode push token input: %w", err))
					}
					err := svc.AddPushToken(ctx, in.UserID, in.Token)
					if err == ErrPushTokenLimit || err == ErrPushTokenRequired || err == ErrUserNotFound {
						return workflow.Permanent(err)
					}
					return err
				},
			},
		},
	}
}
