package collaboration

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/hangouthub/server/internal/module/hangout"
	"github.com/hangouthub/server/internal/module/notification"
	"github.com/hangouthub/server/internal/module/user"
	"github.com/hangouthub/server/internal/module/workflow"
	"github.com/hangouthub/server/internal/shared/events"
	"github.com/hangouthub/server/internal/shared/monitoring"
	"github.com/hangouthub/server/internal/utils/pagination"
)

type mockUserStore struct {
	users map[uuid.UUID]*user.User
}

func (m *mockUserStore) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return u, nil
}

type mockDispatcher struct {
	mu   sync.Mutex
	sent []notification.Notification
}

func (m *mockDispatcher) Send(_ context.Context, _ []string, n notification.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return nil
}

func (m *mockDispatcher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type testEnv struct {
	db     *gorm.DB
	svc    *Service
	engine *workflow.Engine
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	// A pooled :memory: DSN opens a fresh database per connection.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&hangout.Hangout{},
		&hangout.Suggestion{},
		&Collaborator{},
		&Invitation{},
		&workflow.WorkflowRun{},
	))

	engine := workflow.NewEngine(workflow.NewRepository(db), &workflow.EngineConfig{
		MaxConcurrent: 4,
		DefaultRetry: workflow.RetryPolicy{
			MaxAttempts:        3,
			InitialInterval:    time.Millisecond,
			MaxInterval:        5 * time.Millisecond,
			BackoffCoefficient: 2.0,
		},
		ActivityTimeout:  time.Second,
		ExecutionTimeout: 5 * time.Second,
	}, nil, nil, zap.NewNop())

	svc := NewService(NewRepository(db), hangout.NewRepository(db), engine, monitoring.NopReporter{}, zap.NewNop())

	return &testEnv{db: db, svc: svc, engine: engine}
}

func (e *testEnv) createHangout(t *testing.T, owner uuid.UUID, collaborationMode bool, visibility hangout.Visibility) *hangout.Hangout {
	t.Helper()
	h := &hangout.Hangout{
		UUID:              uuid.New(),
		OwnerID:           owner,
		Title:             "Test hangout",
		Visibility:        visibility,
		Status:            hangout.StatusPending,
		CollaborationMode: collaborationMode,
	}
	require.NoError(t, e.db.Create(h).Error)
	return h
}

func rolePtr(r Role) *Role { return &r }

func TestAddCollaborator(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()
	member := uuid.New()

	h := env.createHangout(t, owner, true, hangout.VisibilityPrivate)
	plain := env.createHangout(t, owner, false, hangout.VisibilityPrivate)

	t.Run("unknown hangout", func(t *testing.T) {
		_, err := env.svc.AddCollaborator(ctx, uuid.New(), member, nil, owner)
		assert.ErrorIs(t, err, ErrHangoutNotFound)
	})

	t.Run("collaboration mode required", func(t *testing.T) {
		_, err := env.svc.AddCollaborator(ctx, plain.ID, member, nil, owner)
		assert.ErrorIs(t, err, ErrNotCollaborationMode)
		assert.EqualError(t, err, "Cannot add collaborators to a hangout not in collaboration mode")
	})

	t.Run("owner only", func(t *testing.T) {
		_, err := env.svc.AddCollaborator(ctx, h.ID, member, nil, member)
		assert.ErrorIs(t, err, ErrNotOwner)
	})

	t.Run("invalid role", func(t *testing.T) {
		_, err := env.svc.AddCollaborator(ctx, h.ID, member, rolePtr("admin"), owner)
		assert.ErrorIs(t, err, ErrInvalidRole)
	})

	t.Run("default role", func(t *testing.T) {
		c, err := env.svc.AddCollaborator(ctx, h.ID, member, nil, owner)
		require.NoError(t, err)
		assert.Equal(t, RoleCollaborator, c.Role)
		require.NotNil(t, c.InvitedBy)
		assert.Equal(t, owner, *c.InvitedBy)
	})

	t.Run("duplicate rejected", func(t *testing.T) {
		_, err := env.svc.AddCollaborator(ctx, h.ID, member, nil, owner)
		assert.ErrorIs(t, err, ErrAlreadyCollaborator)
	})

	t.Run("explicit role stored", func(t *testing.T) {
		viewer := uuid.New()
		c, err := env.svc.AddCollaborator(ctx, h.ID, viewer, rolePtr(RoleViewer), owner)
		require.NoError(t, err)
		assert.Equal(t, RoleViewer, c.Role)
	})
}

func TestRemoveCollaborator(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()
	member := uuid.New()
	organizer := uuid.New()

	h := env.createHangout(t, owner, true, hangout.VisibilityPrivate)

	_, err := env.svc.AddCollaborator(ctx, h.ID, member, nil, owner)
	require.NoError(t, err)
	_, err = env.svc.AddCollaborator(ctx, h.ID, organizer, rolePtr(RoleOrganizer), owner)
	require.NoError(t, err)

	t.Run("owner only", func(t *testing.T) {
		assert.ErrorIs(t, env.svc.RemoveCollaborator(ctx, h.ID, member, member), ErrNotOwner)
	})

	t.Run("organizer cannot be removed", func(t *testing.T) {
		err := env.svc.RemoveCollaborator(ctx, h.ID, organizer, owner)
		assert.ErrorIs(t, err, ErrCannotRemoveOrganizer)
		assert.EqualError(t, err, "Cannot remove the organizer")
	})

	t.Run("removes collaborator", func(t *testing.T) {
		require.NoError(t, env.svc.RemoveCollaborator(ctx, h.ID, member, owner))

		_, err := env.svc.repo.GetCollaborator(ctx, h.ID, member)
		assert.ErrorIs(t, err, ErrCollaboratorNotFound)
	})

	t.Run("unknown collaborator", func(t *testing.T) {
		assert.ErrorIs(t, env.svc.RemoveCollaborator(ctx, h.ID, uuid.New(), owner), ErrCollaboratorNotFound)
	})
}

func TestInviteUser(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()
	member := uuid.New()
	invitee := uuid.New()
	stranger := uuid.New()

	collab := env.createHangout(t, owner, true, hangout.VisibilityPrivate)
	plain := env.createHangout(t, owner, false, hangout.VisibilityPrivate)

	_, err := env.svc.AddCollaborator(ctx, collab.ID, member, nil, owner)
	require.NoError(t, err)

	t.Run("self invite rejected", func(t *testing.T) {
		_, err := env.svc.InviteUser(ctx, collab.ID, owner, "", owner)
		assert.ErrorIs(t, err, ErrSelfInvite)
	})

	t.Run("owner invites outside collaboration mode", func(t *testing.T) {
		inv, err := env.svc.InviteUser(ctx, plain.ID, invitee, "join us", owner)
		require.NoError(t, err)
		assert.Equal(t, InvitationStatusPending, inv.Status)
		assert.Equal(t, "join us", inv.Message)
	})

	t.Run("stranger cannot invite", func(t *testing.T) {
		_, err := env.svc.InviteUser(ctx, plain.ID, uuid.New(), "", stranger)
		assert.ErrorIs(t, err, ErrNotAuthorized)

		_, err = env.svc.InviteUser(ctx, collab.ID, uuid.New(), "", stranger)
		assert.ErrorIs(t, err, ErrNotAuthorized)
	})

	t.Run("collaborator invites in collaboration mode", func(t *testing.T) {
		inv, err := env.svc.InviteUser(ctx, collab.ID, invitee, "", member)
		require.NoError(t, err)
		assert.Equal(t, member, inv.InviterID)
	})

	t.Run("duplicate invitation rejected regardless of status", func(t *testing.T) {
		inv, err := env.svc.repo.GetInvitation(ctx, collab.ID, invitee)
		require.NoError(t, err)
		_, err = env.svc.RespondToInvitation(ctx, inv.ID, InvitationStatusDeclined, invitee)
		require.NoError(t, err)

		_, err = env.svc.InviteUser(ctx, collab.ID, invitee, "", owner)
		assert.ErrorIs(t, err, ErrAlreadyInvited)
	})
}

func TestUninviteUser(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()
	member := uuid.New()
	invitee := uuid.New()

	h := env.createHangout(t, owner, true, hangout.VisibilityPrivate)
	_, err := env.svc.AddCollaborator(ctx, h.ID, member, nil, owner)
	require.NoError(t, err)

	t.Run("unknown invitation", func(t *testing.T) {
		assert.ErrorIs(t, env.svc.UninviteUser(ctx, h.ID, uuid.New(), owner), ErrInvitationNotFound)
	})

	t.Run("only owner or inviter may withdraw", func(t *testing.T) {
		_, err := env.svc.InviteUser(ctx, h.ID, invitee, "", member)
		require.NoError(t, err)

		assert.ErrorIs(t, env.svc.UninviteUser(ctx, h.ID, invitee, invitee), ErrNotAuthorized)
		require.NoError(t, env.svc.UninviteUser(ctx, h.ID, invitee, member))
	})

	t.Run("owner may withdraw another inviter's invitation", func(t *testing.T) {
		_, err := env.svc.InviteUser(ctx, h.ID, invitee, "", member)
		require.NoError(t, err)
		require.NoError(t, env.svc.UninviteUser(ctx, h.ID, invitee, owner))
	})
}

func TestRespondToInvitation(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()
	invitee := uuid.New()

	h := env.createHangout(t, owner, false, hangout.VisibilityPrivate)
	inv, err := env.svc.InviteUser(ctx, h.ID, invitee, "", owner)
	require.NoError(t, err)

	t.Run("pending is not a response", func(t *testing.T) {
		_, err := env.svc.RespondToInvitation(ctx, inv.ID, InvitationStatusPending, invitee)
		assert.ErrorIs(t, err, ErrPendingResponse)
		assert.EqualError(t, err, "Cannot respond with pending status")
	})

	t.Run("unknown status", func(t *testing.T) {
		_, err := env.svc.RespondToInvitation(ctx, inv.ID, "later", invitee)
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})

	t.Run("invitee only", func(t *testing.T) {
		_, err := env.svc.RespondToInvitation(ctx, inv.ID, InvitationStatusAccepted, owner)
		assert.ErrorIs(t, err, ErrNotInvitee)
	})

	t.Run("unknown invitation", func(t *testing.T) {
		_, err := env.svc.RespondToInvitation(ctx, uuid.New(), InvitationStatusAccepted, invitee)
		assert.ErrorIs(t, err, ErrInvitationNotFound)
	})

	t.Run("response recorded", func(t *testing.T) {
		updated, err := env.svc.RespondToInvitation(ctx, inv.ID, InvitationStatusMaybe, invitee)
		require.NoError(t, err)
		assert.Equal(t, InvitationStatusMaybe, updated.Status)
		require.NotNil(t, updated.RespondedAt)
	})

	t.Run("responses are re-enterable", func(t *testing.T) {
		first, err := env.svc.RespondToInvitation(ctx, inv.ID, InvitationStatusAccepted, invitee)
		require.NoError(t, err)
		assert.Equal(t, InvitationStatusAccepted, first.Status)

		second, err := env.svc.RespondToInvitation(ctx, inv.ID, InvitationStatusDeclined, invitee)
		require.NoError(t, err)
		assert.Equal(t, InvitationStatusDeclined, second.Status)

		stored, err := env.svc.repo.GetInvitationByID(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, InvitationStatusDeclined, stored.Status)
	})
}

func TestAcceptedWorkflowSteps(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()
	invitee := uuid.New()

	h := env.createHangout(t, owner, true, hangout.VisibilityPrivate)

	users := &mockUserStore{users: map[uuid.UUID]*user.User{
		owner: {ID: owner, Email: "owner@example.com", PushTokens: []string{"tok-1"}},
	}}
	dispatcher := &mockDispatcher{}

	var published []events.Event
	bus := events.NewBus(zap.NewNop())
	bus.Register(events.NewHandlerFunc([]string{EventInvitationAccepted}, func(e events.Event) error {
		published = append(published, e)
		return nil
	}))

	def := AcceptedWorkflow(env.svc, users, dispatcher, bus, zap.NewNop())

	invitationID := uuid.New()
	input, err := json.Marshal(&AcceptedInput{
		InvitationID: invitationID,
		HangoutID:    h.ID,
		InviteeID:    invitee,
		InviterID:    owner,
	})
	require.NoError(t, err)

	runAll := func() {
		for _, step := range def.Steps {
			require.NoError(t, step.Run(ctx, input))
		}
	}

	runAll()
	// At-least-once delivery: a re-run must converge to the same end state.
	runAll()

	t.Run("exactly one collaborator materialized", func(t *testing.T) {
		c, err := env.svc.repo.GetCollaborator(ctx, h.ID, invitee)
		require.NoError(t, err)
		assert.Equal(t, RoleCollaborator, c.Role)

		total, err := env.svc.repo.CountCollaborators(ctx, h.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
	})

	t.Run("inviter notified", func(t *testing.T) {
		require.GreaterOrEqual(t, dispatcher.count(), 1)
		assert.Equal(t, "Invitation accepted", dispatcher.sent[0].Title)
	})

	t.Run("analytics event keeps a stable id", func(t *testing.T) {
		require.Len(t, published, 2)
		assert.Equal(t, invitationID, published[0].EventID())
		assert.Equal(t, published[0].EventID(), published[1].EventID())
	})

	t.Run("missing inviter skips the notification", func(t *testing.T) {
		orphan, err := json.Marshal(&AcceptedInput{
			InvitationID: uuid.New(),
			HangoutID:    h.ID,
			InviteeID:    uuid.New(),
			InviterID:    uuid.New(),
		})
		require.NoError(t, err)

		before := dispatcher.count()
		require.NoError(t, def.Steps[0].Run(ctx, orphan))
		assert.Equal(t, before, dispatcher.count())
	})

	t.Run("garbage input fails permanently", func(t *testing.T) {
		err := def.Steps[0].Run(ctx, []byte("not json"))
		assert.True(t, workflow.IsPermanent(err))
	})
}

func TestAcceptanceStartsWorkflow(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()
	invitee := uuid.New()

	h := env.createHangout(t, owner, true, hangout.VisibilityPrivate)

	users := &mockUserStore{users: map[uuid.UUID]*user.User{}}
	dispatcher := &mockDispatcher{}
	bus := events.NewBus(zap.NewNop())
	require.NoError(t, env.engine.Register(AcceptedWorkflow(env.svc, users, dispatcher, bus, zap.NewNop())))

	inv, err := env.svc.InviteUser(ctx, h.ID, invitee, "", owner)
	require.NoError(t, err)

	_, err = env.svc.RespondToInvitation(ctx, inv.ID, InvitationStatusAccepted, invitee)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := env.svc.repo.GetCollaborator(ctx, h.ID, invitee)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	// A repeated acceptance reuses the original run instead of starting a
	// second one.
	_, err = env.svc.RespondToInvitation(ctx, inv.ID, InvitationStatusAccepted, invitee)
	require.NoError(t, err)

	run, err := env.engine.GetRun(ctx, "invitation-accepted-"+inv.ID.String())
	require.NoError(t, err)
	assert.Equal(t, WorkflowInvitationAccepted, run.Name)
}

func TestGetCollaborators(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()
	stranger := uuid.New()

	h := env.createHangout(t, owner, true, hangout.VisibilityPublic)
	private := env.createHangout(t, owner, true, hangout.VisibilityPrivate)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, env.db.Create(&Collaborator{
			HangoutID: h.ID,
			UserID:    uuid.New(),
			Role:      RoleCollaborator,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}

	intPtr := func(v int) *int { return &v }

	t.Run("hidden hangout reads as not found", func(t *testing.T) {
		_, err := env.svc.GetCollaborators(ctx, private.ID, pagination.Args{}, &stranger)
		assert.ErrorIs(t, err, ErrHangoutNotFound)
	})

	t.Run("forward page", func(t *testing.T) {
		conn, err := env.svc.GetCollaborators(ctx, h.ID, pagination.Args{First: intPtr(2)}, nil)
		require.NoError(t, err)

		assert.Len(t, conn.Edges, 2)
		assert.True(t, conn.PageInfo.HasNextPage)
		assert.Equal(t, int64(5), conn.TotalCount)
		assert.True(t, conn.Edges[0].Node.CreatedAt.Before(conn.Edges[1].Node.CreatedAt))
	})

	t.Run("after cursor continues the page", func(t *testing.T) {
		first, err := env.svc.GetCollaborators(ctx, h.ID, pagination.Args{First: intPtr(2)}, nil)
		require.NoError(t, err)
		require.NotNil(t, first.PageInfo.EndCursor)

		second, err := env.svc.GetCollaborators(ctx, h.ID, pagination.Args{
			First: intPtr(2),
			After: first.PageInfo.EndCursor,
		}, nil)
		require.NoError(t, err)

		assert.Len(t, second.Edges, 2)
		assert.True(t, second.Edges[0].Node.CreatedAt.After(first.Edges[1].Node.CreatedAt))
	})

	t.Run("backward page", func(t *testing.T) {
		conn, err := env.svc.GetCollaborators(ctx, h.ID, pagination.Args{Last: intPtr(2)}, nil)
		require.NoError(t, err)

		assert.Len(t, conn.Edges, 2)
		assert.True(t, conn.PageInfo.HasPreviousPage)
		assert.False(t, conn.PageInfo.HasNextPage)
		// The two newest rows, in ascending order.
		assert.Equal(t, base.Add(3*time.Minute).Unix(), conn.Edges[0].Node.CreatedAt.Unix())
		assert.Equal(t, base.Add(4*time.Minute).Unix(), conn.Edges[1].Node.CreatedAt.Unix())
	})

	t.Run("first and last together rejected", func(t *testing.T) {
		_, err := env.svc.GetCollaborators(ctx, h.ID, pagination.Args{First: intPtr(1), Last: intPtr(1)}, nil)
		assert.ErrorContains(t, err, "Cannot provide both first and last")
	})
}

func TestGetInvitations(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()
	member := uuid.New()
	invitee := uuid.New()
	outsider := uuid.New()

	h := env.createHangout(t, owner, true, hangout.VisibilityPrivate)
	other := env.createHangout(t, outsider, true, hangout.VisibilityPrivate)

	_, err := env.svc.AddCollaborator(ctx, h.ID, member, nil, owner)
	require.NoError(t, err)

	// invitee is invited by member; owner sees it as hangout owner.
	inv, err := env.svc.InviteUser(ctx, h.ID, invitee, "", member)
	require.NoError(t, err)
	// An unrelated invitation on someone else's hangout.
	_, err = env.svc.InviteUser(ctx, other.ID, uuid.New(), "", outsider)
	require.NoError(t, err)

	list := func(t *testing.T, q *ListInvitationsQuery, requester uuid.UUID) *pagination.Connection[*Invitation] {
		t.Helper()
		conn, err := env.svc.GetInvitations(ctx, q, requester)
		require.NoError(t, err)
		return conn
	}

	t.Run("invitee sees own invitation", func(t *testing.T) {
		conn := list(t, &ListInvitationsQuery{}, invitee)
		require.Len(t, conn.Edges, 1)
		assert.Equal(t, inv.ID, conn.Edges[0].Node.ID)
	})

	t.Run("inviter sees it", func(t *testing.T) {
		assert.Len(t, list(t, &ListInvitationsQuery{}, member).Edges, 1)
	})

	t.Run("hangout owner sees it", func(t *testing.T) {
		assert.Len(t, list(t, &ListInvitationsQuery{}, owner).Edges, 1)
	})

	t.Run("unrelated user sees nothing", func(t *testing.T) {
		assert.Empty(t, list(t, &ListInvitationsQuery{}, uuid.New()).Edges)
	})

	t.Run("status filter", func(t *testing.T) {
		pending := InvitationStatusPending
		assert.Len(t, list(t, &ListInvitationsQuery{Status: &pending}, invitee).Edges, 1)

		accepted := InvitationStatusAccepted
		assert.Empty(t, list(t, &ListInvitationsQuery{Status: &accepted}, invitee).Edges)
	})

	t.Run("hangout filter", func(t *testing.T) {
		assert.Len(t, list(t, &ListInvitationsQuery{HangoutID: &h.ID}, owner).Edges, 1)
		assert.Empty(t, list(t, &ListInvitationsQuery{HangoutID: &other.ID}, owner).Edges)
	})

	t.Run("invalid status filter", func(t *testing.T) {
		bad := InvitationStatus("someday")
		_, err := env.svc.GetInvitations(ctx, &ListInvitationsQuery{Status: &bad}, invitee)
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})
}
