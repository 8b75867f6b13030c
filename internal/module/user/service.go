package user

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service provides user business logic. Its lifecycle handlers are invoked
// as workflow activities and must stay idempotent.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService creates a new user service.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// GetByID retrieves a user by id.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// ========== Lifecycle Activities ==========

// HandleUserCreated materializes a user record from a user.created event.
// Re-delivery of the same event resolves to the same row.
func (s *Service) HandleUserCreated(ctx context.Context, data *EventData) error {
	now := time.Now()
	user := &User{
		ID:        data.ID,
		Email:     strings.ToLower(strings.TrimSpace(data.Email)),
		Name:      data.Name,
		ImageURL:  data.ImageURL,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Upsert(ctx, user); err != nil {
		return err
	}

	s.logger.Info("user created",
		zap.String("user_id", data.ID.String()),
	)
	return nil
}

// HandleUserUpdated refreshes a user's profile from a user.updated event.
// A missing user is a logged no-op.
func (s *Service) HandleUserUpdated(ctx context.Context, data *EventData) error {
	existing, err := s.repo.GetByID(ctx, data.ID)
	if err != nil {
		if err == ErrUserNotFound {
			s.logger.Warn("user.updated for unknown user, ignoring",
				zap.String("user_id", data.ID.String()),
			)
			return nil
		}
		return err
	}

	existing.Email = strings.ToLower(strings.TrimSpace(data.Email))
	existing.Name = data.Name
	existing.ImageURL = data.ImageURL
	existing.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, existing); err != nil {
		return err
	}

	s.logger.Info("user updated",
		zap.String("user_id", data.ID.String()),
	)
	return nil
}

// HandleUserDeleted removes a user's record. Deleting an already-deleted
// user is a no-op.
func (s *Service) HandleUserDeleted(ctx context.Context, data *EventData) error {
	if err := s.repo.Delete(ctx, data.ID); err != nil {
		return err
	}

	s.logger.Info("user deleted",
		zap.String("user_id", data.ID.String()),
	)
	return nil
}

// HandleSessionCreated records sign-in activity. A missing user is a
// logged no-op.
func (s *Service) HandleSessionCreated(ctx context.Context, data *EventData) error {
	existing, err := s.repo.GetByID(ctx, data.ID)
	if err != nil {
		if err == ErrUserNotFound {
			s.logger.Warn("session.created for unknown user, ignoring",
				zap.String("user_id", data.ID.String()),
			)
			return nil
		}
		return err
	}

	now := time.Now()
	existing.LastSeenAt = &now
	existing.UpdatedAt = now

	return s.repo.Update(ctx, existing)
}

// ========== Push Tokens ==========

// AddPushToken appends a push token to the user's token set. The row is
// locked for the duration of the transaction so concurrent updates for the
// same user serialize. A token already in the set is an idempotent success
// with no write; a full set is a domain conflict.
func (s *Service) AddPushToken(ctx context.Context, userID uuid.UUID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrPushTokenRequired
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	txRepo := s.repo.WithTx(tx)

	user, err := txRepo.GetByIDForUpdate(ctx, userID)
	if err != nil {
		return err
	}

	if user.HasPushToken(token) {
		// Already stored; success without a second write.
		return tx.Commit().Error
	}

	if len(user.PushTokens) >= MaxPushTokens {
		return ErrPushTokenLimit
	}

	user.PushTokens = append(user.PushTokens, token)
	user.UpdatedAt = time.Now()

	if err := txRepo.Update(ctx, user); err != nil {
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return err
	}

	s.logger.Info("push token stored",
		zap.String("user_id", userID.String()),
		zap.Int("token_count", len(user.PushTokens)),
	)
	return nil
}
