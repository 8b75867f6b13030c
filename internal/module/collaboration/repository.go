package collaboration

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hangouthub/server/internal/utils/pagination"
)

// Repository defines the interface for collaboration data access.
type Repository interface {
	// Collaborator operations
	CreateCollaborator(ctx context.Context, collaborator *Collaborator) error
	GetCollaborator(ctx context.Context, hangoutID, userID uuid.UUID) (*Collaborator, error)
	DeleteCollaborator(ctx context.Context, hangoutID, userID uuid.UUID) error
	ListCollaborators(ctx context.Context, hangoutID uuid.UUID, w *pagination.Window) ([]*Collaborator, error)
	CountCollaborators(ctx context.Context, hangoutID uuid.UUID) (int64, error)

	// Invitation operations
	CreateInvitation(ctx context.Context, invitation *Invitation) error
	GetInvitationByID(ctx context.Context, id uuid.UUID) (*Invitation, error)
	GetInvitation(ctx context.Context, hangoutID, inviteeID uuid.UUID) (*Invitation, error)
	UpdateInvitationResponse(ctx context.Context, id uuid.UUID, status InvitationStatus, respondedAt time.Time) error
	DeleteInvitation(ctx context.Context, id uuid.UUID) error
	ListInvitations(ctx context.Context, filters InvitationFilters, w *pagination.Window) ([]*Invitation, error)
	CountInvitations(ctx context.Context, filters InvitationFilters) (int64, error)

	// Transaction support
	WithTx(tx *gorm.DB) Repository
	BeginTx(ctx context.Context) (*gorm.DB, error)
}

// repository implements Repository using GORM.
type repository struct {
	db *gorm.DB
}

// NewRepository creates a new collaboration repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// WithTx returns a new repository with the given transaction.
func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

// BeginTx starts a new transaction.
func (r *repository) BeginTx(ctx context.Context) (*gorm.DB, error) {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return tx, nil
}

// applyWindow adds cursor bounds, ordering and the limit+1 sentinel fetch to
// a query. Rows come back ascending for forward windows and descending for
// backward ones.
func applyWindow(query *gorm.DB, w *pagination.Window) *gorm.DB {
	if w.After != nil {
		query = query.Where("created_at > ?", *w.After)
	}
	if w.Before != nil {
		query = query.Where("created_at < ?", *w.Before)
	}
	if w.Backward {
		query = query.Order("created_at DESC")
	} else {
		query = query.Order("created_at ASC")
	}
	return query.Limit(w.Limit + 1)
}

// CreateCollaborator inserts a collaborator. The unique constraint on
// (hangout_id, user_id) is the authoritative duplicate guard.
func (r *repository) CreateCollaborator(ctx context.Context, collaborator *Collaborator) error {
	err := r.db.WithContext(ctx).Create(collaborator).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyCollaborator
	}
	return err
}

// GetCollaborator retrieves a collaborator record.
func (r *repository) GetCollaborator(ctx context.Context, hangoutID, userID uuid.UUID) (*Collaborator, error) {
	var collaborator Collaborator
	err := r.db.WithContext(ctx).
		Where("hangout_id = ? AND user_id = ?", hangoutID, userID).
		First(&collaborator).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCollaboratorNotFound
		}
		return nil, err
	}
	return &collaborator, nil
}

// DeleteCollaborator removes a collaborator.
func (r *repository) DeleteCollaborator(ctx context.Context, hangoutID, userID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("hangout_id = ? AND user_id = ?", hangoutID, userID).
		Delete(&Collaborator{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCollaboratorNotFound
	}
	return nil
}

// ListCollaborators lists a hangout's collaborators within a cursor window.
func (r *repository) ListCollaborators(ctx context.Context, hangoutID uuid.UUID, w *pagination.Window) ([]*Collaborator, error) {
	query := r.db.WithContext(ctx).
		Model(&Collaborator{}).
		Where("hangout_id = ?", hangoutID)

	var collaborators []*Collaborator
	if err := applyWindow(query, w).Find(&collaborators).Error; err != nil {
		return nil, err
	}
	return collaborators, nil
}

// CountCollaborators counts a hangout's collaborators.
func (r *repository) CountCollaborators(ctx context.Context, hangoutID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&Collaborator{}).
		Where("hangout_id = ?", hangoutID).
		Count(&count).Error
	return count, err
}

// CreateInvitation inserts an invitation. The unique constraint on
// (hangout_id, invitee_id) is the authoritative duplicate guard.
func (r *repository) CreateInvitation(ctx context.Context, invitation *Invitation) error {
	err := r.db.WithContext(ctx).Create(invitation).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyInvited
	}
	return err
}

// GetInvitationByID retrieves an invitation by id.
func (r *repository) GetInvitationByID(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	var invitation Invitation
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&invitation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, err
	}
	return &invitation, nil
}

// GetInvitation retrieves the invitation for a hangout and invitee.
func (r *repository) GetInvitation(ctx context.Context, hangoutID, inviteeID uuid.UUID) (*Invitation, error) {
	var invitation Invitation
	err := r.db.WithContext(ctx).
		Where("hangout_id = ? AND invitee_id = ?", hangoutID, inviteeID).
		First(&invitation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, err
	}
	return &invitation, nil
}

// UpdateInvitationResponse records an invitee's response.
func (r *repository) UpdateInvitationResponse(ctx context.Context, id uuid.UUID, status InvitationStatus, respondedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&Invitation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       status,
			"responded_at": respondedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvitationNotFound
	}
	return nil
}

// DeleteInvitation removes an invitation.
func (r *repository) DeleteInvitation(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&Invitation{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvitationNotFound
	}
	return nil
}

// invitationQuery builds the filtered invitation query. The requester sees
// only invitations where they are the invitee, the inviter, or the owner of
// the hangout.
func (r *repository) invitationQuery(ctx context.Context, filters InvitationFilters) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&Invitation{}).
		Joins("JOIN hangouts ON hangouts.id = hangout_invitations.hangout_id").
		Where(
			"hangout_invitations.invitee_id = ? OR hangout_invitations.inviter_id = ? OR hangouts.owner_id = ?",
			filters.RequesterID, filters.RequesterID, filters.RequesterID,
		)

	if filters.Status != nil {
		query = query.Where("hangout_invitations.status = ?", *filters.Status)
	}
	if filters.HangoutID != nil {
		query = query.Where("hangout_invitations.hangout_id = ?", *filters.HangoutID)
	}
	return query
}

// ListInvitations lists invitations visible to the requester within a
// cursor window.
func (r *repository) ListInvitations(ctx context.Context, filters InvitationFilters, w *pagination.Window) ([]*Invitation, error) {
	query := r.invitationQuery(ctx, filters)

	if w.After != nil {
		query = query.Where("hangout_invitations.created_at > ?", *w.After)
	}
	if w.Before != nil {
		query = query.Where("hangout_invitations.created_at < ?", *w.Before)
	}
	if w.Backward {
		query = query.Order("hangout_invitations.created_at DESC")
	} else {
		query = query.Order("hangout_invitations.created_at ASC")
	}

	var invitations []*Invitation
	if err := query.Limit(w.Limit + 1).Find(&invitations).Error; err != nil {
		return nil, err
	}
	return invitations, nil
}

// CountInvitations counts invitations visible to the requester.
func (r *repository) CountInvitations(ctx context.Context, filters InvitationFilters) (int64, error) {
	var count int64
	err := r.invitationQuery(ctx, filters).Count(&count).Error
	return count, err
}
