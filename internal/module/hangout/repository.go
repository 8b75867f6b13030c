package hangout

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the interface for hangout data access.
type Repository interface {
	Create(ctx context.Context, hangout *Hangout) error
	GetByID(ctx context.Context, id uuid.UUID) (*Hangout, error)
	GetByUUID(ctx context.Context, u uuid.UUID) (*Hangout, error)
	Update(ctx context.Context, hangout *Hangout) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filters ListFilters, limit, offset int) ([]*Hangout, int64, error)

	CreateSuggestions(ctx context.Context, suggestions []*Suggestion) error
	ListSuggestions(ctx context.Context, hangoutID uuid.UUID) ([]*Suggestion, error)

	// Transaction support
	WithTx(tx *gorm.DB) Repository
	BeginTx(ctx context.Context) (*gorm.DB, error)
}

// repository implements Repository using GORM.
type repository struct {
	db *gorm.DB
}

// NewRepository creates a new hangout repository.
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

// Create creates a new hangout.
func (r *repository) Create(ctx context.Context, hangout *Hangout) error {
	return r.db.WithContext(ctx).Create(hangout).Error
}

// GetByID retrieves a hangout by primary id.
func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Hangout, error) {
	var hangout Hangout
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&hangout).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHangoutNotFound
		}
		return nil, err
	}
	return &hangout, nil
}

// GetByUUID retrieves a hangout by its public uuid.
func (r *repository) GetByUUID(ctx context.Context, u uuid.UUID) (*Hangout, error) {
	var hangout Hangout
	err := r.db.WithContext(ctx).
		Where("uuid = ?", u).
		First(&hangout).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHangoutNotFound
		}
		return nil, err
	}
	return &hangout, nil
}

// Update persists the full hangout row.
func (r *repository) Update(ctx context.Context, hangout *Hangout) error {
	return r.db.WithContext(ctx).Save(hangout).Error
}

// Delete removes a hangout with its suggestions, collaborators and
// invitations. Callers wrap it in a transaction via WithTx.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)

	if err := db.Where("hangout_id = ?", id).Delete(&Suggestion{}).Error; err != nil {
		return err
	}
	if err := db.Exec("DELETE FROM hangout_collaborators WHERE hangout_id = ?", id).Error; err != nil {
		return err
	}
	if err := db.Exec("DELETE FROM hangout_invitations WHERE hangout_id = ?", id).Error; err != nil {
		return err
	}

	result := db.Where("id = ?", id).Delete(&Hangout{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrHangoutNotFound
	}
	return nil
}

// escapeLike escapes LIKE metacharacters so search input matches literally.
func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}

// List returns visible hangouts matching the filters plus the total count.
func (r *repository) List(ctx context.Context, filters ListFilters, limit, offset int) ([]*Hangout, int64, error) {
	if limit <= 0 {
		limit = 20
	}

	query := r.db.WithContext(ctx).Model(&Hangout{})

	if filters.ViewerID != nil {
		query = query.Where("visibility = ? OR owner_id = ?", VisibilityPublic, *filters.ViewerID)
	} else {
		query = query.Where("visibility = ?", VisibilityPublic)
	}

	if filters.Search != "" {
		pattern := "%" + escapeLike(filters.Search) + "%"
		query = query.Where(
			`title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR location LIKE ? ESCAPE '\'`,
			pattern, pattern, pattern,
		)
	}
	if filters.From != nil {
		query = query.Where("date >= ?", *filters.From)
	}
	if filters.To != nil {
		query = query.Where("date <= ?", *filters.To)
	}
	if filters.CollaborationMode != nil {
		query = query.Where("collaboration_mode = ?", *filters.CollaborationMode)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var hangouts []*Hangout
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&hangouts).Error
	if err != nil {
		return nil, 0, err
	}
	return hangouts, total, nil
}

// CreateSuggestions inserts a batch of suggestions.
func (r *repository) CreateSuggestions(ctx context.Context, suggestions []*Suggestion) error {
	if len(suggestions) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(suggestions).Error
}

// ListSuggestions lists a hangout's suggestions in creation order.
func (r *repository) ListSuggestions(ctx context.Context, hangoutID uuid.UUID) ([]*Suggestion, error) {
	var suggestions []*Suggestion
	err := r.db.WithContext(ctx).
		Where("hangout_id = ?", hangoutID).
		Order("created_at ASC").
		Find(&suggestions).Error
	if err != nil {
		return nil, err
	}
	return suggestions, nil
}
