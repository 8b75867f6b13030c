package workflow

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Repository defines the interface for workflow run persistence.
type Repository interface {
	Create(ctx context.Context, run *WorkflowRun) error
	Update(ctx context.Context, run *WorkflowRun) error
	GetByWorkflowID(ctx context.Context, workflowID string) (*WorkflowRun, error)
	ListByStatus(ctx context.Context, status RunStatus) ([]*WorkflowRun, error)
}

// repository implements Repository using GORM.
type repository struct {
	db *gorm.DB
}

// NewRepository creates a new workflow repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Create persists a new workflow run.
func (r *repository) Create(ctx context.Context, run *WorkflowRun) error {
	err := r.db.WithContext(ctx).Create(run).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyStarted
	}
	return err
}

// Update persists the run's current state.
func (r *repository) Update(ctx context.Context, run *WorkflowRun) error {
	updates := map[string]interface{}{
		"status":     run.Status,
		"step_index": run.StepIndex,
		"attempt":    run.Attempt,
		"last_error": run.LastError,
		"updated_at": time.Now(),
	}
	if run.CompletedAt != nil {
		updates["completed_at"] = *run.CompletedAt
	}

	result := r.db.WithContext(ctx).
		Model(&WorkflowRun{}).
		Where("workflow_id = ?", run.WorkflowID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetByWorkflowID retrieves a run by its workflow id.
func (r *repository) GetByWorkflowID(ctx context.Context, workflowID string) (*WorkflowRun, error) {
	var run WorkflowRun
	err := r.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return &run, nil
}

// ListByStatus lists runs with the given status, oldest first.
func (r *repository) ListByStatus(ctx context.Context, status RunStatus) ([]*WorkflowRun, error) {
	var runs []*WorkflowRun
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}
