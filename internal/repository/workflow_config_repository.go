package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/bastion-ehs/be-ehs-hazards/internal/apperr"
	"github.com/bastion-ehs/be-ehs-hazards/internal/database"
	"github.com/bastion-ehs/be-ehs-hazards/internal/workflow"
)

// WorkflowConfigRepository stores versioned workflow configurations.
// Versions are immutable once published; in-flight hazards keep resolving
// against the version they were created under.
type WorkflowConfigRepository struct {
	db *database.DB
}

func NewWorkflowConfigRepository(db *database.DB) *WorkflowConfigRepository {
	return &WorkflowConfigRepository{db: db}
}

// GetActive returns the currently published configuration, or the built-in
// default when none has been published yet.
func (r *WorkflowConfigRepository) GetActive(ctx context.Context) (*workflow.Config, error) {
	query := `
		SELECT version, steps, updated_by, created_at
		FROM hazard_workflow_configs
		WHERE is_active
	`
	cfg, err := r.scanConfig(r.db.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return workflow.DefaultConfig(), nil
	}
	return cfg, err
}

// GetVersion returns one specific configuration version.
func (r *WorkflowConfigRepository) GetVersion(ctx context.Context, version int) (*workflow.Config, error) {
	query := `
		SELECT version, steps, updated_by, created_at
		FROM hazard_workflow_configs
		WHERE version = $1
	`
	cfg, err := r.scanConfig(r.db.QueryRow(ctx, query, version))
	if errors.Is(err, pgx.ErrNoRows) {
		if version == workflow.DefaultConfig().Version {
			return workflow.DefaultConfig(), nil
		}
		return nil, apperr.Newf(apperr.ErrCodeNotFound, "workflow config version %d not found", version)
	}
	return cfg, err
}

// Publish stores the steps as the next version and flips the active flag
// to it in one transaction.
func (r *WorkflowConfigRepository) Publish(ctx context.Context, steps []workflow.Step, updatedBy string) (*workflow.Config, error) {
	raw, err := json.Marshal(steps)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "marshal workflow steps")
	}

	var cfg *workflow.Config
	err = r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var next int
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(version), 1) + 1 FROM hazard_workflow_configs`,
		).Scan(&next); err != nil {
			return apperr.Wrap(err, apperr.ErrCodeInternal, "allocate config version")
		}
		if _, err := tx.Exec(ctx,
			`UPDATE hazard_workflow_configs SET is_active = FALSE WHERE is_active`,
		); err != nil {
			return apperr.Wrap(err, apperr.ErrCodeInternal, "retire active config")
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO hazard_workflow_configs (version, steps, is_active, updated_by)
			VALUES ($1, $2, TRUE, $3)
			RETURNING version, steps, updated_by, created_at
		`, next, raw, nullable(updatedBy))

		c, err := r.scanConfig(row)
		if err != nil {
			return apperr.Wrap(err, apperr.ErrCodeInternal, "publish workflow config")
		}
		cfg = c
		return nil
	})
	return cfg, err
}

func (r *WorkflowConfigRepository) scanConfig(row rowScanner) (*workflow.Config, error) {
	var (
		cfg       workflow.Config
		raw       []byte
		updatedBy *string
	)
	if err := row.Scan(&cfg.Version, &raw, &updatedBy, &cfg.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &cfg.Steps); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "unmarshal workflow steps")
	}
	cfg.UpdatedBy = deref(updatedBy)
	return &cfg, nil
}
