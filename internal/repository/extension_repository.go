package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bastion-ehs/be-ehs-hazards/internal/apperr"
	"github.com/bastion-ehs/be-ehs-hazards/internal/database"
)

// ExtensionRepository stores deadline extension requests.
type ExtensionRepository struct {
	db *database.DB
}

func NewExtensionRepository(db *database.DB) *ExtensionRepository {
	return &ExtensionRepository{db: db}
}

// Create inserts a pending request. The partial unique index turns a
// second pending request for the same hazard into a conflict.
func (r *ExtensionRepository) Create(ctx context.Context, tx pgx.Tx, e *Extension) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Status = ExtensionPending

	query := `
		INSERT INTO hazard_extensions
		    (id, hazard_id, requested_by, reason, old_deadline, new_deadline, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := tx.QueryRow(ctx, query,
		e.ID, e.HazardID, e.RequestedBy, e.Reason, e.OldDeadline, e.NewDeadline, e.Status,
	).Scan(&e.CreatedAt)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "create extension request")
	}
	return nil
}

// GetPending returns the hazard's pending request, or a not-found error.
func (r *ExtensionRepository) GetPending(ctx context.Context, tx pgx.Tx, hazardID string) (*Extension, error) {
	query := `
		SELECT id, hazard_id, requested_by, reason, old_deadline, new_deadline,
		       status, resolved_by, resolved_at, created_at
		FROM hazard_extensions
		WHERE hazard_id = $1 AND status = $2
	`
	e := &Extension{}
	err := tx.QueryRow(ctx, query, hazardID, ExtensionPending).Scan(
		&e.ID, &e.HazardID, &e.RequestedBy, &e.Reason, &e.OldDeadline, &e.NewDeadline,
		&e.Status, &e.ResolvedBy, &e.ResolvedAt, &e.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Newf(apperr.ErrCodeNotFound, "no pending extension request for hazard %s", hazardID)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "get pending extension request")
	}
	return e, nil
}

// Resolve marks the request approved or rejected.
func (r *ExtensionRepository) Resolve(ctx context.Context, tx pgx.Tx, id, status, resolvedBy string, at time.Time) error {
	query := `
		UPDATE hazard_extensions
		SET status = $2, resolved_by = $3, resolved_at = $4
		WHERE id = $1 AND status = $5
		RETURNING id
	`
	var returnedID string
	err := tx.QueryRow(ctx, query, id, status, resolvedBy, at, ExtensionPending).Scan(&returnedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Newf(apperr.ErrCodeConflict, "extension request %s is not pending", id)
	}
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "resolve extension request")
	}
	return nil
}

// ListByHazard returns every request ever made for the hazard.
func (r *ExtensionRepository) ListByHazard(ctx context.Context, hazardID string) ([]*Extension, error) {
	query := `
		SELECT id, hazard_id, requested_by, reason, old_deadline, new_deadline,
		       status, resolved_by, resolved_at, created_at
		FROM hazard_extensions
		WHERE hazard_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, hazardID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "list extension requests")
	}
	defer rows.Close()

	var out []*Extension
	for rows.Next() {
		e := &Extension{}
		err := rows.Scan(
			&e.ID, &e.HazardID, &e.RequestedBy, &e.Reason, &e.OldDeadline, &e.NewDeadline,
			&e.Status, &e.ResolvedBy, &e.ResolvedAt, &e.CreatedAt,
		)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "scan extension request")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
