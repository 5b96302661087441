package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bastion-ehs/be-ehs-hazards/internal/apperr"
	"github.com/bastion-ehs/be-ehs-hazards/internal/database"
	"github.com/bastion-ehs/be-ehs-hazards/internal/workflow"
)

// AuditRepository stores the append-only dispatch trail.
type AuditRepository struct {
	db *database.DB
}

func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append writes one log entry inside the caller's transaction.
func (r *AuditRepository) Append(ctx context.Context, tx pgx.Tx, hazardID string, entry workflow.LogEntry) error {
	query := `
		INSERT INTO hazard_logs
		    (id, hazard_id, action, operator_id, operator_name,
		     step_id, step_name, status, comment, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := tx.Exec(ctx, query,
		uuid.NewString(), hazardID, string(entry.Action), entry.OperatorID, entry.OperatorName,
		entry.StepID, entry.StepName, string(entry.Status), entry.Comment, entry.Time,
	)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "append hazard log")
	}
	return nil
}

// ListByHazard returns the hazard's trail in the order it happened.
func (r *AuditRepository) ListByHazard(ctx context.Context, hazardID string) ([]*Log, error) {
	query := `
		SELECT id, hazard_id, action, operator_id, operator_name,
		       step_id, step_name, status, comment, occurred_at, created_at
		FROM hazard_logs
		WHERE hazard_id = $1
		ORDER BY occurred_at, created_at
	`
	rows, err := r.db.Query(ctx, query, hazardID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "list hazard logs")
	}
	defer rows.Close()

	var out []*Log
	for rows.Next() {
		l := &Log{}
		err := rows.Scan(
			&l.ID, &l.HazardID, &l.Action, &l.OperatorID, &l.OperatorName,
			&l.StepID, &l.StepName, &l.Status, &l.Comment, &l.OccurredAt, &l.CreatedAt,
		)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "scan hazard log")
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
