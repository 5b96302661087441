package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bastion-ehs/be-ehs-hazards/internal/apperr"
	"github.com/bastion-ehs/be-ehs-hazards/internal/database"
	"github.com/bastion-ehs/be-ehs-hazards/internal/workflow"
)

const hazardColumns = `
	id, code, status, risk_level, hazard_type, location, description,
	config_version,
	reporter_id, reporter_name, reporter_dept_id,
	responsible_id, responsible_name, responsible_dept_id,
	verifier_id, verifier_name,
	current_step_index, current_step_id, approval_mode, candidates,
	cc_user_ids, cc_user_names, historical_handlers,
	deadline, extension_requested, rectify_desc, rectify_time,
	created_at, updated_at`

// HazardRepository persists hazard records. Dispatch mutations go through
// GetForUpdate + ApplyPatch inside one transaction so each record has a
// single writer at a time.
type HazardRepository struct {
	db *database.DB
}

func NewHazardRepository(db *database.DB) *HazardRepository {
	return &HazardRepository{db: db}
}

// InTransaction exposes the pool's transaction helper to the service layer.
func (r *HazardRepository) InTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return r.db.InTransaction(ctx, fn)
}

// Create inserts a new hazard row.
func (r *HazardRepository) Create(ctx context.Context, tx pgx.Tx, h *Hazard) error {
	candidates, err := json.Marshal(h.Candidates)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "marshal candidates")
	}

	query := `
		INSERT INTO hazards
		    (id, code, status, risk_level, hazard_type, location, description,
		     config_version,
		     reporter_id, reporter_name, reporter_dept_id,
		     responsible_id, responsible_name, responsible_dept_id,
		     current_step_index, current_step_id, approval_mode, candidates,
		     cc_user_ids, cc_user_names, historical_handlers,
		     deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7,
		        $8,
		        $9, $10, $11,
		        $12, $13, $14,
		        $15, $16, $17, $18,
		        $19, $20, $21,
		        $22)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRow(ctx, query,
		h.ID, h.Code, h.Status, h.RiskLevel, h.Type, h.Location, h.Description,
		h.ConfigVersion,
		h.ReporterID, h.ReporterName, nullable(h.ReporterDeptID),
		h.ResponsibleID, h.ResponsibleName, nullable(h.ResponsibleDeptID),
		h.CurrentStepIndex, h.CurrentStepID, string(h.ApprovalMode), candidates,
		textArray(h.CCUserIDs), textArray(h.CCUserNames), textArray(h.HistoricalHandlerIDs),
		h.Deadline,
	).Scan(&h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "create hazard")
	}
	return nil
}

// GetByID loads one hazard without locking.
func (r *HazardRepository) GetByID(ctx context.Context, id string) (*Hazard, error) {
	query := fmt.Sprintf(`SELECT %s FROM hazards WHERE id = $1`, hazardColumns)
	h, err := scanHazard(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("hazard", id)
	}
	return h, err
}

// GetForUpdate loads one hazard with a row lock, serializing concurrent
// dispatches against the same record.
func (r *HazardRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*Hazard, error) {
	query := fmt.Sprintf(`SELECT %s FROM hazards WHERE id = $1 FOR UPDATE`, hazardColumns)
	h, err := scanHazard(tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("hazard", id)
	}
	return h, err
}

// ApplyPatch writes a dispatch outcome back to the row.
func (r *HazardRepository) ApplyPatch(ctx context.Context, tx pgx.Tx, id string, p workflow.Patch) error {
	candidates, err := json.Marshal(p.Candidates)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "marshal candidates")
	}

	query := `
		UPDATE hazards
		SET status               = $2,
		    current_step_index   = $3,
		    current_step_id      = $4,
		    approval_mode        = $5,
		    candidates           = $6,
		    cc_user_ids          = $7,
		    cc_user_names        = $8,
		    historical_handlers  = $9,
		    extension_requested  = COALESCE($10, extension_requested),
		    rectify_desc         = COALESCE($11, rectify_desc),
		    rectify_time         = COALESCE($12, rectify_time),
		    verifier_id          = COALESCE($13, verifier_id),
		    verifier_name        = COALESCE($14, verifier_name),
		    updated_at           = NOW()
		WHERE id = $1
		RETURNING id
	`
	var returnedID string
	err = tx.QueryRow(ctx, query, id,
		string(p.Status), p.CurrentStepIndex, p.CurrentStepID, string(p.ApprovalMode), candidates,
		textArray(p.CCUserIDs), textArray(p.CCUserNames), textArray(p.HistoricalHandlerIDs),
		p.ExtensionRequested, p.RectifyDesc, p.RectifyTime, p.VerifierID, p.VerifierName,
	).Scan(&returnedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("hazard", id)
	}
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "apply hazard patch")
	}
	return nil
}

// UpdateDeadline sets a new deadline and clears the pending-extension flag.
func (r *HazardRepository) UpdateDeadline(ctx context.Context, tx pgx.Tx, id string, deadline *time.Time) error {
	query := `
		UPDATE hazards
		SET deadline            = COALESCE($2, deadline),
		    extension_requested = FALSE,
		    updated_at          = NOW()
		WHERE id = $1
		RETURNING id
	`
	var returnedID string
	err := tx.QueryRow(ctx, query, id, deadline).Scan(&returnedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("hazard", id)
	}
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "update hazard deadline")
	}
	return nil
}

// List returns hazards matching the filter, newest first, with the total
// count before pagination.
func (r *HazardRepository) List(ctx context.Context, f HazardFilter) ([]*Hazard, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != "" {
		where += " AND status = " + arg(f.Status)
	}
	if f.RiskLevel != "" {
		where += " AND risk_level = " + arg(f.RiskLevel)
	}
	if f.Type != "" {
		where += " AND hazard_type = " + arg(f.Type)
	}
	if f.Location != "" {
		where += " AND location = " + arg(f.Location)
	}
	if f.VisibleTo != "" {
		p := arg(f.VisibleTo)
		where += fmt.Sprintf(
			" AND (reporter_id = %[1]s OR responsible_id = %[1]s OR %[1]s = ANY(historical_handlers))", p)
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM hazards"+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(err, apperr.ErrCodeInternal, "count hazards")
	}

	page, pageSize := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}
	query := fmt.Sprintf("SELECT %s FROM hazards%s ORDER BY created_at DESC LIMIT %s OFFSET %s",
		hazardColumns, where, arg(pageSize), arg((page-1)*pageSize))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperr.Wrap(err, apperr.ErrCodeInternal, "list hazards")
	}
	defer rows.Close()

	var out []*Hazard
	for rows.Next() {
		h, err := scanHazard(rows)
		if err != nil {
			return nil, 0, apperr.Wrap(err, apperr.ErrCodeInternal, "scan hazard")
		}
		out = append(out, h)
	}
	return out, total, rows.Err()
}

// ListActiveByExecutor returns open hazards whose primary handler is the
// given user.
func (r *HazardRepository) ListActiveByExecutor(ctx context.Context, userID string) ([]*Hazard, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM hazards
		WHERE status NOT IN ($1, $2) AND candidates->0->>'userId' = $3
		ORDER BY created_at
	`, hazardColumns)

	rows, err := r.db.Query(ctx, query,
		string(workflow.StatusClosed), string(workflow.StatusVoided), userID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "list hazards by executor")
	}
	defer rows.Close()

	var out []*Hazard
	for rows.Next() {
		h, err := scanHazard(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "scan hazard")
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListOverdue returns rectifying hazards whose deadline has passed.
func (r *HazardRepository) ListOverdue(ctx context.Context, now time.Time) ([]*Hazard, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM hazards
		WHERE status = $1 AND deadline IS NOT NULL AND deadline < $2
		ORDER BY deadline
	`, hazardColumns)

	rows, err := r.db.Query(ctx, query, string(workflow.StatusRectifying), now)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "list overdue hazards")
	}
	defer rows.Close()

	var out []*Hazard
	for rows.Next() {
		h, err := scanHazard(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "scan hazard")
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHazard(row rowScanner) (*Hazard, error) {
	h := &Hazard{}
	var (
		candidates    []byte
		approvalMode  string
		status        string
		riskLevel     string
		reporterDept  *string
		respDept      *string
		verifierID    *string
		verifierName  *string
		rectifyDesc   *string
	)
	err := row.Scan(
		&h.ID, &h.Code, &status, &riskLevel, &h.Type, &h.Location, &h.Description,
		&h.ConfigVersion,
		&h.ReporterID, &h.ReporterName, &reporterDept,
		&h.ResponsibleID, &h.ResponsibleName, &respDept,
		&verifierID, &verifierName,
		&h.CurrentStepIndex, &h.CurrentStepID, &approvalMode, &candidates,
		&h.CCUserIDs, &h.CCUserNames, &h.HistoricalHandlerIDs,
		&h.Deadline, &h.ExtensionRequested, &rectifyDesc, &h.RectifyTime,
		&h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	h.Status = workflow.Status(status)
	h.RiskLevel = workflow.RiskLevel(riskLevel)
	h.ApprovalMode = workflow.ApprovalMode(approvalMode)
	h.ReporterDeptID = deref(reporterDept)
	h.ResponsibleDeptID = deref(respDept)
	h.VerifierID = deref(verifierID)
	h.VerifierName = deref(verifierName)
	h.RectifyDesc = deref(rectifyDesc)
	if err := json.Unmarshal(candidates, &h.Candidates); err != nil {
		return nil, fmt.Errorf("unmarshal candidates: %w", err)
	}
	return h, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func textArray(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
