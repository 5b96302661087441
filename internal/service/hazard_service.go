package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/bastion-ehs/be-ehs-hazards/internal/apperr"
	"github.com/bastion-ehs/be-ehs-hazards/internal/client"
	"github.com/bastion-ehs/be-ehs-hazards/internal/repository"
	"github.com/bastion-ehs/be-ehs-hazards/internal/workflow"
)

// HazardService owns the hazard lifecycle: reporting, dispatching workflow
// actions, voiding, and the read paths. Every dispatch runs inside one
// transaction with the hazard row locked, so concurrent actions against
// the same record serialize instead of racing.
type HazardService struct {
	hazards   *repository.HazardRepository
	configs   *repository.WorkflowConfigRepository
	audits    *repository.AuditRepository
	directory *repository.DirectoryRepository
	notifier  *client.NotificationPublisher
	engine    *workflow.Engine
	log       zerolog.Logger
}

func NewHazardService(
	hazards *repository.HazardRepository,
	configs *repository.WorkflowConfigRepository,
	audits *repository.AuditRepository,
	dir *repository.DirectoryRepository,
	notifier *client.NotificationPublisher,
	log zerolog.Logger,
) *HazardService {
	return &HazardService{
		hazards:   hazards,
		configs:   configs,
		audits:    audits,
		directory: dir,
		notifier:  notifier,
		engine:    workflow.NewEngine(),
		log:       log,
	}
}

// ReportHazardRequest is the payload for creating a hazard record.
type ReportHazardRequest struct {
	RiskLevel     string     `json:"riskLevel"`
	Type          string     `json:"type"`
	Location      string     `json:"location"`
	Description   string     `json:"description"`
	ResponsibleID string     `json:"responsibleId"`
	Deadline      *time.Time `json:"deadline,omitempty"`
}

// ReportHazard creates a new record in reported status, pinned to the
// active workflow configuration version. The reporter then submits it as a
// separate action.
func (s *HazardService) ReportHazard(ctx context.Context, reporterID string, req *ReportHazardRequest) (*repository.Hazard, error) {
	if req.RiskLevel == "" || req.Type == "" || req.Location == "" {
		return nil, apperr.InvalidInput("riskLevel/type/location", "must not be empty")
	}
	if req.ResponsibleID == "" {
		return nil, apperr.InvalidInput("responsibleId", "a rectification leader is required")
	}

	dir, err := s.directory.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	reporter := dir.User(reporterID)
	if reporter == nil {
		return nil, apperr.Newf(apperr.ErrCodeInvalidInput, "reporter %q not found", reporterID)
	}
	responsible := dir.User(req.ResponsibleID)
	if responsible == nil {
		return nil, apperr.Newf(apperr.ErrCodeInvalidInput, "rectification leader %q not found", req.ResponsibleID)
	}

	cfg, err := s.configs.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	if err := workflow.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	h := &repository.Hazard{
		Hazard: workflow.Hazard{
			ID:                uuid.NewString(),
			Code:              newHazardCode(time.Now()),
			Status:            workflow.StatusReported,
			RiskLevel:         workflow.RiskLevel(req.RiskLevel),
			Type:              req.Type,
			Location:          req.Location,
			Description:       req.Description,
			ReporterID:        reporter.ID,
			ReporterName:      reporter.Name,
			ReporterDeptID:    reporter.DepartmentID,
			ResponsibleID:     responsible.ID,
			ResponsibleName:   responsible.Name,
			ResponsibleDeptID: responsible.DepartmentID,
			Deadline:          req.Deadline,
		},
		ConfigVersion: cfg.Version,
	}

	// Resolve the first step so the record starts with its candidates set.
	res := workflow.ResolveStep(workflow.Context{Hazard: &h.Hazard, Directory: dir}, cfg, 0)
	if !res.Success {
		return nil, res.Err
	}
	h.CurrentStepIndex = 0
	h.CurrentStepID = res.StepID
	h.ApprovalMode = res.Mode
	h.Candidates = res.Candidates
	h.CCUserIDs = res.CCUserIDs
	h.CCUserNames = res.CCUserNames
	for _, c := range res.Candidates {
		h.HistoricalHandlerIDs = append(h.HistoricalHandlerIDs, c.UserID)
	}

	err = s.hazards.InTransaction(ctx, func(tx pgx.Tx) error {
		return s.hazards.Create(ctx, tx, h)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("hazard_id", h.ID).
		Str("code", h.Code).
		Str("reporter_id", reporter.ID).
		Int("config_version", cfg.Version).
		Msg("hazard reported")
	return h, nil
}

// DispatchRequest is the payload for a workflow action.
type DispatchRequest struct {
	Action          string     `json:"action"`
	Comment         string     `json:"comment,omitempty"`
	RectifyDesc     string     `json:"rectifyDesc,omitempty"`
	RectifyPhotos   []string   `json:"rectifyPhotos,omitempty"`
	VerifierID      string     `json:"verifierId,omitempty"`
	NewDeadline     *time.Time `json:"newDeadline,omitempty"`
	ExtensionReason string     `json:"extensionReason,omitempty"`
}

// Dispatch applies one workflow action to the hazard and returns the
// updated record.
func (s *HazardService) Dispatch(ctx context.Context, hazardID, operatorID string, req *DispatchRequest) (*repository.Hazard, error) {
	// Extension requests carry their own record; keep them on the
	// extension endpoint so the request row and the pending flag stay in
	// step.
	if workflow.Action(req.Action) == workflow.ActionExtend {
		return nil, apperr.InvalidInput("action", "deadline extensions are requested via the extensions endpoint")
	}

	actor, err := s.resolveActor(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	dir, err := s.directory.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	cmd := workflow.Command{
		Action:   workflow.Action(req.Action),
		Operator: actor,
		Comment:  req.Comment,
		Extra: workflow.Extra{
			Deadline:        req.NewDeadline,
			ExtensionReason: req.ExtensionReason,
			RectifyDesc:     req.RectifyDesc,
			RectifyPhotos:   req.RectifyPhotos,
		},
	}
	if req.VerifierID != "" {
		verifier := dir.User(req.VerifierID)
		if verifier == nil {
			return nil, apperr.Newf(apperr.ErrCodeInvalidInput, "verifier %q not found", req.VerifierID)
		}
		cmd.Extra.VerifierID = verifier.ID
		cmd.Extra.VerifierName = verifier.Name
	}

	var (
		h       *repository.Hazard
		outcome *workflow.Outcome
	)
	err = s.hazards.InTransaction(ctx, func(tx pgx.Tx) error {
		h, err = s.hazards.GetForUpdate(ctx, tx, hazardID)
		if err != nil {
			return err
		}
		cfg, err := s.configs.GetVersion(ctx, h.ConfigVersion)
		if err != nil {
			return err
		}

		outcome, err = s.engine.Dispatch(workflow.Context{Hazard: &h.Hazard, Directory: dir}, cfg, cmd)
		if err != nil {
			return err
		}
		if err := s.hazards.ApplyPatch(ctx, tx, h.ID, outcome.Patch); err != nil {
			return err
		}
		return s.audits.Append(ctx, tx, h.ID, outcome.Log)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.PublishBatch(h.Code, actor.ID, outcome.Notifications)
	s.log.Info().
		Str("hazard_id", h.ID).
		Str("action", string(cmd.Action)).
		Str("operator_id", actor.ID).
		Str("status", string(outcome.Patch.Status)).
		Bool("advanced", outcome.Advanced).
		Msg("hazard action dispatched")

	return s.hazards.GetByID(ctx, hazardID)
}

// Void cancels a non-terminal hazard.
func (s *HazardService) Void(ctx context.Context, hazardID, operatorID, reason string) (*repository.Hazard, error) {
	actor, err := s.resolveActor(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	var h *repository.Hazard
	err = s.hazards.InTransaction(ctx, func(tx pgx.Tx) error {
		h, err = s.hazards.GetForUpdate(ctx, tx, hazardID)
		if err != nil {
			return err
		}
		outcome, err := s.engine.Void(&h.Hazard, actor, reason)
		if err != nil {
			return err
		}
		if err := s.hazards.ApplyPatch(ctx, tx, h.ID, outcome.Patch); err != nil {
			return err
		}
		return s.audits.Append(ctx, tx, h.ID, outcome.Log)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("hazard_id", hazardID).Str("operator_id", actor.ID).Msg("hazard voided")
	return s.hazards.GetByID(ctx, hazardID)
}

// Get returns the hazard if the user may read it.
func (s *HazardService) Get(ctx context.Context, hazardID, userID string) (*repository.Hazard, error) {
	actor, err := s.resolveActor(ctx, userID)
	if err != nil {
		return nil, err
	}
	h, err := s.hazards.GetByID(ctx, hazardID)
	if err != nil {
		return nil, err
	}
	if !workflow.CanView(&h.Hazard, actor) {
		return nil, apperr.Newf(apperr.ErrCodeUnauthorized, "user %s may not view hazard %s", userID, hazardID)
	}
	return h, nil
}

// List returns hazards visible to the user, filtered and paginated.
func (s *HazardService) List(ctx context.Context, userID string, f repository.HazardFilter) ([]*repository.Hazard, int, error) {
	actor, err := s.resolveActor(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if !actor.Admin {
		f.VisibleTo = actor.ID
	}
	return s.hazards.List(ctx, f)
}

// PreviewWorkflow resolves every step of the hazard's pinned configuration
// against its current snapshot, without dispatching anything.
func (s *HazardService) PreviewWorkflow(ctx context.Context, hazardID, userID string) ([]workflow.StepResolution, error) {
	h, err := s.Get(ctx, hazardID, userID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.configs.GetVersion(ctx, h.ConfigVersion)
	if err != nil {
		return nil, err
	}
	dir, err := s.directory.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return workflow.ResolveWorkflow(workflow.Context{Hazard: &h.Hazard, Directory: dir}, cfg), nil
}

// AvailableActions lists what the user could do to the hazard right now.
func (s *HazardService) AvailableActions(ctx context.Context, hazardID, userID string) ([]workflow.Action, error) {
	actor, err := s.resolveActor(ctx, userID)
	if err != nil {
		return nil, err
	}
	h, err := s.hazards.GetByID(ctx, hazardID)
	if err != nil {
		return nil, err
	}
	return workflow.AvailableActions(&h.Hazard, actor), nil
}

// Logs returns the hazard's audit trail.
func (s *HazardService) Logs(ctx context.Context, hazardID, userID string) ([]*repository.Log, error) {
	if _, err := s.Get(ctx, hazardID, userID); err != nil {
		return nil, err
	}
	return s.audits.ListByHazard(ctx, hazardID)
}

// resolveActor looks the user up in the directory and carries their admin
// flag into the engine.
func (s *HazardService) resolveActor(ctx context.Context, userID string) (workflow.Actor, error) {
	if userID == "" {
		return workflow.Actor{}, apperr.InvalidInput("userId", "must not be empty")
	}
	dir, err := s.directory.Snapshot(ctx)
	if err != nil {
		return workflow.Actor{}, err
	}
	admin, err := s.directory.IsAdmin(ctx, userID)
	if err != nil {
		return workflow.Actor{}, err
	}
	actor := workflow.Actor{ID: userID, Admin: admin}
	if u := dir.User(userID); u != nil {
		actor.Name = u.Name
	}
	return actor, nil
}

// newHazardCode builds a human-readable record code, e.g. HZ-2026-4F2A1B.
func newHazardCode(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("HZ-%d-%s", now.Year(), suffix)
}
