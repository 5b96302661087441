package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/bastion-ehs/be-ehs-hazards/internal/apperr"
	"github.com/bastion-ehs/be-ehs-hazards/internal/client"
	"github.com/bastion-ehs/be-ehs-hazards/internal/repository"
	"github.com/bastion-ehs/be-ehs-hazards/internal/workflow"
)

// ExtensionService manages deadline extension requests. The request itself
// goes through the dispatch engine (it is the extend action); approval and
// rejection are reporter/admin decisions handled here.
type ExtensionService struct {
	hazards    *repository.HazardRepository
	extensions *repository.ExtensionRepository
	audits     *repository.AuditRepository
	directory  *repository.DirectoryRepository
	configs    *repository.WorkflowConfigRepository
	notifier   *client.NotificationPublisher
	engine     *workflow.Engine
	log        zerolog.Logger
}

func NewExtensionService(
	hazards *repository.HazardRepository,
	extensions *repository.ExtensionRepository,
	audits *repository.AuditRepository,
	dir *repository.DirectoryRepository,
	configs *repository.WorkflowConfigRepository,
	notifier *client.NotificationPublisher,
	log zerolog.Logger,
) *ExtensionService {
	return &ExtensionService{
		hazards:    hazards,
		extensions: extensions,
		audits:     audits,
		directory:  dir,
		configs:    configs,
		notifier:   notifier,
		engine:     workflow.NewEngine(),
		log:        log,
	}
}

// Request records a deadline extension request for the hazard. The engine
// validates the action and the new deadline; the extension row and the
// pending flag are written in the same transaction.
func (s *ExtensionService) Request(ctx context.Context, hazardID, operatorID string, newDeadline time.Time, reason string) (*repository.Extension, error) {
	dir, err := s.directory.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	admin, err := s.directory.IsAdmin(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	actor := workflow.Actor{ID: operatorID, Admin: admin}
	if u := dir.User(operatorID); u != nil {
		actor.Name = u.Name
	}

	var (
		ext     *repository.Extension
		outcome *workflow.Outcome
		code    string
	)
	err = s.hazards.InTransaction(ctx, func(tx pgx.Tx) error {
		h, err := s.hazards.GetForUpdate(ctx, tx, hazardID)
		if err != nil {
			return err
		}
		code = h.Code
		cfg, err := s.configs.GetVersion(ctx, h.ConfigVersion)
		if err != nil {
			return err
		}

		outcome, err = s.engine.Dispatch(workflow.Context{Hazard: &h.Hazard, Directory: dir}, cfg, workflow.Command{
			Action:   workflow.ActionExtend,
			Operator: actor,
			Comment:  reason,
			Extra:    workflow.Extra{Deadline: &newDeadline, ExtensionReason: reason},
		})
		if err != nil {
			return err
		}

		ext = &repository.Extension{
			HazardID:    h.ID,
			RequestedBy: actor.ID,
			Reason:      reason,
			OldDeadline: h.Deadline,
			NewDeadline: newDeadline,
		}
		if err := s.extensions.Create(ctx, tx, ext); err != nil {
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

	s.notifier.PublishBatch(code, actor.ID, outcome.Notifications)
	s.log.Info().
		Str("hazard_id", hazardID).
		Str("requested_by", actor.ID).
		Time("new_deadline", newDeadline).
		Msg("extension requested")
	return ext, nil
}

// Approve grants the pending request: the hazard deadline moves and the
// pending flag clears. Only the reporter or an admin may decide.
func (s *ExtensionService) Approve(ctx context.Context, hazardID, operatorID string) (*repository.Extension, error) {
	return s.resolve(ctx, hazardID, operatorID, repository.ExtensionApproved)
}

// Reject declines the pending request; the deadline stays put.
func (s *ExtensionService) Reject(ctx context.Context, hazardID, operatorID string) (*repository.Extension, error) {
	return s.resolve(ctx, hazardID, operatorID, repository.ExtensionRejected)
}

// List returns every extension request made for the hazard.
func (s *ExtensionService) List(ctx context.Context, hazardID string) ([]*repository.Extension, error) {
	return s.extensions.ListByHazard(ctx, hazardID)
}

func (s *ExtensionService) resolve(ctx context.Context, hazardID, operatorID, status string) (*repository.Extension, error) {
	admin, err := s.directory.IsAdmin(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	var ext *repository.Extension
	err = s.hazards.InTransaction(ctx, func(tx pgx.Tx) error {
		h, err := s.hazards.GetForUpdate(ctx, tx, hazardID)
		if err != nil {
			return err
		}
		if !admin && operatorID != h.ReporterID {
			return apperr.Newf(apperr.ErrCodeUnauthorized,
				"only the reporter may decide extension requests for hazard %s", hazardID)
		}

		ext, err = s.extensions.GetPending(ctx, tx, hazardID)
		if err != nil {
			return err
		}
		now := time.Now()
		if err := s.extensions.Resolve(ctx, tx, ext.ID, status, operatorID, now); err != nil {
			return err
		}
		ext.Status = status
		ext.ResolvedBy = &operatorID
		ext.ResolvedAt = &now

		var deadline *time.Time
		if status == repository.ExtensionApproved {
			deadline = &ext.NewDeadline
		}
		// Clears the pending flag either way.
		return s.hazards.UpdateDeadline(ctx, tx, hazardID, deadline)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.PublishBatch("", operatorID, []workflow.Notification{{
		UserID:   ext.RequestedBy,
		Kind:     workflow.NotifyExtension,
		Title:    "Extension request " + status,
		Body:     "Your deadline extension request was " + status,
		HazardID: hazardID,
	}})
	s.log.Info().
		Str("hazard_id", hazardID).
		Str("extension_id", ext.ID).
		Str("status", status).
		Str("resolved_by", operatorID).
		Msg("extension resolved")
	return ext, nil
}
