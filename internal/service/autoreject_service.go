package service

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/bastion-ehs/be-ehs-hazards/internal/apperr"
	"github.com/bastion-ehs/be-ehs-hazards/internal/client"
	"github.com/bastion-ehs/be-ehs-hazards/internal/repository"
	"github.com/bastion-ehs/be-ehs-hazards/internal/workflow"
)

// AutoRejectService unblocks hazards stranded on a deactivated user. Every
// open hazard whose primary handler is that user gets sent back one step so
// the previous step's handlers can route it again; hazards still sitting at
// the first step are left for their reporter.
type AutoRejectService struct {
	hazards   *repository.HazardRepository
	configs   *repository.WorkflowConfigRepository
	audits    *repository.AuditRepository
	directory *repository.DirectoryRepository
	notifier  *client.NotificationPublisher
	engine    *workflow.Engine
	log       zerolog.Logger
}

func NewAutoRejectService(
	hazards *repository.HazardRepository,
	configs *repository.WorkflowConfigRepository,
	audits *repository.AuditRepository,
	dir *repository.DirectoryRepository,
	notifier *client.NotificationPublisher,
	log zerolog.Logger,
) *AutoRejectService {
	return &AutoRejectService{
		hazards:   hazards,
		configs:   configs,
		audits:    audits,
		directory: dir,
		notifier:  notifier,
		engine:    workflow.NewEngine(),
		log:       log,
	}
}

// HandleUserDeactivated sends back every open hazard currently waiting on
// the user. Returns how many hazards were sent back. Failures on
// individual hazards are logged and skipped so one bad record does not
// block the rest.
func (s *AutoRejectService) HandleUserDeactivated(ctx context.Context, operatorID, deactivatedUserID string) (int, error) {
	admin, err := s.directory.IsAdmin(ctx, operatorID)
	if err != nil {
		return 0, err
	}
	if !admin {
		return 0, apperr.New(apperr.ErrCodeUnauthorized, "only administrators may deactivate users")
	}

	dir, err := s.directory.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	stranded, err := s.hazards.ListActiveByExecutor(ctx, deactivatedUserID)
	if err != nil {
		return 0, err
	}

	cmd := workflow.Command{
		Action:   workflow.ActionReject,
		Operator: workflow.Actor{ID: operatorID, Admin: true},
		Comment:  "handler deactivated; returned to the previous step",
	}

	rejected := 0
	for _, stale := range stranded {
		if stale.CurrentStepIndex == 0 {
			s.log.Warn().
				Str("hazard_id", stale.ID).
				Str("user_id", deactivatedUserID).
				Msg("hazard at first step waits on a deactivated user; leaving it to the reporter")
			continue
		}

		var outcome *workflow.Outcome
		err := s.hazards.InTransaction(ctx, func(tx pgx.Tx) error {
			h, err := s.hazards.GetForUpdate(ctx, tx, stale.ID)
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
			s.log.Error().Err(err).
				Str("hazard_id", stale.ID).
				Str("user_id", deactivatedUserID).
				Msg("failed to send back stranded hazard")
			continue
		}
		s.notifier.PublishBatch(stale.Code, operatorID, outcome.Notifications)
		rejected++
	}

	s.log.Info().
		Str("user_id", deactivatedUserID).
		Int("stranded", len(stranded)).
		Int("rejected", rejected).
		Msg("deactivated user's hazards processed")
	return rejected, nil
}
