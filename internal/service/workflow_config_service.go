package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/bastion-ehs/be-ehs-hazards/internal/apperr"
	"github.com/bastion-ehs/be-ehs-hazards/internal/repository"
	"github.com/bastion-ehs/be-ehs-hazards/internal/workflow"
)

// WorkflowConfigService manages the published workflow configuration.
// Publishing creates a new immutable version; hazards already in flight
// keep the version they started with.
type WorkflowConfigService struct {
	configs   *repository.WorkflowConfigRepository
	directory *repository.DirectoryRepository
	log       zerolog.Logger
}

func NewWorkflowConfigService(configs *repository.WorkflowConfigRepository, dir *repository.DirectoryRepository, log zerolog.Logger) *WorkflowConfigService {
	return &WorkflowConfigService{configs: configs, directory: dir, log: log}
}

// Active returns the configuration new hazards will be pinned to.
func (s *WorkflowConfigService) Active(ctx context.Context) (*workflow.Config, error) {
	return s.configs.GetActive(ctx)
}

// Version returns one historical configuration version.
func (s *WorkflowConfigService) Version(ctx context.Context, version int) (*workflow.Config, error) {
	return s.configs.GetVersion(ctx, version)
}

// Publish validates and stores the steps as the next active version.
// Admin only.
func (s *WorkflowConfigService) Publish(ctx context.Context, operatorID string, steps []workflow.Step) (*workflow.Config, error) {
	admin, err := s.directory.IsAdmin(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	if !admin {
		return nil, apperr.New(apperr.ErrCodeUnauthorized, "only administrators may publish workflow configurations")
	}
	if err := workflow.ValidateConfig(&workflow.Config{Steps: steps, Version: 1}); err != nil {
		return nil, err
	}

	cfg, err := s.configs.Publish(ctx, steps, operatorID)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Int("version", cfg.Version).
		Int("steps", len(cfg.Steps)).
		Str("published_by", operatorID).
		Msg("workflow configuration published")
	return cfg, nil
}
