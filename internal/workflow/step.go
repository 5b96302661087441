package workflow

import (
	"errors"

	"github.com/bastion-ehs/be-ehs-hazards/internal/apperr"
)

// DefaultConfig is the four-step workflow used when no configuration has
// been published for a tenant.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Steps: []Step{
			{ID: StepReport, Name: "Report", ForcedActor: ForcedReporter},
			{ID: StepAssign, Name: "Assign", Handler: HandlerConfig{
				Single: &StrategyItem{Type: StrategyReporterManager},
			}},
			{ID: StepRectify, Name: "Rectify", ForcedActor: ForcedRectificationLeader},
			{ID: StepVerify, Name: "Verify", Handler: HandlerConfig{
				Single: &StrategyItem{Type: StrategyReporterManager},
			}},
		},
	}
}

// ValidateConfig rejects configurations the engine cannot execute.
func ValidateConfig(cfg *Config) error {
	if cfg == nil || len(cfg.Steps) == 0 {
		return apperr.New(apperr.ErrCodeConfig, "workflow configuration has no steps")
	}
	seen := make(map[string]struct{}, len(cfg.Steps))
	for i := range cfg.Steps {
		s := &cfg.Steps[i]
		if s.ID == "" {
			return apperr.Newf(apperr.ErrCodeConfig, "step %d has no id", i)
		}
		if _, dup := seen[s.ID]; dup {
			return apperr.Newf(apperr.ErrCodeConfig, "duplicate step id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.ForcedActor != ForcedNone {
			continue
		}
		hc := s.Handler
		if hc.Single == nil && len(hc.Strategies) == 0 {
			return apperr.Newf(apperr.ErrCodeConfig, "step %q has no handler strategy", s.ID)
		}
		if len(hc.Strategies) > 0 {
			switch hc.Mode {
			case ModeOr, ModeAnd, ModeConditional:
			default:
				return apperr.Newf(apperr.ErrCodeConfig, "step %q has invalid approval mode %q", s.ID, hc.Mode)
			}
		}
	}
	return nil
}

// StatusForStep infers the hazard status that corresponds to waiting on the
// step at index. Canonical step ids map directly; a custom step inherits
// the status of the nearest preceding canonical step.
func StatusForStep(cfg *Config, index int) Status {
	if index < 0 || index >= len(cfg.Steps) {
		return StatusClosed
	}
	for i := index; i >= 0; i-- {
		switch cfg.Steps[i].ID {
		case StepReport:
			return StatusReported
		case StepAssign:
			return StatusAssigned
		case StepRectify:
			return StatusRectifying
		case StepVerify:
			return StatusVerified
		}
	}
	return StatusReported
}

// StepIndex finds a step by id.
func StepIndex(cfg *Config, id string) int {
	for i := range cfg.Steps {
		if cfg.Steps[i].ID == id {
			return i
		}
	}
	return -1
}

func appendCandidates(dst []Candidate, r Resolved) []Candidate {
	seen := make(map[string]struct{}, len(dst))
	for _, c := range dst {
		seen[c.UserID] = struct{}{}
	}
	for i, id := range r.UserIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		dst = append(dst, Candidate{UserID: id, UserName: r.UserNames[i]})
	}
	return dst
}

// resolveForced resolves a pinned step to its domain role.
func resolveForced(ctx Context, actor ForcedActor) Resolved {
	h := ctx.Hazard
	switch actor {
	case ForcedReporter:
		return Resolved{Success: true, MatchedBy: "forced:reporter",
			UserIDs: []string{h.ReporterID}, UserNames: []string{h.ReporterName}}
	case ForcedRectificationLeader:
		if h.ResponsibleID == "" {
			return resolveFailed(apperr.New(apperr.ErrCodeConfig, "hazard has no rectification leader"))
		}
		return Resolved{Success: true, MatchedBy: "forced:rectification_leader",
			UserIDs: []string{h.ResponsibleID}, UserNames: []string{h.ResponsibleName}}
	default:
		return resolveFailed(apperr.Newf(apperr.ErrCodeConfig, "unknown forced actor %q", actor))
	}
}

// ResolveStep resolves the handlers and cc audience of the step at index.
// Forced-actor steps ignore any configured strategy. Multi-strategy steps
// resolve per the approval mode:
//
//   - OR unions every strategy that resolves; it fails only when none do.
//   - AND requires every strategy to resolve.
//   - CONDITIONAL keeps the strategies whose condition matches the hazard
//     and treats them as OR; zero matches is a configuration error.
func ResolveStep(ctx Context, cfg *Config, index int) StepResolution {
	res := StepResolution{StepIndex: index}
	if index < 0 || index >= len(cfg.Steps) {
		res.Err = apperr.Newf(apperr.ErrCodeConfig, "step index %d out of range", index)
		return res
	}
	step := &cfg.Steps[index]
	res.StepID = step.ID
	res.StepName = step.Name

	switch {
	case step.ForcedActor != ForcedNone:
		res.Handlers = resolveForced(ctx, step.ForcedActor)
		res.Mode = ModeOr

	case step.Handler.Single != nil && len(step.Handler.Strategies) == 0:
		res.Handlers = ResolveStrategy(ctx, step.Handler.Single)
		res.Mode = ModeOr

	default:
		items := step.Handler.Strategies
		mode := step.Handler.Mode
		if mode == ModeConditional {
			var matched []StrategyItem
			for i := range items {
				if EvalCondition(ctx.Hazard, items[i].Condition) {
					matched = append(matched, items[i])
				}
			}
			if len(matched) == 0 {
				res.Err = apperr.Newf(apperr.ErrCodeConfig,
					"no conditional strategy matches hazard at step %q", step.ID)
				res.Handlers = resolveFailed(res.Err)
				return res
			}
			items = matched
			mode = ModeOr
		}
		res.Mode = mode

		merged := Resolved{MatchedBy: "multi"}
		var failures []error
		for i := range items {
			r := ResolveStrategy(ctx, &items[i])
			if !r.Success {
				// keep going so the resolution names every broken strategy
				failures = append(failures, r.Err)
				continue
			}
			merged.UserIDs = append(merged.UserIDs, r.UserIDs...)
			merged.UserNames = append(merged.UserNames, r.UserNames...)
		}
		if mode == ModeAnd && len(failures) > 0 {
			err := errors.Join(failures...)
			res.Err = err
			res.Handlers = resolveFailed(err)
			return res
		}
		if len(merged.UserIDs) == 0 {
			if len(failures) == 0 {
				failures = append(failures, apperr.Newf(apperr.ErrCodeConfig, "step %q resolved no handlers", step.ID))
			}
			err := errors.Join(failures...)
			res.Err = err
			res.Handlers = resolveFailed(err)
			return res
		}
		merged.Success = true
		res.Handlers = merged
	}

	if !res.Handlers.Success {
		res.Err = res.Handlers.Err
		return res
	}

	res.Candidates = appendCandidates(nil, res.Handlers)
	res.CCUserIDs, res.CCUserNames = ResolveCC(ctx, step.CCRules, res.Handlers.UserIDs)
	res.Success = true
	return res
}

// ResolveWorkflow resolves every step of the configuration against the
// current hazard snapshot. Used for previews; a step that fails to resolve
// is reported in place without stopping the walk.
func ResolveWorkflow(ctx Context, cfg *Config) []StepResolution {
	out := make([]StepResolution, 0, len(cfg.Steps))
	for i := range cfg.Steps {
		out = append(out, ResolveStep(ctx, cfg, i))
	}
	return out
}
