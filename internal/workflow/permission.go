package workflow

import (
	"slices"

	"github.com/bastion-ehs/be-ehs-hazards/internal/apperr"
)

// forwardStatus maps each forward action to the only status it is legal
// from. Reject and extend have their own gates.
var forwardStatus = map[Action]Status{
	ActionSubmit:  StatusReported,
	ActionAssign:  StatusAssigned,
	ActionRectify: StatusRectifying,
	ActionVerify:  StatusVerified,
}

func (h *Hazard) candidate(userID string) *Candidate {
	for i := range h.Candidates {
		if h.Candidates[i].UserID == userID {
			return &h.Candidates[i]
		}
	}
	return nil
}

func (h *Hazard) anyOperated() bool {
	for i := range h.Candidates {
		if h.Candidates[i].HasOperated {
			return true
		}
	}
	return false
}

// CanView reports whether the user may read the hazard. Handling history
// and cc membership grant visibility; they never grant the right to act.
func CanView(h *Hazard, actor Actor) bool {
	if actor.Admin {
		return true
	}
	switch actor.ID {
	case h.ReporterID, h.ResponsibleID:
		return true
	}
	if h.candidate(actor.ID) != nil {
		return true
	}
	if slices.Contains(h.CCUserIDs, actor.ID) {
		return true
	}
	return slices.Contains(h.HistoricalHandlerIDs, actor.ID)
}

// CheckAction validates that the command is legal from the hazard's current
// status and that the operator is empowered for it. Illegal transitions and
// authorization failures come back as coded errors so callers can map them
// to distinct responses.
func CheckAction(h *Hazard, cmd Command) error {
	if h.Status.Terminal() {
		return apperr.Newf(apperr.ErrCodeIllegalTransition,
			"hazard %s is %s; no further actions are possible", h.ID, h.Status)
	}

	switch cmd.Action {
	case ActionSubmit, ActionAssign, ActionRectify, ActionVerify:
		want := forwardStatus[cmd.Action]
		if h.Status != want {
			return apperr.Newf(apperr.ErrCodeIllegalTransition,
				"action %s requires status %s, hazard %s is %s", cmd.Action, want, h.ID, h.Status)
		}
	case ActionReject:
		switch h.Status {
		case StatusAssigned, StatusRectifying, StatusVerified:
		default:
			return apperr.Newf(apperr.ErrCodeIllegalTransition,
				"cannot reject hazard %s in status %s", h.ID, h.Status)
		}
		if h.CurrentStepIndex == 0 {
			return apperr.Newf(apperr.ErrCodeIllegalTransition,
				"hazard %s is at the first step; nothing to send back to", h.ID)
		}
	case ActionExtend:
		switch h.Status {
		case StatusAssigned, StatusRectifying:
		default:
			return apperr.Newf(apperr.ErrCodeIllegalTransition,
				"cannot request an extension for hazard %s in status %s", h.ID, h.Status)
		}
	default:
		return apperr.Newf(apperr.ErrCodeInvalidInput, "unknown action %q", cmd.Action)
	}

	if cmd.Operator.Admin {
		return nil
	}

	switch cmd.Action {
	case ActionSubmit:
		// The reporter submits their own record; candidate gates do not
		// apply to the initial step.
		if cmd.Operator.ID != h.ReporterID {
			return apperr.Newf(apperr.ErrCodeUnauthorized,
				"only the reporter may submit hazard %s", h.ID)
		}
		return nil

	case ActionExtend:
		if cmd.Operator.ID == h.ResponsibleID || h.candidate(cmd.Operator.ID) != nil {
			return nil
		}
		return apperr.Newf(apperr.ErrCodeUnauthorized,
			"user %s may not request an extension for hazard %s", cmd.Operator.ID, h.ID)

	case ActionReject:
		// Any current candidate may send the step back, even under AND.
		if h.candidate(cmd.Operator.ID) == nil {
			return apperr.Newf(apperr.ErrCodeUnauthorized,
				"user %s is not a handler of hazard %s", cmd.Operator.ID, h.ID)
		}
		return nil
	}

	c := h.candidate(cmd.Operator.ID)
	if c == nil {
		return apperr.Newf(apperr.ErrCodeUnauthorized,
			"user %s is not a handler of hazard %s", cmd.Operator.ID, h.ID)
	}
	switch h.ApprovalMode {
	case ModeAnd:
		if c.HasOperated {
			return apperr.Newf(apperr.ErrCodeConflict,
				"user %s has already acted on this step of hazard %s", cmd.Operator.ID, h.ID)
		}
	default:
		// First responder wins: once anyone has acted the step is spent.
		if h.anyOperated() {
			return apperr.Newf(apperr.ErrCodeConflict,
				"hazard %s step %s has already been handled", h.ID, h.CurrentStepID)
		}
	}
	return nil
}

// AvailableActions lists the actions the user could invoke right now. The
// list is advisory; CheckAction remains the authority at dispatch time.
func AvailableActions(h *Hazard, actor Actor) []Action {
	var out []Action
	for _, a := range []Action{ActionSubmit, ActionAssign, ActionRectify, ActionVerify, ActionReject, ActionExtend} {
		if CheckAction(h, Command{Action: a, Operator: actor}) == nil {
			out = append(out, a)
		}
	}
	return out
}
