package workflow

import (
	"fmt"
	"time"

	"github.com/bastion-ehs/be-ehs-hazards/internal/apperr"
)

// Engine advances hazards through a workflow configuration. It holds no
// per-hazard state; the clock is injectable so transitions are replayable.
type Engine struct {
	now func() time.Time
}

func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// NewEngineWithClock builds an engine with a fixed time source.
func NewEngineWithClock(now func() time.Time) *Engine {
	return &Engine{now: now}
}

func unionIDs(base []string, add ...string) []string {
	seen := make(map[string]struct{}, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, id := range base {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range add {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// basePatch copies the hazard's current workflow fields so a partial
// outcome (held step, extension request) round-trips unchanged.
func basePatch(h *Hazard) Patch {
	p := Patch{
		Status:               h.Status,
		CurrentStepIndex:     h.CurrentStepIndex,
		CurrentStepID:        h.CurrentStepID,
		ApprovalMode:         h.ApprovalMode,
		CCUserIDs:            h.CCUserIDs,
		CCUserNames:          h.CCUserNames,
		HistoricalHandlerIDs: h.HistoricalHandlerIDs,
	}
	p.Candidates = make([]Candidate, len(h.Candidates))
	copy(p.Candidates, h.Candidates)
	return p
}

func (e *Engine) logEntry(h *Hazard, cmd Command, status Status, stepID, stepName string) LogEntry {
	return LogEntry{
		Action:       cmd.Action,
		OperatorID:   cmd.Operator.ID,
		OperatorName: cmd.Operator.Name,
		StepID:       stepID,
		StepName:     stepName,
		Status:       status,
		Time:         e.now(),
		Comment:      cmd.Comment,
	}
}

// kind of notification sent to the handlers of the step entered after a
// forward action.
var forwardKind = map[Action]NotificationKind{
	ActionSubmit:  NotifyReported,
	ActionAssign:  NotifyAssigned,
	ActionRectify: NotifyRectified,
	ActionVerify:  NotifyVerified,
}

func notifyAll(kind NotificationKind, title, body, hazardID string, userIDs []string) []Notification {
	out := make([]Notification, 0, len(userIDs))
	for _, id := range userIDs {
		out = append(out, Notification{UserID: id, Kind: kind, Title: title, Body: body, HazardID: hazardID})
	}
	return out
}

// Dispatch validates and applies one action against the hazard snapshot.
// It returns the mutations to persist; the snapshot itself is untouched.
//
// An AND-mode step advances only once every candidate has acted; earlier
// actions mark the operator and hold the step (Advanced=false). Extension
// requests never advance.
func (e *Engine) Dispatch(ctx Context, cfg *Config, cmd Command) (*Outcome, error) {
	h := ctx.Hazard
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if err := CheckAction(h, cmd); err != nil {
		return nil, err
	}

	switch cmd.Action {
	case ActionExtend:
		return e.extend(h, cmd)
	case ActionReject:
		return e.reject(ctx, cfg, cmd)
	}
	return e.forward(ctx, cfg, cmd)
}

func (e *Engine) extend(h *Hazard, cmd Command) (*Outcome, error) {
	if h.ExtensionRequested {
		return nil, apperr.Newf(apperr.ErrCodeConflict,
			"hazard %s already has a pending extension request", h.ID)
	}
	if cmd.Extra.Deadline == nil {
		return nil, apperr.InvalidInput("deadline", "extension request needs a new deadline")
	}
	if h.Deadline != nil && !cmd.Extra.Deadline.After(*h.Deadline) {
		return nil, apperr.InvalidInput("deadline", "new deadline must be after the current one")
	}

	patch := basePatch(h)
	requested := true
	patch.ExtensionRequested = &requested
	patch.HistoricalHandlerIDs = unionIDs(patch.HistoricalHandlerIDs, cmd.Operator.ID)

	out := &Outcome{
		Advanced: false,
		Patch:    patch,
		Log:      e.logEntry(h, cmd, h.Status, h.CurrentStepID, ""),
		Notifications: notifyAll(NotifyExtension,
			"Deadline extension requested",
			fmt.Sprintf("%s requested an extension for hazard %s", cmd.Operator.Name, h.Code),
			h.ID, []string{h.ReporterID}),
	}
	return out, nil
}

func (e *Engine) reject(ctx Context, cfg *Config, cmd Command) (*Outcome, error) {
	h := ctx.Hazard
	target := h.CurrentStepIndex - 1
	res := ResolveStep(ctx, cfg, target)
	if !res.Success {
		return nil, res.Err
	}
	return e.enterStep(ctx, cfg, cmd, res, NotifyRejected,
		fmt.Sprintf("Hazard %s was sent back", h.Code))
}

func (e *Engine) forward(ctx Context, cfg *Config, cmd Command) (*Outcome, error) {
	h := ctx.Hazard

	// AND gate: record the operator's action and hold unless this was the
	// last outstanding candidate.
	if h.ApprovalMode == ModeAnd {
		patch := basePatch(h)
		remaining := 0
		for i := range patch.Candidates {
			if patch.Candidates[i].UserID == cmd.Operator.ID {
				patch.Candidates[i].HasOperated = true
			}
			if !patch.Candidates[i].HasOperated {
				remaining++
			}
		}
		if remaining > 0 {
			var pending []string
			for _, c := range patch.Candidates {
				if !c.HasOperated {
					pending = append(pending, c.UserID)
				}
			}
			out := &Outcome{
				Advanced: false,
				Patch:    patch,
				Log:      e.logEntry(h, cmd, h.Status, h.CurrentStepID, ""),
				Notifications: notifyAll(NotifyProgress,
					"Hazard step awaiting your action",
					fmt.Sprintf("%s has acted on hazard %s; your action is still required", cmd.Operator.Name, h.Code),
					h.ID, pending),
			}
			return out, nil
		}
	}

	next := h.CurrentStepIndex + 1
	if next >= len(cfg.Steps) {
		out, err := e.close(h, cmd)
		if err != nil {
			return nil, err
		}
		e.applyExtras(&out.Patch, cmd)
		return out, nil
	}

	res := ResolveStep(ctx, cfg, next)
	if !res.Success {
		return nil, res.Err
	}
	out, err := e.enterStep(ctx, cfg, cmd, res, forwardKind[cmd.Action],
		fmt.Sprintf("Hazard %s needs your action", h.Code))
	if err != nil {
		return nil, err
	}
	e.applyExtras(&out.Patch, cmd)
	return out, nil
}

// applyExtras copies action-specific business payload into the patch.
func (e *Engine) applyExtras(p *Patch, cmd Command) {
	switch cmd.Action {
	case ActionRectify:
		if cmd.Extra.RectifyDesc != "" {
			p.RectifyDesc = &cmd.Extra.RectifyDesc
		}
		t := e.now()
		p.RectifyTime = &t
	case ActionAssign:
		if cmd.Extra.VerifierID != "" {
			p.VerifierID = &cmd.Extra.VerifierID
			p.VerifierName = &cmd.Extra.VerifierName
		}
	}
}

// enterStep builds the outcome of moving the hazard onto a freshly
// resolved step, forward or backward.
func (e *Engine) enterStep(ctx Context, cfg *Config, cmd Command, res StepResolution, kind NotificationKind, title string) (*Outcome, error) {
	h := ctx.Hazard
	status := StatusForStep(cfg, res.StepIndex)

	patch := basePatch(h)
	patch.Status = status
	patch.CurrentStepIndex = res.StepIndex
	patch.CurrentStepID = res.StepID
	patch.ApprovalMode = res.Mode
	patch.Candidates = res.Candidates
	patch.CCUserIDs = res.CCUserIDs
	patch.CCUserNames = res.CCUserNames

	ids := append([]string{cmd.Operator.ID}, res.Handlers.UserIDs...)
	ids = append(ids, res.CCUserIDs...)
	patch.HistoricalHandlerIDs = unionIDs(patch.HistoricalHandlerIDs, ids...)

	body := fmt.Sprintf("%s moved hazard %s to step %s", cmd.Operator.Name, h.Code, res.StepName)
	notifications := notifyAll(kind, title, body, h.ID, res.Handlers.UserIDs)
	notifications = append(notifications, notifyAll(NotifyCC,
		"Hazard update", body, h.ID, res.CCUserIDs)...)

	return &Outcome{
		Advanced:      true,
		Patch:         patch,
		Resolution:    &res,
		Log:           e.logEntry(h, cmd, status, res.StepID, res.StepName),
		Notifications: notifications,
	}, nil
}

func (e *Engine) close(h *Hazard, cmd Command) (*Outcome, error) {
	patch := basePatch(h)
	patch.Status = StatusClosed
	patch.CurrentStepIndex = h.CurrentStepIndex + 1
	patch.CurrentStepID = ""
	patch.ApprovalMode = ""
	patch.Candidates = nil
	patch.HistoricalHandlerIDs = unionIDs(patch.HistoricalHandlerIDs, cmd.Operator.ID)

	out := &Outcome{
		Advanced: true,
		Patch:    patch,
		Log:      e.logEntry(h, cmd, StatusClosed, "", ""),
		Notifications: notifyAll(NotifyClosed,
			"Hazard closed",
			fmt.Sprintf("Hazard %s has been verified and closed", h.Code),
			h.ID, []string{h.ReporterID}),
	}
	return out, nil
}

// Void moves the hazard to the absorbing voided status. Only the reporter
// or an administrator may void, and closed records stay closed.
func (e *Engine) Void(h *Hazard, actor Actor, reason string) (*Outcome, error) {
	if h.Status.Terminal() {
		return nil, apperr.Newf(apperr.ErrCodeIllegalTransition,
			"hazard %s is %s and cannot be voided", h.ID, h.Status)
	}
	if !actor.Admin && actor.ID != h.ReporterID {
		return nil, apperr.Newf(apperr.ErrCodeUnauthorized,
			"only the reporter may void hazard %s", h.ID)
	}

	patch := basePatch(h)
	patch.Status = StatusVoided
	patch.Candidates = nil
	patch.ApprovalMode = ""
	patch.HistoricalHandlerIDs = unionIDs(patch.HistoricalHandlerIDs, actor.ID)

	log := LogEntry{
		Action:       ActionVoid,
		OperatorID:   actor.ID,
		OperatorName: actor.Name,
		Status:       StatusVoided,
		Time:         e.now(),
		Comment:      reason,
	}
	return &Outcome{Advanced: true, Patch: patch, Log: log}, nil
}
