package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastion-ehs/be-ehs-hazards/internal/apperr"
)

func testEngine() *Engine {
	return NewEngineWithClock(testClock)
}

// Drives a hazard through the standard four-step flow and checks handlers,
// statuses, and the final historical-handler set at every hop.
func TestDispatchFullLifecycle(t *testing.T) {
	e := testEngine()
	cfg := fourStepConfig()
	h := testHazard()

	// Report: the reporter submits; the assign step resolves to their manager.
	out, err := e.Dispatch(testContext(h), cfg, Command{
		Action:   ActionSubmit,
		Operator: Actor{ID: "u-rep", Name: "Rita Reporter"},
	})
	require.NoError(t, err)
	assert.True(t, out.Advanced)
	assert.Equal(t, StatusAssigned, out.Patch.Status)
	assert.Equal(t, 1, out.Patch.CurrentStepIndex)
	assert.Equal(t, StepAssign, out.Patch.CurrentStepID)
	require.Len(t, out.Patch.Candidates, 1)
	assert.Equal(t, "u-mgr-ops", out.Patch.Candidates[0].UserID)
	h = applyPatch(h, out.Patch)

	id, _, ok := h.CurrentExecutor()
	require.True(t, ok)
	assert.Equal(t, "u-mgr-ops", id)

	// Assign: the manager acts; the rectify step is pinned to the
	// rectification leader.
	out, err = e.Dispatch(testContext(h), cfg, Command{
		Action:   ActionAssign,
		Operator: Actor{ID: "u-mgr-ops", Name: "Oscar Ops"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRectifying, out.Patch.Status)
	assert.Equal(t, "u-resp", out.Patch.Candidates[0].UserID)
	h = applyPatch(h, out.Patch)

	// Rectify: the leader acts; the verify step resolves to the fixed user.
	out, err = e.Dispatch(testContext(h), cfg, Command{
		Action:   ActionRectify,
		Operator: Actor{ID: "u-resp", Name: "Ralf Fitter"},
		Extra:    Extra{RectifyDesc: "rewired and insulated"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, out.Patch.Status)
	assert.Equal(t, "u-verify", out.Patch.Candidates[0].UserID)
	require.NotNil(t, out.Patch.RectifyDesc)
	assert.Equal(t, "rewired and insulated", *out.Patch.RectifyDesc)
	require.NotNil(t, out.Patch.RectifyTime)
	assert.Equal(t, testClock(), *out.Patch.RectifyTime)
	h = applyPatch(h, out.Patch)

	// Verify: the fixed verifier closes the record.
	out, err = e.Dispatch(testContext(h), cfg, Command{
		Action:   ActionVerify,
		Operator: Actor{ID: "u-verify", Name: "Vera Verify"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, out.Patch.Status)
	assert.Empty(t, out.Patch.Candidates)
	h = applyPatch(h, out.Patch)

	// Everyone who ever handled the record remains visible to it.
	assert.ElementsMatch(t, []string{"u-rep", "u-mgr-ops", "u-resp", "u-verify"}, h.HistoricalHandlerIDs)
	for _, uid := range h.HistoricalHandlerIDs {
		assert.True(t, CanView(h, Actor{ID: uid}), "user %s lost visibility", uid)
	}

	// Closed is terminal.
	_, err = e.Dispatch(testContext(h), cfg, Command{
		Action:   ActionVerify,
		Operator: Actor{ID: "u-verify"},
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrCodeIllegalTransition))
}

func TestDispatchDeterministic(t *testing.T) {
	e := testEngine()
	cfg := fourStepConfig()
	cmd := Command{Action: ActionSubmit, Operator: Actor{ID: "u-rep", Name: "Rita Reporter"}}

	first, err := e.Dispatch(testContext(testHazard()), cfg, cmd)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := e.Dispatch(testContext(testHazard()), cfg, cmd)
		require.NoError(t, err)
		assert.Equal(t, first.Patch, again.Patch)
		assert.Equal(t, first.Notifications, again.Notifications)
	}
}

func TestDispatchWrongStatusRejected(t *testing.T) {
	e := testEngine()
	cfg := fourStepConfig()
	h := testHazard() // reported

	for _, a := range []Action{ActionAssign, ActionRectify, ActionVerify} {
		_, err := e.Dispatch(testContext(h), cfg, Command{Action: a, Operator: Actor{Admin: true}})
		require.Error(t, err, "action %s", a)
		assert.True(t, apperr.Is(err, apperr.ErrCodeIllegalTransition))
	}
}

func TestDispatchNonHandlerRejected(t *testing.T) {
	e := testEngine()
	cfg := fourStepConfig()
	h := testHazard()
	h.Status = StatusAssigned
	h.CurrentStepIndex = 1
	h.CurrentStepID = StepAssign
	h.Candidates = []Candidate{{UserID: "u-mgr-ops", UserName: "Oscar Ops"}}

	_, err := e.Dispatch(testContext(h), cfg, Command{
		Action:   ActionAssign,
		Operator: Actor{ID: "u-safety-1"},
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrCodeUnauthorized))

	// An administrator bypasses the candidate gate.
	out, err := e.Dispatch(testContext(h), cfg, Command{
		Action:   ActionAssign,
		Operator: Actor{ID: "u-admin", Name: "Ada Admin", Admin: true},
	})
	require.NoError(t, err)
	assert.True(t, out.Advanced)
}

// First responder wins under OR: once any candidate has acted, the other
// candidates get a conflict, not a second bite.
func TestDispatchOrFirstResponderWins(t *testing.T) {
	e := testEngine()
	cfg := fourStepConfig()
	h := testHazard()
	h.Status = StatusAssigned
	h.CurrentStepIndex = 1
	h.CurrentStepID = StepAssign
	h.ApprovalMode = ModeOr
	h.Candidates = []Candidate{
		{UserID: "u-mgr-ops", UserName: "Oscar Ops", HasOperated: true},
		{UserID: "u-mgr-safety", UserName: "Sam Safety"},
	}

	_, err := e.Dispatch(testContext(h), cfg, Command{
		Action:   ActionAssign,
		Operator: Actor{ID: "u-mgr-safety"},
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrCodeConflict))
}

func TestDispatchAndModeHoldsUntilComplete(t *testing.T) {
	e := testEngine()
	cfg := &Config{Steps: []Step{
		{ID: StepReport, Name: "Report", ForcedActor: ForcedReporter},
		{ID: StepAssign, Name: "Assign", Handler: HandlerConfig{
			Mode: ModeAnd,
			Strategies: []StrategyItem{
				{Type: StrategyReporterManager},
				{Type: StrategyResponsibleManager},
			},
		}},
		{ID: StepRectify, Name: "Rectify", ForcedActor: ForcedRectificationLeader},
	}}
	h := testHazard()
	h.Status = StatusAssigned
	h.CurrentStepIndex = 1
	h.CurrentStepID = StepAssign
	h.ApprovalMode = ModeAnd
	h.Candidates = []Candidate{
		{UserID: "u-mgr-ops", UserName: "Oscar Ops"},
		{UserID: "u-mgr-maint", UserName: "Mara Maint"},
	}

	// First approver: held, flag flipped, status unchanged.
	out, err := e.Dispatch(testContext(h), cfg, Command{
		Action:   ActionAssign,
		Operator: Actor{ID: "u-mgr-ops", Name: "Oscar Ops"},
	})
	require.NoError(t, err)
	assert.False(t, out.Advanced)
	assert.Equal(t, StatusAssigned, out.Patch.Status)
	assert.Equal(t, 1, out.Patch.CurrentStepIndex)
	assert.True(t, out.Patch.Candidates[0].HasOperated)
	assert.False(t, out.Patch.Candidates[1].HasOperated)
	require.Len(t, out.Notifications, 1)
	assert.Equal(t, "u-mgr-maint", out.Notifications[0].UserID)
	assert.Equal(t, NotifyProgress, out.Notifications[0].Kind)
	h = applyPatch(h, out.Patch)

	// The same approver cannot act twice.
	_, err = e.Dispatch(testContext(h), cfg, Command{
		Action:   ActionAssign,
		Operator: Actor{ID: "u-mgr-ops"},
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrCodeConflict))

	// Last approver: the step advances.
	out, err = e.Dispatch(testContext(h), cfg, Command{
		Action:   ActionAssign,
		Operator: Actor{ID: "u-mgr-maint", Name: "Mara Maint"},
	})
	require.NoError(t, err)
	assert.True(t, out.Advanced)
	assert.Equal(t, StatusRectifying, out.Patch.Status)
	assert.Equal(t, "u-resp", out.Patch.Candidates[0].UserID)
}

// Reject moves exactly one step back and re-resolves that step's handlers
// against the current snapshot.
func TestDispatchReject(t *testing.T) {
	e := testEngine()
	cfg := fourStepConfig()
	h := testHazard()
	h.Status = StatusVerified
	h.CurrentStepIndex = 3
	h.CurrentStepID = StepVerify
	h.Candidates = []Candidate{{UserID: "u-verify", UserName: "Vera Verify"}}
	h.HistoricalHandlerIDs = []string{"u-rep", "u-mgr-ops", "u-resp", "u-verify"}

	out, err := e.Dispatch(testContext(h), cfg, Command{
		Action:   ActionReject,
		Operator: Actor{ID: "u-verify", Name: "Vera Verify"},
		Comment:  "paint not dry",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRectifying, out.Patch.Status)
	assert.Equal(t, 2, out.Patch.CurrentStepIndex)
	assert.Equal(t, "u-resp", out.Patch.Candidates[0].UserID)
	assert.False(t, out.Patch.Candidates[0].HasOperated)

	require.NotEmpty(t, out.Notifications)
	assert.Equal(t, NotifyRejected, out.Notifications[0].Kind)
	assert.Equal(t, "u-resp", out.Notifications[0].UserID)
	assert.Equal(t, "paint not dry", out.Log.Comment)
}

func TestDispatchRejectAtFirstStep(t *testing.T) {
	e := testEngine()
	cfg := fourStepConfig()
	h := testHazard() // step 0

	_, err := e.Dispatch(testContext(h), cfg, Command{
		Action:   ActionReject,
		Operator: Actor{Admin: true},
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrCodeIllegalTransition))
}

// Any candidate may reject, even one who already acted under AND.
func TestDispatchRejectBypassesAndGate(t *testing.T) {
	e := testEngine()
	cfg := fourStepConfig()
	h := testHazard()
	h.Status = StatusAssigned
	h.CurrentStepIndex = 1
	h.CurrentStepID = StepAssign
	h.ApprovalMode = ModeAnd
	h.Candidates = []Candidate{
		{UserID: "u-mgr-ops", UserName: "Oscar Ops", HasOperated: true},
		{UserID: "u-mgr-maint", UserName: "Mara Maint"},
	}

	out, err := e.Dispatch(testContext(h), cfg, Command{
		Action:   ActionReject,
		Operator: Actor{ID: "u-mgr-ops", Name: "Oscar Ops"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusReported, out.Patch.Status)
	assert.Equal(t, "u-rep", out.Patch.Candidates[0].UserID)
}

func TestDispatchExtendDeadline(t *testing.T) {
	e := testEngine()
	cfg := fourStepConfig()
	deadline := testClock().Add(72 * time.Hour)
	newDeadline := testClock().Add(7 * 24 * time.Hour)

	h := testHazard()
	h.Status = StatusRectifying
	h.CurrentStepIndex = 2
	h.CurrentStepID = StepRectify
	h.Candidates = []Candidate{{UserID: "u-resp", UserName: "Ralf Fitter"}}
	h.Deadline = &deadline

	out, err := e.Dispatch(testContext(h), cfg, Command{
		Action:   ActionExtend,
		Operator: Actor{ID: "u-resp", Name: "Ralf Fitter"},
		Extra:    Extra{Deadline: &newDeadline, ExtensionReason: "waiting on parts"},
	})
	require.NoError(t, err)
	assert.False(t, out.Advanced)
	assert.Equal(t, StatusRectifying, out.Patch.Status)
	assert.Equal(t, 2, out.Patch.CurrentStepIndex)
	require.NotNil(t, out.Patch.ExtensionRequested)
	assert.True(t, *out.Patch.ExtensionRequested)
	require.Len(t, out.Notifications, 1)
	assert.Equal(t, NotifyExtension, out.Notifications[0].Kind)
	assert.Equal(t, "u-rep", out.Notifications[0].UserID)

	// Only one extension request may be pending at a time.
	h = applyPatch(h, out.Patch)
	_, err = e.Dispatch(testContext(h), cfg, Command{
		Action:   ActionExtend,
		Operator: Actor{ID: "u-resp"},
		Extra:    Extra{Deadline: &newDeadline},
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrCodeConflict))
}

func TestDispatchExtendValidation(t *testing.T) {
	e := testEngine()
	cfg := fourStepConfig()
	deadline := testClock().Add(72 * time.Hour)
	earlier := testClock().Add(24 * time.Hour)

	h := testHazard()
	h.Status = StatusRectifying
	h.CurrentStepIndex = 2
	h.Candidates = []Candidate{{UserID: "u-resp"}}
	h.Deadline = &deadline

	_, err := e.Dispatch(testContext(h), cfg, Command{
		Action:   ActionExtend,
		Operator: Actor{ID: "u-resp"},
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrCodeInvalidInput))

	_, err = e.Dispatch(testContext(h), cfg, Command{
		Action:   ActionExtend,
		Operator: Actor{ID: "u-resp"},
		Extra:    Extra{Deadline: &earlier},
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrCodeInvalidInput))
}

// A submit whose next step cannot resolve fails the dispatch with the
// resolver's error; nothing advances.
func TestDispatchFailsWhenNextStepUnresolvable(t *testing.T) {
	e := testEngine()
	cfg := fourStepConfig()
	h := testHazard()
	h.ReporterID = "u-plant" // no manager above the plant director
	h.ReporterName = "Petra Plant"
	h.Candidates = []Candidate{{UserID: "u-plant", UserName: "Petra Plant"}}

	_, err := e.Dispatch(testContext(h), cfg, Command{
		Action:   ActionSubmit,
		Operator: Actor{ID: "u-plant", Name: "Petra Plant"},
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrCodeConfig))
}

func TestDispatchCCAccumulatesIntoHistory(t *testing.T) {
	e := testEngine()
	cfg := fourStepConfig()
	cfg.Steps[1].CCRules = []CCRule{{Type: CCResponsibleManager}}
	h := testHazard()

	out, err := e.Dispatch(testContext(h), cfg, Command{
		Action:   ActionSubmit,
		Operator: Actor{ID: "u-rep", Name: "Rita Reporter"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u-mgr-maint"}, out.Patch.CCUserIDs)
	assert.Contains(t, out.Patch.HistoricalHandlerIDs, "u-mgr-maint")

	var ccNotes []Notification
	for _, n := range out.Notifications {
		if n.Kind == NotifyCC {
			ccNotes = append(ccNotes, n)
		}
	}
	require.Len(t, ccNotes, 1)
	assert.Equal(t, "u-mgr-maint", ccNotes[0].UserID)
}

func TestVoid(t *testing.T) {
	e := testEngine()
	h := testHazard()
	h.Status = StatusAssigned
	h.Candidates = []Candidate{{UserID: "u-mgr-ops"}}

	// Only the reporter or an admin may void.
	_, err := e.Void(h, Actor{ID: "u-mgr-ops"}, "duplicate")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrCodeUnauthorized))

	out, err := e.Void(h, Actor{ID: "u-rep", Name: "Rita Reporter"}, "duplicate of HZ-2026-0002")
	require.NoError(t, err)
	assert.Equal(t, StatusVoided, out.Patch.Status)
	assert.Empty(t, out.Patch.Candidates)
	assert.Equal(t, ActionVoid, out.Log.Action)

	// Voided is absorbing.
	h = applyPatch(h, out.Patch)
	_, err = e.Void(h, Actor{Admin: true}, "again")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrCodeIllegalTransition))

	_, err = e.Dispatch(testContext(h), fourStepConfig(), Command{
		Action:   ActionAssign,
		Operator: Actor{Admin: true},
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrCodeIllegalTransition))

	// Closed records cannot be voided either.
	closed := testHazard()
	closed.Status = StatusClosed
	_, err = e.Void(closed, Actor{Admin: true}, "")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrCodeIllegalTransition))
}
