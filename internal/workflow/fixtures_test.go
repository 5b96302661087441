package workflow

import (
	"time"

	"github.com/bastion-ehs/be-ehs-hazards/internal/directory"
)

var testClock = func() time.Time {
	return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
}

func testDirectory() *directory.Directory {
	departments := []directory.Department{
		{ID: "d-root", Name: "Plant", ManagerID: "u-plant"},
		{ID: "d-ops", Name: "Operations", ManagerID: "u-mgr-ops", ParentID: "d-root"},
		{ID: "d-maint", Name: "Maintenance", ManagerID: "u-mgr-maint", ParentID: "d-root"},
		{ID: "d-safety", Name: "Safety", ManagerID: "u-mgr-safety", ParentID: "d-root"},
		{ID: "d-empty", Name: "Warehouse", ParentID: "d-root"},
	}
	users := []directory.User{
		{ID: "u-plant", Name: "Petra Plant", DepartmentID: "d-root", JobTitle: "Plant Director"},
		{ID: "u-rep", Name: "Rita Reporter", DepartmentID: "d-ops", JobTitle: "Technician"},
		{ID: "u-mgr-ops", Name: "Oscar Ops", DepartmentID: "d-ops", JobTitle: "Operations Manager"},
		{ID: "u-resp", Name: "Ralf Fitter", DepartmentID: "d-maint", JobTitle: "Fitter"},
		{ID: "u-mgr-maint", Name: "Mara Maint", DepartmentID: "d-maint", JobTitle: "Maintenance Manager"},
		{ID: "u-mgr-safety", Name: "Sam Safety", DepartmentID: "d-safety", JobTitle: "Safety Manager"},
		{ID: "u-safety-1", Name: "Olga Officer", DepartmentID: "d-safety", JobTitle: "Safety Officer"},
		{ID: "u-safety-2", Name: "Sven Senior", DepartmentID: "d-safety", JobTitle: "Senior Safety Officer"},
		{ID: "u-verify", Name: "Vera Verify", DepartmentID: "d-safety", JobTitle: "Auditor"},
	}
	return directory.New(departments, users)
}

func testHazard() *Hazard {
	return &Hazard{
		ID:                "hz-1",
		Code:              "HZ-2026-0001",
		Status:            StatusReported,
		RiskLevel:         RiskHigh,
		Type:              "electrical",
		Location:          "warehouse-3",
		Description:       "exposed wiring near loading dock",
		ReporterID:        "u-rep",
		ReporterName:      "Rita Reporter",
		ReporterDeptID:    "d-ops",
		ResponsibleID:     "u-resp",
		ResponsibleName:   "Ralf Fitter",
		ResponsibleDeptID: "d-maint",
		CurrentStepIndex:  0,
		CurrentStepID:     StepReport,
		ApprovalMode:      ModeOr,
		Candidates:        []Candidate{{UserID: "u-rep", UserName: "Rita Reporter"}},
	}
}

func testContext(h *Hazard) Context {
	return Context{Hazard: h, Directory: testDirectory()}
}

// fourStepConfig mirrors the standard flow: the reporter submits, their
// manager assigns, the rectification leader rectifies, and a fixed
// verifier closes.
func fourStepConfig() *Config {
	return &Config{
		Version: 3,
		Steps: []Step{
			{ID: StepReport, Name: "Report", ForcedActor: ForcedReporter},
			{ID: StepAssign, Name: "Assign", Handler: HandlerConfig{
				Single: &StrategyItem{Type: StrategyReporterManager},
			}},
			{ID: StepRectify, Name: "Rectify", ForcedActor: ForcedRectificationLeader},
			{ID: StepVerify, Name: "Verify", Handler: HandlerConfig{
				Single: &StrategyItem{Type: StrategyFixed, FixedUsers: []FixedUser{
					{UserID: "u-verify", UserName: "Vera Verify"},
				}},
			}},
		},
	}
}

// applyPatch folds an outcome back into a snapshot so multi-step scenarios
// can keep dispatching.
func applyPatch(h *Hazard, p Patch) *Hazard {
	next := *h
	next.Status = p.Status
	next.CurrentStepIndex = p.CurrentStepIndex
	next.CurrentStepID = p.CurrentStepID
	next.ApprovalMode = p.ApprovalMode
	next.Candidates = p.Candidates
	next.CCUserIDs = p.CCUserIDs
	next.CCUserNames = p.CCUserNames
	next.HistoricalHandlerIDs = p.HistoricalHandlerIDs
	if p.ExtensionRequested != nil {
		next.ExtensionRequested = *p.ExtensionRequested
	}
	if p.RectifyDesc != nil {
		next.RectifyDesc = *p.RectifyDesc
	}
	if p.RectifyTime != nil {
		next.RectifyTime = p.RectifyTime
	}
	if p.VerifierID != nil {
		next.VerifierID = *p.VerifierID
	}
	if p.VerifierName != nil {
		next.VerifierName = *p.VerifierName
	}
	return &next
}
