// Package workflow implements the hazard dispatch engine: handler and cc
// resolution strategies, the step/workflow resolvers, the step-advancement
// state machine, and the permission predicates that gate actions on the
// resolved handler state.
//
// The package is pure. It performs no I/O: the caller loads the hazard
// aggregate, the workflow configuration, and a directory snapshot, invokes
// the engine, and persists the returned patch. Resolving the same inputs
// always yields the same outputs.
package workflow

import (
	"time"

	"github.com/bastion-ehs/be-ehs-hazards/internal/directory"
)

// Status is the lifecycle state of a hazard record.
type Status string

const (
	StatusReported   Status = "reported"
	StatusAssigned   Status = "assigned"
	StatusRectifying Status = "rectifying"
	StatusVerified   Status = "verified"
	StatusClosed     Status = "closed"
	StatusVoided     Status = "voided"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusVoided
}

// RiskLevel is a raw tag; the engine never orders risk levels numerically.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
	RiskMajor  RiskLevel = "major"
)

// Action is a dispatch engine input verb.
type Action string

const (
	ActionSubmit  Action = "submit"
	ActionAssign  Action = "assign"
	ActionRectify Action = "rectify"
	ActionVerify  Action = "verify"
	ActionReject  Action = "reject"
	ActionExtend  Action = "extend"
	ActionVoid    Action = "void"
)

// ApprovalMode controls how many resolved candidates must act before a step
// advances. Empty means the step has a single empowered handler.
type ApprovalMode string

const (
	// ModeOr advances on the first candidate's action; later attempts by
	// other candidates are rejected.
	ModeOr ApprovalMode = "OR"
	// ModeAnd holds the step until every candidate has acted.
	ModeAnd ApprovalMode = "AND"
	// ModeConditional selects the strategy items whose condition evaluates
	// true against the hazard snapshot; the selected items behave like OR.
	ModeConditional ApprovalMode = "CONDITIONAL"
)

// ConditionField names the hazard attribute a strategy condition reads.
type ConditionField string

const (
	FieldLocation  ConditionField = "location"
	FieldType      ConditionField = "type"
	FieldRiskLevel ConditionField = "riskLevel"
)

// ConditionOperator is the comparison applied by a strategy condition.
type ConditionOperator string

const (
	OpEquals      ConditionOperator = "="
	OpNotEquals   ConditionOperator = "!="
	OpContains    ConditionOperator = "contains"
	OpNotContains ConditionOperator = "not_contains"
)

// Condition is a single predicate attached to a strategy item. A disabled
// condition always evaluates true.
type Condition struct {
	Enabled  bool              `json:"enabled"`
	Field    ConditionField    `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    string            `json:"value"`
}

// StrategyType is the closed catalog of handler resolution strategies.
type StrategyType string

const (
	StrategyFixed              StrategyType = "fixed"
	StrategyReporter           StrategyType = "reporter"
	StrategyResponsible        StrategyType = "responsible"
	StrategyReporterManager    StrategyType = "reporter_manager"
	StrategyResponsibleManager StrategyType = "responsible_manager"
	StrategyDeptManager        StrategyType = "dept_manager"
	StrategyRole               StrategyType = "role"
	StrategyLocationMatch      StrategyType = "location_match"
	StrategyTypeMatch          StrategyType = "type_match"
	StrategyRiskMatch          StrategyType = "risk_match"
)

// FixedUser is one entry of a fixed-user strategy or cc rule.
type FixedUser struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// MatchRule routes a hazard attribute value to a department. Rule lists are
// evaluated in order; the first equal value wins.
type MatchRule struct {
	Match  string `json:"match"`
	DeptID string `json:"deptId"`
}

// StrategyItem is one configured handler strategy with its per-variant
// payload. Only the fields relevant to Type are consulted.
type StrategyItem struct {
	ID        string       `json:"id,omitempty"`
	Type      StrategyType `json:"strategy"`
	Condition *Condition   `json:"condition,omitempty"`

	FixedUsers   []FixedUser `json:"fixedUsers,omitempty"`
	TargetDeptID string      `json:"targetDeptId,omitempty"`
	RoleName     string      `json:"roleName,omitempty"`
	Rules        []MatchRule `json:"rules,omitempty"`
}

// HandlerConfig is a step's handler resolution plan: either a single
// strategy (Single set, Mode empty) or a multi-strategy plan under an
// explicit approval mode.
type HandlerConfig struct {
	Mode       ApprovalMode   `json:"approvalMode,omitempty"`
	Single     *StrategyItem  `json:"strategy,omitempty"`
	Strategies []StrategyItem `json:"strategies,omitempty"`
}

// CCRuleType is the closed catalog of carbon-copy audience rules.
type CCRuleType string

const (
	CCFixedUsers         CCRuleType = "fixed_users"
	CCReporterManager    CCRuleType = "reporter_manager"
	CCResponsibleManager CCRuleType = "responsible_manager"
	CCHandlerManager     CCRuleType = "handler_manager"
	CCDeptByLocation     CCRuleType = "dept_by_location"
	CCDeptByType         CCRuleType = "dept_by_type"
	CCRoleMatch          CCRuleType = "role_match"
	CCResponsible        CCRuleType = "responsible"
	CCReporter           CCRuleType = "reporter"
)

// CCRule resolves a notify-only audience. Members of that audience are
// never empowered to act by this membership alone.
type CCRule struct {
	ID          string     `json:"id,omitempty"`
	Type        CCRuleType `json:"type"`
	Description string     `json:"description,omitempty"`

	UserIDs       []string `json:"userIds,omitempty"`
	DeptID        string   `json:"deptId,omitempty"`
	RoleName      string   `json:"roleName,omitempty"`
	LocationMatch string   `json:"locationMatch,omitempty"`
	TypeMatch     string   `json:"typeMatch,omitempty"`
}

// ForcedActor pins a step's handler to a domain role, overriding any
// configured strategy.
type ForcedActor string

const (
	ForcedNone                ForcedActor = ""
	ForcedReporter            ForcedActor = "reporter"
	ForcedRectificationLeader ForcedActor = "rectification_leader"
)

// Canonical step ids. Custom steps may be inserted between them; status
// inference is positional relative to these.
const (
	StepReport  = "report"
	StepAssign  = "assign"
	StepRectify = "rectify"
	StepVerify  = "verify"
)

// Step is one node of the workflow configuration, immutable per version.
type Step struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	ForcedActor ForcedActor   `json:"forcedActor,omitempty"`
	Handler     HandlerConfig `json:"handlerStrategy"`
	CCRules     []CCRule      `json:"ccRules,omitempty"`
}

// Config is a versioned ordered step list.
type Config struct {
	Steps     []Step    `json:"steps"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// Candidate is one currently empowered handler and whether they have
// already acted on the current step.
type Candidate struct {
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
	HasOperated bool   `json:"hasOperated"`
}

// Hazard is the engine's snapshot of the persisted record. The engine never
// mutates it; changes come back as a Patch.
type Hazard struct {
	ID          string
	Code        string
	Status      Status
	RiskLevel   RiskLevel
	Type        string
	Location    string
	Description string

	ReporterID     string
	ReporterName   string
	ReporterDeptID string

	// ResponsibleID is the rectification leader, fixed at creation.
	ResponsibleID     string
	ResponsibleName   string
	ResponsibleDeptID string

	VerifierID   string
	VerifierName string

	CurrentStepIndex int
	CurrentStepID    string
	ApprovalMode     ApprovalMode
	Candidates       []Candidate

	CCUserIDs   []string
	CCUserNames []string

	// HistoricalHandlerIDs is every user who has ever handled, been cc'd
	// on, or acted on this record. Visibility only; never consulted for
	// authorization of new actions.
	HistoricalHandlerIDs []string

	Deadline           *time.Time
	ExtensionRequested bool

	RectifyDesc string
	RectifyTime *time.Time
}

// CurrentExecutor returns the primary handler, derived from the candidate
// list rather than stored separately.
func (h *Hazard) CurrentExecutor() (id, name string, ok bool) {
	if len(h.Candidates) == 0 {
		return "", "", false
	}
	return h.Candidates[0].UserID, h.Candidates[0].UserName, true
}

// Resolved is the outcome of evaluating one strategy or cc rule.
type Resolved struct {
	Success   bool
	UserIDs   []string
	UserNames []string
	MatchedBy string
	Err       error
}

// StepResolution is the outcome of resolving one workflow step: the
// empowered handlers, the notify-only audience, and the approval semantics
// that will govern the step.
type StepResolution struct {
	StepIndex int
	StepID    string
	StepName  string
	Success   bool

	Handlers   Resolved
	Mode       ApprovalMode
	Candidates []Candidate

	CCUserIDs   []string
	CCUserNames []string

	Err error
}

// PrimaryHandler returns the first resolved candidate.
func (r *StepResolution) PrimaryHandler() (id, name string, ok bool) {
	if len(r.Candidates) == 0 {
		return "", "", false
	}
	return r.Candidates[0].UserID, r.Candidates[0].UserName, true
}

// Actor identifies the user invoking an action.
type Actor struct {
	ID    string
	Name  string
	Admin bool
}

// Extra carries the optional business payload of an action.
type Extra struct {
	Deadline        *time.Time
	ExtensionReason string
	RectifyDesc     string
	RectifyPhotos   []string
	VerifierID      string
	VerifierName    string
}

// Command is one dispatch invocation.
type Command struct {
	Action   Action
	Operator Actor
	Comment  string
	Extra    Extra
}

// Patch is the set of hazard mutations produced by a successful dispatch.
// Nil pointer fields mean "leave unchanged".
type Patch struct {
	Status           Status
	CurrentStepIndex int
	CurrentStepID    string
	ApprovalMode     ApprovalMode
	Candidates       []Candidate

	CCUserIDs   []string
	CCUserNames []string

	HistoricalHandlerIDs []string

	ExtensionRequested *bool
	RectifyDesc        *string
	RectifyTime        *time.Time
	VerifierID         *string
	VerifierName       *string
}

// LogEntry is one append-only audit record emitted per dispatch.
type LogEntry struct {
	Action       Action    `json:"action"`
	OperatorID   string    `json:"operatorId"`
	OperatorName string    `json:"operatorName"`
	StepID       string    `json:"stepId,omitempty"`
	StepName     string    `json:"stepName,omitempty"`
	Status       Status    `json:"status"`
	Time         time.Time `json:"time"`
	Comment      string    `json:"comment,omitempty"`
}

// NotificationKind classifies a notification intent.
type NotificationKind string

const (
	NotifyReported  NotificationKind = "hazard_reported"
	NotifyAssigned  NotificationKind = "hazard_assigned"
	NotifyRectified NotificationKind = "hazard_rectified"
	NotifyVerified  NotificationKind = "hazard_verified"
	NotifyRejected  NotificationKind = "hazard_rejected"
	NotifyClosed    NotificationKind = "hazard_closed"
	NotifyCC        NotificationKind = "hazard_cc"
	NotifyProgress  NotificationKind = "hazard_progress"
	NotifyExtension NotificationKind = "hazard_extension"
)

// Notification is a delivery intent. The engine produces these; delivery is
// a collaborator's job.
type Notification struct {
	UserID   string           `json:"userId"`
	Kind     NotificationKind `json:"kind"`
	Title    string           `json:"title"`
	Body     string           `json:"body"`
	HazardID string           `json:"hazardId"`
}

// Outcome is the full result of a dispatch. Advanced is false for held
// AND-mode transitions and for the extend action.
type Outcome struct {
	Advanced      bool
	Patch         Patch
	Resolution    *StepResolution
	Log           LogEntry
	Notifications []Notification
}

// Context bundles the read-only inputs of a resolution.
type Context struct {
	Hazard    *Hazard
	Directory *directory.Directory
}
