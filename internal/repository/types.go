package repository

import (
	"time"

	"github.com/bastion-ehs/be-ehs-hazards/internal/workflow"
)

// Hazard is the persisted hazard row: the engine snapshot plus storage
// metadata.
type Hazard struct {
	workflow.Hazard

	ConfigVersion int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Log is one persisted audit entry.
type Log struct {
	ID           string    `json:"id"`
	HazardID     string    `json:"hazardId"`
	Action       string    `json:"action"`
	OperatorID   string    `json:"operatorId"`
	OperatorName string    `json:"operatorName"`
	StepID       string    `json:"stepId,omitempty"`
	StepName     string    `json:"stepName,omitempty"`
	Status       string    `json:"status"`
	Comment      string    `json:"comment,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Extension request lifecycle.
const (
	ExtensionPending  = "pending"
	ExtensionApproved = "approved"
	ExtensionRejected = "rejected"
)

// Extension is a deadline extension request. At most one pending request
// may exist per hazard; the partial unique index enforces it.
type Extension struct {
	ID          string     `json:"id"`
	HazardID    string     `json:"hazardId"`
	RequestedBy string     `json:"requestedBy"`
	Reason      string     `json:"reason,omitempty"`
	OldDeadline *time.Time `json:"oldDeadline,omitempty"`
	NewDeadline time.Time  `json:"newDeadline"`
	Status      string     `json:"status"`
	ResolvedBy  *string    `json:"resolvedBy,omitempty"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// HazardFilter narrows List queries. VisibleTo restricts results to
// records the user may read; empty means no visibility filter (admin).
type HazardFilter struct {
	Status    string
	RiskLevel string
	Type      string
	Location  string
	VisibleTo string
	Page      int
	PageSize  int
}
