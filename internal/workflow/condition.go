package workflow

import "strings"

// fieldValue extracts the hazard attribute a condition reads. Unknown
// fields return ok=false, which fails the condition rather than the whole
// resolution.
func fieldValue(h *Hazard, field ConditionField) (string, bool) {
	switch field {
	case FieldLocation:
		return h.Location, true
	case FieldType:
		return h.Type, true
	case FieldRiskLevel:
		return string(h.RiskLevel), true
	default:
		return "", false
	}
}

// EvalCondition evaluates a strategy condition against the hazard snapshot.
// A nil or disabled condition always matches. Unknown fields and unknown
// operators never match.
func EvalCondition(h *Hazard, c *Condition) bool {
	if c == nil || !c.Enabled {
		return true
	}
	v, ok := fieldValue(h, c.Field)
	if !ok {
		return false
	}
	switch c.Operator {
	case OpEquals:
		return v == c.Value
	case OpNotEquals:
		return v != c.Value
	case OpContains:
		return strings.Contains(v, c.Value)
	case OpNotContains:
		return !strings.Contains(v, c.Value)
	default:
		return false
	}
}
