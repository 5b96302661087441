package workflow

import (
	"fmt"

	"github.com/bastion-ehs/be-ehs-hazards/internal/apperr"
	"github.com/bastion-ehs/be-ehs-hazards/internal/directory"
)

func resolvedUsers(matchedBy string, users ...*directory.User) Resolved {
	r := Resolved{Success: true, MatchedBy: matchedBy}
	for _, u := range users {
		r.UserIDs = append(r.UserIDs, u.ID)
		r.UserNames = append(r.UserNames, u.Name)
	}
	return r
}

func resolveFailed(err error) Resolved {
	return Resolved{Success: false, Err: err}
}

// managerFor finds the manager of the user's department. When the user is
// their own department's manager, resolution climbs to the parent
// department's manager so nobody ends up approving their own report.
func managerFor(dir *directory.Directory, userID, role string) (*directory.User, error) {
	u := dir.User(userID)
	if u == nil {
		return nil, apperr.Newf(apperr.ErrCodeConfig, "%s %q not found in directory", role, userID)
	}
	m := dir.Supervisor(u.ID)
	if m == nil {
		return nil, apperr.Newf(apperr.ErrCodeConfig, "no manager found for %s %q", role, userID)
	}
	return m, nil
}

// resolveByRules walks an ordered match-rule list, picks the first rule
// whose match equals value, and returns that department's manager.
func resolveByRules(dir *directory.Directory, rules []MatchRule, value, attr string) Resolved {
	if len(rules) == 0 {
		return resolveFailed(apperr.Newf(apperr.ErrCodeConfig, "%s match strategy has no rules", attr))
	}
	for _, rule := range rules {
		if rule.Match != value {
			continue
		}
		m := dir.Manager(rule.DeptID)
		if m == nil {
			return resolveFailed(apperr.Newf(apperr.ErrCodeConfig,
				"department %q matched by %s %q has no manager", rule.DeptID, attr, value))
		}
		return resolvedUsers(fmt.Sprintf("%s=%s", attr, value), m)
	}
	return resolveFailed(apperr.Newf(apperr.ErrCodeConfig, "no rule matches %s %q", attr, value))
}

// ResolveStrategy evaluates a single strategy item against the hazard and
// directory snapshot. It never consults the item's condition; conditional
// gating happens at the step level.
func ResolveStrategy(ctx Context, item *StrategyItem) Resolved {
	h, dir := ctx.Hazard, ctx.Directory
	switch item.Type {
	case StrategyFixed:
		if len(item.FixedUsers) == 0 {
			return resolveFailed(apperr.New(apperr.ErrCodeConfig, "fixed strategy has no users"))
		}
		r := Resolved{Success: true, MatchedBy: "fixed"}
		for _, fu := range item.FixedUsers {
			name := fu.UserName
			if u := dir.User(fu.UserID); u != nil && name == "" {
				name = u.Name
			}
			r.UserIDs = append(r.UserIDs, fu.UserID)
			r.UserNames = append(r.UserNames, name)
		}
		return r

	case StrategyReporter:
		u := dir.User(h.ReporterID)
		if u == nil {
			return resolveFailed(apperr.Newf(apperr.ErrCodeConfig, "reporter %q not found in directory", h.ReporterID))
		}
		return resolvedUsers("reporter", u)

	case StrategyResponsible:
		if h.ResponsibleID == "" {
			return resolveFailed(apperr.New(apperr.ErrCodeConfig, "hazard has no rectification leader"))
		}
		u := dir.User(h.ResponsibleID)
		if u == nil {
			return resolveFailed(apperr.Newf(apperr.ErrCodeConfig, "rectification leader %q not found in directory", h.ResponsibleID))
		}
		return resolvedUsers("responsible", u)

	case StrategyReporterManager:
		m, err := managerFor(dir, h.ReporterID, "reporter")
		if err != nil {
			return resolveFailed(err)
		}
		return resolvedUsers("reporter_manager", m)

	case StrategyResponsibleManager:
		if h.ResponsibleID == "" {
			return resolveFailed(apperr.New(apperr.ErrCodeConfig, "hazard has no rectification leader"))
		}
		m, err := managerFor(dir, h.ResponsibleID, "rectification leader")
		if err != nil {
			return resolveFailed(err)
		}
		return resolvedUsers("responsible_manager", m)

	case StrategyDeptManager:
		if item.TargetDeptID == "" {
			return resolveFailed(apperr.New(apperr.ErrCodeConfig, "dept_manager strategy has no target department"))
		}
		m := dir.Manager(item.TargetDeptID)
		if m == nil {
			return resolveFailed(apperr.Newf(apperr.ErrCodeConfig, "department %q has no manager", item.TargetDeptID))
		}
		return resolvedUsers("dept_manager", m)

	case StrategyRole:
		if item.RoleName == "" {
			return resolveFailed(apperr.New(apperr.ErrCodeConfig, "role strategy has no role name"))
		}
		users := dir.MatchRole(item.TargetDeptID, item.RoleName)
		if len(users) == 0 {
			return resolveFailed(apperr.Newf(apperr.ErrCodeConfig, "no users match role %q", item.RoleName))
		}
		r := Resolved{Success: true, MatchedBy: "role:" + item.RoleName}
		for _, u := range users {
			r.UserIDs = append(r.UserIDs, u.ID)
			r.UserNames = append(r.UserNames, u.Name)
		}
		return r

	case StrategyLocationMatch:
		return resolveByRules(dir, item.Rules, h.Location, "location")

	case StrategyTypeMatch:
		return resolveByRules(dir, item.Rules, h.Type, "type")

	case StrategyRiskMatch:
		return resolveByRules(dir, item.Rules, string(h.RiskLevel), "riskLevel")

	default:
		return resolveFailed(apperr.Newf(apperr.ErrCodeConfig, "unknown handler strategy %q", item.Type))
	}
}
