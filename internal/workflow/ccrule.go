package workflow

import "github.com/bastion-ehs/be-ehs-hazards/internal/directory"

// resolveCCRule evaluates a single cc rule. handlerIDs are the step's
// already-resolved candidates, needed by the handler_manager rule.
func resolveCCRule(ctx Context, rule *CCRule, handlerIDs []string) []*directory.User {
	h, dir := ctx.Hazard, ctx.Directory
	switch rule.Type {
	case CCFixedUsers:
		var out []*directory.User
		for _, id := range rule.UserIDs {
			if u := dir.User(id); u != nil {
				out = append(out, u)
			}
		}
		return out

	case CCReporter:
		if u := dir.User(h.ReporterID); u != nil {
			return []*directory.User{u}
		}

	case CCResponsible:
		if u := dir.User(h.ResponsibleID); u != nil {
			return []*directory.User{u}
		}

	case CCReporterManager:
		if u := dir.User(h.ReporterID); u != nil {
			if m := dir.Supervisor(u.ID); m != nil {
				return []*directory.User{m}
			}
		}

	case CCResponsibleManager:
		if u := dir.User(h.ResponsibleID); u != nil {
			if m := dir.Supervisor(u.ID); m != nil {
				return []*directory.User{m}
			}
		}

	case CCHandlerManager:
		var out []*directory.User
		for _, id := range handlerIDs {
			if m := dir.Supervisor(id); m != nil {
				out = append(out, m)
			}
		}
		return out

	case CCDeptByLocation:
		if rule.LocationMatch == "" || rule.LocationMatch == h.Location {
			if rule.DeptID != "" {
				return dir.UsersInDepartment(rule.DeptID)
			}
		}

	case CCDeptByType:
		if rule.TypeMatch == "" || rule.TypeMatch == h.Type {
			if rule.DeptID != "" {
				return dir.UsersInDepartment(rule.DeptID)
			}
		}

	case CCRoleMatch:
		if rule.RoleName != "" {
			return dir.MatchRole(rule.DeptID, rule.RoleName)
		}
	}
	return nil
}

// ResolveCC resolves a step's full carbon-copy audience: the union of every
// rule's result, deduplicated, preserving first-seen order. A rule that
// matches nobody contributes nothing; cc resolution never fails a step.
// Users already empowered as handlers are excluded.
func ResolveCC(ctx Context, rules []CCRule, handlerIDs []string) (ids, names []string) {
	handlers := make(map[string]struct{}, len(handlerIDs))
	for _, id := range handlerIDs {
		handlers[id] = struct{}{}
	}
	seen := make(map[string]struct{})
	for i := range rules {
		for _, u := range resolveCCRule(ctx, &rules[i], handlerIDs) {
			if _, dup := seen[u.ID]; dup {
				continue
			}
			if _, isHandler := handlers[u.ID]; isHandler {
				continue
			}
			seen[u.ID] = struct{}{}
			ids = append(ids, u.ID)
			names = append(names, u.Name)
		}
	}
	return ids, names
}
