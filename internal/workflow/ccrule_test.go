package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveCC(t *testing.T) {
	ctx := testContext(testHazard())

	tests := []struct {
		name     string
		rule     CCRule
		handlers []string
		wantIDs  []string
	}{
		{
			name:    "fixed users, unknown ids skipped",
			rule:    CCRule{Type: CCFixedUsers, UserIDs: []string{"u-safety-1", "u-ghost", "u-verify"}},
			wantIDs: []string{"u-safety-1", "u-verify"},
		},
		{
			name:    "reporter",
			rule:    CCRule{Type: CCReporter},
			wantIDs: []string{"u-rep"},
		},
		{
			name:    "responsible",
			rule:    CCRule{Type: CCResponsible},
			wantIDs: []string{"u-resp"},
		},
		{
			name:    "reporter manager",
			rule:    CCRule{Type: CCReporterManager},
			wantIDs: []string{"u-mgr-ops"},
		},
		{
			name:    "responsible manager",
			rule:    CCRule{Type: CCResponsibleManager},
			wantIDs: []string{"u-mgr-maint"},
		},
		{
			name:     "handler manager",
			rule:     CCRule{Type: CCHandlerManager},
			handlers: []string{"u-safety-1"},
			wantIDs:  []string{"u-mgr-safety"},
		},
		{
			name:    "dept by location hit",
			rule:    CCRule{Type: CCDeptByLocation, LocationMatch: "warehouse-3", DeptID: "d-safety"},
			wantIDs: []string{"u-mgr-safety", "u-safety-1", "u-safety-2", "u-verify"},
		},
		{
			name:    "dept by location miss",
			rule:    CCRule{Type: CCDeptByLocation, LocationMatch: "rooftop", DeptID: "d-safety"},
			wantIDs: nil,
		},
		{
			name:    "dept by type hit",
			rule:    CCRule{Type: CCDeptByType, TypeMatch: "electrical", DeptID: "d-maint"},
			wantIDs: []string{"u-resp", "u-mgr-maint"},
		},
		{
			name:    "role match",
			rule:    CCRule{Type: CCRoleMatch, DeptID: "d-safety", RoleName: "safety officer"},
			wantIDs: []string{"u-safety-1", "u-safety-2"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ids, names := ResolveCC(ctx, []CCRule{tc.rule}, tc.handlers)
			assert.Equal(t, tc.wantIDs, ids)
			assert.Len(t, names, len(tc.wantIDs))
		})
	}
}

func TestResolveCCUnionDedup(t *testing.T) {
	ctx := testContext(testHazard())
	rules := []CCRule{
		{Type: CCReporterManager},
		{Type: CCRoleMatch, RoleName: "manager"}, // includes u-mgr-ops again
		{Type: CCReporter},
	}
	ids, _ := ResolveCC(ctx, rules, nil)
	assert.Equal(t, []string{"u-mgr-ops", "u-mgr-maint", "u-mgr-safety", "u-rep"}, ids)
}

// A cc audience never includes the step's own handlers, and a rule that
// resolves nobody is skipped without failing the step.
func TestResolveCCExcludesHandlersAndFailuresAreSilent(t *testing.T) {
	ctx := testContext(testHazard())
	rules := []CCRule{
		{Type: CCReporter},                         // u-rep, excluded below
		{Type: CCRoleMatch, RoleName: "astronaut"}, // nobody
		{Type: CCResponsible},
	}
	ids, names := ResolveCC(ctx, rules, []string{"u-rep"})
	assert.Equal(t, []string{"u-resp"}, ids)
	assert.Equal(t, []string{"Ralf Fitter"}, names)
}
