package database

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastion-ehs/be-ehs-hazards/internal/workflow"
)

// Hazards created before the first publish pin config_version = 1, so the
// init migration must seed that row and keep it in lockstep with the
// in-code default.
func TestInitMigrationSeedsDefaultConfig(t *testing.T) {
	raw, err := migrations.ReadFile("migrations/00001_init.sql")
	require.NoError(t, err)

	re := regexp.MustCompile(`(?s)INSERT INTO hazard_workflow_configs[^;]*VALUES \(1, '(\[.*?\])', TRUE\)`)
	m := re.FindSubmatch(raw)
	require.Len(t, m, 2, "version 1 seed missing from init migration")

	var steps []workflow.Step
	require.NoError(t, json.Unmarshal(m[1], &steps))
	assert.Equal(t, workflow.DefaultConfig().Steps, steps)
}
