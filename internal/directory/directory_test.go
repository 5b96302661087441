package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDirectory() *Directory {
	departments := []Department{
		{ID: "root", Name: "HQ", ManagerID: "ceo"},
		{ID: "eng", Name: "Engineering", ManagerID: "eng-lead", ParentID: "root"},
		{ID: "orphan", Name: "Orphan"},
	}
	users := []User{
		{ID: "ceo", Name: "Casey", DepartmentID: "root", JobTitle: "CEO"},
		{ID: "eng-lead", Name: "Lena", DepartmentID: "eng", JobTitle: "Engineering Manager"},
		{ID: "dev-1", Name: "Devon", DepartmentID: "eng", JobTitle: "Software Engineer"},
		{ID: "dev-2", Name: "Dana", DepartmentID: "eng", JobTitle: "Senior Software Engineer"},
	}
	return New(departments, users)
}

func TestLookups(t *testing.T) {
	d := buildDirectory()

	require.NotNil(t, d.Department("eng"))
	assert.Equal(t, "Engineering", d.Department("eng").Name)
	assert.Nil(t, d.Department("missing"))

	require.NotNil(t, d.User("dev-1"))
	assert.Equal(t, "Devon", d.User("dev-1").Name)
	assert.Nil(t, d.User("missing"))
}

func TestManager(t *testing.T) {
	d := buildDirectory()

	require.NotNil(t, d.Manager("eng"))
	assert.Equal(t, "eng-lead", d.Manager("eng").ID)
	assert.Nil(t, d.Manager("orphan"))
	assert.Nil(t, d.Manager("missing"))
}

func TestSupervisor(t *testing.T) {
	d := buildDirectory()

	// Plain member: own department's manager.
	require.NotNil(t, d.Supervisor("dev-1"))
	assert.Equal(t, "eng-lead", d.Supervisor("dev-1").ID)

	// Department head: walks to the parent department.
	require.NotNil(t, d.Supervisor("eng-lead"))
	assert.Equal(t, "ceo", d.Supervisor("eng-lead").ID)

	// Top of the tree: nobody.
	assert.Nil(t, d.Supervisor("ceo"))
	assert.Nil(t, d.Supervisor("missing"))
}

func TestUsersInDepartment(t *testing.T) {
	d := buildDirectory()

	members := d.UsersInDepartment("eng")
	require.Len(t, members, 3)
	assert.Equal(t, "eng-lead", members[0].ID)
	assert.Empty(t, d.UsersInDepartment("orphan"))
}

func TestMatchRole(t *testing.T) {
	d := buildDirectory()

	all := d.MatchRole("", "engineer")
	require.Len(t, all, 3)
	assert.Equal(t, []string{"eng-lead", "dev-1", "dev-2"}, []string{all[0].ID, all[1].ID, all[2].ID})

	scoped := d.MatchRole("eng", "software")
	require.Len(t, scoped, 2)

	assert.Empty(t, d.MatchRole("", "plumber"))
	assert.Empty(t, d.MatchRole("", ""))
}

// Mutating the input slices after New must not affect the snapshot.
func TestSnapshotIsolation(t *testing.T) {
	users := []User{{ID: "u1", Name: "One", DepartmentID: "d1"}}
	departments := []Department{{ID: "d1", Name: "Dept"}}
	d := New(departments, users)

	users[0].Name = "changed"
	departments[0].Name = "changed"

	assert.Equal(t, "One", d.User("u1").Name)
	assert.Equal(t, "Dept", d.Department("d1").Name)
}
