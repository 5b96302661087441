// Package directory is a read-only snapshot of the organization: the
// department tree and the user roster. The workflow engine receives a fully
// materialized Directory per dispatch call and never performs I/O through it.
package directory

import "strings"

// Department is one node of the organization tree.
type Department struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ManagerID string `json:"managerId"`
	ParentID  string `json:"parentId"`
}

// User is one entry of the user roster.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DepartmentID string `json:"departmentId"`
	JobTitle     string `json:"jobTitle"`
}

// Directory indexes departments and users for constant-time lookups.
type Directory struct {
	departments map[string]*Department
	users       map[string]*User
	byDept      map[string][]*User
	order       []*User
}

// New builds a Directory from materialized rows. Input slices are copied;
// the snapshot is immutable afterwards and safe for concurrent reads.
func New(departments []Department, users []User) *Directory {
	d := &Directory{
		departments: make(map[string]*Department, len(departments)),
		users:       make(map[string]*User, len(users)),
		byDept:      make(map[string][]*User),
	}
	for i := range departments {
		dept := departments[i]
		d.departments[dept.ID] = &dept
	}
	for i := range users {
		u := users[i]
		d.users[u.ID] = &u
		d.byDept[u.DepartmentID] = append(d.byDept[u.DepartmentID], &u)
		d.order = append(d.order, &u)
	}
	return d
}

// Department returns the department with the given id, or nil.
func (d *Directory) Department(id string) *Department {
	return d.departments[id]
}

// User returns the user with the given id, or nil.
func (d *Directory) User(id string) *User {
	return d.users[id]
}

// Manager returns the designated manager of a department, or nil when the
// department is unknown, has no manager configured, or the manager is not in
// the roster.
func (d *Directory) Manager(deptID string) *User {
	dept := d.departments[deptID]
	if dept == nil || dept.ManagerID == "" {
		return nil
	}
	return d.users[dept.ManagerID]
}

// Supervisor returns the manager responsible for a user. Normally that is
// the manager of the user's own department; when the user is that manager
// themselves, the walk continues to the parent department so a department
// head does not end up approving their own submission.
func (d *Directory) Supervisor(userID string) *User {
	u := d.users[userID]
	if u == nil {
		return nil
	}
	dept := d.departments[u.DepartmentID]
	for dept != nil {
		if m := d.Manager(dept.ID); m != nil && m.ID != userID {
			return m
		}
		if dept.ParentID == "" {
			return nil
		}
		dept = d.departments[dept.ParentID]
	}
	return nil
}

// UsersInDepartment returns the direct members of a department in roster
// order.
func (d *Directory) UsersInDepartment(deptID string) []*User {
	return d.byDept[deptID]
}

// MatchRole returns every user whose job title contains the given keyword,
// case-insensitively, optionally restricted to one department. Roster order
// is preserved.
func (d *Directory) MatchRole(deptID, keyword string) []*User {
	if keyword == "" {
		return nil
	}
	needle := strings.ToLower(keyword)
	var out []*User
	for _, u := range d.order {
		if deptID != "" && u.DepartmentID != deptID {
			continue
		}
		if strings.Contains(strings.ToLower(u.JobTitle), needle) {
			out = append(out, u)
		}
	}
	return out
}
