package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/bastion-ehs/be-ehs-hazards/internal/apperr"
	"github.com/bastion-ehs/be-ehs-hazards/internal/database"
	"github.com/bastion-ehs/be-ehs-hazards/internal/directory"
)

// DirectoryRepository loads the org snapshot the engine resolves against.
// Each dispatch reads a fresh snapshot so strategy resolution always sees
// the current org structure.
type DirectoryRepository struct {
	db *database.DB
}

func NewDirectoryRepository(db *database.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// Snapshot loads all departments and users into an immutable directory.
func (r *DirectoryRepository) Snapshot(ctx context.Context) (*directory.Directory, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, COALESCE(manager_id, ''), COALESCE(parent_id, '')
		FROM departments
		ORDER BY id
	`)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "load departments")
	}
	defer rows.Close()

	var departments []directory.Department
	for rows.Next() {
		var d directory.Department
		if err := rows.Scan(&d.ID, &d.Name, &d.ManagerID, &d.ParentID); err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "scan department")
		}
		departments = append(departments, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "load departments")
	}

	userRows, err := r.db.Query(ctx, `
		SELECT id, name, COALESCE(department_id, ''), job_title
		FROM users
		ORDER BY id
	`)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "load users")
	}
	defer userRows.Close()

	var users []directory.User
	for userRows.Next() {
		var u directory.User
		if err := userRows.Scan(&u.ID, &u.Name, &u.DepartmentID, &u.JobTitle); err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "scan user")
		}
		users = append(users, u)
	}
	if err := userRows.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "load users")
	}

	return directory.New(departments, users), nil
}

// IsAdmin reports whether the user carries the admin flag. Unknown users
// are not admins.
func (r *DirectoryRepository) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var admin bool
	err := r.db.QueryRow(ctx, `SELECT is_admin FROM users WHERE id = $1`, userID).Scan(&admin)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Wrap(err, apperr.ErrCodeInternal, "check admin flag")
	}
	return admin, nil
}
