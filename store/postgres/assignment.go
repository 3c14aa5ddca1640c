package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/workshophq/gatekeep/assignment"
	"github.com/workshophq/gatekeep/id"
	"github.com/workshophq/gatekeep/role"
)

const assignmentColumns = "id, org_id, role_id, user_id, granted_by, created_at"

func scanAssignment(row interface{ Scan(...any) error }) (*assignment.Assignment, error) {
	var a assignment.Assignment
	err := row.Scan(&a.ID, &a.OrgID, &a.RoleID, &a.UserID, &a.GrantedBy, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAssignment persists a new assignment. The (user, role) pair is
// unique.
func (s *Store) CreateAssignment(ctx context.Context, a *assignment.Assignment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO role_assignments (`+assignmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.OrgID, a.RoleID, a.UserID, a.GrantedBy, a.CreatedAt)
	if err != nil {
		return wrapErr(fmt.Sprintf("assign role %s to user %s", a.RoleID, a.UserID), err)
	}
	return nil
}

// GetAssignment retrieves an assignment by ID.
func (s *Store) GetAssignment(ctx context.Context, assID id.AssignmentID) (*assignment.Assignment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM role_assignments WHERE id = $1`, assID)
	a, err := scanAssignment(row)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get assignment %s", assID), err)
	}
	return a, nil
}

// DeleteAssignment removes an assignment by ID.
func (s *Store) DeleteAssignment(ctx context.Context, assID id.AssignmentID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM role_assignments WHERE id = $1`, assID)
	if err != nil {
		return wrapErr(fmt.Sprintf("delete assignment %s", assID), err)
	}
	return requireAffected(res, fmt.Sprintf("delete assignment %s", assID))
}

// DeleteAssignmentByUserRole removes the assignment binding a user to a
// role.
func (s *Store) DeleteAssignmentByUserRole(ctx context.Context, orgID, userID string, roleID id.RoleID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM role_assignments WHERE org_id = $1 AND user_id = $2 AND role_id = $3`,
		orgID, userID, roleID)
	if err != nil {
		return wrapErr(fmt.Sprintf("delete assignment of role %s to user %s", roleID, userID), err)
	}
	return requireAffected(res, fmt.Sprintf("delete assignment of role %s to user %s", roleID, userID))
}

// ListAssignments returns assignments matching the filter, ordered by
// creation.
func (s *Store) ListAssignments(ctx context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	if filter == nil {
		filter = &assignment.ListFilter{}
	}

	var conds []string
	var args []any
	if filter.OrgID != "" {
		args = append(args, filter.OrgID)
		conds = append(conds, fmt.Sprintf("org_id = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.RoleID != nil {
		args = append(args, *filter.RoleID)
		conds = append(conds, fmt.Sprintf("role_id = $%d", len(args)))
	}

	query := `SELECT ` + assignmentColumns + ` FROM role_assignments`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"
	query += limitOffset(&args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list assignments", err)
	}
	defer rows.Close()

	var out []*assignment.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, wrapErr("scan assignment", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListRolesForUser returns role IDs assigned to a user.
func (s *Store) ListRolesForUser(ctx context.Context, orgID, userID string) ([]id.RoleID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role_id FROM role_assignments WHERE org_id = $1 AND user_id = $2 ORDER BY role_id`,
		orgID, userID)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("list roles for user %s", userID), err)
	}
	defer rows.Close()

	var out []id.RoleID
	for rows.Next() {
		var rid id.RoleID
		if err := rows.Scan(&rid); err != nil {
			return nil, wrapErr("scan role id", err)
		}
		out = append(out, rid)
	}
	return out, rows.Err()
}

// ListActiveRolesForUser returns the active role entities held by a user.
func (s *Store) ListActiveRolesForUser(ctx context.Context, orgID, userID string) ([]*role.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.org_id, r.key, r.name, r.description, r.is_system, r.is_active, r.created_at, r.updated_at
		FROM roles r
		JOIN role_assignments ra ON ra.role_id = r.id
		WHERE ra.org_id = $1 AND ra.user_id = $2 AND r.org_id = $1 AND r.is_active
		ORDER BY r.id`, orgID, userID)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("list active roles for user %s", userID), err)
	}
	defer rows.Close()

	var out []*role.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, wrapErr("scan role", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListUsersForRole returns the user IDs of every holder of a role.
func (s *Store) ListUsersForRole(ctx context.Context, roleID id.RoleID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM role_assignments WHERE role_id = $1 ORDER BY user_id`, roleID)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("list users for role %s", roleID), err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, wrapErr("scan user id", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// DeleteAssignmentsByUser removes all assignments for a user.
func (s *Store) DeleteAssignmentsByUser(ctx context.Context, orgID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM role_assignments WHERE org_id = $1 AND user_id = $2`, orgID, userID)
	if err != nil {
		return wrapErr(fmt.Sprintf("delete assignments for user %s", userID), err)
	}
	return nil
}

// DeleteAssignmentsByRole removes all assignments for a role.
func (s *Store) DeleteAssignmentsByRole(ctx context.Context, roleID id.RoleID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM role_assignments WHERE role_id = $1`, roleID)
	if err != nil {
		return wrapErr(fmt.Sprintf("delete assignments for role %s", roleID), err)
	}
	return nil
}

// DeleteAssignmentsByOrg removes all assignments for an organization.
func (s *Store) DeleteAssignmentsByOrg(ctx context.Context, orgID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM role_assignments WHERE org_id = $1`, orgID)
	if err != nil {
		return wrapErr(fmt.Sprintf("delete assignments for org %s", orgID), err)
	}
	return nil
}
