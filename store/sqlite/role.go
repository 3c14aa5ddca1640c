package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/workshophq/gatekeep/id"
	"github.com/workshophq/gatekeep/role"
)

const roleColumns = "id, org_id, key, name, description, is_system, is_active, created_at, updated_at"

func scanRole(row interface{ Scan(...any) error }) (*role.Role, error) {
	var r role.Role
	err := row.Scan(&r.ID, &r.OrgID, &r.Key, &r.Name, &r.Description,
		&r.IsSystem, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRole persists a new role.
func (s *Store) CreateRole(ctx context.Context, r *role.Role) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roles (`+roleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.OrgID, r.Key, r.Name, r.Description,
		r.IsSystem, r.IsActive, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return wrapErr(fmt.Sprintf("create role %q", r.Key), err)
	}
	return nil
}

// GetRole retrieves a role by ID.
func (s *Store) GetRole(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = ?`, roleID)
	r, err := scanRole(row)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get role %s", roleID), err)
	}
	return r, nil
}

// GetRoleByKey retrieves a role by organization and key.
func (s *Store) GetRoleByKey(ctx context.Context, orgID, key string) (*role.Role, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE org_id = ? AND key = ?`, orgID, key)
	r, err := scanRole(row)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get role %q", key), err)
	}
	return r, nil
}

// UpdateRole persists changes to a role.
func (s *Store) UpdateRole(ctx context.Context, r *role.Role) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE roles
		SET name = ?, description = ?, is_system = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		r.Name, r.Description, r.IsSystem, r.IsActive, r.UpdatedAt, r.ID)
	if err != nil {
		return wrapErr(fmt.Sprintf("update role %s", r.ID), err)
	}
	return requireAffected(res, fmt.Sprintf("update role %s", r.ID))
}

// DeleteRole removes a role; its grant set and assignments cascade.
func (s *Store) DeleteRole(ctx context.Context, roleID id.RoleID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE id = ?`, roleID)
	if err != nil {
		return wrapErr(fmt.Sprintf("delete role %s", roleID), err)
	}
	return requireAffected(res, fmt.Sprintf("delete role %s", roleID))
}

// ListRoles returns roles matching the filter, ordered by creation.
func (s *Store) ListRoles(ctx context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	if filter == nil {
		filter = &role.ListFilter{}
	}

	var conds []string
	var args []any
	if filter.OrgID != "" {
		conds = append(conds, "org_id = ?")
		args = append(args, filter.OrgID)
	}
	if filter.IsSystem != nil {
		conds = append(conds, "is_system = ?")
		args = append(args, *filter.IsSystem)
	}
	if filter.IsActive != nil {
		conds = append(conds, "is_active = ?")
		args = append(args, *filter.IsActive)
	}

	query := `SELECT ` + roleColumns + ` FROM roles`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"
	query += limitOffset(&args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list roles", err)
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

// ListRolePermissions returns permission IDs granted to a role.
func (s *Store) ListRolePermissions(ctx context.Context, roleID id.RoleID) ([]id.PermissionID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT permission_id FROM role_permissions WHERE role_id = ? ORDER BY permission_id`, roleID)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("list permissions for role %s", roleID), err)
	}
	defer rows.Close()

	var out []id.PermissionID
	for rows.Next() {
		var pid id.PermissionID
		if err := rows.Scan(&pid); err != nil {
			return nil, wrapErr("scan permission id", err)
		}
		out = append(out, pid)
	}
	return out, rows.Err()
}

// AttachPermission links a permission to a role. Attaching an already
// attached permission is a no-op.
func (s *Store) AttachPermission(ctx context.Context, roleID id.RoleID, permID id.PermissionID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		VALUES (?, ?)
		ON CONFLICT DO NOTHING`, roleID, permID)
	if err != nil {
		return wrapErr(fmt.Sprintf("attach permission %s to role %s", permID, roleID), err)
	}
	return nil
}

// DetachPermission removes a permission from a role.
func (s *Store) DetachPermission(ctx context.Context, roleID id.RoleID, permID id.PermissionID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM role_permissions WHERE role_id = ? AND permission_id = ?`, roleID, permID)
	if err != nil {
		return wrapErr(fmt.Sprintf("detach permission %s from role %s", permID, roleID), err)
	}
	return nil
}

// SetRolePermissions replaces the whole grant set of a role in one
// transaction.
func (s *Store) SetRolePermissions(ctx context.Context, roleID id.RoleID, permIDs []id.PermissionID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM role_permissions WHERE role_id = ?`, roleID); err != nil {
		return wrapErr(fmt.Sprintf("clear permissions for role %s", roleID), err)
	}
	for _, pid := range permIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO role_permissions (role_id, permission_id)
			VALUES (?, ?)
			ON CONFLICT DO NOTHING`, roleID, pid); err != nil {
			return wrapErr(fmt.Sprintf("grant permission %s to role %s", pid, roleID), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return wrapErr("commit", err)
	}
	return nil
}

// DeleteRolesByOrg removes all roles for an organization.
func (s *Store) DeleteRolesByOrg(ctx context.Context, orgID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE org_id = ?`, orgID)
	if err != nil {
		return wrapErr(fmt.Sprintf("delete roles for org %s", orgID), err)
	}
	return nil
}
