package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/workshophq/gatekeep/id"
	"github.com/workshophq/gatekeep/permission"
)

const permissionColumns = "id, org_id, key, resource, action, description, is_active, created_at, updated_at"

func scanPermission(row interface{ Scan(...any) error }) (*permission.Permission, error) {
	var p permission.Permission
	err := row.Scan(&p.ID, &p.OrgID, &p.Key, &p.Resource, &p.Action,
		&p.Description, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePermission persists a new permission.
func (s *Store) CreatePermission(ctx context.Context, p *permission.Permission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO permissions (`+permissionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OrgID, p.Key, p.Resource, p.Action,
		p.Description, p.IsActive, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return wrapErr(fmt.Sprintf("create permission %q", p.Key), err)
	}
	return nil
}

// GetPermission retrieves a permission by ID.
func (s *Store) GetPermission(ctx context.Context, permID id.PermissionID) (*permission.Permission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+permissionColumns+` FROM permissions WHERE id = ?`, permID)
	p, err := scanPermission(row)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get permission %s", permID), err)
	}
	return p, nil
}

// GetPermissionByKey retrieves a permission by organization and key.
func (s *Store) GetPermissionByKey(ctx context.Context, orgID, key string) (*permission.Permission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+permissionColumns+` FROM permissions WHERE org_id = ? AND key = ?`, orgID, key)
	p, err := scanPermission(row)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get permission %q", key), err)
	}
	return p, nil
}

// UpdatePermission persists changes to a permission.
func (s *Store) UpdatePermission(ctx context.Context, p *permission.Permission) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE permissions
		SET description = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		p.Description, p.IsActive, p.UpdatedAt, p.ID)
	if err != nil {
		return wrapErr(fmt.Sprintf("update permission %s", p.ID), err)
	}
	return requireAffected(res, fmt.Sprintf("update permission %s", p.ID))
}

// ListPermissions returns permissions matching the filter, ordered by
// creation.
func (s *Store) ListPermissions(ctx context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	if filter == nil {
		filter = &permission.ListFilter{}
	}

	var conds []string
	var args []any
	if filter.OrgID != "" {
		conds = append(conds, "org_id = ?")
		args = append(args, filter.OrgID)
	}
	if filter.Resource != "" {
		conds = append(conds, "resource = ?")
		args = append(args, filter.Resource)
	}
	if filter.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.IsActive != nil {
		conds = append(conds, "is_active = ?")
		args = append(args, *filter.IsActive)
	}

	query := `SELECT ` + permissionColumns + ` FROM permissions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"
	query += limitOffset(&args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list permissions", err)
	}
	defer rows.Close()

	var out []*permission.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, wrapErr("scan permission", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListActivePermissionKeys returns the keys of all active permissions in an
// organization.
func (s *Store) ListActivePermissionKeys(ctx context.Context, orgID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM permissions WHERE org_id = ? AND is_active ORDER BY key`, orgID)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("list active permission keys for org %s", orgID), err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, wrapErr("scan permission key", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ListPermissionsByRole returns all permissions granted to a role.
func (s *Store) ListPermissionsByRole(ctx context.Context, roleID id.RoleID) ([]*permission.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.org_id, p.key, p.resource, p.action, p.description, p.is_active, p.created_at, p.updated_at
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = ?
		ORDER BY p.id`, roleID)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("list permissions for role %s", roleID), err)
	}
	defer rows.Close()

	var out []*permission.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, wrapErr("scan permission", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePermissionsByOrg removes all permissions for an organization; their
// role grants cascade.
func (s *Store) DeletePermissionsByOrg(ctx context.Context, orgID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM permissions WHERE org_id = ?`, orgID)
	if err != nil {
		return wrapErr(fmt.Sprintf("delete permissions for org %s", orgID), err)
	}
	return nil
}
