package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/workshophq/gatekeep/id"
	"github.com/workshophq/gatekeep/override"
)

const overrideColumns = "id, org_id, user_id, permission_key, is_granted, expires_at, granted_by, created_at, updated_at"

func scanOverride(row interface{ Scan(...any) error }) (*override.Override, error) {
	var o override.Override
	err := row.Scan(&o.ID, &o.OrgID, &o.UserID, &o.PermissionKey, &o.IsGranted,
		&o.ExpiresAt, &o.GrantedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// UpsertOverride inserts the override, replacing any existing override for
// the same (org, user, permission key) triple. Latest write wins.
func (s *Store) UpsertOverride(ctx context.Context, o *override.Override) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO permission_overrides (`+overrideColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (org_id, user_id, permission_key) DO UPDATE
		SET id = excluded.id,
		    is_granted = excluded.is_granted,
		    expires_at = excluded.expires_at,
		    granted_by = excluded.granted_by,
		    updated_at = excluded.updated_at`,
		o.ID, o.OrgID, o.UserID, o.PermissionKey, o.IsGranted,
		o.ExpiresAt, o.GrantedBy, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return wrapErr(fmt.Sprintf("upsert override %q for user %s", o.PermissionKey, o.UserID), err)
	}
	return nil
}

// GetOverride retrieves the override for a (user, permission key) pair.
func (s *Store) GetOverride(ctx context.Context, orgID, userID, permissionKey string) (*override.Override, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+overrideColumns+` FROM permission_overrides
		WHERE org_id = ? AND user_id = ? AND permission_key = ?`,
		orgID, userID, permissionKey)
	o, err := scanOverride(row)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get override %q for user %s", permissionKey, userID), err)
	}
	return o, nil
}

// DeleteOverride removes an override by ID.
func (s *Store) DeleteOverride(ctx context.Context, ovrdID id.OverrideID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM permission_overrides WHERE id = ?`, ovrdID)
	if err != nil {
		return wrapErr(fmt.Sprintf("delete override %s", ovrdID), err)
	}
	return requireAffected(res, fmt.Sprintf("delete override %s", ovrdID))
}

// DeleteOverrideByKey removes the override for a (user, permission key)
// pair.
func (s *Store) DeleteOverrideByKey(ctx context.Context, orgID, userID, permissionKey string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM permission_overrides
		WHERE org_id = ? AND user_id = ? AND permission_key = ?`,
		orgID, userID, permissionKey)
	if err != nil {
		return wrapErr(fmt.Sprintf("delete override %q for user %s", permissionKey, userID), err)
	}
	return requireAffected(res, fmt.Sprintf("delete override %q for user %s", permissionKey, userID))
}

// ListOverrides returns overrides matching the filter, expired or not,
// ordered by creation.
func (s *Store) ListOverrides(ctx context.Context, filter *override.ListFilter) ([]*override.Override, error) {
	if filter == nil {
		filter = &override.ListFilter{}
	}

	var conds []string
	var args []any
	if filter.OrgID != "" {
		conds = append(conds, "org_id = ?")
		args = append(args, filter.OrgID)
	}
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.PermissionKey != "" {
		conds = append(conds, "permission_key = ?")
		args = append(args, filter.PermissionKey)
	}
	if filter.IsGranted != nil {
		conds = append(conds, "is_granted = ?")
		args = append(args, *filter.IsGranted)
	}

	query := `SELECT ` + overrideColumns + ` FROM permission_overrides`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"
	query += limitOffset(&args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list overrides", err)
	}
	defer rows.Close()

	var out []*override.Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, wrapErr("scan override", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListActiveOverrides returns a user's overrides in effect at the given
// instant.
func (s *Store) ListActiveOverrides(ctx context.Context, orgID, userID string, now time.Time) ([]*override.Override, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+overrideColumns+` FROM permission_overrides
		WHERE org_id = ? AND user_id = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY id`, orgID, userID, now)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("list active overrides for user %s", userID), err)
	}
	defer rows.Close()

	var out []*override.Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, wrapErr("scan override", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// PurgeExpiredOverrides removes overrides that expired before the given
// time.
func (s *Store) PurgeExpiredOverrides(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM permission_overrides WHERE expires_at IS NOT NULL AND expires_at < ?`, before)
	if err != nil {
		return 0, wrapErr("purge expired overrides", err)
	}
	return res.RowsAffected()
}

// DeleteOverridesByUser removes all overrides for a user.
func (s *Store) DeleteOverridesByUser(ctx context.Context, orgID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM permission_overrides WHERE org_id = ? AND user_id = ?`, orgID, userID)
	if err != nil {
		return wrapErr(fmt.Sprintf("delete overrides for user %s", userID), err)
	}
	return nil
}

// DeleteOverridesByOrg removes all overrides for an organization.
func (s *Store) DeleteOverridesByOrg(ctx context.Context, orgID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM permission_overrides WHERE org_id = ?`, orgID)
	if err != nil {
		return wrapErr(fmt.Sprintf("delete overrides for org %s", orgID), err)
	}
	return nil
}
