package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/workshophq/gatekeep/checklog"
	"github.com/workshophq/gatekeep/id"
)

const checkLogColumns = "id, org_id, user_id, permission_key, allowed, decision, source, eval_time_ns, created_at"

func scanCheckLog(row interface{ Scan(...any) error }) (*checklog.Entry, error) {
	var e checklog.Entry
	err := row.Scan(&e.ID, &e.OrgID, &e.UserID, &e.PermissionKey, &e.Allowed,
		&e.Decision, &e.Source, &e.EvalTimeNs, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateCheckLog persists a new check log entry.
func (s *Store) CreateCheckLog(ctx context.Context, e *checklog.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO check_logs (`+checkLogColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.OrgID, e.UserID, e.PermissionKey, e.Allowed,
		e.Decision, e.Source, e.EvalTimeNs, e.CreatedAt)
	if err != nil {
		return wrapErr("create check log", err)
	}
	return nil
}

// GetCheckLog retrieves a check log entry by ID.
func (s *Store) GetCheckLog(ctx context.Context, logID id.CheckLogID) (*checklog.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+checkLogColumns+` FROM check_logs WHERE id = $1`, logID)
	e, err := scanCheckLog(row)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get check log %s", logID), err)
	}
	return e, nil
}

func checkLogConds(filter *checklog.QueryFilter, args *[]any) []string {
	var conds []string
	if filter.OrgID != "" {
		*args = append(*args, filter.OrgID)
		conds = append(conds, fmt.Sprintf("org_id = $%d", len(*args)))
	}
	if filter.UserID != "" {
		*args = append(*args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(*args)))
	}
	if filter.PermissionKey != "" {
		*args = append(*args, filter.PermissionKey)
		conds = append(conds, fmt.Sprintf("permission_key = $%d", len(*args)))
	}
	if filter.Decision != "" {
		*args = append(*args, filter.Decision)
		conds = append(conds, fmt.Sprintf("decision = $%d", len(*args)))
	}
	if filter.Allowed != nil {
		*args = append(*args, *filter.Allowed)
		conds = append(conds, fmt.Sprintf("allowed = $%d", len(*args)))
	}
	if filter.After != nil {
		*args = append(*args, *filter.After)
		conds = append(conds, fmt.Sprintf("created_at > $%d", len(*args)))
	}
	if filter.Before != nil {
		*args = append(*args, *filter.Before)
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(*args)))
	}
	return conds
}

// ListCheckLogs returns check log entries matching the filter, newest
// first.
func (s *Store) ListCheckLogs(ctx context.Context, filter *checklog.QueryFilter) ([]*checklog.Entry, error) {
	if filter == nil {
		filter = &checklog.QueryFilter{}
	}

	var args []any
	conds := checkLogConds(filter, &args)
	query := `SELECT ` + checkLogColumns + ` FROM check_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id DESC"
	query += limitOffset(&args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list check logs", err)
	}
	defer rows.Close()

	var out []*checklog.Entry
	for rows.Next() {
		e, err := scanCheckLog(rows)
		if err != nil {
			return nil, wrapErr("scan check log", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountCheckLogs returns the number of entries matching the filter.
func (s *Store) CountCheckLogs(ctx context.Context, filter *checklog.QueryFilter) (int64, error) {
	if filter == nil {
		filter = &checklog.QueryFilter{}
	}

	var args []any
	conds := checkLogConds(filter, &args)
	query := `SELECT COUNT(*) FROM check_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, wrapErr("count check logs", err)
	}
	return count, nil
}

// PurgeCheckLogs removes check log entries older than the given time.
func (s *Store) PurgeCheckLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM check_logs WHERE created_at < $1`, before)
	if err != nil {
		return 0, wrapErr("purge check logs", err)
	}
	return res.RowsAffected()
}

// DeleteCheckLogsByOrg removes all check logs for an organization.
func (s *Store) DeleteCheckLogsByOrg(ctx context.Context, orgID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM check_logs WHERE org_id = $1`, orgID)
	if err != nil {
		return wrapErr(fmt.Sprintf("delete check logs for org %s", orgID), err)
	}
	return nil
}
