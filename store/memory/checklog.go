package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/workshophq/gatekeep/checklog"
	"github.com/workshophq/gatekeep/id"
	"github.com/workshophq/gatekeep/store"
)

// CreateCheckLog persists a new check log entry.
func (s *Store) CreateCheckLog(_ context.Context, e *checklog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkLogs[e.ID.String()] = copyEntry(e)
	return nil
}

// GetCheckLog retrieves a check log entry by ID.
func (s *Store) GetCheckLog(_ context.Context, logID id.CheckLogID) (*checklog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.checkLogs[logID.String()]
	if !ok {
		return nil, fmt.Errorf("memory: check log %s: %w", logID, store.ErrNotFound)
	}
	return copyEntry(e), nil
}

func matchEntry(e *checklog.Entry, filter *checklog.QueryFilter) bool {
	if filter.OrgID != "" && e.OrgID != filter.OrgID {
		return false
	}
	if filter.UserID != "" && e.UserID != filter.UserID {
		return false
	}
	if filter.PermissionKey != "" && e.PermissionKey != filter.PermissionKey {
		return false
	}
	if filter.Decision != "" && e.Decision != filter.Decision {
		return false
	}
	if filter.Allowed != nil && e.Allowed != *filter.Allowed {
		return false
	}
	if filter.After != nil && !e.CreatedAt.After(*filter.After) {
		return false
	}
	if filter.Before != nil && !e.CreatedAt.Before(*filter.Before) {
		return false
	}
	return true
}

// ListCheckLogs returns check log entries matching the filter, newest first.
func (s *Store) ListCheckLogs(_ context.Context, filter *checklog.QueryFilter) ([]*checklog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if filter == nil {
		filter = &checklog.QueryFilter{}
	}

	var out []*checklog.Entry
	for _, e := range s.checkLogs {
		if matchEntry(e, filter) {
			out = append(out, copyEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() > out[j].ID.String() })
	return paginate(out, filter.Limit, filter.Offset), nil
}

// CountCheckLogs returns the number of entries matching the filter.
func (s *Store) CountCheckLogs(_ context.Context, filter *checklog.QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if filter == nil {
		filter = &checklog.QueryFilter{}
	}

	var count int64
	for _, e := range s.checkLogs {
		if matchEntry(e, filter) {
			count++
		}
	}
	return count, nil
}

// PurgeCheckLogs removes check log entries older than the given time.
func (s *Store) PurgeCheckLogs(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for key, e := range s.checkLogs {
		if e.CreatedAt.Before(before) {
			delete(s.checkLogs, key)
			purged++
		}
	}
	return purged, nil
}

// DeleteCheckLogsByOrg removes all check logs for an organization.
func (s *Store) DeleteCheckLogsByOrg(_ context.Context, orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.checkLogs {
		if e.OrgID == orgID {
			delete(s.checkLogs, key)
		}
	}
	return nil
}
