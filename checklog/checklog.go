// Package checklog defines the authorization decision audit Entry entity.
package checklog

import (
	"time"

	"github.com/workshophq/gatekeep/id"
)

// Source records where a decision was answered from.
const (
	SourceSnapshot = "snapshot"
	SourceDirect   = "direct"
)

// Entry is a single authorization check audit record.
type Entry struct {
	ID            id.CheckLogID `json:"id" db:"id"`
	OrgID         string        `json:"org_id" db:"org_id"`
	UserID        string        `json:"user_id" db:"user_id"`
	PermissionKey string        `json:"permission_key" db:"permission_key"`
	Allowed       bool          `json:"allowed" db:"allowed"`
	Decision      string        `json:"decision" db:"decision"`
	Source        string        `json:"source" db:"source"`
	EvalTimeNs    int64         `json:"eval_time_ns" db:"eval_time_ns"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

// QueryFilter contains filters for querying check logs.
type QueryFilter struct {
	OrgID         string     `json:"org_id,omitempty"`
	UserID        string     `json:"user_id,omitempty"`
	PermissionKey string     `json:"permission_key,omitempty"`
	Decision      string     `json:"decision,omitempty"`
	Allowed       *bool      `json:"allowed,omitempty"`
	After         *time.Time `json:"after,omitempty"`
	Before        *time.Time `json:"before,omitempty"`
	Limit         int        `json:"limit,omitempty"`
	Offset        int        `json:"offset,omitempty"`
}
