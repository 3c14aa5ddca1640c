package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/workshophq/gatekeep/checklog"
	"github.com/workshophq/gatekeep/id"
)

type checkLogDoc struct {
	ID            string    `bson:"_id"`
	OrgID         string    `bson:"org_id"`
	UserID        string    `bson:"user_id"`
	PermissionKey string    `bson:"permission_key"`
	Allowed       bool      `bson:"allowed"`
	Decision      string    `bson:"decision"`
	Source        string    `bson:"source"`
	EvalTimeNs    int64     `bson:"eval_time_ns"`
	CreatedAt     time.Time `bson:"created_at"`
}

func toCheckLogDoc(e *checklog.Entry) checkLogDoc {
	return checkLogDoc{
		ID:            e.ID.String(),
		OrgID:         e.OrgID,
		UserID:        e.UserID,
		PermissionKey: e.PermissionKey,
		Allowed:       e.Allowed,
		Decision:      e.Decision,
		Source:        e.Source,
		EvalTimeNs:    e.EvalTimeNs,
		CreatedAt:     e.CreatedAt,
	}
}

func fromCheckLogDoc(d checkLogDoc) (*checklog.Entry, error) {
	lid, err := id.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("corrupt check log id %q: %w", d.ID, err)
	}
	return &checklog.Entry{
		ID:            lid,
		OrgID:         d.OrgID,
		UserID:        d.UserID,
		PermissionKey: d.PermissionKey,
		Allowed:       d.Allowed,
		Decision:      d.Decision,
		Source:        d.Source,
		EvalTimeNs:    d.EvalTimeNs,
		CreatedAt:     d.CreatedAt,
	}, nil
}

func checkLogQuery(filter *checklog.QueryFilter) bson.M {
	query := bson.M{}
	if filter.OrgID != "" {
		query["org_id"] = filter.OrgID
	}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	if filter.PermissionKey != "" {
		query["permission_key"] = filter.PermissionKey
	}
	if filter.Decision != "" {
		query["decision"] = filter.Decision
	}
	if filter.Allowed != nil {
		query["allowed"] = *filter.Allowed
	}
	created := bson.M{}
	if filter.After != nil {
		created["$gt"] = *filter.After
	}
	if filter.Before != nil {
		created["$lt"] = *filter.Before
	}
	if len(created) > 0 {
		query["created_at"] = created
	}
	return query
}

// CreateCheckLog persists a new check log entry.
func (s *Store) CreateCheckLog(ctx context.Context, e *checklog.Entry) error {
	_, err := s.db.Collection(collCheckLogs).InsertOne(ctx, toCheckLogDoc(e))
	if err != nil {
		return wrapErr("create check log", err)
	}
	return nil
}

// GetCheckLog retrieves a check log entry by ID.
func (s *Store) GetCheckLog(ctx context.Context, logID id.CheckLogID) (*checklog.Entry, error) {
	var d checkLogDoc
	err := s.db.Collection(collCheckLogs).FindOne(ctx, bson.M{"_id": logID.String()}).Decode(&d)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get check log %s", logID), err)
	}
	return fromCheckLogDoc(d)
}

// ListCheckLogs returns check log entries matching the filter, newest
// first.
func (s *Store) ListCheckLogs(ctx context.Context, filter *checklog.QueryFilter) ([]*checklog.Entry, error) {
	if filter == nil {
		filter = &checklog.QueryFilter{}
	}

	cur, err := s.db.Collection(collCheckLogs).Find(ctx, checkLogQuery(filter),
		findOpts(filter.Limit, filter.Offset, bson.D{{Key: "_id", Value: -1}}))
	if err != nil {
		return nil, wrapErr("list check logs", err)
	}
	defer cur.Close(ctx)

	var out []*checklog.Entry
	for cur.Next(ctx) {
		var d checkLogDoc
		if err := cur.Decode(&d); err != nil {
			return nil, wrapErr("decode check log", err)
		}
		e, err := fromCheckLogDoc(d)
		if err != nil {
			return nil, wrapErr("decode check log", err)
		}
		out = append(out, e)
	}
	return out, cur.Err()
}

// CountCheckLogs returns the number of entries matching the filter.
func (s *Store) CountCheckLogs(ctx context.Context, filter *checklog.QueryFilter) (int64, error) {
	if filter == nil {
		filter = &checklog.QueryFilter{}
	}
	count, err := s.db.Collection(collCheckLogs).CountDocuments(ctx, checkLogQuery(filter))
	if err != nil {
		return 0, wrapErr("count check logs", err)
	}
	return count, nil
}

// PurgeCheckLogs removes check log entries older than the given time.
func (s *Store) PurgeCheckLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.Collection(collCheckLogs).DeleteMany(ctx,
		bson.M{"created_at": bson.M{"$lt": before}})
	if err != nil {
		return 0, wrapErr("purge check logs", err)
	}
	return res.DeletedCount, nil
}

// DeleteCheckLogsByOrg removes all check logs for an organization.
func (s *Store) DeleteCheckLogsByOrg(ctx context.Context, orgID string) error {
	_, err := s.db.Collection(collCheckLogs).DeleteMany(ctx, bson.M{"org_id": orgID})
	if err != nil {
		return wrapErr(fmt.Sprintf("delete check logs for org %s", orgID), err)
	}
	return nil
}
