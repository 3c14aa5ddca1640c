package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/workshophq/gatekeep/id"
	"github.com/workshophq/gatekeep/override"
)

type overrideDoc struct {
	ID            string     `bson:"_id"`
	OrgID         string     `bson:"org_id"`
	UserID        string     `bson:"user_id"`
	PermissionKey string     `bson:"permission_key"`
	IsGranted     bool       `bson:"is_granted"`
	ExpiresAt     *time.Time `bson:"expires_at,omitempty"`
	GrantedBy     string     `bson:"granted_by"`
	CreatedAt     time.Time  `bson:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at"`
}

func toOverrideDoc(o *override.Override) overrideDoc {
	return overrideDoc{
		ID:            o.ID.String(),
		OrgID:         o.OrgID,
		UserID:        o.UserID,
		PermissionKey: o.PermissionKey,
		IsGranted:     o.IsGranted,
		ExpiresAt:     o.ExpiresAt,
		GrantedBy:     o.GrantedBy,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func fromOverrideDoc(d overrideDoc) (*override.Override, error) {
	oid, err := id.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("corrupt override id %q: %w", d.ID, err)
	}
	return &override.Override{
		ID:            oid,
		OrgID:         d.OrgID,
		UserID:        d.UserID,
		PermissionKey: d.PermissionKey,
		IsGranted:     d.IsGranted,
		ExpiresAt:     d.ExpiresAt,
		GrantedBy:     d.GrantedBy,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}, nil
}

// UpsertOverride inserts the override, replacing any existing override for
// the same (org, user, permission key) triple. Latest write wins.
func (s *Store) UpsertOverride(ctx context.Context, o *override.Override) error {
	coll := s.db.Collection(collOverrides)
	// The document _id changes on replacement, so delete-then-insert
	// rather than ReplaceOne with upsert.
	if _, err := coll.DeleteOne(ctx, bson.M{
		"org_id": o.OrgID, "user_id": o.UserID, "permission_key": o.PermissionKey,
	}); err != nil {
		return wrapErr(fmt.Sprintf("upsert override %q for user %s", o.PermissionKey, o.UserID), err)
	}
	if _, err := coll.InsertOne(ctx, toOverrideDoc(o)); err != nil {
		return wrapErr(fmt.Sprintf("upsert override %q for user %s", o.PermissionKey, o.UserID), err)
	}
	return nil
}

// GetOverride retrieves the override for a (user, permission key) pair.
func (s *Store) GetOverride(ctx context.Context, orgID, userID, permissionKey string) (*override.Override, error) {
	var d overrideDoc
	err := s.db.Collection(collOverrides).FindOne(ctx, bson.M{
		"org_id": orgID, "user_id": userID, "permission_key": permissionKey,
	}).Decode(&d)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get override %q for user %s", permissionKey, userID), err)
	}
	return fromOverrideDoc(d)
}

// DeleteOverride removes an override by ID.
func (s *Store) DeleteOverride(ctx context.Context, ovrdID id.OverrideID) error {
	res, err := s.db.Collection(collOverrides).DeleteOne(ctx, bson.M{"_id": ovrdID.String()})
	if err != nil {
		return wrapErr(fmt.Sprintf("delete override %s", ovrdID), err)
	}
	if res.DeletedCount == 0 {
		return wrapErr(fmt.Sprintf("delete override %s", ovrdID), errNoDocuments())
	}
	return nil
}

// DeleteOverrideByKey removes the override for a (user, permission key)
// pair.
func (s *Store) DeleteOverrideByKey(ctx context.Context, orgID, userID, permissionKey string) error {
	res, err := s.db.Collection(collOverrides).DeleteOne(ctx, bson.M{
		"org_id": orgID, "user_id": userID, "permission_key": permissionKey,
	})
	if err != nil {
		return wrapErr(fmt.Sprintf("delete override %q for user %s", permissionKey, userID), err)
	}
	if res.DeletedCount == 0 {
		return wrapErr(fmt.Sprintf("delete override %q for user %s", permissionKey, userID), errNoDocuments())
	}
	return nil
}

// ListOverrides returns overrides matching the filter, expired or not,
// ordered by creation.
func (s *Store) ListOverrides(ctx context.Context, filter *override.ListFilter) ([]*override.Override, error) {
	if filter == nil {
		filter = &override.ListFilter{}
	}

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
	if filter.IsGranted != nil {
		query["is_granted"] = *filter.IsGranted
	}

	cur, err := s.db.Collection(collOverrides).Find(ctx, query,
		findOpts(filter.Limit, filter.Offset, bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, wrapErr("list overrides", err)
	}
	defer cur.Close(ctx)

	var out []*override.Override
	for cur.Next(ctx) {
		var d overrideDoc
		if err := cur.Decode(&d); err != nil {
			return nil, wrapErr("decode override", err)
		}
		o, err := fromOverrideDoc(d)
		if err != nil {
			return nil, wrapErr("decode override", err)
		}
		out = append(out, o)
	}
	return out, cur.Err()
}

// ListActiveOverrides returns a user's overrides in effect at the given
// instant.
func (s *Store) ListActiveOverrides(ctx context.Context, orgID, userID string, now time.Time) ([]*override.Override, error) {
	cur, err := s.db.Collection(collOverrides).Find(ctx, bson.M{
		"org_id":  orgID,
		"user_id": userID,
		"$or": bson.A{
			bson.M{"expires_at": bson.M{"$exists": false}},
			bson.M{"expires_at": nil},
			bson.M{"expires_at": bson.M{"$gt": now}},
		},
	}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("list active overrides for user %s", userID), err)
	}
	defer cur.Close(ctx)

	var out []*override.Override
	for cur.Next(ctx) {
		var d overrideDoc
		if err := cur.Decode(&d); err != nil {
			return nil, wrapErr("decode override", err)
		}
		o, err := fromOverrideDoc(d)
		if err != nil {
			return nil, wrapErr("decode override", err)
		}
		out = append(out, o)
	}
	return out, cur.Err()
}

// PurgeExpiredOverrides removes overrides that expired before the given
// time.
func (s *Store) PurgeExpiredOverrides(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.Collection(collOverrides).DeleteMany(ctx,
		bson.M{"expires_at": bson.M{"$ne": nil, "$lt": before}})
	if err != nil {
		return 0, wrapErr("purge expired overrides", err)
	}
	return res.DeletedCount, nil
}

// DeleteOverridesByUser removes all overrides for a user.
func (s *Store) DeleteOverridesByUser(ctx context.Context, orgID, userID string) error {
	_, err := s.db.Collection(collOverrides).DeleteMany(ctx,
		bson.M{"org_id": orgID, "user_id": userID})
	if err != nil {
		return wrapErr(fmt.Sprintf("delete overrides for user %s", userID), err)
	}
	return nil
}

// DeleteOverridesByOrg removes all overrides for an organization.
func (s *Store) DeleteOverridesByOrg(ctx context.Context, orgID string) error {
	_, err := s.db.Collection(collOverrides).DeleteMany(ctx, bson.M{"org_id": orgID})
	if err != nil {
		return wrapErr(fmt.Sprintf("delete overrides for org %s", orgID), err)
	}
	return nil
}
