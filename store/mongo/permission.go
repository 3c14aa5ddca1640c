package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/workshophq/gatekeep/id"
	"github.com/workshophq/gatekeep/permission"
)

type permissionDoc struct {
	ID          string    `bson:"_id"`
	OrgID       string    `bson:"org_id"`
	Key         string    `bson:"key"`
	Resource    string    `bson:"resource"`
	Action      string    `bson:"action"`
	Description string    `bson:"description"`
	IsActive    bool      `bson:"is_active"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func toPermissionDoc(p *permission.Permission) permissionDoc {
	return permissionDoc{
		ID:          p.ID.String(),
		OrgID:       p.OrgID,
		Key:         p.Key,
		Resource:    p.Resource,
		Action:      p.Action,
		Description: p.Description,
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func fromPermissionDoc(d permissionDoc) (*permission.Permission, error) {
	pid, err := id.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("corrupt permission id %q: %w", d.ID, err)
	}
	return &permission.Permission{
		ID:          pid,
		OrgID:       d.OrgID,
		Key:         d.Key,
		Resource:    d.Resource,
		Action:      d.Action,
		Description: d.Description,
		IsActive:    d.IsActive,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

// CreatePermission persists a new permission.
func (s *Store) CreatePermission(ctx context.Context, p *permission.Permission) error {
	_, err := s.db.Collection(collPermissions).InsertOne(ctx, toPermissionDoc(p))
	if err != nil {
		return wrapErr(fmt.Sprintf("create permission %q", p.Key), err)
	}
	return nil
}

// GetPermission retrieves a permission by ID.
func (s *Store) GetPermission(ctx context.Context, permID id.PermissionID) (*permission.Permission, error) {
	var d permissionDoc
	err := s.db.Collection(collPermissions).FindOne(ctx, bson.M{"_id": permID.String()}).Decode(&d)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get permission %s", permID), err)
	}
	return fromPermissionDoc(d)
}

// GetPermissionByKey retrieves a permission by organization and key.
func (s *Store) GetPermissionByKey(ctx context.Context, orgID, key string) (*permission.Permission, error) {
	var d permissionDoc
	err := s.db.Collection(collPermissions).FindOne(ctx, bson.M{"org_id": orgID, "key": key}).Decode(&d)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get permission %q", key), err)
	}
	return fromPermissionDoc(d)
}

// UpdatePermission persists changes to a permission.
func (s *Store) UpdatePermission(ctx context.Context, p *permission.Permission) error {
	res, err := s.db.Collection(collPermissions).ReplaceOne(ctx,
		bson.M{"_id": p.ID.String()}, toPermissionDoc(p))
	if err != nil {
		return wrapErr(fmt.Sprintf("update permission %s", p.ID), err)
	}
	if res.MatchedCount == 0 {
		return wrapErr(fmt.Sprintf("update permission %s", p.ID), errNoDocuments())
	}
	return nil
}

// ListPermissions returns permissions matching the filter, ordered by
// creation.
func (s *Store) ListPermissions(ctx context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	if filter == nil {
		filter = &permission.ListFilter{}
	}

	query := bson.M{}
	if filter.OrgID != "" {
		query["org_id"] = filter.OrgID
	}
	if filter.Resource != "" {
		query["resource"] = filter.Resource
	}
	if filter.Action != "" {
		query["action"] = filter.Action
	}
	if filter.IsActive != nil {
		query["is_active"] = *filter.IsActive
	}

	cur, err := s.db.Collection(collPermissions).Find(ctx, query,
		findOpts(filter.Limit, filter.Offset, bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, wrapErr("list permissions", err)
	}
	defer cur.Close(ctx)

	var out []*permission.Permission
	for cur.Next(ctx) {
		var d permissionDoc
		if err := cur.Decode(&d); err != nil {
			return nil, wrapErr("decode permission", err)
		}
		p, err := fromPermissionDoc(d)
		if err != nil {
			return nil, wrapErr("decode permission", err)
		}
		out = append(out, p)
	}
	return out, cur.Err()
}

// ListActivePermissionKeys returns the keys of all active permissions in an
// organization.
func (s *Store) ListActivePermissionKeys(ctx context.Context, orgID string) ([]string, error) {
	cur, err := s.db.Collection(collPermissions).Find(ctx,
		bson.M{"org_id": orgID, "is_active": true},
		options.Find().SetProjection(bson.M{"key": 1}))
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("list active permission keys for org %s", orgID), err)
	}
	defer cur.Close(ctx)

	var keys []string
	for cur.Next(ctx) {
		var d struct {
			Key string `bson:"key"`
		}
		if err := cur.Decode(&d); err != nil {
			return nil, wrapErr("decode permission key", err)
		}
		keys = append(keys, d.Key)
	}
	return keys, cur.Err()
}

// ListPermissionsByRole returns all permissions granted to a role.
func (s *Store) ListPermissionsByRole(ctx context.Context, roleID id.RoleID) ([]*permission.Permission, error) {
	grants, err := s.ListRolePermissions(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if len(grants) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(grants))
	for _, pid := range grants {
		ids = append(ids, pid.String())
	}

	cur, err := s.db.Collection(collPermissions).Find(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		findOpts(0, 0, bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("list permissions for role %s", roleID), err)
	}
	defer cur.Close(ctx)

	var out []*permission.Permission
	for cur.Next(ctx) {
		var d permissionDoc
		if err := cur.Decode(&d); err != nil {
			return nil, wrapErr("decode permission", err)
		}
		p, err := fromPermissionDoc(d)
		if err != nil {
			return nil, wrapErr("decode permission", err)
		}
		out = append(out, p)
	}
	return out, cur.Err()
}

// DeletePermissionsByOrg removes all permissions for an organization,
// including their role grants.
func (s *Store) DeletePermissionsByOrg(ctx context.Context, orgID string) error {
	cur, err := s.db.Collection(collPermissions).Find(ctx, bson.M{"org_id": orgID},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return wrapErr(fmt.Sprintf("list permissions for org %s", orgID), err)
	}
	var ids []string
	for cur.Next(ctx) {
		var d struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&d); err != nil {
			cur.Close(ctx)
			return wrapErr("decode permission", err)
		}
		ids = append(ids, d.ID)
	}
	cur.Close(ctx)
	if err := cur.Err(); err != nil {
		return wrapErr("list permissions", err)
	}

	if len(ids) > 0 {
		if _, err := s.db.Collection(collRolePerms).DeleteMany(ctx,
			bson.M{"permission_id": bson.M{"$in": ids}}); err != nil {
			return wrapErr(fmt.Sprintf("delete grants for org %s", orgID), err)
		}
	}
	if _, err := s.db.Collection(collPermissions).DeleteMany(ctx, bson.M{"org_id": orgID}); err != nil {
		return wrapErr(fmt.Sprintf("delete permissions for org %s", orgID), err)
	}
	return nil
}
