package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/workshophq/gatekeep/id"
	"github.com/workshophq/gatekeep/role"
)

type roleDoc struct {
	ID          string    `bson:"_id"`
	OrgID       string    `bson:"org_id"`
	Key         string    `bson:"key"`
	Name        string    `bson:"name"`
	Description string    `bson:"description"`
	IsSystem    bool      `bson:"is_system"`
	IsActive    bool      `bson:"is_active"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

type rolePermDoc struct {
	RoleID       string `bson:"role_id"`
	PermissionID string `bson:"permission_id"`
}

func toRoleDoc(r *role.Role) roleDoc {
	return roleDoc{
		ID:          r.ID.String(),
		OrgID:       r.OrgID,
		Key:         r.Key,
		Name:        r.Name,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func fromRoleDoc(d roleDoc) (*role.Role, error) {
	rid, err := id.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("corrupt role id %q: %w", d.ID, err)
	}
	return &role.Role{
		ID:          rid,
		OrgID:       d.OrgID,
		Key:         d.Key,
		Name:        d.Name,
		Description: d.Description,
		IsSystem:    d.IsSystem,
		IsActive:    d.IsActive,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

// CreateRole persists a new role.
func (s *Store) CreateRole(ctx context.Context, r *role.Role) error {
	_, err := s.db.Collection(collRoles).InsertOne(ctx, toRoleDoc(r))
	if err != nil {
		return wrapErr(fmt.Sprintf("create role %q", r.Key), err)
	}
	return nil
}

// GetRole retrieves a role by ID.
func (s *Store) GetRole(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	var d roleDoc
	err := s.db.Collection(collRoles).FindOne(ctx, bson.M{"_id": roleID.String()}).Decode(&d)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get role %s", roleID), err)
	}
	return fromRoleDoc(d)
}

// GetRoleByKey retrieves a role by organization and key.
func (s *Store) GetRoleByKey(ctx context.Context, orgID, key string) (*role.Role, error) {
	var d roleDoc
	err := s.db.Collection(collRoles).FindOne(ctx, bson.M{"org_id": orgID, "key": key}).Decode(&d)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get role %q", key), err)
	}
	return fromRoleDoc(d)
}

// UpdateRole persists changes to a role.
func (s *Store) UpdateRole(ctx context.Context, r *role.Role) error {
	res, err := s.db.Collection(collRoles).ReplaceOne(ctx,
		bson.M{"_id": r.ID.String()}, toRoleDoc(r))
	if err != nil {
		return wrapErr(fmt.Sprintf("update role %s", r.ID), err)
	}
	if res.MatchedCount == 0 {
		return wrapErr(fmt.Sprintf("update role %s", r.ID), errNoDocuments())
	}
	return nil
}

// DeleteRole removes a role and its grant set.
func (s *Store) DeleteRole(ctx context.Context, roleID id.RoleID) error {
	res, err := s.db.Collection(collRoles).DeleteOne(ctx, bson.M{"_id": roleID.String()})
	if err != nil {
		return wrapErr(fmt.Sprintf("delete role %s", roleID), err)
	}
	if res.DeletedCount == 0 {
		return wrapErr(fmt.Sprintf("delete role %s", roleID), errNoDocuments())
	}
	_, err = s.db.Collection(collRolePerms).DeleteMany(ctx, bson.M{"role_id": roleID.String()})
	if err != nil {
		return wrapErr(fmt.Sprintf("delete grants for role %s", roleID), err)
	}
	return nil
}

// ListRoles returns roles matching the filter, ordered by creation.
func (s *Store) ListRoles(ctx context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	if filter == nil {
		filter = &role.ListFilter{}
	}

	query := bson.M{}
	if filter.OrgID != "" {
		query["org_id"] = filter.OrgID
	}
	if filter.IsSystem != nil {
		query["is_system"] = *filter.IsSystem
	}
	if filter.IsActive != nil {
		query["is_active"] = *filter.IsActive
	}

	cur, err := s.db.Collection(collRoles).Find(ctx, query,
		findOpts(filter.Limit, filter.Offset, bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, wrapErr("list roles", err)
	}
	defer cur.Close(ctx)

	var out []*role.Role
	for cur.Next(ctx) {
		var d roleDoc
		if err := cur.Decode(&d); err != nil {
			return nil, wrapErr("decode role", err)
		}
		r, err := fromRoleDoc(d)
		if err != nil {
			return nil, wrapErr("decode role", err)
		}
		out = append(out, r)
	}
	return out, cur.Err()
}

// ListRolePermissions returns permission IDs granted to a role.
func (s *Store) ListRolePermissions(ctx context.Context, roleID id.RoleID) ([]id.PermissionID, error) {
	cur, err := s.db.Collection(collRolePerms).Find(ctx, bson.M{"role_id": roleID.String()})
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("list permissions for role %s", roleID), err)
	}
	defer cur.Close(ctx)

	var out []id.PermissionID
	for cur.Next(ctx) {
		var d rolePermDoc
		if err := cur.Decode(&d); err != nil {
			return nil, wrapErr("decode grant", err)
		}
		pid, err := id.Parse(d.PermissionID)
		if err != nil {
			return nil, wrapErr(fmt.Sprintf("corrupt permission id %q", d.PermissionID), err)
		}
		out = append(out, pid)
	}
	return out, cur.Err()
}

// AttachPermission links a permission to a role. Attaching an already
// attached permission is a no-op.
func (s *Store) AttachPermission(ctx context.Context, roleID id.RoleID, permID id.PermissionID) error {
	_, err := s.db.Collection(collRolePerms).UpdateOne(ctx,
		bson.M{"role_id": roleID.String(), "permission_id": permID.String()},
		bson.M{"$setOnInsert": rolePermDoc{RoleID: roleID.String(), PermissionID: permID.String()}},
		upsert())
	if err != nil {
		return wrapErr(fmt.Sprintf("attach permission %s to role %s", permID, roleID), err)
	}
	return nil
}

// DetachPermission removes a permission from a role.
func (s *Store) DetachPermission(ctx context.Context, roleID id.RoleID, permID id.PermissionID) error {
	_, err := s.db.Collection(collRolePerms).DeleteOne(ctx,
		bson.M{"role_id": roleID.String(), "permission_id": permID.String()})
	if err != nil {
		return wrapErr(fmt.Sprintf("detach permission %s from role %s", permID, roleID), err)
	}
	return nil
}

// SetRolePermissions replaces the whole grant set of a role.
func (s *Store) SetRolePermissions(ctx context.Context, roleID id.RoleID, permIDs []id.PermissionID) error {
	coll := s.db.Collection(collRolePerms)
	if _, err := coll.DeleteMany(ctx, bson.M{"role_id": roleID.String()}); err != nil {
		return wrapErr(fmt.Sprintf("clear permissions for role %s", roleID), err)
	}
	if len(permIDs) == 0 {
		return nil
	}
	docs := make([]any, 0, len(permIDs))
	for _, pid := range permIDs {
		docs = append(docs, rolePermDoc{RoleID: roleID.String(), PermissionID: pid.String()})
	}
	if _, err := coll.InsertMany(ctx, docs); err != nil {
		return wrapErr(fmt.Sprintf("set permissions for role %s", roleID), err)
	}
	return nil
}

// DeleteRolesByOrg removes all roles for an organization, including their
// grant sets.
func (s *Store) DeleteRolesByOrg(ctx context.Context, orgID string) error {
	cur, err := s.db.Collection(collRoles).Find(ctx, bson.M{"org_id": orgID})
	if err != nil {
		return wrapErr(fmt.Sprintf("list roles for org %s", orgID), err)
	}
	var ids []string
	for cur.Next(ctx) {
		var d roleDoc
		if err := cur.Decode(&d); err != nil {
			cur.Close(ctx)
			return wrapErr("decode role", err)
		}
		ids = append(ids, d.ID)
	}
	cur.Close(ctx)
	if err := cur.Err(); err != nil {
		return wrapErr("list roles", err)
	}

	if len(ids) > 0 {
		if _, err := s.db.Collection(collRolePerms).DeleteMany(ctx,
			bson.M{"role_id": bson.M{"$in": ids}}); err != nil {
			return wrapErr(fmt.Sprintf("delete grants for org %s", orgID), err)
		}
	}
	if _, err := s.db.Collection(collRoles).DeleteMany(ctx, bson.M{"org_id": orgID}); err != nil {
		return wrapErr(fmt.Sprintf("delete roles for org %s", orgID), err)
	}
	return nil
}
