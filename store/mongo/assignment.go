package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/workshophq/gatekeep/assignment"
	"github.com/workshophq/gatekeep/id"
	"github.com/workshophq/gatekeep/role"
)

type assignmentDoc struct {
	ID        string    `bson:"_id"`
	OrgID     string    `bson:"org_id"`
	RoleID    string    `bson:"role_id"`
	UserID    string    `bson:"user_id"`
	GrantedBy string    `bson:"granted_by"`
	CreatedAt time.Time `bson:"created_at"`
}

func toAssignmentDoc(a *assignment.Assignment) assignmentDoc {
	return assignmentDoc{
		ID:        a.ID.String(),
		OrgID:     a.OrgID,
		RoleID:    a.RoleID.String(),
		UserID:    a.UserID,
		GrantedBy: a.GrantedBy,
		CreatedAt: a.CreatedAt,
	}
}

func fromAssignmentDoc(d assignmentDoc) (*assignment.Assignment, error) {
	aid, err := id.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("corrupt assignment id %q: %w", d.ID, err)
	}
	rid, err := id.Parse(d.RoleID)
	if err != nil {
		return nil, fmt.Errorf("corrupt role id %q: %w", d.RoleID, err)
	}
	return &assignment.Assignment{
		ID:        aid,
		OrgID:     d.OrgID,
		RoleID:    rid,
		UserID:    d.UserID,
		GrantedBy: d.GrantedBy,
		CreatedAt: d.CreatedAt,
	}, nil
}

// CreateAssignment persists a new assignment. The (user, role) pair is
// unique.
func (s *Store) CreateAssignment(ctx context.Context, a *assignment.Assignment) error {
	_, err := s.db.Collection(collAssignments).InsertOne(ctx, toAssignmentDoc(a))
	if err != nil {
		return wrapErr(fmt.Sprintf("assign role %s to user %s", a.RoleID, a.UserID), err)
	}
	return nil
}

// GetAssignment retrieves an assignment by ID.
func (s *Store) GetAssignment(ctx context.Context, assID id.AssignmentID) (*assignment.Assignment, error) {
	var d assignmentDoc
	err := s.db.Collection(collAssignments).FindOne(ctx, bson.M{"_id": assID.String()}).Decode(&d)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get assignment %s", assID), err)
	}
	return fromAssignmentDoc(d)
}

// DeleteAssignment removes an assignment by ID.
func (s *Store) DeleteAssignment(ctx context.Context, assID id.AssignmentID) error {
	res, err := s.db.Collection(collAssignments).DeleteOne(ctx, bson.M{"_id": assID.String()})
	if err != nil {
		return wrapErr(fmt.Sprintf("delete assignment %s", assID), err)
	}
	if res.DeletedCount == 0 {
		return wrapErr(fmt.Sprintf("delete assignment %s", assID), errNoDocuments())
	}
	return nil
}

// DeleteAssignmentByUserRole removes the assignment binding a user to a
// role.
func (s *Store) DeleteAssignmentByUserRole(ctx context.Context, orgID, userID string, roleID id.RoleID) error {
	res, err := s.db.Collection(collAssignments).DeleteOne(ctx,
		bson.M{"org_id": orgID, "user_id": userID, "role_id": roleID.String()})
	if err != nil {
		return wrapErr(fmt.Sprintf("delete assignment of role %s to user %s", roleID, userID), err)
	}
	if res.DeletedCount == 0 {
		return wrapErr(fmt.Sprintf("delete assignment of role %s to user %s", roleID, userID), errNoDocuments())
	}
	return nil
}

// ListAssignments returns assignments matching the filter, ordered by
// creation.
func (s *Store) ListAssignments(ctx context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	if filter == nil {
		filter = &assignment.ListFilter{}
	}

	query := bson.M{}
	if filter.OrgID != "" {
		query["org_id"] = filter.OrgID
	}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	if filter.RoleID != nil {
		query["role_id"] = filter.RoleID.String()
	}

	cur, err := s.db.Collection(collAssignments).Find(ctx, query,
		findOpts(filter.Limit, filter.Offset, bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, wrapErr("list assignments", err)
	}
	defer cur.Close(ctx)

	var out []*assignment.Assignment
	for cur.Next(ctx) {
		var d assignmentDoc
		if err := cur.Decode(&d); err != nil {
			return nil, wrapErr("decode assignment", err)
		}
		a, err := fromAssignmentDoc(d)
		if err != nil {
			return nil, wrapErr("decode assignment", err)
		}
		out = append(out, a)
	}
	return out, cur.Err()
}

// ListRolesForUser returns role IDs assigned to a user.
func (s *Store) ListRolesForUser(ctx context.Context, orgID, userID string) ([]id.RoleID, error) {
	cur, err := s.db.Collection(collAssignments).Find(ctx,
		bson.M{"org_id": orgID, "user_id": userID})
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("list roles for user %s", userID), err)
	}
	defer cur.Close(ctx)

	var out []id.RoleID
	for cur.Next(ctx) {
		var d assignmentDoc
		if err := cur.Decode(&d); err != nil {
			return nil, wrapErr("decode assignment", err)
		}
		rid, err := id.Parse(d.RoleID)
		if err != nil {
			return nil, wrapErr(fmt.Sprintf("corrupt role id %q", d.RoleID), err)
		}
		out = append(out, rid)
	}
	return out, cur.Err()
}

// ListActiveRolesForUser returns the active role entities held by a user.
func (s *Store) ListActiveRolesForUser(ctx context.Context, orgID, userID string) ([]*role.Role, error) {
	roleIDs, err := s.ListRolesForUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if len(roleIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(roleIDs))
	for _, rid := range roleIDs {
		ids = append(ids, rid.String())
	}

	cur, err := s.db.Collection(collRoles).Find(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "org_id": orgID, "is_active": true},
		findOpts(0, 0, bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("list active roles for user %s", userID), err)
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

// ListUsersForRole returns the user IDs of every holder of a role.
func (s *Store) ListUsersForRole(ctx context.Context, roleID id.RoleID) ([]string, error) {
	res := s.db.Collection(collAssignments).Distinct(ctx, "user_id",
		bson.M{"role_id": roleID.String()})
	var users []string
	if err := res.Decode(&users); err != nil {
		return nil, wrapErr(fmt.Sprintf("list users for role %s", roleID), err)
	}
	return users, nil
}

// DeleteAssignmentsByUser removes all assignments for a user.
func (s *Store) DeleteAssignmentsByUser(ctx context.Context, orgID, userID string) error {
	_, err := s.db.Collection(collAssignments).DeleteMany(ctx,
		bson.M{"org_id": orgID, "user_id": userID})
	if err != nil {
		return wrapErr(fmt.Sprintf("delete assignments for user %s", userID), err)
	}
	return nil
}

// DeleteAssignmentsByRole removes all assignments for a role.
func (s *Store) DeleteAssignmentsByRole(ctx context.Context, roleID id.RoleID) error {
	_, err := s.db.Collection(collAssignments).DeleteMany(ctx,
		bson.M{"role_id": roleID.String()})
	if err != nil {
		return wrapErr(fmt.Sprintf("delete assignments for role %s", roleID), err)
	}
	return nil
}

// DeleteAssignmentsByOrg removes all assignments for an organization.
func (s *Store) DeleteAssignmentsByOrg(ctx context.Context, orgID string) error {
	_, err := s.db.Collection(collAssignments).DeleteMany(ctx, bson.M{"org_id": orgID})
	if err != nil {
		return wrapErr(fmt.Sprintf("delete assignments for org %s", orgID), err)
	}
	return nil
}
