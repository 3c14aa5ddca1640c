// Package mongo provides a MongoDB store implementation. Migrate creates
// the unique and lookup indexes the resolution queries depend on.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/workshophq/gatekeep/store"
)

// Collection names.
const (
	collRoles       = "roles"
	collPermissions = "permissions"
	collRolePerms   = "role_permissions"
	collAssignments = "role_assignments"
	collOverrides   = "permission_overrides"
	collCheckLogs   = "check_logs"
)

// Store is a MongoDB implementation of store.Store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to the given URI and uses the named database.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

// NewWithDatabase wraps an existing database handle.
func NewWithDatabase(db *mongo.Database) *Store {
	return &Store{client: db.Client(), db: db}
}

// Database returns the underlying database handle.
func (s *Store) Database() *mongo.Database { return s.db }

// Migrate creates all indexes. Safe to call repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collRoles: {
			{Keys: bson.D{{Key: "org_id", Value: 1}, {Key: "key", Value: 1}},
				Options: options.Index().SetUnique(true)},
		},
		collPermissions: {
			{Keys: bson.D{{Key: "org_id", Value: 1}, {Key: "key", Value: 1}},
				Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "org_id", Value: 1}, {Key: "is_active", Value: 1}}},
		},
		collRolePerms: {
			{Keys: bson.D{{Key: "role_id", Value: 1}, {Key: "permission_id", Value: 1}},
				Options: options.Index().SetUnique(true)},
		},
		collAssignments: {
			{Keys: bson.D{{Key: "org_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "role_id", Value: 1}},
				Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "role_id", Value: 1}}},
		},
		collOverrides: {
			{Keys: bson.D{{Key: "org_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "permission_key", Value: 1}},
				Options: options.Index().SetUnique(true)},
		},
		collCheckLogs: {
			{Keys: bson.D{{Key: "org_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongo: create indexes for %s: %w", coll, err)
		}
	}
	return nil
}

// Ping checks server connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects from the server.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// ListUserIDs returns every user known to an organization through an
// assignment or an override.
func (s *Store) ListUserIDs(ctx context.Context, orgID string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, coll := range []string{collAssignments, collOverrides} {
		res := s.db.Collection(coll).Distinct(ctx, "user_id", bson.M{"org_id": orgID})
		var users []string
		if err := res.Decode(&users); err != nil {
			return nil, fmt.Errorf("mongo: list users for org %s: %w", orgID, err)
		}
		for _, u := range users {
			seen[u] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	return out, nil
}

// wrapErr maps driver errors onto the store sentinels.
func wrapErr(op string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("mongo: %s: %w", op, store.ErrNotFound)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("mongo: %s: %w", op, store.ErrDuplicate)
	default:
		return fmt.Errorf("mongo: %s: %w", op, err)
	}
}

func errNoDocuments() error { return mongo.ErrNoDocuments }

func upsert() *options.UpdateOneOptionsBuilder {
	return options.UpdateOne().SetUpsert(true)
}

func findOpts(limit, offset int, sort bson.D) *options.FindOptionsBuilder {
	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts = opts.SetSkip(int64(offset))
	}
	return opts
}
