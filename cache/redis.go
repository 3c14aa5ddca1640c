package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/workshophq/gatekeep/snapshot"
)

// DefaultRedisTTL bounds how long a snapshot lives in Redis without a
// refresh.
const DefaultRedisTTL = 15 * time.Minute

type redisEntry struct {
	Epoch    uint64             `json:"epoch"`
	Snapshot *snapshot.Snapshot `json:"snapshot"`
}

// Redis is a snapshot cache backed by a Redis server, for deployments
// running multiple application instances against one authorization state.
//
// Every backend failure is treated as a miss so a Redis outage degrades
// check latency, never correctness.
type Redis struct {
	client    redis.UniversalClient
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

// RedisOption configures a Redis cache.
type RedisOption func(*Redis)

// WithTTL sets the expiry applied to cached snapshots.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		r.ttl = ttl
	}
}

// WithKeyPrefix sets the key namespace. Defaults to "gatekeep".
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.keyPrefix = prefix
	}
}

// WithRedisLogger sets the logger for degraded-mode warnings.
func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(r *Redis) {
		r.logger = logger
	}
}

// NewRedis creates a Redis-backed snapshot cache on an existing client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client:    client,
		ttl:       DefaultRedisTTL,
		keyPrefix: "gatekeep",
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

func (r *Redis) snapKey(orgID, userID string) string {
	return fmt.Sprintf("%s:snap:%s:%s", r.keyPrefix, orgID, userID)
}

func (r *Redis) epochKey(orgID string) string {
	return fmt.Sprintf("%s:epoch:%s", r.keyPrefix, orgID)
}

func (r *Redis) currentEpoch(ctx context.Context, orgID string) (uint64, error) {
	val, err := r.client.Get(ctx, r.epochKey(orgID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	epoch, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cache: parse epoch %q: %w", val, err)
	}
	return epoch, nil
}

// Get returns the cached snapshot for a user. Backend errors and entries
// from a superseded epoch read as misses.
func (r *Redis) Get(ctx context.Context, orgID, userID string) (*snapshot.Snapshot, bool) {
	raw, err := r.client.Get(ctx, r.snapKey(orgID, userID)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		r.logger.Warn("snapshot cache read failed",
			slog.String("org_id", orgID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	var e redisEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		r.logger.Warn("snapshot cache entry corrupt",
			slog.String("org_id", orgID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	epoch, err := r.currentEpoch(ctx, orgID)
	if err != nil {
		r.logger.Warn("snapshot cache epoch read failed",
			slog.String("org_id", orgID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if e.Epoch < epoch || e.Snapshot == nil {
		return nil, false
	}
	return e.Snapshot, true
}

// Put replaces the cached snapshot for a user.
func (r *Redis) Put(ctx context.Context, orgID, userID string, snap *snapshot.Snapshot) {
	epoch, err := r.currentEpoch(ctx, orgID)
	if err != nil {
		r.logger.Warn("snapshot cache epoch read failed",
			slog.String("org_id", orgID),
			slog.String("error", err.Error()),
		)
		return
	}

	raw, err := json.Marshal(redisEntry{Epoch: epoch, Snapshot: snap})
	if err != nil {
		r.logger.Warn("snapshot cache encode failed",
			slog.String("org_id", orgID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := r.client.Set(ctx, r.snapKey(orgID, userID), raw, r.ttl).Err(); err != nil {
		r.logger.Warn("snapshot cache write failed",
			slog.String("org_id", orgID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// Invalidate drops the cached snapshot for one user.
func (r *Redis) Invalidate(ctx context.Context, orgID, userID string) {
	if err := r.client.Del(ctx, r.snapKey(orgID, userID)).Err(); err != nil {
		r.logger.Warn("snapshot cache delete failed",
			slog.String("org_id", orgID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// InvalidateOrg bumps the organization's epoch. Snapshots written under the
// old epoch read as misses from then on.
func (r *Redis) InvalidateOrg(ctx context.Context, orgID string) {
	if err := r.client.Incr(ctx, r.epochKey(orgID)).Err(); err != nil {
		r.logger.Warn("snapshot cache org invalidation failed",
			slog.String("org_id", orgID),
			slog.String("error", err.Error()),
		)
	}
}

// InvalidateAll drops every cached snapshot and epoch counter in this
// cache's namespace.
func (r *Redis) InvalidateAll(ctx context.Context) {
	var cursor uint64
	pattern := r.keyPrefix + ":*"
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 512).Result()
		if err != nil {
			r.logger.Warn("snapshot cache scan failed",
				slog.String("error", err.Error()),
			)
			return
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				r.logger.Warn("snapshot cache delete failed",
					slog.String("error", err.Error()),
				)
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
