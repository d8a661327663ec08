package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// SnapshotCache implements domain.SnapshotCache with one JSON string per
// platform.
//
// Key schema:
//
//	snapshot:{platform} - JSON-encoded domain.Snapshot
type SnapshotCache struct {
	c   *Client
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache; snapshots expire after ttl.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{c: c, ttl: ttl}
}

func (sc *SnapshotCache) key(p domain.Platform) string {
	return sc.c.Key("snapshot:" + string(p))
}

// Put stores the snapshot, replacing the previous one.
func (sc *SnapshotCache) Put(ctx context.Context, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.Platform, err)
	}
	if err := sc.c.rdb.Set(ctx, sc.key(snap.Platform), data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: put snapshot %s: %w", snap.Platform, err)
	}
	return nil
}

// Get returns the last stored snapshot, or domain.ErrNotFound.
func (sc *SnapshotCache) Get(ctx context.Context, p domain.Platform) (domain.Snapshot, error) {
	data, err := sc.c.rdb.Get(ctx, sc.key(p)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Snapshot{}, fmt.Errorf("redis: snapshot %s: %w", p, domain.ErrNotFound)
		}
		return domain.Snapshot{}, fmt.Errorf("redis: get snapshot %s: %w", p, err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("redis: unmarshal snapshot %s: %w", p, err)
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
