package domain

import (
	"context"
	"time"
)

// Snapshot is one platform's listing as fetched at FetchedAt.
type Snapshot struct {
	Platform  Platform       `json:"platform"`
	Records   []MarketRecord `json:"records"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// SnapshotCache keeps the last good listing per platform so a failed fetch
// can fall back to it.
type SnapshotCache interface {
	Put(ctx context.Context, snap Snapshot) error
	Get(ctx context.Context, platform Platform) (Snapshot, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
