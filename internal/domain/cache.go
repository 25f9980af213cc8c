package domain

import (
	"context"
	"time"
)

// AttestedPrice is the latest price a venue attested for an asset.
type AttestedPrice struct {
	Price      uint64
	AttestedAt time.Time
	TxHash     string
}

// PriceCache provides fast access to the latest attested prices, keyed by
// "<Venue>:<ASSET>".
type PriceCache interface {
	SetPrice(ctx context.Context, key string, p AttestedPrice) error
	GetPrice(ctx context.Context, key string) (AttestedPrice, error)
	GetPrices(ctx context.Context, keys []string) (map[string]AttestedPrice, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// Channel and stream names for publish events.
const (
	PublishChannel = "openoracle:published"
	PublishStream  = "openoracle:publications"
)

// EventBus broadcasts publish events and keeps a durable stream of them.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// EventSubscriber delivers payloads published on a channel until ctx ends.
type EventSubscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
