package inquiries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper is the fast-path reservation for actor/content dedup. Reserve
// returns the previously reserved inquiry id when the key is already held;
// Lookup probes without reserving.
type Deduper interface {
	Reserve(ctx context.Context, key, inquiryID string, ttl time.Duration) (existingID string, reserved bool, err error)
	Lookup(ctx context.Context, key string) (inquiryID string, found bool, err error)
}

type redisDeduper struct {
	client *redis.Client
}

// NewRedisDeduper backs dedup reservations with Redis SET NX and a TTL that
// matches the dedup window.
func NewRedisDeduper(client *redis.Client) Deduper {
	return &redisDeduper{client: client}
}

func (d *redisDeduper) Reserve(ctx context.Context, key, inquiryID string, ttl time.Duration) (string, bool, error) {
	ok, err := d.client.SetNX(ctx, key, inquiryID, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("reserve dedup key: %w", err)
	}
	if ok {
		return "", true, nil
	}
	existing, err := d.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Key expired between SetNX and Get; treat as a fresh reservation.
		return "", true, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read dedup key: %w", err)
	}
	return existing, false, nil
}

func (d *redisDeduper) Lookup(ctx context.Context, key string) (string, bool, error) {
	val, err := d.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read dedup key: %w", err)
	}
	return val, true, nil
}
