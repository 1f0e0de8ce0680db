// Package cache keeps short-lived copies of show availability in Redis.
// The reservation engine invalidates a show's entry after every commit, so
// readers see at most one TTL of staleness on a racing read.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-show-booking/internal/model"
)

// Availability is the cached view of a show's capacity.
type Availability struct {
	ShowID      uint64 `json:"show_id"`
	TotalSeats  int    `json:"total_seats"`
	BookedSeats int    `json:"booked_seats"`
	Available   int    `json:"available"`
}

func FromShow(s model.Show) Availability {
	return Availability{ShowID: s.ID, TotalSeats: s.TotalSeats, BookedSeats: s.BookedSeats, Available: s.Available()}
}

type AvailabilityCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewAvailabilityCache(rdb redis.Cmdable, ttl time.Duration) *AvailabilityCache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &AvailabilityCache{rdb: rdb, ttl: ttl, prefix: "avail:show:"}
}

func (c *AvailabilityCache) key(showID uint64) string {
	return fmt.Sprintf("%s%d", c.prefix, showID)
}

// Get returns the cached entry; ok is false on a miss.
func (c *AvailabilityCache) Get(ctx context.Context, showID uint64) (a Availability, ok bool, err error) {
	raw, err := c.rdb.Get(ctx, c.key(showID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Availability{}, false, nil
	}
	if err != nil {
		return Availability{}, false, err
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return Availability{}, false, err
	}
	return a, true, nil
}

func (c *AvailabilityCache) Set(ctx context.Context, a Availability) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(a.ShowID), raw, c.ttl).Err()
}

func (c *AvailabilityCache) Invalidate(ctx context.Context, showID uint64) error {
	return c.rdb.Del(ctx, c.key(showID)).Err()
}
