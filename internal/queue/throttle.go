package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ThrottleClock enforces spec.md §4.4's MinTimeBetweenJobs across
// however many worker processes share one Redis instance, via a simple
// SET NX PX lease: whichever worker sets the lease first wins the next
// claim window, and the lease itself expires so a crashed worker never
// wedges the throttle open.
type ThrottleClock struct {
	client *redis.Client
	key    string
}

// NewThrottleClock builds a clock sharing client's connection. A nil
// client makes Allow a no-op that always permits. Single-worker mode
// passes no ThrottleClock to worker.New at all, and the Runtime then
// enforces MinTimeBetweenJobs locally from its own last-job time.
func NewThrottleClock(client *redis.Client) *ThrottleClock {
	return &ThrottleClock{client: client, key: "spatelier:throttle:last-claim"}
}

// Allow reports whether enough time has passed since the last permitted
// claim across the whole worker fleet, atomically recording this claim
// if so.
func (c *ThrottleClock) Allow(ctx context.Context, minInterval time.Duration) (bool, error) {
	if c.client == nil {
		return true, nil
	}
	ok, err := c.client.SetNX(ctx, c.key, "1", minInterval).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}
