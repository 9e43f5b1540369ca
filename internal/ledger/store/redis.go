package store

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"proofpals/pkg/platform/sentinel"
)

var reserveDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "proofpals_key_image_reserve_duration_ms",
	Help:    "Latency of key image reservations in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

const keyImagePrefix = "kil:"

// Redis implements the ledger on Redis SETNX: the conditional insert is
// atomic server-side, which gives the per-key-image linearizability the
// contract requires across engine instances.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Reserve(ctx context.Context, ringID string, keyImage []byte) (bool, error) {
	start := time.Now()
	defer func() {
		reserveDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	key := keyImagePrefix + ledgerKey(ringID, keyImage)
	// Key images never expire: a spent credential stays spent.
	ok, err := s.client.SetNX(ctx, key, "1", 0).Result()
	if err != nil {
		return false, fmt.Errorf("reserve key image: %w: %w", sentinel.ErrUnavailable, err)
	}
	return ok, nil
}
