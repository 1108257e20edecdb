package external

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/patient-similarity-server/internal/domain"
)

const mutationKeyPrefix = "psim:mutations"

// MutationCache wraps a Redis client caching mutation-source responses per patient.
type MutationCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewMutationCache creates a new cache client and checks the connection
func NewMutationCache(config domain.CacheConfig) (*MutationCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := config.DefaultTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &MutationCache{
		redis:      client,
		defaultTTL: ttl,
	}, nil
}

// CachedMutations represents cached mutation calls with metadata
type CachedMutations struct {
	Data      []domain.MutationRecord `json:"data"`
	CachedAt  time.Time               `json:"cached_at"`
	ExpiresAt time.Time               `json:"expires_at"`
}

// GetMutations retrieves cached mutation calls. The bool reports a hit.
func (c *MutationCache) GetMutations(ctx context.Context, studyID, patientID string) ([]domain.MutationRecord, bool, error) {
	key := c.mutationKey(studyID, patientID)

	val, err := c.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get mutation cache: %w", err)
	}

	var cached CachedMutations
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// corrupted entry
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	if cached.Data == nil {
		cached.Data = []domain.MutationRecord{}
	}
	return cached.Data, true, nil
}

// SetMutations caches mutation calls; a zero ttl uses the default.
func (c *MutationCache) SetMutations(ctx context.Context, studyID, patientID string, data []domain.MutationRecord, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	now := time.Now()
	cached := CachedMutations{
		Data:      data,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal mutation cache data: %w", err)
	}

	return c.redis.Set(ctx, c.mutationKey(studyID, patientID), jsonData, ttl).Err()
}

// Invalidate removes the cached calls of one patient.
func (c *MutationCache) Invalidate(ctx context.Context, studyID, patientID string) error {
	return c.redis.Del(ctx, c.mutationKey(studyID, patientID)).Err()
}

// Close closes the underlying Redis client
func (c *MutationCache) Close() error {
	return c.redis.Close()
}

func (c *MutationCache) mutationKey(studyID, patientID string) string {
	hash := sha256.Sum256([]byte(studyID + ":" + patientID))
	return fmt.Sprintf("%s:%x", mutationKeyPrefix, hash[:8])
}
