package external

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/patient-similarity-server/internal/domain"
)

func startRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("Redis container not available: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	return fmt.Sprintf("redis://%s/0", endpoint)
}

func TestMutationCache_RoundTrip(t *testing.T) {
	cache, err := NewMutationCache(domain.CacheConfig{
		RedisURL:   startRedis(t),
		DefaultTTL: time.Minute,
		PoolSize:   2,
	})
	require.NoError(t, err)
	defer cache.Close()

	ctx := t.Context()
	_, found, err := cache.GetMutations(ctx, "s1", "p1")
	require.NoError(t, err)
	assert.False(t, found)

	records := []domain.MutationRecord{{GeneID: "TP53", Chromosome: "17", StartPosition: 7578406, EndPosition: 7578406, ReferenceAllele: "C", VariantAllele: "T", ProteinChange: "R175H", SampleID: "S1"}}
	require.NoError(t, cache.SetMutations(ctx, "s1", "p1", records, 0))

	got, found, err := cache.GetMutations(ctx, "s1", "p1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, records, got)

	require.NoError(t, cache.Invalidate(ctx, "s1", "p1"))
	_, found, err = cache.GetMutations(ctx, "s1", "p1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMutationCache_CorruptedEntry(t *testing.T) {
	cache, err := NewMutationCache(domain.CacheConfig{RedisURL: startRedis(t)})
	require.NoError(t, err)
	defer cache.Close()

	ctx := t.Context()
	key := cache.mutationKey("s1", "p1")
	require.NoError(t, cache.redis.Set(ctx, key, "not-json", time.Minute).Err())

	_, found, err := cache.GetMutations(ctx, "s1", "p1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, int64(0), cache.redis.Exists(ctx, key).Val(), "corrupted entry is removed")
}

func TestMutationCache_KeyIsStable(t *testing.T) {
	c := &MutationCache{}
	assert.Equal(t, c.mutationKey("s1", "p1"), c.mutationKey("s1", "p1"))
	assert.NotEqual(t, c.mutationKey("s1", "p1"), c.mutationKey("s1", "p2"))
	assert.Contains(t, c.mutationKey("s1", "p1"), mutationKeyPrefix+":")
}

func TestNewMutationCache_BadURL(t *testing.T) {
	_, err := NewMutationCache(domain.CacheConfig{RedisURL: "://bad"})
	assert.Error(t, err)
}
