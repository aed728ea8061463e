// Package platform_test provides unit tests for the platform client cache.
package platform_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightdesk/support-service/internal/core/cache"
	"github.com/brightdesk/support-service/internal/domain/models"
	"github.com/brightdesk/support-service/internal/pkg/encryption"
	"github.com/brightdesk/support-service/internal/services/platform"
)

// memCache is an in-memory cache.Client with redis Get semantics: a miss
// returns nil, nil.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) GetCache() cache.Cache { return nil }

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.data[key]; ok {
		return append([]byte(nil), v...), nil
	}
	return nil, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = append([]byte(nil), value...)
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	delete(c.data, key)
	return ok, nil
}

func (c *memCache) Ping(ctx context.Context) error { return nil }
func (c *memCache) Close() error                   { return nil }

func (c *memCache) raw(key string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key]
}

// fakeInner counts platform fetches.
type fakeInner struct {
	mu    sync.Mutex
	cfg   *platform.TenantConfig
	calls int
}

func (f *fakeInner) GetTenantConfig(ctx context.Context, tenantID string) (*platform.TenantConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	copied := *f.cfg
	return &copied, nil
}

func (f *fakeInner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func tenantConfig() *platform.TenantConfig {
	return &platform.TenantConfig{
		TenantID:            "tenant-1",
		Plan:                models.TenantPlan{Name: "pro", MonthlyAILimit: 1000},
		AI:                  models.TenantAIConfig{TenantID: "tenant-1", Persona: "friendly"},
		ProviderCredentials: "sk-tenant-secret",
	}
}

func newCachedClient(t *testing.T, inner platform.Client, store cache.Client, enc encryption.Encryptor) *platform.CachedClient {
	t.Helper()
	client, err := platform.NewCachedClient(&platform.CachedClientConfig{
		Inner:       inner,
		CacheClient: store,
		Encryptor:   enc,
		TTL:         time.Minute,
	})
	require.NoError(t, err)
	return client
}

func TestCachedClient_FetchesOnceThenServesFromCache(t *testing.T) {
	inner := &fakeInner{cfg: tenantConfig()}
	client := newCachedClient(t, inner, newMemCache(), encryption.NewNoOpEncryptor())
	ctx := context.Background()

	first, err := client.GetTenantConfig(ctx, "tenant-1")
	require.NoError(t, err)
	second, err := client.GetTenantConfig(ctx, "tenant-1")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.callCount())
	assert.Equal(t, first.Plan, second.Plan)
}

func TestCachedClient_CredentialsEncryptedAtRest(t *testing.T) {
	key, err := encryption.GenerateKey()
	require.NoError(t, err)
	enc, err := encryption.NewAESEncryptor(key)
	require.NoError(t, err)

	store := newMemCache()
	inner := &fakeInner{cfg: tenantConfig()}
	client := newCachedClient(t, inner, store, enc)
	ctx := context.Background()

	_, err = client.GetTenantConfig(ctx, "tenant-1")
	require.NoError(t, err)

	raw := store.raw("tenantcfg:tenant-1")
	require.NotEmpty(t, raw)
	assert.NotContains(t, string(raw), "sk-tenant-secret",
		"credentials must never hit the cache in the clear")

	// The cached read restores the decrypted credentials.
	cfg, err := client.GetTenantConfig(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "sk-tenant-secret", cfg.ProviderCredentials)
	assert.Equal(t, 1, inner.callCount())
}

func TestCachedClient_EvictsCorruptEntries(t *testing.T) {
	store := newMemCache()
	inner := &fakeInner{cfg: tenantConfig()}
	client := newCachedClient(t, inner, store, encryption.NewNoOpEncryptor())
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "tenantcfg:tenant-1", []byte("{corrupt"), time.Minute))

	cfg, err := client.GetTenantConfig(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", cfg.TenantID)
	assert.Equal(t, 1, inner.callCount(), "corrupt entry falls through to a fresh fetch")

	// The fetch repaired the cache.
	_, err = client.GetTenantConfig(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.callCount())
}

func TestCachedClient_RefetchesAfterKeyRotation(t *testing.T) {
	keyA, err := encryption.GenerateKey()
	require.NoError(t, err)
	keyB, err := encryption.GenerateKey()
	require.NoError(t, err)
	encA, err := encryption.NewAESEncryptor(keyA)
	require.NoError(t, err)
	encB, err := encryption.NewAESEncryptor(keyB)
	require.NoError(t, err)

	store := newMemCache()
	inner := &fakeInner{cfg: tenantConfig()}
	ctx := context.Background()

	oldClient := newCachedClient(t, inner, store, encA)
	_, err = oldClient.GetTenantConfig(ctx, "tenant-1")
	require.NoError(t, err)

	// After rotation the cached credentials cannot be decrypted; the
	// entry is evicted and refetched rather than served broken.
	newClient := newCachedClient(t, inner, store, encB)
	cfg, err := newClient.GetTenantConfig(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "sk-tenant-secret", cfg.ProviderCredentials)
	assert.Equal(t, 2, inner.callCount())
}

func TestNewCachedClient_Validation(t *testing.T) {
	inner := &fakeInner{cfg: tenantConfig()}
	store := newMemCache()
	enc := encryption.NewNoOpEncryptor()

	_, err := platform.NewCachedClient(nil)
	assert.Error(t, err)

	_, err = platform.NewCachedClient(&platform.CachedClientConfig{CacheClient: store, Encryptor: enc})
	assert.Error(t, err)

	_, err = platform.NewCachedClient(&platform.CachedClientConfig{Inner: inner, Encryptor: enc})
	assert.Error(t, err)

	_, err = platform.NewCachedClient(&platform.CachedClientConfig{Inner: inner, CacheClient: store})
	assert.Error(t, err)
}
