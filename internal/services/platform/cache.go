package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brightdesk/support-service/internal/core/cache"
	"github.com/brightdesk/support-service/internal/pkg/encryption"
)

// DefaultConfigTTL is the default TTL for cached tenant configuration.
const DefaultConfigTTL = 3 * time.Minute

// CachedClient decorates a platform client with a short-lived redis
// cache. Provider credentials are encrypted before they touch the cache.
type CachedClient struct {
	inner       Client
	cacheClient cache.Client
	encryptor   encryption.Encryptor
	ttl         time.Duration
}

// CachedClientConfig holds the configuration for the cached client.
type CachedClientConfig struct {
	Inner       Client
	CacheClient cache.Client
	Encryptor   encryption.Encryptor
	TTL         time.Duration
}

// NewCachedClient creates a caching decorator around a platform client.
func NewCachedClient(cfg *CachedClientConfig) (*CachedClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Inner == nil {
		return nil, fmt.Errorf("inner client is required")
	}
	if cfg.CacheClient == nil {
		return nil, fmt.Errorf("cache client is required")
	}
	if cfg.Encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultConfigTTL
	}

	return &CachedClient{
		inner:       cfg.Inner,
		cacheClient: cfg.CacheClient,
		encryptor:   cfg.Encryptor,
		ttl:         ttl,
	}, nil
}

// cachedConfig is the encrypted-at-rest cache representation.
type cachedConfig struct {
	Config               *TenantConfig `json:"config"`
	EncryptedCredentials string        `json:"encryptedCredentials,omitempty"`
	CachedAt             time.Time     `json:"cachedAt"`
}

// GetTenantConfig returns the cached configuration when fresh, otherwise
// fetches from the platform service and refreshes the cache.
func (c *CachedClient) GetTenantConfig(ctx context.Context, tenantID string) (*TenantConfig, error) {
	key := c.cacheKey(tenantID)

	if data, err := c.cacheClient.Get(ctx, key); err == nil && data != nil {
		if cfg := c.decode(ctx, key, data); cfg != nil {
			return cfg, nil
		}
	}

	cfg, err := c.inner.GetTenantConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	c.put(ctx, key, cfg)
	return cfg, nil
}

// decode unwraps a cache entry. Corrupted or undecryptable entries are
// evicted and treated as a miss so a fresh fetch repairs the cache.
func (c *CachedClient) decode(ctx context.Context, key string, data []byte) *TenantConfig {
	var entry cachedConfig
	if err := json.Unmarshal(data, &entry); err != nil || entry.Config == nil {
		_, _ = c.cacheClient.Delete(ctx, key)
		return nil
	}

	if entry.EncryptedCredentials != "" {
		creds, err := c.encryptor.Decrypt(entry.EncryptedCredentials)
		if err != nil {
			// Key may have rotated; evict and refetch.
			_, _ = c.cacheClient.Delete(ctx, key)
			return nil
		}
		entry.Config.ProviderCredentials = string(creds)
	}

	return entry.Config
}

// put stores the configuration with encrypted credentials. Cache write
// failures are swallowed; the caller already has the fresh config.
func (c *CachedClient) put(ctx context.Context, key string, cfg *TenantConfig) {
	entry := cachedConfig{CachedAt: time.Now().UTC()}

	stripped := *cfg
	if cfg.ProviderCredentials != "" {
		encrypted, err := c.encryptor.Encrypt([]byte(cfg.ProviderCredentials))
		if err != nil {
			return
		}
		entry.EncryptedCredentials = encrypted
		stripped.ProviderCredentials = ""
	}
	entry.Config = &stripped

	data, err := json.Marshal(&entry)
	if err != nil {
		return
	}
	_ = c.cacheClient.Set(ctx, key, data, c.ttl)
}

// cacheKey generates the cache key for a tenant's configuration.
func (c *CachedClient) cacheKey(tenantID string) string {
	return "tenantcfg:" + tenantID
}
