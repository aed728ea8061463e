// Package platform provides the platform service client. The platform
// service owns tenant plans, AI configuration, and agent profiles.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brightdesk/support-service/internal/domain/models"
)

// TenantConfig is the full per-tenant configuration bundle.
type TenantConfig struct {
	TenantID string                `json:"tenantId"`
	Plan     models.TenantPlan     `json:"plan"`
	AI       models.TenantAIConfig `json:"ai"`
	Agents   []models.AgentProfile `json:"agents"`

	// ProviderCredentials is the completion provider API key for tenants
	// that bring their own. Encrypted at rest when cached.
	ProviderCredentials string `json:"providerCredentials,omitempty"`
}

// AgentByID returns the profile for the given agent, if present.
func (c *TenantConfig) AgentByID(agentID string) (*models.AgentProfile, bool) {
	for i := range c.Agents {
		if c.Agents[i].ID == agentID {
			return &c.Agents[i], true
		}
	}
	return nil, false
}

// Client defines the interface for the platform service client.
type Client interface {
	// GetTenantConfig retrieves the configuration bundle for a tenant.
	GetTenantConfig(ctx context.Context, tenantID string) (*TenantConfig, error)
}

// ClientConfig holds the configuration for the platform client.
type ClientConfig struct {
	BaseURL    string
	ServiceKey string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// client implements the Client interface over HTTP.
type client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

// NewClient creates a new platform service client.
func NewClient(cfg *ClientConfig) Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &client{
		baseURL:    cfg.BaseURL,
		serviceKey: cfg.ServiceKey,
		httpClient: httpClient,
	}
}

// GetTenantConfig retrieves the configuration bundle for a tenant.
func (c *client) GetTenantConfig(ctx context.Context, tenantID string) (*TenantConfig, error) {
	url := fmt.Sprintf("%s/api/v1/platform/tenants/%s/config", c.baseURL, tenantID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.serviceKey != "" {
		req.Header.Set("X-Service-Key", c.serviceKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call platform service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("platform service error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var cfg TenantConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode tenant config: %w", err)
	}

	return &cfg, nil
}
