package openstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	openbilling "github.com/openbilling/openbilling/go"
)

// ============================================================================
// Discovery
// ============================================================================

// ProberConfig configures the registry-backed prober.
type ProberConfig struct {
	// RegistryURL is the base URL of the open-store registry.
	RegistryURL string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *http.Client

	// Timeout for registry requests (optional, defaults to
	// DefaultRequestTimeout). Ignored when HTTPClient is set.
	Timeout time.Duration

	// ValidateResponses enables JSON-schema validation of the registry
	// response.
	ValidateResponses bool
}

// HTTPProber discovers store services from a registry endpoint. The
// registry's ordering is preserved; it is the discovery order the
// orchestrator walks.
type HTTPProber struct {
	registryURL string
	httpClient  *http.Client
	validate    bool
}

var _ openbilling.Prober = (*HTTPProber)(nil)

// NewHTTPProber creates a prober against the given registry.
func NewHTTPProber(config *ProberConfig) *HTTPProber {
	if config == nil {
		config = &ProberConfig{}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = DefaultRequestTimeout
		}
		httpClient = &http.Client{
			Timeout: timeout,
		}
	}

	return &HTTPProber{
		registryURL: config.RegistryURL,
		httpClient:  httpClient,
		validate:    config.ValidateResponses,
	}
}

// QueryServices fetches the registry's service list.
func (p *HTTPProber) QueryServices(ctx context.Context) ([]openbilling.ServiceDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.registryURL+"/services", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry request: %w", err)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry request failed (%d): %s", resp.StatusCode, string(body))
	}

	if p.validate {
		if err := validateResponse(servicesResponseSchema, body); err != nil {
			return nil, fmt.Errorf("registry response rejected: %w", err)
		}
	}

	var services servicesResponse
	if err := json.Unmarshal(body, &services); err != nil {
		return nil, fmt.Errorf("failed to decode registry response: %w", err)
	}
	return services.Services, nil
}

// StaticProber serves a fixed service list, for deployments without a
// registry.
type StaticProber struct {
	services []openbilling.ServiceDescriptor
}

var _ openbilling.Prober = (*StaticProber)(nil)

// NewStaticProber creates a prober over a fixed list. The given order is the
// discovery order.
func NewStaticProber(services []openbilling.ServiceDescriptor) *StaticProber {
	out := make([]openbilling.ServiceDescriptor, len(services))
	copy(out, services)
	return &StaticProber{services: out}
}

func (p *StaticProber) QueryServices(ctx context.Context) ([]openbilling.ServiceDescriptor, error) {
	out := make([]openbilling.ServiceDescriptor, len(p.services))
	copy(out, p.services)
	return out, nil
}

// ============================================================================
// Binding
// ============================================================================

// BinderConfig configures the HTTP service binder.
type BinderConfig struct {
	// AppPackage identifies the calling application to bound stores.
	AppPackage string

	// HTTPClient is shared by every bound service (optional).
	HTTPClient *http.Client

	// Timeout for store requests (optional, defaults to
	// DefaultRequestTimeout). Ignored when HTTPClient is set.
	Timeout time.Duration

	// ValidateResponses enables JSON-schema validation of store responses.
	ValidateResponses bool
}

// HTTPBinder connects discovered service descriptors to live store
// services. A bind performs one round trip so that unreachable stores fail
// here, inside the orchestrator's bind timeout, rather than later.
type HTTPBinder struct {
	config BinderConfig
}

var _ openbilling.Binder = (*HTTPBinder)(nil)

// NewHTTPBinder creates a binder.
func NewHTTPBinder(config *BinderConfig) *HTTPBinder {
	if config == nil {
		config = &BinderConfig{}
	}
	return &HTTPBinder{config: *config}
}

// Bind connects to the descriptor's endpoint and verifies it answers.
func (b *HTTPBinder) Bind(ctx context.Context, desc openbilling.ServiceDescriptor) (openbilling.OpenStoreService, error) {
	if desc.Endpoint == "" {
		return nil, fmt.Errorf("service %s has no endpoint", desc.Package)
	}

	svc := NewService(&ServiceConfig{
		Endpoint:          desc.Endpoint,
		AppPackage:        b.config.AppPackage,
		HTTPClient:        b.config.HTTPClient,
		Timeout:           b.config.Timeout,
		ValidateResponses: b.config.ValidateResponses,
	})

	// One round trip proves the endpoint is alive and speaks the contract.
	if _, err := svc.ProviderName(ctx); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("bind to %s failed: %w", desc.Package, err)
	}
	return svc, nil
}
