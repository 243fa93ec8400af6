package openstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	openbilling "github.com/openbilling/openbilling/go"
)

// DefaultRequestTimeout bounds store requests when no client is supplied.
const DefaultRequestTimeout = 15 * time.Second

// ErrSessionDisposed is returned by session operations after Dispose.
var ErrSessionDisposed = errors.New("openstore: session is disposed")

// ServiceConfig configures a bound store service.
type ServiceConfig struct {
	// Endpoint is the base URL of the store's billing service.
	Endpoint string

	// AppPackage identifies the calling application in billing requests.
	AppPackage string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *http.Client

	// Timeout for requests (optional, defaults to DefaultRequestTimeout).
	// Ignored when HTTPClient is set.
	Timeout time.Duration

	// ValidateResponses enables JSON-schema validation of store responses.
	ValidateResponses bool
}

// Service talks to one store's billing service over the HTTP binding
// contract. It implements the orchestrator's OpenStoreService.
type Service struct {
	endpoint   string
	appPackage string
	httpClient *http.Client
	validate   bool
}

var _ openbilling.OpenStoreService = (*Service)(nil)

// NewService creates a client for one store service endpoint.
func NewService(config *ServiceConfig) *Service {
	if config == nil {
		config = &ServiceConfig{}
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

	return &Service{
		endpoint:   config.Endpoint,
		appPackage: config.AppPackage,
		httpClient: httpClient,
		validate:   config.ValidateResponses,
	}
}

// ProviderName asks the store how it identifies itself.
func (s *Service) ProviderName(ctx context.Context) (string, error) {
	var resp nameResponse
	if err := s.get(ctx, "/openstore/name", nameResponseSchema, &resp); err != nil {
		return "", err
	}
	return resp.ProviderName, nil
}

// IsBillingAvailable asks whether the store can bill the given application.
func (s *Service) IsBillingAvailable(ctx context.Context, appPackage string) (bool, error) {
	path := "/openstore/billing/available?package=" + url.QueryEscape(appPackage)
	var resp availableResponse
	if err := s.get(ctx, path, availableResponseSchema, &resp); err != nil {
		return false, err
	}
	return resp.BillingAvailable, nil
}

// BillingService returns a fresh session handle. Construction is local; the
// session does no I/O until its setup runs.
func (s *Service) BillingService() openbilling.BillingSession {
	return &RemoteSession{svc: s}
}

// Close releases pooled connections. The service is unusable afterwards only
// by convention; in-flight requests finish normally.
func (s *Service) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

// ============================================================================
// HTTP Plumbing
// ============================================================================

func (s *Service) get(ctx context.Context, path string, schema []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return s.do(req, schema, out)
}

func (s *Service) post(ctx context.Context, path string, payload interface{}, schema []byte, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, schema, out)
}

func (s *Service) do(req *http.Request, schema []byte, out interface{}) error {
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("store request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("store request failed (%d): %s", resp.StatusCode, string(responseBody))
	}

	if s.validate && schema != nil {
		if err := validateResponse(schema, responseBody); err != nil {
			return fmt.Errorf("store response rejected: %w", err)
		}
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("failed to decode store response: %w", err)
	}
	return nil
}

// ============================================================================
// Remote Session
// ============================================================================

// RemoteSession is a billing session backed by the store's HTTP endpoints.
// The transport has no interactive surface, so purchase flows complete
// server-side and activity results are never claimed.
type RemoteSession struct {
	svc *Service

	mu       sync.Mutex
	disposed bool
}

var _ openbilling.BillingSession = (*RemoteSession)(nil)

func (r *RemoteSession) checkDisposed() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return ErrSessionDisposed
	}
	return nil
}

// StartSetup registers the session with the store. The listener always runs,
// with a billing-unavailable result when the store cannot be reached.
func (r *RemoteSession) StartSetup(ctx context.Context, onFinished func(openbilling.Result)) {
	go func() {
		var resp setupResponse
		err := r.svc.post(ctx, "/openstore/billing/setup",
			setupRequest{Package: r.svc.appPackage}, setupResponseSchema, &resp)
		if err != nil {
			onFinished(openbilling.NewResult(openbilling.ResponseBillingUnavailable,
				fmt.Sprintf("Store setup failed: %v", err)))
			return
		}
		onFinished(toResult(resp.Result))
	}()
}

// LaunchPurchaseFlow submits the purchase and reports its outcome to the
// listener. Request codes are accepted for interface compatibility but never
// resurface, since nothing interactive happens on this transport.
func (r *RemoteSession) LaunchPurchaseFlow(ctx context.Context, sku, itemType string, requestCode int, developerPayload string, listener openbilling.PurchaseListener) error {
	if err := r.checkDisposed(); err != nil {
		return err
	}
	go func() {
		var resp purchaseResponse
		err := r.svc.post(ctx, "/openstore/billing/purchase", purchaseRequest{
			Package:          r.svc.appPackage,
			Sku:              sku,
			ItemType:         itemType,
			DeveloperPayload: developerPayload,
		}, nil, &resp)
		if err != nil {
			listener(openbilling.NewResult(openbilling.ResponseError,
				fmt.Sprintf("Purchase failed: %v", err)), nil)
			return
		}
		listener(toResult(resp.Result), resp.Purchase)
	}()
	return nil
}

// QueryInventory fetches owned purchases, optionally with SKU details.
func (r *RemoteSession) QueryInventory(ctx context.Context, querySkuDetails bool, moreItemSkus, moreSubsSkus []string) (*openbilling.Inventory, error) {
	if err := r.checkDisposed(); err != nil {
		return nil, err
	}
	var resp inventoryResponse
	err := r.svc.post(ctx, "/openstore/billing/inventory", inventoryRequest{
		Package:         r.svc.appPackage,
		QuerySkuDetails: querySkuDetails,
		ItemSkus:        moreItemSkus,
		SubsSkus:        moreSubsSkus,
	}, inventoryResponseSchema, &resp)
	if err != nil {
		return nil, err
	}
	if result := toResult(resp.Result); result.IsFailure() {
		return nil, fmt.Errorf("store inventory query failed: %s", result)
	}

	inventory := openbilling.NewInventory()
	for _, p := range resp.Purchases {
		inventory.AddPurchase(p)
	}
	for _, d := range resp.SkuDetails {
		inventory.AddSkuDetails(d)
	}
	return inventory, nil
}

// Consume redeems a one-time purchase at the store.
func (r *RemoteSession) Consume(ctx context.Context, purchase openbilling.Purchase) error {
	if err := r.checkDisposed(); err != nil {
		return err
	}
	var resp consumeResponse
	err := r.svc.post(ctx, "/openstore/billing/consume", consumeRequest{
		Package: r.svc.appPackage,
		Sku:     purchase.SKU,
		Token:   purchase.Token,
	}, nil, &resp)
	if err != nil {
		return err
	}
	if result := toResult(resp.Result); result.IsFailure() {
		return fmt.Errorf("store consume failed: %s", result)
	}
	return nil
}

// SubscriptionsSupported asks the store once per call; stores that cannot be
// reached count as unsupporting.
func (r *RemoteSession) SubscriptionsSupported() bool {
	if err := r.checkDisposed(); err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
	defer cancel()
	var resp subscriptionsResponse
	if err := r.svc.get(ctx, "/openstore/billing/subscriptions", nil, &resp); err != nil {
		return false
	}
	return resp.Supported
}

// HandleActivityResult never claims results; this transport runs no
// interactive flows.
func (r *RemoteSession) HandleActivityResult(res openbilling.ActivityResult) bool {
	return false
}

// Dispose marks the session unusable. The underlying service connection is
// owned by the Service, not the session.
func (r *RemoteSession) Dispose() {
	r.mu.Lock()
	r.disposed = true
	r.mu.Unlock()
}
