package openstore

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	openbilling "github.com/openbilling/openbilling/go"
)

// ============================================================================
// Store Server
// ============================================================================

// ServerOptions configures the store server.
type ServerOptions struct {
	Logger zerolog.Logger
}

// ServerOption customizes ServerOptions.
type ServerOption func(*ServerOptions)

// WithServerLogger sets the server's logger.
func WithServerLogger(log zerolog.Logger) ServerOption {
	return func(o *ServerOptions) {
		o.Logger = log
	}
}

// Server exposes any Provider under the HTTP binding contract, so a store
// only has to implement the Provider interface to become discoverable. One
// billing session is kept per calling application package.
type Server struct {
	provider openbilling.Provider
	log      zerolog.Logger

	mu       sync.Mutex
	sessions map[string]openbilling.BillingSession
}

// NewServer wraps a provider.
func NewServer(provider openbilling.Provider, opts ...ServerOption) *Server {
	options := ServerOptions{Logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&options)
	}
	return &Server{
		provider: provider,
		log:      options.Logger,
		sessions: make(map[string]openbilling.BillingSession),
	}
}

// Router builds the gin engine with every contract route mounted.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/openstore")
	api.GET("/name", s.handleName)
	api.GET("/billing/available", s.handleAvailable)
	api.GET("/billing/subscriptions", s.handleSubscriptions)
	api.POST("/billing/setup", s.handleSetup)
	api.POST("/billing/inventory", s.handleInventory)
	api.POST("/billing/purchase", s.handlePurchase)
	api.POST("/billing/consume", s.handleConsume)
	return router
}

func (s *Server) handleName(c *gin.Context) {
	c.JSON(http.StatusOK, nameResponse{ProviderName: s.provider.ProviderName()})
}

func (s *Server) handleAvailable(c *gin.Context) {
	appPackage := c.Query("package")
	if appPackage == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "package query parameter is required"})
		return
	}
	available, err := s.provider.IsBillingAvailable(c.Request.Context(), appPackage)
	if err != nil {
		s.log.Warn().Err(err).Str("package", appPackage).Msg("availability check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, availableResponse{BillingAvailable: available})
}

func (s *Server) handleSetup(c *gin.Context) {
	var req setupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Package == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "package is required"})
		return
	}

	s.mu.Lock()
	session, ok := s.sessions[req.Package]
	if !ok {
		session = s.provider.BillingSession()
	}
	s.mu.Unlock()

	done := make(chan openbilling.Result, 1)
	session.StartSetup(c.Request.Context(), func(res openbilling.Result) {
		done <- res
	})
	result := <-done

	if result.IsSuccess() {
		s.mu.Lock()
		// Two first-time setups can race for the same package; the first
		// stored session wins and the duplicate is destroyed.
		if prev, established := s.sessions[req.Package]; established && prev != session {
			s.mu.Unlock()
			session.Dispose()
		} else {
			s.sessions[req.Package] = session
			s.mu.Unlock()
		}
	}
	s.log.Debug().Str("package", req.Package).Str("result", result.String()).Msg("session setup")
	c.JSON(http.StatusOK, setupResponse{Result: fromResult(result)})
}

// sessionFor returns the caller's established session, or nil.
func (s *Server) sessionFor(appPackage string) openbilling.BillingSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[appPackage]
}

func notSetUpResult() resultPayload {
	return resultPayload{
		Response: openbilling.ResponseError,
		Message:  "billing session has not been set up",
	}
}

func (s *Server) handleSubscriptions(c *gin.Context) {
	// Any established session can answer; support does not vary per caller.
	s.mu.Lock()
	var session openbilling.BillingSession
	for _, sess := range s.sessions {
		session = sess
		break
	}
	s.mu.Unlock()

	supported := false
	if session != nil {
		supported = session.SubscriptionsSupported()
	}
	c.JSON(http.StatusOK, subscriptionsResponse{Supported: supported})
}

func (s *Server) handleInventory(c *gin.Context) {
	var req inventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	session := s.sessionFor(req.Package)
	if session == nil {
		c.JSON(http.StatusOK, inventoryResponse{Result: notSetUpResult()})
		return
	}

	inventory, err := session.QueryInventory(c.Request.Context(), req.QuerySkuDetails, req.ItemSkus, req.SubsSkus)
	if err != nil {
		s.log.Warn().Err(err).Str("package", req.Package).Msg("inventory query failed")
		c.JSON(http.StatusOK, inventoryResponse{Result: resultPayload{
			Response: openbilling.ResponseError,
			Message:  err.Error(),
		}})
		return
	}
	c.JSON(http.StatusOK, inventoryResponse{
		Result:     resultPayload{Response: openbilling.ResponseOK},
		Purchases:  inventory.AllPurchases(),
		SkuDetails: inventory.AllSkuDetails(),
	})
}

func (s *Server) handlePurchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	session := s.sessionFor(req.Package)
	if session == nil {
		c.JSON(http.StatusOK, purchaseResponse{Result: notSetUpResult()})
		return
	}

	type purchaseOutcome struct {
		result   openbilling.Result
		purchase *openbilling.Purchase
	}
	done := make(chan purchaseOutcome, 1)
	err := session.LaunchPurchaseFlow(c.Request.Context(), req.Sku, req.ItemType, 0, req.DeveloperPayload,
		func(res openbilling.Result, p *openbilling.Purchase) {
			done <- purchaseOutcome{result: res, purchase: p}
		})
	if err != nil {
		c.JSON(http.StatusOK, purchaseResponse{Result: resultPayload{
			Response: openbilling.ResponseError,
			Message:  err.Error(),
		}})
		return
	}
	outcome := <-done
	c.JSON(http.StatusOK, purchaseResponse{
		Result:   fromResult(outcome.result),
		Purchase: outcome.purchase,
	})
}

func (s *Server) handleConsume(c *gin.Context) {
	var req consumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	session := s.sessionFor(req.Package)
	if session == nil {
		c.JSON(http.StatusOK, consumeResponse{Result: notSetUpResult()})
		return
	}

	err := session.Consume(c.Request.Context(), openbilling.Purchase{
		ItemType:    openbilling.ItemTypeInApp,
		PackageName: req.Package,
		SKU:         req.Sku,
		Token:       req.Token,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("sku", req.Sku).Msg("consume failed")
		c.JSON(http.StatusOK, consumeResponse{Result: resultPayload{
			Response: openbilling.ResponseError,
			Message:  err.Error(),
		}})
		return
	}
	c.JSON(http.StatusOK, consumeResponse{Result: resultPayload{Response: openbilling.ResponseOK}})
}

// ============================================================================
// Registry Server
// ============================================================================

// NewRegistryRouter serves a fixed service list under the registry contract,
// in the order given. Useful for tests and closed deployments.
func NewRegistryRouter(services []openbilling.ServiceDescriptor) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/services", func(c *gin.Context) {
		c.JSON(http.StatusOK, servicesResponse{Services: services})
	})
	return router
}
