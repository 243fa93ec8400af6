package openbilling

import (
	"context"
	"fmt"
)

// ============================================================================
// Billing Operations
// ============================================================================
//
// Every operation below forwards to the elected provider's session. SKUs
// cross the boundary translated: application SKUs are mapped to the
// provider's identifiers on the way out and mapped back on the way in, so
// callers only ever see their own SKU names.

// checkSetupDone guards every forwarded operation: outside the Successful
// state there is nothing to forward to.
func (h *Helper) checkSetupDone(operation string) (BillingSession, string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != SetupSuccessful {
		return nil, "", errIllegalState(operation, h.state)
	}
	return h.session, h.provider.ProviderName(), nil
}

// checkNotDispatcher rejects blocking calls issued from the callback
// dispatcher, where they would deadlock against their own completion.
func (h *Helper) checkNotDispatcher(operation string) error {
	if h.dispatch.onDispatcher() {
		return NewBillingError(ErrCodeIllegalState,
			fmt.Sprintf("%s must not be called from a billing callback", operation), nil)
	}
	return nil
}

// LaunchPurchaseFlow starts the interactive purchase of a one-time product.
// The listener receives the outcome on the callback dispatcher; a successful
// purchase carries the application-side SKU.
func (h *Helper) LaunchPurchaseFlow(ctx context.Context, skuID string, requestCode int, developerPayload string, listener PurchaseListener) error {
	return h.launchPurchaseFlow(ctx, skuID, ItemTypeInApp, requestCode, developerPayload, listener)
}

// LaunchSubscriptionPurchaseFlow starts the interactive purchase of a
// subscription.
func (h *Helper) LaunchSubscriptionPurchaseFlow(ctx context.Context, skuID string, requestCode int, developerPayload string, listener PurchaseListener) error {
	return h.launchPurchaseFlow(ctx, skuID, ItemTypeSubs, requestCode, developerPayload, listener)
}

func (h *Helper) launchPurchaseFlow(ctx context.Context, skuID, itemType string, requestCode int, developerPayload string, listener PurchaseListener) error {
	if listener == nil {
		return errMissingListener("launchPurchaseFlow")
	}
	session, providerName, err := h.checkSetupDone("launchPurchaseFlow")
	if err != nil {
		return err
	}
	providerSku, err := h.opts.skus.ProviderSku(providerName, skuID)
	if err != nil {
		return NewBillingError(ErrCodeInvalidArgument, err.Error(), nil)
	}

	h.flagStartAsync("launchPurchaseFlow")
	return session.LaunchPurchaseFlow(ctx, providerSku, itemType, requestCode, developerPayload,
		func(res Result, purchase *Purchase) {
			h.flagEndAsync()
			if purchase != nil {
				h.translatePurchase(providerName, purchase)
			}
			h.dispatch.post(func() { listener(res, purchase) })
		})
}

// QueryInventory synchronously queries owned purchases, optionally with SKU
// details for the owned and explicitly requested SKUs. All SKU arguments are
// application SKUs; the returned inventory is keyed by application SKUs as
// well.
func (h *Helper) QueryInventory(ctx context.Context, querySkuDetails bool, moreItemSkus, moreSubsSkus []string) (*Inventory, error) {
	if err := h.checkNotDispatcher("queryInventory"); err != nil {
		return nil, err
	}
	session, providerName, err := h.checkSetupDone("queryInventory")
	if err != nil {
		return nil, err
	}
	return h.queryInventory(ctx, session, providerName, querySkuDetails, moreItemSkus, moreSubsSkus)
}

func (h *Helper) queryInventory(ctx context.Context, session BillingSession, providerName string, querySkuDetails bool, moreItemSkus, moreSubsSkus []string) (*Inventory, error) {
	providerItemSkus, err := h.providerSkus(providerName, moreItemSkus)
	if err != nil {
		return nil, err
	}
	providerSubsSkus, err := h.providerSkus(providerName, moreSubsSkus)
	if err != nil {
		return nil, err
	}

	inventory, err := session.QueryInventory(ctx, querySkuDetails, providerItemSkus, providerSubsSkus)
	if err != nil {
		return nil, err
	}
	return h.translateInventory(providerName, inventory), nil
}

// QueryInventoryAsync runs QueryInventory on its own goroutine and delivers
// the outcome on the callback dispatcher.
func (h *Helper) QueryInventoryAsync(ctx context.Context, querySkuDetails bool, moreItemSkus, moreSubsSkus []string, listener InventoryListener) error {
	if listener == nil {
		return errMissingListener("queryInventoryAsync")
	}
	session, providerName, err := h.checkSetupDone("queryInventoryAsync")
	if err != nil {
		return err
	}

	h.flagStartAsync("queryInventoryAsync")
	go func() {
		inventory, err := h.queryInventory(ctx, session, providerName, querySkuDetails, moreItemSkus, moreSubsSkus)
		h.flagEndAsync()
		result := NewResult(ResponseOK, "Inventory refresh successful.")
		if err != nil {
			result = NewResult(ResponseError, fmt.Sprintf("Inventory refresh failed: %v", err))
			inventory = nil
		}
		h.dispatch.post(func() { listener(result, inventory) })
	}()
	return nil
}

// Consume synchronously consumes a one-time purchase so it can be bought
// again. Subscriptions cannot be consumed.
func (h *Helper) Consume(ctx context.Context, purchase Purchase) error {
	if err := h.checkNotDispatcher("consume"); err != nil {
		return err
	}
	session, providerName, err := h.checkSetupDone("consume")
	if err != nil {
		return err
	}
	return h.consume(ctx, session, providerName, purchase)
}

func (h *Helper) consume(ctx context.Context, session BillingSession, providerName string, purchase Purchase) error {
	if purchase.ItemType != ItemTypeInApp {
		return NewBillingError(ErrCodeInvalidArgument,
			fmt.Sprintf("items of type %q can't be consumed", purchase.ItemType), nil)
	}
	providerSku, err := h.opts.skus.ProviderSku(providerName, purchase.SKU)
	if err != nil {
		return NewBillingError(ErrCodeInvalidArgument, err.Error(), nil)
	}
	purchase.SKU = providerSku
	return session.Consume(ctx, purchase)
}

// ConsumeAsync consumes one purchase on its own goroutine and reports the
// outcome on the callback dispatcher.
func (h *Helper) ConsumeAsync(ctx context.Context, purchase Purchase, listener ConsumeListener) error {
	if listener == nil {
		return errMissingListener("consumeAsync")
	}
	session, providerName, err := h.checkSetupDone("consumeAsync")
	if err != nil {
		return err
	}

	h.flagStartAsync("consumeAsync")
	go func() {
		result := h.consumeOne(ctx, session, providerName, purchase)
		h.flagEndAsync()
		h.dispatch.post(func() { listener(purchase, result) })
	}()
	return nil
}

// ConsumeMultiAsync consumes a batch of purchases. Each purchase is consumed
// independently: one failure does not stop the rest, and the listener
// receives a result per purchase, in the order given.
func (h *Helper) ConsumeMultiAsync(ctx context.Context, purchases []Purchase, listener ConsumeMultiListener) error {
	if listener == nil {
		return errMissingListener("consumeMultiAsync")
	}
	if len(purchases) == 0 {
		return NewBillingError(ErrCodeInvalidArgument, "purchases must not be empty", nil)
	}
	session, providerName, err := h.checkSetupDone("consumeMultiAsync")
	if err != nil {
		return err
	}

	h.flagStartAsync("consumeMultiAsync")
	go func() {
		results := make([]Result, len(purchases))
		for i, p := range purchases {
			results[i] = h.consumeOne(ctx, session, providerName, p)
		}
		h.flagEndAsync()
		h.dispatch.post(func() { listener(purchases, results) })
	}()
	return nil
}

func (h *Helper) consumeOne(ctx context.Context, session BillingSession, providerName string, purchase Purchase) Result {
	if err := h.consume(ctx, session, providerName, purchase); err != nil {
		h.log.Warn().Err(err).Str("sku", purchase.SKU).Msg("consume failed")
		return NewResult(ResponseError, fmt.Sprintf("Error consuming sku %s: %v", purchase.SKU, err))
	}
	return NewResult(ResponseOK, fmt.Sprintf("Successful consume of sku %s", purchase.SKU))
}

// SubscriptionsSupported reports whether the elected provider supports
// subscription purchases. Before a successful setup there is no provider to
// ask, so the answer is false.
func (h *Helper) SubscriptionsSupported() bool {
	h.mu.Lock()
	session := h.session
	state := h.state
	h.mu.Unlock()
	if state != SetupSuccessful || session == nil {
		return false
	}
	return session.SubscriptionsSupported()
}

// HandleActivityResult routes an interactive flow result to the session that
// is waiting for it. During setup, a provider running its certification step
// gets first claim on its request code; afterwards everything goes to the
// elected session. Returns whether the result was consumed.
func (h *Helper) HandleActivityResult(res ActivityResult) bool {
	h.mu.Lock()
	certProvider := h.certProvider
	certSession := h.certSession
	state := h.state
	session := h.session
	h.mu.Unlock()

	if certSession != nil {
		code := h.opts.certificationRequestCode
		if ca, ok := certProvider.(CertificationAware); ok {
			code = ca.CertificationRequestCode()
		}
		if res.RequestCode == code {
			return certSession.HandleActivityResult(res)
		}
	}
	if state != SetupSuccessful || session == nil {
		h.log.Debug().Int("request_code", res.RequestCode).Msg("activity result with no session to route to")
		return false
	}
	return session.HandleActivityResult(res)
}

// ============================================================================
// SKU Translation
// ============================================================================

func (h *Helper) providerSkus(providerName string, skus []string) ([]string, error) {
	if len(skus) == 0 {
		return nil, nil
	}
	out := make([]string, len(skus))
	for i, s := range skus {
		translated, err := h.opts.skus.ProviderSku(providerName, s)
		if err != nil {
			return nil, NewBillingError(ErrCodeInvalidArgument, err.Error(), nil)
		}
		out[i] = translated
	}
	return out, nil
}

// translatePurchase rewrites a provider-side purchase in place so the caller
// sees the application SKU.
func (h *Helper) translatePurchase(providerName string, p *Purchase) {
	internal, err := h.opts.skus.InternalSku(providerName, p.SKU)
	if err != nil {
		h.log.Warn().Err(err).Str("sku", p.SKU).Msg("sku reverse translation failed")
		return
	}
	p.SKU = internal
}

// translateInventory maps every purchase and SKU detail in a provider-side
// inventory back onto application SKUs.
func (h *Helper) translateInventory(providerName string, inv *Inventory) *Inventory {
	if inv == nil {
		return nil
	}
	out := NewInventory()
	for _, p := range inv.AllPurchases() {
		h.translatePurchase(providerName, &p)
		out.AddPurchase(p)
	}
	for _, d := range inv.AllSkuDetails() {
		internal, err := h.opts.skus.InternalSku(providerName, d.SKU)
		if err != nil {
			h.log.Warn().Err(err).Str("sku", d.SKU).Msg("sku reverse translation failed")
		} else {
			d.SKU = internal
		}
		out.AddSkuDetails(d)
	}
	return out
}
