package openbilling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openbilling/openbilling/go/sku"
)

func setUpHelper(t *testing.T, provider Provider, opts ...Option) *Helper {
	t.Helper()
	opts = append([]Option{WithAvailableProviders(provider)}, opts...)
	h := mustNew(t, testPlatform(""), opts...)
	if res := awaitSetup(t, h); res.IsFailure() {
		t.Fatalf("setup failed: %s", res)
	}
	return h
}

func TestOperationsBeforeSetupAreRejected(t *testing.T) {
	h := mustNew(t, testPlatform(""))

	if _, err := h.QueryInventory(context.Background(), false, nil, nil); err == nil {
		t.Fatal("expected QueryInventory to fail before setup")
	}
	if err := h.Consume(context.Background(), Purchase{ItemType: ItemTypeInApp, SKU: "x"}); err == nil {
		t.Fatal("expected Consume to fail before setup")
	}
	err := h.LaunchPurchaseFlow(context.Background(), "x", 1001, "", func(Result, *Purchase) {})
	be, ok := err.(*BillingError)
	if !ok || be.Code != ErrCodeIllegalState {
		t.Fatalf("expected an illegal_state BillingError, got %v", err)
	}
	if h.SubscriptionsSupported() {
		t.Fatal("subscriptions cannot be supported before setup")
	}
}

func TestConsumeAfterFailedSetupIsRejected(t *testing.T) {
	provider := newFakeProvider("org.store.alpha")
	provider.available = false
	h := mustNew(t, testPlatform(""), WithAvailableProviders(provider))
	if res := awaitSetup(t, h); res.IsSuccess() {
		t.Fatalf("expected setup to fail, got %s", res)
	}

	err := h.Consume(context.Background(), Purchase{ItemType: ItemTypeInApp, SKU: "coins"})
	be, ok := err.(*BillingError)
	if !ok || be.Code != ErrCodeIllegalState {
		t.Fatalf("expected an illegal_state BillingError, got %v", err)
	}
	provider.session.mu.Lock()
	consumed := len(provider.session.consumed)
	provider.session.mu.Unlock()
	if consumed != 0 {
		t.Fatal("a rejected operation must never reach a provider")
	}
}

func TestLaunchPurchaseFlowTranslatesSkus(t *testing.T) {
	provider := newFakeProvider("org.store.alpha")
	provider.session.purchase = &Purchase{ItemType: ItemTypeInApp, SKU: "store_premium"}

	translator := sku.NewTranslator()
	if err := translator.Map("premium", "org.store.alpha", "store_premium"); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	h := setUpHelper(t, provider, WithSkuTranslator(translator))

	ch := make(chan *Purchase, 1)
	err := h.LaunchPurchaseFlow(context.Background(), "premium", 1001, "payload",
		func(res Result, p *Purchase) {
			if res.IsFailure() {
				t.Errorf("purchase failed: %s", res)
			}
			ch <- p
		})
	if err != nil {
		t.Fatalf("LaunchPurchaseFlow failed: %v", err)
	}

	select {
	case p := <-ch:
		if p == nil {
			t.Fatal("expected a purchase")
		}
		if p.SKU != "premium" {
			t.Fatalf("expected the application sku back, got %q", p.SKU)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("purchase listener never ran")
	}

	provider.session.mu.Lock()
	launched := append([]string(nil), provider.session.launched...)
	provider.session.mu.Unlock()
	if len(launched) != 1 || launched[0] != "store_premium" {
		t.Fatalf("expected the provider sku at the session boundary, got %v", launched)
	}
}

func TestQueryInventoryTranslatesResults(t *testing.T) {
	provider := newFakeProvider("org.store.alpha")
	provider.session.inventory.AddPurchase(Purchase{ItemType: ItemTypeInApp, SKU: "store_premium"})
	provider.session.inventory.AddSkuDetails(SkuDetails{ItemType: ItemTypeInApp, SKU: "store_premium", Price: "$1.99"})

	translator := sku.NewTranslator()
	if err := translator.Map("premium", "org.store.alpha", "store_premium"); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	h := setUpHelper(t, provider, WithSkuTranslator(translator))

	inventory, err := h.QueryInventory(context.Background(), true, []string{"premium"}, nil)
	if err != nil {
		t.Fatalf("QueryInventory failed: %v", err)
	}
	if !inventory.HasPurchase("premium") {
		t.Fatal("expected the purchase under the application sku")
	}
	if inventory.HasPurchase("store_premium") {
		t.Fatal("the provider sku must not leak to the caller")
	}
	if _, ok := inventory.SkuDetails("premium"); !ok {
		t.Fatal("expected sku details under the application sku")
	}
}

func TestQueryInventoryAsync(t *testing.T) {
	provider := newFakeProvider("org.store.alpha")
	provider.session.inventory.AddPurchase(Purchase{ItemType: ItemTypeInApp, SKU: "coins"})
	h := setUpHelper(t, provider)

	type outcome struct {
		result    Result
		inventory *Inventory
	}
	ch := make(chan outcome, 1)
	err := h.QueryInventoryAsync(context.Background(), false, nil, nil,
		func(res Result, inv *Inventory) {
			ch <- outcome{result: res, inventory: inv}
		})
	if err != nil {
		t.Fatalf("QueryInventoryAsync failed: %v", err)
	}

	select {
	case out := <-ch:
		if out.result.IsFailure() {
			t.Fatalf("inventory refresh failed: %s", out.result)
		}
		if out.inventory == nil || !out.inventory.HasPurchase("coins") {
			t.Fatal("expected the purchase in the async inventory")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("inventory listener never ran")
	}
}

func TestQueryInventoryAsyncReportsFailure(t *testing.T) {
	provider := newFakeProvider("org.store.alpha")
	provider.session.queryErr = errors.New("backend down")
	provider.session.inventory = nil
	h := setUpHelper(t, provider)

	ch := make(chan Result, 1)
	err := h.QueryInventoryAsync(context.Background(), false, nil, nil,
		func(res Result, inv *Inventory) {
			if inv != nil {
				t.Error("a failed refresh must not deliver an inventory")
			}
			ch <- res
		})
	if err != nil {
		t.Fatalf("QueryInventoryAsync failed: %v", err)
	}

	select {
	case res := <-ch:
		if res.IsSuccess() {
			t.Fatal("expected a failure result")
		}
		if res.Response != ResponseError {
			t.Fatalf("expected response %d, got %d", ResponseError, res.Response)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("inventory listener never ran")
	}
}

func TestConsumeTranslatesSku(t *testing.T) {
	provider := newFakeProvider("org.store.alpha")
	translator := sku.NewTranslator()
	if err := translator.Map("coins", "org.store.alpha", "store_coins"); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	h := setUpHelper(t, provider, WithSkuTranslator(translator))

	err := h.Consume(context.Background(), Purchase{ItemType: ItemTypeInApp, SKU: "coins", Token: "tok"})
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}

	provider.session.mu.Lock()
	consumed := append([]string(nil), provider.session.consumed...)
	provider.session.mu.Unlock()
	if len(consumed) != 1 || consumed[0] != "store_coins" {
		t.Fatalf("expected the provider sku at the session boundary, got %v", consumed)
	}
}

func TestConsumeRejectsSubscriptions(t *testing.T) {
	provider := newFakeProvider("org.store.alpha")
	h := setUpHelper(t, provider)

	err := h.Consume(context.Background(), Purchase{ItemType: ItemTypeSubs, SKU: "monthly"})
	be, ok := err.(*BillingError)
	if !ok || be.Code != ErrCodeInvalidArgument {
		t.Fatalf("expected an invalid_argument BillingError, got %v", err)
	}
}

func TestConsumeAsync(t *testing.T) {
	provider := newFakeProvider("org.store.alpha")
	h := setUpHelper(t, provider)

	ch := make(chan Result, 1)
	err := h.ConsumeAsync(context.Background(), Purchase{ItemType: ItemTypeInApp, SKU: "coins"},
		func(p Purchase, res Result) {
			if p.SKU != "coins" {
				t.Errorf("listener saw sku %q", p.SKU)
			}
			ch <- res
		})
	if err != nil {
		t.Fatalf("ConsumeAsync failed: %v", err)
	}

	select {
	case res := <-ch:
		if res.IsFailure() {
			t.Fatalf("consume failed: %s", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("consume listener never ran")
	}
}

func TestConsumeMultiAsyncIsolatesFailures(t *testing.T) {
	provider := newFakeProvider("org.store.alpha")
	provider.session.consumeErrFor = map[string]error{"bad": errors.New("token rejected")}
	h := setUpHelper(t, provider)

	purchases := []Purchase{
		{ItemType: ItemTypeInApp, SKU: "good"},
		{ItemType: ItemTypeInApp, SKU: "bad"},
		{ItemType: ItemTypeInApp, SKU: "also_good"},
	}
	ch := make(chan []Result, 1)
	err := h.ConsumeMultiAsync(context.Background(), purchases,
		func(ps []Purchase, results []Result) {
			if len(ps) != len(purchases) {
				t.Errorf("expected %d purchases back, got %d", len(purchases), len(ps))
			}
			ch <- results
		})
	if err != nil {
		t.Fatalf("ConsumeMultiAsync failed: %v", err)
	}

	select {
	case results := <-ch:
		if len(results) != 3 {
			t.Fatalf("expected three results, got %d", len(results))
		}
		if results[0].IsFailure() || results[2].IsFailure() {
			t.Fatalf("healthy consumes must succeed: %v", results)
		}
		if results[1].IsSuccess() {
			t.Fatal("the failing consume must report failure")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("consume listener never ran")
	}
}

func TestConsumeMultiAsyncRequiresPurchases(t *testing.T) {
	provider := newFakeProvider("org.store.alpha")
	h := setUpHelper(t, provider)

	err := h.ConsumeMultiAsync(context.Background(), nil, func([]Purchase, []Result) {})
	be, ok := err.(*BillingError)
	if !ok || be.Code != ErrCodeInvalidArgument {
		t.Fatalf("expected an invalid_argument BillingError, got %v", err)
	}
}

func TestSubscriptionsSupported(t *testing.T) {
	provider := newFakeProvider("org.store.alpha")
	provider.session.subs = true
	h := setUpHelper(t, provider)

	if !h.SubscriptionsSupported() {
		t.Fatal("expected subscriptions to be supported")
	}
}

func TestHandleActivityResultAfterSetup(t *testing.T) {
	provider := newFakeProvider("org.store.alpha")
	provider.session.handleResult = true
	h := setUpHelper(t, provider)

	if !h.HandleActivityResult(ActivityResult{RequestCode: 1001, ResultCode: -1}) {
		t.Fatal("expected the session to claim the result")
	}
	provider.session.mu.Lock()
	codes := append([]int(nil), provider.session.handledCodes...)
	provider.session.mu.Unlock()
	if len(codes) != 1 || codes[0] != 1001 {
		t.Fatalf("expected the session to see request code 1001, got %v", codes)
	}
}

func TestAsyncFlagIsAdvisory(t *testing.T) {
	provider := newFakeProvider("org.store.alpha")
	provider.session.queryDelay = 200 * time.Millisecond
	h := setUpHelper(t, provider)

	ch := make(chan Result, 1)
	if err := h.QueryInventoryAsync(context.Background(), false, nil, nil,
		func(res Result, inv *Inventory) { ch <- res }); err != nil {
		t.Fatalf("QueryInventoryAsync failed: %v", err)
	}

	inProgress, operation := h.AsyncOperationInProgress()
	if !inProgress || operation != "queryInventoryAsync" {
		t.Fatalf("expected the advisory flag to name the operation, got %v %q", inProgress, operation)
	}

	// Concurrent operations are legal while the flag is set.
	if err := h.Consume(context.Background(), Purchase{ItemType: ItemTypeInApp, SKU: "coins"}); err != nil {
		t.Fatalf("concurrent Consume failed: %v", err)
	}

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("inventory listener never ran")
	}
	if inProgress, _ := h.AsyncOperationInProgress(); inProgress {
		t.Fatal("the flag must clear after completion")
	}
}
