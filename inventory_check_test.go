package openbilling

import (
	"testing"
	"time"
)

func ownedPurchase(skuID string) Purchase {
	return Purchase{ItemType: ItemTypeInApp, SKU: skuID, Token: "tok-" + skuID}
}

func TestInventoryCheckNarrowsToEquippedProvider(t *testing.T) {
	alpha := newFakeProvider("org.store.alpha")
	beta := newFakeProvider("org.store.beta")
	beta.session.inventory.AddPurchase(ownedPurchase("premium"))
	gamma := newFakeProvider("org.store.gamma")

	h := mustNew(t, testPlatform(""),
		WithAvailableProviders(alpha, beta, gamma),
		WithCheckInventory(),
	)

	res := awaitSetup(t, h)
	if res.IsFailure() {
		t.Fatalf("setup failed: %s", res)
	}
	if got := h.ConnectedProviderName(); got != "org.store.beta" {
		t.Fatalf("expected the equipped provider to win, got %q", got)
	}
}

func TestInventoryCheckEmptyNarrowingFallsBack(t *testing.T) {
	alpha := newFakeProvider("org.store.alpha")
	beta := newFakeProvider("org.store.beta")

	h := mustNew(t, testPlatform(""),
		WithAvailableProviders(alpha, beta),
		WithCheckInventory(),
	)

	res := awaitSetup(t, h)
	if res.IsFailure() {
		t.Fatalf("setup failed: %s", res)
	}
	// Nobody holds purchases; the original candidate order decides.
	if got := h.ConnectedProviderName(); got != "org.store.alpha" {
		t.Fatalf("expected the first candidate to win, got %q", got)
	}
}

func TestInventoryCheckPreservesCandidateOrder(t *testing.T) {
	alpha := newFakeProvider("org.store.alpha")
	alpha.session.inventory.AddPurchase(ownedPurchase("coins"))
	beta := newFakeProvider("org.store.beta")
	beta.session.inventory.AddPurchase(ownedPurchase("coins"))

	h := mustNew(t, testPlatform(""),
		WithAvailableProviders(alpha, beta),
		WithCheckInventory(),
	)

	res := awaitSetup(t, h)
	if res.IsFailure() {
		t.Fatalf("setup failed: %s", res)
	}
	if got := h.ConnectedProviderName(); got != "org.store.alpha" {
		t.Fatalf("ties must resolve by candidate order, got %q", got)
	}
}

func TestInventoryCheckTimeoutUsesPartialResults(t *testing.T) {
	slow := newFakeProvider("org.store.slow")
	slow.session.inventory.AddPurchase(ownedPurchase("coins"))
	slow.session.queryDelay = 2 * time.Second
	fast := newFakeProvider("org.store.fast")
	fast.session.inventory.AddPurchase(ownedPurchase("coins"))

	h := mustNew(t, testPlatform(""),
		WithAvailableProviders(slow, fast),
		WithCheckInventory(),
		WithCheckInventoryTimeout(150*time.Millisecond),
	)

	res := awaitSetup(t, h)
	if res.IsFailure() {
		t.Fatalf("setup failed: %s", res)
	}
	// The slow provider's answer missed the window; only the fast one
	// counts as equipped.
	if got := h.ConnectedProviderName(); got != "org.store.fast" {
		t.Fatalf("expected the responsive provider to win, got %q", got)
	}
}

func TestInventoryCheckDisposesProbeSessions(t *testing.T) {
	alpha := newFakeProvider("org.store.alpha")
	beta := newFakeProvider("org.store.beta")
	beta.session.inventory.AddPurchase(ownedPurchase("coins"))

	h := mustNew(t, testPlatform(""),
		WithAvailableProviders(alpha, beta),
		WithCheckInventory(),
	)

	if res := awaitSetup(t, h); res.IsFailure() {
		t.Fatalf("setup failed: %s", res)
	}
	if !alpha.session.isDisposed() {
		t.Fatal("the losing candidate's probe session must be disposed")
	}
}
