package openbilling

import (
	"fmt"
	"time"
)

// SetupState tracks the orchestrator's lifecycle. Transitions are monotonic
// (NotStarted -> InProgress -> Successful|Failed) except Disposed, which is
// terminal and reachable from any state.
type SetupState int

const (
	SetupNotStarted SetupState = iota
	SetupInProgress
	SetupSuccessful
	SetupFailed
	SetupDisposed
)

func (s SetupState) String() string {
	switch s {
	case SetupNotStarted:
		return "setup not started"
	case SetupInProgress:
		return "setup in progress"
	case SetupSuccessful:
		return "setup successful"
	case SetupFailed:
		return "setup failed"
	case SetupDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("unknown setup state %d", int(s))
	}
}

// Billing response codes carried by Result
const (
	ResponseOK                 = 0
	ResponseBillingUnavailable = 3
	ResponseError              = 6
)

// Item types
const (
	ItemTypeInApp = "inapp"
	ItemTypeSubs  = "subs"
)

// Known marketplace provider names
const (
	NameGoogle  = "com.google.play"
	NameAmazon  = "com.amazon.apps"
	NameSamsung = "com.samsung.apps"
	NameNokia   = "com.nokia.nstore"
)

// Known open-store provider names
const (
	NameYandex  = "com.yandex.store"
	NameAppland = "Appland"
	NameSlideME = "SlideME"
	NameAptoide = "cm.aptoide.pt"
)

// PackageVersionUndefined is the sentinel a provider reports when it does not
// know which version of the application it installed. It always passes the
// freshness check.
const PackageVersionUndefined = -1

// Result carries a billing response code and a human-readable message.
// Setup outcomes and operation outcomes are delivered to listeners as
// Results, never as raw errors.
type Result struct {
	Response int    `json:"response"`
	Message  string `json:"message"`
}

func NewResult(response int, message string) Result {
	return Result{Response: response, Message: message}
}

func (r Result) IsSuccess() bool { return r.Response == ResponseOK }
func (r Result) IsFailure() bool { return !r.IsSuccess() }

func (r Result) String() string {
	return fmt.Sprintf("%s (response: %d)", r.Message, r.Response)
}

// Purchase is one purchase record held by a provider. SKU is expressed in
// application-internal terms on the caller-facing surface; the forwarder
// translates in both directions at the provider boundary.
type Purchase struct {
	ItemType         string    `json:"itemType"`
	OrderID          string    `json:"orderId,omitempty"`
	PackageName      string    `json:"packageName"`
	SKU              string    `json:"sku"`
	PurchaseTime     time.Time `json:"purchaseTime,omitzero"`
	DeveloperPayload string    `json:"developerPayload,omitempty"`
	Token            string    `json:"token,omitempty"`
	OriginalJSON     string    `json:"originalJson,omitempty"`
	Signature        string    `json:"signature,omitempty"`
	ProviderName     string    `json:"providerName,omitempty"`
}

// SkuDetails describes one purchasable item as reported by a provider.
type SkuDetails struct {
	ItemType    string `json:"itemType"`
	SKU         string `json:"sku"`
	Price       string `json:"price,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// Inventory is the set of purchases and item details a provider reported for
// this application.
type Inventory struct {
	purchases  map[string]Purchase
	skuDetails map[string]SkuDetails
}

func NewInventory() *Inventory {
	return &Inventory{
		purchases:  make(map[string]Purchase),
		skuDetails: make(map[string]SkuDetails),
	}
}

// AddPurchase records a purchase, keyed by SKU. A later purchase for the
// same SKU replaces the earlier one.
func (i *Inventory) AddPurchase(p Purchase) {
	i.purchases[p.SKU] = p
}

// AddSkuDetails records item details, keyed by SKU.
func (i *Inventory) AddSkuDetails(d SkuDetails) {
	i.skuDetails[d.SKU] = d
}

func (i *Inventory) HasPurchase(sku string) bool {
	_, ok := i.purchases[sku]
	return ok
}

func (i *Inventory) Purchase(sku string) (Purchase, bool) {
	p, ok := i.purchases[sku]
	return p, ok
}

func (i *Inventory) SkuDetails(sku string) (SkuDetails, bool) {
	d, ok := i.skuDetails[sku]
	return d, ok
}

// AllPurchases returns every purchase in the inventory. Order is unspecified.
func (i *Inventory) AllPurchases() []Purchase {
	out := make([]Purchase, 0, len(i.purchases))
	for _, p := range i.purchases {
		out = append(out, p)
	}
	return out
}

func (i *Inventory) AllSkuDetails() []SkuDetails {
	out := make([]SkuDetails, 0, len(i.skuDetails))
	for _, d := range i.skuDetails {
		out = append(out, d)
	}
	return out
}

// ActivityResult is an out-of-band UI callback delivered by the host
// application, e.g. the completion of a provider's interactive certification
// step.
type ActivityResult struct {
	RequestCode int
	ResultCode  int
	Data        map[string]interface{}
}

// VerificationMode controls eager receipt-key validation at construction.
type VerificationMode int

const (
	// VerifyEverything requires a valid public key for every provider a key
	// was supplied for; an invalid or missing key fails construction.
	VerifyEverything VerificationMode = iota
	// VerifySkip disables key validation entirely (verification happens
	// server-side).
	VerifySkip
	// VerifyOnlyKnown validates only the keys that were supplied and allows
	// providers without keys.
	VerifyOnlyKnown
)

// ServiceDescriptor describes how to reach one discovered open-store
// service. It exists only during discovery; the descriptor is released once
// the provider is accepted or rejected.
type ServiceDescriptor struct {
	Package   string `json:"package"`
	Component string `json:"component"`
	Endpoint  string `json:"endpoint"`
}
