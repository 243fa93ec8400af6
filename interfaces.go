package openbilling

import "context"

// Provider is the capability contract every billing backend satisfies: a
// specific marketplace client or a generic pluggable open-store service.
// The orchestrator only ever talks to providers through this interface.
type Provider interface {
	// ProviderName returns the provider's stable identity. A provider
	// reporting an empty name is invalid and is rejected during selection.
	ProviderName() string

	// IsBillingAvailable reports whether this provider can bill for the
	// given application package. Implementations may perform a local or
	// remote capability check but must honor ctx and must not block
	// indefinitely.
	IsBillingAvailable(ctx context.Context, appPackage string) (bool, error)

	// PackageVersion returns the application version this provider believes
	// it installed, or PackageVersionUndefined when unknown.
	PackageVersion(ctx context.Context, appPackage string) int

	// BillingSession constructs a new billing session. Pure construction,
	// no I/O; the session performs its own setup.
	BillingSession() BillingSession
}

// CertificationAware is implemented by providers that require an interactive
// certification step before their billing session is usable. Activity
// results carrying the matching request code are routed to the provider's
// in-flight session while setup is still running.
type CertificationAware interface {
	CertificationRequestCode() int
}

// BillingSession is a live, stateful connection to one provider's billing
// subsystem. It is created only after its provider wins selection and must
// complete its own asynchronous setup before any other method is used.
type BillingSession interface {
	// StartSetup begins the session's internal setup. onFinished is invoked
	// exactly once with the outcome; the goroutine it runs on is
	// implementation-defined.
	StartSetup(ctx context.Context, onFinished func(Result))

	// LaunchPurchaseFlow starts the provider's purchase UI flow for the
	// given provider-specific SKU. The listener receives the outcome, which
	// may arrive only after an out-of-band activity result.
	LaunchPurchaseFlow(ctx context.Context, sku, itemType string, requestCode int, developerPayload string, listener PurchaseListener) error

	// QueryInventory blocks until the provider has reported all owned
	// purchases, plus details for the extra SKUs when querySkuDetails is
	// set. SKUs are provider-specific on this boundary.
	QueryInventory(ctx context.Context, querySkuDetails bool, moreItemSkus, moreSubsSkus []string) (*Inventory, error)

	// Consume consumes a purchase so the item can be bought again.
	Consume(ctx context.Context, purchase Purchase) error

	SubscriptionsSupported() bool

	// HandleActivityResult forwards an out-of-band UI callback. It reports
	// whether the session recognized and consumed the result.
	HandleActivityResult(res ActivityResult) bool

	Dispose()
}

// OpenStoreService is the narrow binding contract exposed by pluggable
// open-store providers. The orchestrator depends only on this contract,
// never on transport details.
type OpenStoreService interface {
	// ProviderName returns the store's identity, queried over the binding.
	ProviderName(ctx context.Context) (string, error)

	IsBillingAvailable(ctx context.Context, appPackage string) (bool, error)

	// BillingService returns a handle to the store's billing sub-service.
	// Handle construction is local; the session's own setup performs I/O.
	BillingService() BillingSession

	Close() error
}

// Platform describes the host application environment: its own identity and
// version, and which package delivered the install.
type Platform interface {
	AppPackage() string
	AppVersionCode() int

	// InstallerPackage returns the package name of the installer, or the
	// empty string when the installer is not recorded.
	InstallerPackage() string

	// PackageInstalled reports whether the named package is still present.
	PackageInstalled(pkg string) bool
}

// StaticPlatform is a Platform with fixed answers, for hosts that resolve
// their environment once at startup (and for tests).
type StaticPlatform struct {
	Package     string
	VersionCode int
	Installer   string
	Installed   []string
}

func (p StaticPlatform) AppPackage() string       { return p.Package }
func (p StaticPlatform) AppVersionCode() int      { return p.VersionCode }
func (p StaticPlatform) InstallerPackage() string { return p.Installer }

func (p StaticPlatform) PackageInstalled(pkg string) bool {
	for _, name := range p.Installed {
		if name == pkg {
			return true
		}
	}
	return false
}

// Prober enumerates open-store services advertising the binding contract.
// Descriptors are returned in enumeration order; callers rely on that order
// only for tie-break determinism within one run, never for correctness.
type Prober interface {
	QueryServices(ctx context.Context) ([]ServiceDescriptor, error)
}

// Binder establishes a connection to one discovered open-store service.
type Binder interface {
	Bind(ctx context.Context, desc ServiceDescriptor) (OpenStoreService, error)
}

// Listener types. Listeners are always invoked on the Helper's callback
// dispatcher.
type (
	SetupListener        func(Result)
	PurchaseListener     func(Result, *Purchase)
	InventoryListener    func(Result, *Inventory)
	ConsumeListener      func(Purchase, Result)
	ConsumeMultiListener func([]Purchase, []Result)
)

// SkuTranslator is the bidirectional mapping between application-internal
// SKUs and provider-specific SKUs. Implemented by sku.Translator.
type SkuTranslator interface {
	// ProviderSku returns the provider-specific SKU for an internal SKU,
	// falling back to the input when no mapping exists. Empty arguments are
	// an error.
	ProviderSku(providerName, sku string) (string, error)

	// InternalSku is the inverse of ProviderSku.
	InternalSku(providerName, providerSku string) (string, error)
}
