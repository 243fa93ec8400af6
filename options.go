package openbilling

import (
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Default timeout for the inventory check across all candidates. Generic
// open stores take 1.5 - 3s; some marketplace sessions are far slower.
const DefaultCheckInventoryTimeout = 10 * time.Second

// Default timeout for one open-store bind attempt during discovery.
const DefaultDiscoveryTimeout = 5 * time.Second

// DefaultCertificationRequestCode is the request code used to route
// interactive-certification activity results when the caller does not pick
// its own.
const DefaultCertificationRequestCode = 4002

// Options holds the orchestrator configuration assembled from functional
// options. Zero values fall back to defaults in New.
type Options struct {
	registry                 *Registry
	availableProviders       []Provider
	preferredProviderNames   []string
	checkInventory           bool
	checkInventoryTimeout    time.Duration
	discoveryTimeout         time.Duration
	verificationMode         VerificationMode
	providerKeys             map[string]string
	certificationRequestCode int
	prober                   Prober
	binder                   Binder
	skus                     SkuTranslator
	logger                   zerolog.Logger
}

// Option configures the Helper at construction.
type Option func(*Options)

// WithRegistry replaces the default provider registry.
func WithRegistry(r *Registry) Option {
	return func(o *Options) { o.registry = r }
}

// WithAvailableProviders supplies an explicit provider list. When non-empty
// it overrides the registry during candidate-set construction and known
// installers are resolved against it.
func WithAvailableProviders(providers ...Provider) Option {
	return func(o *Options) {
		o.availableProviders = append(o.availableProviders, providers...)
	}
}

// WithPreferredProviders sets the priority order used when no installer
// match decides the election.
func WithPreferredProviders(names ...string) Option {
	return func(o *Options) {
		o.preferredProviderNames = append(o.preferredProviderNames, names...)
	}
}

// WithCheckInventory makes the orchestrator connect to every billing-capable
// candidate and narrow the election to providers already holding purchase
// records for this application.
func WithCheckInventory() Option {
	return func(o *Options) { o.checkInventory = true }
}

// WithCheckInventoryTimeout bounds the inventory check wait.
func WithCheckInventoryTimeout(d time.Duration) Option {
	return func(o *Options) { o.checkInventoryTimeout = d }
}

// WithDiscoveryTimeout bounds each open-store bind attempt. Attempts are
// never cancelled once issued; on expiry the attempt is abandoned and a late
// completion is ignored.
func WithDiscoveryTimeout(d time.Duration) Option {
	return func(o *Options) { o.discoveryTimeout = d }
}

// WithVerificationMode sets the receipt-key validation policy.
func WithVerificationMode(mode VerificationMode) Option {
	return func(o *Options) { o.verificationMode = mode }
}

// WithProviderKey supplies the base64-encoded public key used to verify
// receipts from the named provider. Keys are validated eagerly: an invalid
// key fails construction.
func WithProviderKey(providerName, base64Key string) Option {
	return func(o *Options) {
		if o.providerKeys == nil {
			o.providerKeys = make(map[string]string)
		}
		o.providerKeys[providerName] = base64Key
	}
}

// WithCertificationRequestCode overrides the request code reserved for
// interactive provider certification, in case the default collides with the
// host application's own codes.
func WithCertificationRequestCode(code int) Option {
	return func(o *Options) { o.certificationRequestCode = code }
}

// WithProber sets the open-store discovery prober. Without one, discovery
// is skipped and selection goes straight to the candidate set.
func WithProber(p Prober) Option {
	return func(o *Options) { o.prober = p }
}

// WithBinder sets the connector used for discovered open-store services.
func WithBinder(b Binder) Option {
	return func(o *Options) { o.binder = b }
}

// WithSkuTranslator sets the SKU mapping service. Without one, SKUs pass
// through untranslated.
func WithSkuTranslator(t SkuTranslator) Option {
	return func(o *Options) { o.skus = t }
}

// WithLogger sets the structured logger. The default logger discards
// everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) { o.logger = l }
}

// validate checks the assembled options. Malformed configuration is a usage
// error and fails construction synchronously.
func (o *Options) validate() error {
	if o.checkInventoryTimeout < 0 {
		return NewBillingError(ErrCodeInvalidArgument,
			fmt.Sprintf("check inventory timeout must not be negative: %v", o.checkInventoryTimeout), nil)
	}
	if o.discoveryTimeout < 0 {
		return NewBillingError(ErrCodeInvalidArgument,
			fmt.Sprintf("discovery timeout must not be negative: %v", o.discoveryTimeout), nil)
	}
	if o.verificationMode != VerifySkip {
		for name, key := range o.providerKeys {
			if err := validatePublicKey(key); err != nil {
				return NewBillingError(ErrCodeInvalidKey,
					fmt.Sprintf("invalid public key for provider %s: %v", name, err),
					map[string]interface{}{"provider": name})
			}
		}
	}
	return nil
}

func (o *Options) availableProviderWithName(name string) Provider {
	for _, p := range o.availableProviders {
		if p.ProviderName() == name {
			return p
		}
	}
	return nil
}

// validatePublicKey checks that the key is valid base64-encoded DER. Receipt
// verification itself happens elsewhere; this only catches broken keys at
// construction instead of at purchase time.
func validatePublicKey(base64Key string) error {
	if base64Key == "" {
		return fmt.Errorf("key is empty")
	}
	der, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return fmt.Errorf("key is not valid base64: %w", err)
	}
	if _, err := x509.ParsePKIXPublicKey(der); err != nil {
		return fmt.Errorf("key is not a valid public key: %w", err)
	}
	return nil
}
