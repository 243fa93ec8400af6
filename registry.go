package openbilling

// ProviderFactory constructs one provider capability instance lazily.
// Factories must be cheap; expensive work belongs in IsBillingAvailable or
// the billing session's setup.
type ProviderFactory func() (Provider, error)

// Registry is the static table of known providers: which installer package
// maps to which provider name, and how to construct each provider. Iteration
// over factories preserves registration order; candidate evaluation depends
// on that.
type Registry struct {
	order     []string
	factories map[string]ProviderFactory
	packages  map[string]string
}

// NewRegistry creates an empty registry pre-seeded with the installer
// packages of the known marketplaces and open stores. Factories are
// registered by the embedding application for the adapters it ships.
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]ProviderFactory),
		packages:  make(map[string]string),
	}
	r.MapPackage(NameGoogle, NameGoogle)
	r.MapPackage(NameAmazon, NameAmazon)
	r.MapPackage(NameSamsung, NameSamsung)
	r.MapPackage(NameNokia, NameNokia)
	r.MapPackage(NameYandex, NameYandex)
	r.MapPackage(NameAptoide, NameAptoide)
	return r
}

// Register adds a provider factory under the given name and maps
// installerPackage to it when non-empty. Registering the same name twice
// replaces the factory but keeps the original position in registry order.
func (r *Registry) Register(name, installerPackage string, factory ProviderFactory) *Registry {
	if _, exists := r.factories[name]; !exists {
		r.order = append(r.order, name)
	}
	r.factories[name] = factory
	if installerPackage != "" {
		r.packages[installerPackage] = name
	}
	return r
}

// MapPackage records that the given installer package belongs to the named
// provider without registering a factory.
func (r *Registry) MapPackage(installerPackage, name string) *Registry {
	r.packages[installerPackage] = name
	return r
}

// Unregister removes a provider factory, e.g. when a required platform
// capability for it is missing.
func (r *Registry) Unregister(name string) {
	if _, exists := r.factories[name]; !exists {
		return
	}
	delete(r.factories, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Factory returns the factory registered under name, or nil.
func (r *Registry) Factory(name string) ProviderFactory {
	return r.factories[name]
}

// Names returns provider names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// NameForPackage returns the provider name a known installer package maps
// to, or the empty string when the package is not recognized.
func (r *Registry) NameForPackage(installerPackage string) string {
	return r.packages[installerPackage]
}
