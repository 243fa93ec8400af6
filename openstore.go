package openbilling

import (
	"context"
	"fmt"
	"io"
)

// OpenStoreProvider adapts a bound open-store service to the Provider
// contract. The provider name is read from the service once, at
// construction, so that election never blocks on a remote call for it.
type OpenStoreProvider struct {
	name string
	svc  OpenStoreService
	desc ServiceDescriptor
}

var _ Provider = (*OpenStoreProvider)(nil)
var _ io.Closer = (*OpenStoreProvider)(nil)

// NewOpenStoreProvider wraps a bound service. A service that reports an
// empty provider name is unusable for election and is rejected.
func NewOpenStoreProvider(ctx context.Context, svc OpenStoreService, desc ServiceDescriptor) (*OpenStoreProvider, error) {
	name, err := svc.ProviderName(ctx)
	if err != nil {
		return nil, fmt.Errorf("open store %s did not report a provider name: %w", desc.Package, err)
	}
	if name == "" {
		return nil, NewBillingError(ErrCodeInvalidArgument,
			fmt.Sprintf("open store %s reported an empty provider name", desc.Package), nil)
	}
	return &OpenStoreProvider{name: name, svc: svc, desc: desc}, nil
}

func (p *OpenStoreProvider) ProviderName() string {
	return p.name
}

// Descriptor returns the service descriptor this provider was bound from.
func (p *OpenStoreProvider) Descriptor() ServiceDescriptor {
	return p.desc
}

func (p *OpenStoreProvider) IsBillingAvailable(ctx context.Context, appPackage string) (bool, error) {
	return p.svc.IsBillingAvailable(ctx, appPackage)
}

// PackageVersion is undefined for open stores: the binding contract has no
// installed-version query, and an undefined version passes the freshness
// check.
func (p *OpenStoreProvider) PackageVersion(ctx context.Context, appPackage string) int {
	return PackageVersionUndefined
}

func (p *OpenStoreProvider) BillingSession() BillingSession {
	return p.svc.BillingService()
}

func (p *OpenStoreProvider) Close() error {
	return p.svc.Close()
}
