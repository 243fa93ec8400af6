package openbilling

import "testing"

func nopFactory(name string) ProviderFactory {
	return func() (Provider, error) { return newFakeProvider(name), nil }
}

func TestRegistryPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry().
		Register("c", "", nopFactory("c")).
		Register("a", "", nopFactory("a")).
		Register("b", "", nopFactory("b"))

	names := r.Names()
	if len(names) != 3 || names[0] != "c" || names[1] != "a" || names[2] != "b" {
		t.Fatalf("unexpected order %v", names)
	}
}

func TestRegistryReRegisterKeepsPosition(t *testing.T) {
	r := NewRegistry().
		Register("a", "", nopFactory("a_old")).
		Register("b", "", nopFactory("b")).
		Register("a", "", nopFactory("a_new"))

	names := r.Names()
	if len(names) != 2 || names[0] != "a" {
		t.Fatalf("re-registration must keep the original position, got %v", names)
	}
	p, err := r.Factory("a")()
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	if p.ProviderName() != "a_new" {
		t.Fatalf("re-registration must replace the factory, got %q", p.ProviderName())
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry().
		Register("a", "", nopFactory("a")).
		Register("b", "", nopFactory("b"))
	r.Unregister("a")
	r.Unregister("missing") // no-op

	if r.Factory("a") != nil {
		t.Fatal("unregistered factory must be gone")
	}
	names := r.Names()
	if len(names) != 1 || names[0] != "b" {
		t.Fatalf("unexpected order after unregister: %v", names)
	}
}

func TestRegistryKnowsMarketplaceInstallers(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{NameGoogle, NameAmazon, NameSamsung, NameNokia, NameYandex, NameAptoide} {
		if got := r.NameForPackage(name); got != name {
			t.Fatalf("expected %q to map to itself, got %q", name, got)
		}
	}
	if got := r.NameForPackage("org.unknown.store"); got != "" {
		t.Fatalf("unknown packages must not map, got %q", got)
	}
}

func TestRegistryInstallerPackageMapping(t *testing.T) {
	r := NewRegistry().Register("org.store.alpha", "org.store.alpha.installer", nopFactory("org.store.alpha"))
	if got := r.NameForPackage("org.store.alpha.installer"); got != "org.store.alpha" {
		t.Fatalf("expected the installer package to map to the provider, got %q", got)
	}

	r.MapPackage("org.store.alpha.mirror", "org.store.alpha")
	if got := r.NameForPackage("org.store.alpha.mirror"); got != "org.store.alpha" {
		t.Fatalf("expected the mapped package to resolve, got %q", got)
	}
}
