// Package sku maintains the bidirectional mapping between an application's
// own SKU identifiers and the identifiers each billing provider knows them
// by. Lookups for unmapped SKUs fall back to the identity mapping, so
// applications that use the same SKU everywhere never need to register
// anything.
package sku

import (
	"errors"
	"sync"
)

var (
	// ErrEmptyProviderName is returned when a lookup or mapping names no provider.
	ErrEmptyProviderName = errors.New("sku: provider name must not be empty")
	// ErrEmptySku is returned when a lookup or mapping carries an empty SKU.
	ErrEmptySku = errors.New("sku: sku must not be empty")
)

// Translator is a concurrency-safe SKU mapping store. Per provider it keeps
// a partial bijection: mapping a pair overwrites any previous pairing of
// either side, so each application SKU maps to at most one provider SKU and
// vice versa.
type Translator struct {
	mu sync.RWMutex
	// provider name -> application sku -> provider sku
	toProvider map[string]map[string]string
	// provider name -> provider sku -> application sku
	toInternal map[string]map[string]string
}

// NewTranslator creates an empty Translator.
func NewTranslator() *Translator {
	return &Translator{
		toProvider: make(map[string]map[string]string),
		toInternal: make(map[string]map[string]string),
	}
}

// Map records that the application SKU is known to the given provider under
// providerSku. Re-mapping either side replaces the stale pairing in both
// directions.
func (t *Translator) Map(internalSku, providerName, providerSku string) error {
	if providerName == "" {
		return ErrEmptyProviderName
	}
	if internalSku == "" || providerSku == "" {
		return ErrEmptySku
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	forward := t.toProvider[providerName]
	if forward == nil {
		forward = make(map[string]string)
		t.toProvider[providerName] = forward
	}
	reverse := t.toInternal[providerName]
	if reverse == nil {
		reverse = make(map[string]string)
		t.toInternal[providerName] = reverse
	}

	if old, ok := forward[internalSku]; ok {
		delete(reverse, old)
	}
	if old, ok := reverse[providerSku]; ok {
		delete(forward, old)
	}
	forward[internalSku] = providerSku
	reverse[providerSku] = internalSku
	return nil
}

// ProviderSku returns the provider-side identifier for an application SKU.
// An unmapped SKU translates to itself.
func (t *Translator) ProviderSku(providerName, internalSku string) (string, error) {
	if providerName == "" {
		return "", ErrEmptyProviderName
	}
	if internalSku == "" {
		return "", ErrEmptySku
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if mapped, ok := t.toProvider[providerName][internalSku]; ok {
		return mapped, nil
	}
	return internalSku, nil
}

// InternalSku returns the application-side identifier for a provider SKU.
// An unmapped SKU translates to itself.
func (t *Translator) InternalSku(providerName, providerSku string) (string, error) {
	if providerName == "" {
		return "", ErrEmptyProviderName
	}
	if providerSku == "" {
		return "", ErrEmptySku
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if mapped, ok := t.toInternal[providerName][providerSku]; ok {
		return mapped, nil
	}
	return providerSku, nil
}

// AllProviderSkus returns every provider SKU registered for a provider.
// Order is unspecified.
func (t *Translator) AllProviderSkus(providerName string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	reverse := t.toInternal[providerName]
	if len(reverse) == 0 {
		return nil
	}
	out := make([]string, 0, len(reverse))
	for providerSku := range reverse {
		out = append(out, providerSku)
	}
	return out
}
