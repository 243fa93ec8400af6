package sku

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapAndLookup(t *testing.T) {
	tr := NewTranslator()
	require.NoError(t, tr.Map("premium", "com.example.store", "store_premium_1"))

	got, err := tr.ProviderSku("com.example.store", "premium")
	require.NoError(t, err)
	assert.Equal(t, "store_premium_1", got)

	back, err := tr.InternalSku("com.example.store", "store_premium_1")
	require.NoError(t, err)
	assert.Equal(t, "premium", back)
}

func TestIdentityFallback(t *testing.T) {
	tr := NewTranslator()

	got, err := tr.ProviderSku("com.example.store", "coins_100")
	require.NoError(t, err)
	assert.Equal(t, "coins_100", got)

	back, err := tr.InternalSku("com.example.store", "coins_100")
	require.NoError(t, err)
	assert.Equal(t, "coins_100", back)
}

func TestEmptyArguments(t *testing.T) {
	tr := NewTranslator()

	assert.ErrorIs(t, tr.Map("", "store", "x"), ErrEmptySku)
	assert.ErrorIs(t, tr.Map("x", "", "y"), ErrEmptyProviderName)
	assert.ErrorIs(t, tr.Map("x", "store", ""), ErrEmptySku)

	_, err := tr.ProviderSku("", "x")
	assert.ErrorIs(t, err, ErrEmptyProviderName)
	_, err = tr.ProviderSku("store", "")
	assert.ErrorIs(t, err, ErrEmptySku)
	_, err = tr.InternalSku("", "x")
	assert.ErrorIs(t, err, ErrEmptyProviderName)
	_, err = tr.InternalSku("store", "")
	assert.ErrorIs(t, err, ErrEmptySku)
}

func TestRemapReplacesBothDirections(t *testing.T) {
	tr := NewTranslator()
	require.NoError(t, tr.Map("premium", "store", "sku_a"))
	require.NoError(t, tr.Map("premium", "store", "sku_b"))

	got, err := tr.ProviderSku("store", "premium")
	require.NoError(t, err)
	assert.Equal(t, "sku_b", got)

	// The stale pairing is gone: sku_a now falls back to identity.
	back, err := tr.InternalSku("store", "sku_a")
	require.NoError(t, err)
	assert.Equal(t, "sku_a", back)

	// Stealing a provider sku unmaps its previous owner.
	require.NoError(t, tr.Map("deluxe", "store", "sku_b"))
	got, err = tr.ProviderSku("store", "premium")
	require.NoError(t, err)
	assert.Equal(t, "premium", got)
}

func TestMappingsAreScopedPerProvider(t *testing.T) {
	tr := NewTranslator()
	require.NoError(t, tr.Map("premium", "store_one", "one_premium"))

	got, err := tr.ProviderSku("store_two", "premium")
	require.NoError(t, err)
	assert.Equal(t, "premium", got)
}

func TestAllProviderSkus(t *testing.T) {
	tr := NewTranslator()
	assert.Nil(t, tr.AllProviderSkus("store"))

	require.NoError(t, tr.Map("a", "store", "store_a"))
	require.NoError(t, tr.Map("b", "store", "store_b"))
	assert.ElementsMatch(t, []string{"store_a", "store_b"}, tr.AllProviderSkus("store"))
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTranslator()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			skuID := fmt.Sprintf("sku_%d", i)
			_ = tr.Map(skuID, "store", "store_"+skuID)
			_, _ = tr.ProviderSku("store", skuID)
			_, _ = tr.InternalSku("store", "store_"+skuID)
			_ = tr.AllProviderSkus("store")
		}(i)
	}
	wg.Wait()
	assert.Len(t, tr.AllProviderSkus("store"), 16)
}
