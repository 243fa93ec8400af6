package openbilling

import (
	"context"
	"sync"
)

// checkInventory narrows the candidate set to the providers that already
// hold at least one purchase for this application. Each available candidate
// gets a throwaway session whose inventory is queried concurrently; the
// check waits at most the configured timeout and then proceeds with
// whatever answered in time. Candidate order is preserved.
func (h *Helper) checkInventory(ctx context.Context, candidates []candidate) []candidate {
	appPackage := h.platform.AppPackage()

	var eligible []candidate
	for _, c := range candidates {
		available, err := c.provider.IsBillingAvailable(ctx, appPackage)
		if err != nil {
			h.log.Warn().Err(err).
				Str("provider", c.provider.ProviderName()).
				Msg("availability check failed during inventory check")
			continue
		}
		if available {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	h.log.Debug().Int("candidates", len(eligible)).Msg("inventory check started")

	var (
		mu       sync.Mutex
		equipped = make(map[string]bool)
	)
	barrier := newCountBarrier(len(eligible))

	for _, c := range eligible {
		name := c.provider.ProviderName()
		session := c.provider.BillingSession()
		session.StartSetup(ctx, func(res Result) {
			if res.IsFailure() {
				h.log.Debug().Str("provider", name).Str("result", res.String()).
					Msg("session setup failed during inventory check")
				session.Dispose()
				barrier.countDown()
				return
			}
			go func() {
				defer barrier.countDown()
				defer session.Dispose()
				inventory, err := session.QueryInventory(ctx, false, nil, nil)
				if err != nil {
					h.log.Warn().Err(err).Str("provider", name).
						Msg("inventory query failed during inventory check")
					return
				}
				if len(inventory.AllPurchases()) > 0 {
					mu.Lock()
					equipped[name] = true
					mu.Unlock()
				}
			}()
		})
	}

	if !barrier.wait(h.opts.checkInventoryTimeout) {
		h.log.Warn().Int("outstanding", barrier.remaining()).
			Msg("inventory check timed out, proceeding with partial results")
	}

	mu.Lock()
	defer mu.Unlock()
	var out []candidate
	for _, c := range eligible {
		if equipped[c.provider.ProviderName()] {
			out = append(out, c)
		}
	}
	return out
}
