package openbilling

import "time"

// ============================================================================
// Setup Hook Context Types
// ============================================================================

// SetupContext contains information passed to setup hooks.
type SetupContext struct {
	SetupID   string
	Installer string
	Timestamp time.Time
}

// CandidateRejectedContext describes one provider eliminated during
// selection.
type CandidateRejectedContext struct {
	SetupContext
	ProviderName string
	Reason       string
}

// SetupResultContext contains the terminal setup outcome and context.
type SetupResultContext struct {
	SetupContext
	Result       Result
	ProviderName string
	Duration     time.Duration
}

// ============================================================================
// Setup Hook Function Types
// ============================================================================

// BeforeSetupHook is called on the setup worker before the decision
// procedure starts. Any error returned is logged but does not affect setup.
type BeforeSetupHook func(SetupContext) error

// CandidateRejectedHook is called whenever a candidate fails availability,
// freshness, or binding. Observational only.
type CandidateRejectedHook func(CandidateRejectedContext)

// AfterSetupHook is called after the terminal setup result is recorded,
// before the caller's setup listener runs. Any error returned is logged but
// does not affect the result.
type AfterSetupHook func(SetupResultContext) error

// ============================================================================
// Hook Registration
// ============================================================================

func (h *Helper) OnBeforeSetup(hook BeforeSetupHook) *Helper {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.beforeSetupHooks = append(h.beforeSetupHooks, hook)
	return h
}

func (h *Helper) OnCandidateRejected(hook CandidateRejectedHook) *Helper {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.candidateRejectedHooks = append(h.candidateRejectedHooks, hook)
	return h
}

func (h *Helper) OnAfterSetup(hook AfterSetupHook) *Helper {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.afterSetupHooks = append(h.afterSetupHooks, hook)
	return h
}

func (h *Helper) runBeforeSetupHooks(ctx SetupContext) {
	h.mu.Lock()
	hooks := make([]BeforeSetupHook, len(h.beforeSetupHooks))
	copy(hooks, h.beforeSetupHooks)
	h.mu.Unlock()
	for _, hook := range hooks {
		if err := hook(ctx); err != nil {
			h.log.Warn().Err(err).Str("setup_id", ctx.SetupID).Msg("before-setup hook failed")
		}
	}
}

func (h *Helper) runCandidateRejectedHooks(ctx CandidateRejectedContext) {
	h.mu.Lock()
	hooks := make([]CandidateRejectedHook, len(h.candidateRejectedHooks))
	copy(hooks, h.candidateRejectedHooks)
	h.mu.Unlock()
	for _, hook := range hooks {
		hook(ctx)
	}
}

func (h *Helper) runAfterSetupHooks(ctx SetupResultContext) {
	h.mu.Lock()
	hooks := make([]AfterSetupHook, len(h.afterSetupHooks))
	copy(hooks, h.afterSetupHooks)
	h.mu.Unlock()
	for _, hook := range hooks {
		if err := hook(ctx); err != nil {
			h.log.Warn().Err(err).Str("setup_id", ctx.SetupID).Msg("after-setup hook failed")
		}
	}
}
