package openbilling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openbilling/openbilling/go/sku"
)

// Helper is the selection orchestrator: it discovers and elects exactly one
// billing provider and thereafter forwards every billing operation to that
// provider's session. A Helper runs setup at most once; concurrent Helper
// instances are fully independent.
type Helper struct {
	mu sync.Mutex

	platform Platform
	opts     Options
	log      zerolog.Logger

	state    SetupState
	provider Provider
	session  BillingSession

	// set only when the helper instantiated the winning provider itself
	ownsProvider bool

	// provider undergoing its interactive certification step while setup is
	// still in flight; activity results are routed here first
	certProvider Provider
	certSession  BillingSession

	dispatch *dispatcher

	// advisory only: which asynchronous billing operation is in flight.
	// Tracked for diagnostics, not enforced as mutual exclusion; concurrent
	// Consume/Query calls are legal.
	asyncInProgress bool
	asyncOperation  string

	beforeSetupHooks       []BeforeSetupHook
	candidateRejectedHooks []CandidateRejectedHook
	afterSetupHooks        []AfterSetupHook
}

// New creates a Helper for the given platform. Malformed configuration
// (negative timeout, invalid receipt key) fails construction immediately.
func New(platform Platform, opts ...Option) (*Helper, error) {
	if platform == nil {
		return nil, NewBillingError(ErrCodeInvalidArgument, "platform must not be nil", nil)
	}

	options := Options{
		checkInventoryTimeout:    DefaultCheckInventoryTimeout,
		discoveryTimeout:         DefaultDiscoveryTimeout,
		certificationRequestCode: DefaultCertificationRequestCode,
		logger:                   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.registry == nil {
		options.registry = NewRegistry()
	}
	if options.skus == nil {
		options.skus = sku.NewTranslator()
	}
	if err := options.validate(); err != nil {
		return nil, err
	}

	return &Helper{
		platform: platform,
		opts:     options,
		log:      options.logger,
		state:    SetupNotStarted,
		dispatch: newDispatcher(),
	}, nil
}

// StartSetup runs the provider election and reports the terminal outcome to
// the listener, which is invoked on the helper's callback dispatcher. Setup
// runs at most once per Helper; a second call is a usage error.
func (h *Helper) StartSetup(listener SetupListener) error {
	if listener == nil {
		return errMissingListener("startSetup")
	}

	h.mu.Lock()
	if h.state != SetupNotStarted {
		state := h.state
		h.mu.Unlock()
		return errIllegalState("startSetup", state)
	}
	h.state = SetupInProgress
	h.mu.Unlock()

	sctx := SetupContext{
		SetupID:   uuid.NewString(),
		Installer: h.platform.InstallerPackage(),
		Timestamp: time.Now(),
	}
	go h.runSetup(sctx, listener)
	return nil
}

// selection is the outcome of the decision procedure.
type selection struct {
	provider Provider
	owned    bool
	result   Result
}

// runSetup is the single setup worker for this helper instance.
func (h *Helper) runSetup(sctx SetupContext, listener SetupListener) {
	start := time.Now()
	log := h.log.With().Str("setup_id", sctx.SetupID).Logger()
	log.Debug().Str("installer", sctx.Installer).Msg("setup started")

	h.runBeforeSetupHooks(sctx)

	ctx := context.Background()
	sel := h.selectProvider(ctx, sctx, log)
	if sel.result.IsFailure() || sel.provider == nil {
		h.completeSetup(sctx, listener, sel.result, nil, nil, false, start, log)
		return
	}

	// The winner's session must finish its own setup before the overall
	// result is reported.
	session := sel.provider.BillingSession()
	if _, ok := sel.provider.(CertificationAware); ok {
		h.mu.Lock()
		h.certProvider, h.certSession = sel.provider, session
		h.mu.Unlock()
	}
	session.StartSetup(ctx, func(res Result) {
		h.mu.Lock()
		h.certProvider, h.certSession = nil, nil
		h.mu.Unlock()
		if res.IsFailure() {
			session.Dispose()
			if sel.owned {
				closeProvider(sel.provider)
			}
			h.completeSetup(sctx, listener, res, nil, nil, false, start, log)
			return
		}
		h.completeSetup(sctx, listener, res, sel.provider, session, sel.owned, start, log)
	})
}

// completeSetup commits the terminal state transition on the calling
// goroutine, then delivers the result on the dispatcher. The commit must not
// go through the dispatcher: disposal closes it, and a winner whose cleanup
// rode on a dropped task would never be destroyed. Once the transition is
// committed, Dispose finds the session in h.session and tears it down;
// disposal wins over late completions only in that the listener is skipped.
// Reaching a terminal result outside InProgress is a concurrency violation
// and fails fast.
func (h *Helper) completeSetup(sctx SetupContext, listener SetupListener, result Result,
	provider Provider, session BillingSession, owned bool, start time.Time, log zerolog.Logger) {

	h.mu.Lock()
	if h.state == SetupDisposed {
		h.mu.Unlock()
		if session != nil {
			session.Dispose()
		}
		if owned && provider != nil {
			closeProvider(provider)
		}
		return
	}
	if h.state != SetupInProgress {
		state := h.state
		h.mu.Unlock()
		panic(fmt.Sprintf("openbilling: setup finished while %s", state))
	}
	if result.IsSuccess() {
		if provider == nil {
			h.mu.Unlock()
			panic("openbilling: successful setup without a provider")
		}
		h.state = SetupSuccessful
		h.provider = provider
		h.session = session
		h.ownsProvider = owned
	} else {
		h.state = SetupFailed
	}
	h.mu.Unlock()

	rctx := SetupResultContext{
		SetupContext: sctx,
		Result:       result,
		Duration:     time.Since(start),
	}
	if provider != nil {
		rctx.ProviderName = provider.ProviderName()
	}

	h.dispatch.post(func() {
		h.runAfterSetupHooks(rctx)

		log.Info().
			Str("result", result.String()).
			Str("provider", rctx.ProviderName).
			Dur("duration", rctx.Duration).
			Msg("setup done")
		listener(result)
	})
}

// ============================================================================
// Decision Procedure
// ============================================================================

// selectProvider drives the election: installer fast path first, then the
// targeted open-store probe, then global discovery and the candidate set.
func (h *Helper) selectProvider(ctx context.Context, sctx SetupContext, log zerolog.Logger) selection {
	installer := h.platform.InstallerPackage()
	if installer == "" {
		return h.selectFallback(ctx, sctx, log)
	}
	if !h.platform.PackageInstalled(installer) {
		// Installer no longer exists; fall back to the default algorithm.
		log.Debug().Str("installer", installer).Msg("installer package is gone")
		return h.selectFallback(ctx, sctx, log)
	}

	if name := h.opts.registry.NameForPackage(installer); name != "" {
		return h.selectKnownInstaller(ctx, sctx, name, log)
	}

	// Installer is unknown to the registry; look for it among the
	// discoverable open stores.
	if sel, ok := h.probeInstallerService(ctx, sctx, installer, log); ok {
		return sel
	}
	return h.selectFallback(ctx, sctx, log)
}

// selectKnownInstaller handles the installer fast path. A recognized
// installer that fails its own availability or freshness check ends setup in
// failure; it is not retried against alternative providers.
func (h *Helper) selectKnownInstaller(ctx context.Context, sctx SetupContext, name string, log zerolog.Logger) selection {
	var (
		provider Provider
		owned    bool
	)
	if len(h.opts.availableProviders) > 0 {
		provider = h.opts.availableProviderWithName(name)
	} else if factory := h.opts.registry.Factory(name); factory != nil {
		p, err := factory()
		if err != nil {
			log.Warn().Err(err).Str("provider", name).Msg("provider factory failed")
		} else {
			provider, owned = p, true
		}
	}
	if provider == nil {
		log.Debug().Str("provider", name).Msg("installer is a known provider but no instance is configured")
		return selection{result: noProviderResult()}
	}

	if reason := h.qualify(ctx, provider); reason != "" {
		h.runCandidateRejectedHooks(CandidateRejectedContext{
			SetupContext: sctx,
			ProviderName: name,
			Reason:       reason,
		})
		if owned {
			closeProvider(provider)
		}
		log.Debug().Str("provider", name).Str("reason", reason).Msg("installer provider rejected")
		return selection{result: noProviderResult()}
	}
	return selection{provider: provider, owned: owned, result: setupOKResult()}
}

// probeInstallerService looks for an open-store service whose package equals
// the installer. Only the matching service is tried; its failure falls
// through to the general algorithm.
func (h *Helper) probeInstallerService(ctx context.Context, sctx SetupContext, installer string, log zerolog.Logger) (selection, bool) {
	if h.opts.prober == nil || h.opts.binder == nil {
		return selection{}, false
	}
	descs, err := h.opts.prober.QueryServices(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("open-store discovery failed")
		return selection{}, false
	}
	for _, desc := range descs {
		if desc.Package != installer {
			continue
		}
		provider, reason := h.bindAndQualify(ctx, desc)
		if provider != nil {
			return selection{provider: provider, owned: true, result: setupOKResult()}, true
		}
		h.runCandidateRejectedHooks(CandidateRejectedContext{
			SetupContext: sctx,
			ProviderName: desc.Package,
			Reason:       reason,
		})
		return selection{}, false
	}
	return selection{}, false
}

// selectFallback enumerates every discoverable open store in discovery
// order, then evaluates the ordered candidate set. First qualifier wins;
// there is no re-ordering for fastest responder.
func (h *Helper) selectFallback(ctx context.Context, sctx SetupContext, log zerolog.Logger) selection {
	if h.opts.prober != nil && h.opts.binder != nil {
		descs, err := h.opts.prober.QueryServices(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("open-store discovery failed")
		}
		for _, desc := range descs {
			provider, reason := h.bindAndQualify(ctx, desc)
			if provider != nil {
				return selection{provider: provider, owned: true, result: setupOKResult()}
			}
			h.runCandidateRejectedHooks(CandidateRejectedContext{
				SetupContext: sctx,
				ProviderName: desc.Package,
				Reason:       reason,
			})
		}
	}

	all := h.buildCandidateSet(log)
	if len(all) == 0 {
		return selection{result: noProviderResult()}
	}

	pool := all
	if h.opts.checkInventory {
		if equipped := h.checkInventory(ctx, all); len(equipped) > 0 {
			pool = equipped
		}
	}

	var winner candidate
	for _, c := range pool {
		if reason := h.qualify(ctx, c.provider); reason != "" {
			h.runCandidateRejectedHooks(CandidateRejectedContext{
				SetupContext: sctx,
				ProviderName: c.provider.ProviderName(),
				Reason:       reason,
			})
			continue
		}
		// First qualifier wins; remaining candidates are never evaluated.
		winner = c
		break
	}

	for _, c := range all {
		if c.owned && c.provider != winner.provider {
			closeProvider(c.provider)
		}
	}

	if winner.provider == nil {
		return selection{result: noProviderResult()}
	}
	return selection{provider: winner.provider, owned: winner.owned, result: setupOKResult()}
}

// candidate is one provider under consideration, plus whether the helper
// instantiated it (and therefore must close it on rejection).
type candidate struct {
	provider Provider
	owned    bool
}

// buildCandidateSet assembles the ordered, name-deduplicated candidate list:
// preferred names first, then the explicit provider list verbatim, otherwise
// every remaining registry provider in registry order. First occurrence of a
// name wins, so preference order dominates registry order.
func (h *Helper) buildCandidateSet(log zerolog.Logger) []candidate {
	seen := make(map[string]bool)
	var out []candidate

	add := func(p Provider, owned bool) {
		name := p.ProviderName()
		if name == "" || seen[name] {
			if owned {
				closeProvider(p)
			}
			if name == "" {
				log.Warn().Msg("provider reported an empty name; rejected")
			}
			return
		}
		seen[name] = true
		out = append(out, candidate{provider: p, owned: owned})
	}

	for _, name := range h.opts.preferredProviderNames {
		if len(h.opts.availableProviders) > 0 {
			if p := h.opts.availableProviderWithName(name); p != nil {
				add(p, false)
			}
		} else if factory := h.opts.registry.Factory(name); factory != nil {
			p, err := factory()
			if err != nil {
				log.Warn().Err(err).Str("provider", name).Msg("provider factory failed")
				continue
			}
			add(p, true)
		}
	}

	if len(h.opts.availableProviders) > 0 {
		for _, p := range h.opts.availableProviders {
			add(p, false)
		}
		return out
	}

	for _, name := range h.opts.registry.Names() {
		if seen[name] {
			// No need to instantiate a provider that is already a candidate.
			continue
		}
		p, err := h.opts.registry.Factory(name)()
		if err != nil {
			log.Warn().Err(err).Str("provider", name).Msg("provider factory failed")
			continue
		}
		add(p, true)
	}
	return out
}

// qualify runs the availability and freshness checks. It returns the empty
// string when the provider qualifies, otherwise the rejection reason.
func (h *Helper) qualify(ctx context.Context, p Provider) string {
	appPackage := h.platform.AppPackage()
	available, err := p.IsBillingAvailable(ctx, appPackage)
	if err != nil {
		return fmt.Sprintf("billing availability check failed: %v", err)
	}
	if !available {
		return "billing unavailable"
	}
	if !h.versionOK(ctx, p) {
		return "provider installed an older application version"
	}
	return ""
}

// versionOK is the freshness check: the provider's reported installed-app
// version must be at least the application's own version code. An undefined
// version passes.
func (h *Helper) versionOK(ctx context.Context, p Provider) bool {
	version := p.PackageVersion(ctx, h.platform.AppPackage())
	if version == PackageVersionUndefined {
		return true
	}
	return version >= h.platform.AppVersionCode()
}

// bindAndQualify connects to one discovered open-store service and runs the
// standard checks against it.
func (h *Helper) bindAndQualify(ctx context.Context, desc ServiceDescriptor) (Provider, string) {
	svc, err := h.bindWithTimeout(ctx, desc)
	if err != nil {
		return nil, fmt.Sprintf("bind failed: %v", err)
	}
	provider, err := NewOpenStoreProvider(ctx, svc, desc)
	if err != nil {
		_ = svc.Close()
		return nil, err.Error()
	}
	if reason := h.qualify(ctx, provider); reason != "" {
		closeProvider(provider)
		return nil, reason
	}
	return provider, ""
}

// bindWithTimeout issues the bind on its own goroutine and waits up to the
// discovery timeout. Attempts are never cancelled; on expiry the branch is
// abandoned and a late completion is closed and ignored.
func (h *Helper) bindWithTimeout(ctx context.Context, desc ServiceDescriptor) (OpenStoreService, error) {
	type bindResult struct {
		svc OpenStoreService
		err error
	}
	ch := make(chan bindResult)
	go func() {
		svc, err := h.opts.binder.Bind(ctx, desc)
		select {
		case ch <- bindResult{svc: svc, err: err}:
		default:
			// Nobody is waiting anymore.
			if svc != nil {
				_ = svc.Close()
			}
		}
	}()

	timer := time.NewTimer(h.opts.discoveryTimeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.svc, r.err
	case <-timer.C:
		return nil, fmt.Errorf("bind to %s timed out after %v", desc.Package, h.opts.discoveryTimeout)
	}
}

// ============================================================================
// Lifecycle
// ============================================================================

// Dispose releases the helper. It is accepted in any state and transitions
// to the terminal Disposed state even if setup never completed.
func (h *Helper) Dispose() {
	h.mu.Lock()
	if h.state == SetupDisposed {
		h.mu.Unlock()
		return
	}
	h.log.Debug().Msg("disposing")
	session := h.session
	provider := h.provider
	owned := h.ownsProvider
	h.state = SetupDisposed
	h.session = nil
	h.provider = nil
	h.certProvider, h.certSession = nil, nil
	h.mu.Unlock()

	if session != nil {
		session.Dispose()
	}
	if owned && provider != nil {
		closeProvider(provider)
	}
	h.dispatch.close()
}

// SetupState returns the orchestrator's current state.
func (h *Helper) SetupState() SetupState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// ConnectedProviderName returns the name of the elected provider, or the
// empty string when setup has not succeeded.
func (h *Helper) ConnectedProviderName() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.provider == nil {
		return ""
	}
	return h.provider.ProviderName()
}

// AsyncOperationInProgress reports the advisory async-operation flag and the
// operation name. Best effort, for diagnostics only; it is not relied upon
// for mutual exclusion.
func (h *Helper) AsyncOperationInProgress() (bool, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.asyncInProgress, h.asyncOperation
}

func (h *Helper) flagStartAsync(operation string) {
	h.mu.Lock()
	h.asyncInProgress = true
	h.asyncOperation = operation
	h.mu.Unlock()
	h.log.Debug().Str("operation", operation).Msg("starting async operation")
}

func (h *Helper) flagEndAsync() {
	h.mu.Lock()
	operation := h.asyncOperation
	h.asyncInProgress = false
	h.asyncOperation = ""
	h.mu.Unlock()
	h.log.Debug().Str("operation", operation).Msg("ending async operation")
}

func setupOKResult() Result {
	return NewResult(ResponseOK, "Setup ok")
}

func noProviderResult() Result {
	return NewResult(ResponseBillingUnavailable, "No suitable billing provider was found")
}
