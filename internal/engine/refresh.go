package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/tillsync/internal/model"
)

// ForceRefresh starts a cache refresh in the background regardless of the
// cache age. Returns false if a refresh is already running or the engine
// was stopped.
func (e *Engine) ForceRefresh() bool {
	if e.isStopped() || e.refreshing.Load() {
		return false
	}
	e.spawn(func(ctx context.Context) {
		e.refresh(ctx)
	})
	return true
}

// refreshDue reports whether the cache is older than the refresh interval.
func (e *Engine) refreshDue() bool {
	last := e.lastRefresh.Load()
	if last == 0 {
		return true
	}
	return e.clock.Now().Sub(fromNanos(last)) >= e.refreshInterval
}

// refresh replaces the member and product caches and refreshes the device
// configuration. A member failure aborts the refresh; a product failure
// keeps the new members and still refreshes the configuration.
func (e *Engine) refresh(ctx context.Context) {
	if !e.refreshing.CompareAndSwap(false, true) {
		slog.Debug("refresh already running")
		return
	}
	defer e.refreshing.Store(false)

	members, err := e.gateway.FetchMembers(ctx)
	if err != nil {
		slog.Warn("fetch members failed, keeping cache", "error", err)
		return
	}
	if err := e.store.ReplaceMembers(ctx, members); err != nil {
		slog.Error("replace members", "error", err)
		return
	}

	products, err := e.gateway.FetchProducts(ctx)
	if err != nil {
		slog.Warn("fetch products failed, keeping cached products", "error", err)
	} else if err := e.store.ReplaceProducts(ctx, products); err != nil {
		slog.Error("replace products", "error", err)
	}

	e.refreshConfig(ctx)

	e.lastRefresh.Store(toNanos(e.clock.Now()))
	slog.Info("cache refreshed", "members", len(members), "products", len(products))
}

// refreshConfig persists the served device configuration and hands a
// changed lock configuration to the host.
// CRITICAL: Called only while refreshing is held.
func (e *Engine) refreshConfig(ctx context.Context) {
	cfg, err := e.gateway.FetchConfig(ctx)
	if err != nil {
		slog.Warn("fetch config failed, keeping cached config", "error", err)
		return
	}

	if err := e.loadApplied(ctx); err != nil {
		slog.Error("read cached device config", "error", err)
		return
	}

	fingerprint, err := model.LockFingerprint(cfg.Lock)
	if err != nil {
		slog.Error("fingerprint lock config", "error", err)
		return
	}
	if err := e.store.SaveDeviceConfig(ctx, cfg); err != nil {
		slog.Error("save device config", "error", err)
		return
	}
	e.showBalance.Store(cfg.ShowMemberBalance)

	if fingerprint == e.applied {
		return
	}
	kind := model.LockNone
	if cfg.Lock != nil {
		kind = cfg.Lock.Kind
	}
	if !e.host.SwapLock(cfg.Lock) {
		slog.Warn("host stopped, lock swap dropped", "lock_type", string(kind))
		return
	}
	e.applied = fingerprint
	slog.Info("lock configuration changed", "lock_type", string(kind))
}

// loadApplied initializes the applied fingerprint once, from the initial
// lock or else from the cached configuration.
func (e *Engine) loadApplied(ctx context.Context) error {
	if e.appliedLoaded {
		return nil
	}
	if e.hasInitialLock {
		fp, err := model.LockFingerprint(e.initialLock)
		if err != nil {
			return err
		}
		e.applied = fp
		e.appliedLoaded = true
		return nil
	}

	cfg, fp, found, err := e.store.DeviceConfig(ctx)
	if err != nil {
		return err
	}
	if found {
		e.applied = fp
		e.showBalance.Store(cfg.ShowMemberBalance)
	}
	e.appliedLoaded = true
	return nil
}

// MemberBalance returns the member's open amount. ok is false when the
// feature is disabled, the device is offline or the lookup failed.
func (e *Engine) MemberBalance(ctx context.Context, memberID string) (balance model.Money, ok bool) {
	if !e.showBalance.Load() || !e.online.Load() {
		return model.Money{}, false
	}
	return e.gateway.MemberBalance(ctx, memberID)
}

// LoadCachedConfig primes the status fields from the cached device
// configuration. Called once at startup, before Run.
func (e *Engine) LoadCachedConfig(ctx context.Context) error {
	cfg, _, found, err := e.store.DeviceConfig(ctx)
	if err != nil {
		return err
	}
	if found {
		e.showBalance.Store(cfg.ShowMemberBalance)
	}
	return nil
}
