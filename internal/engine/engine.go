package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/tillsync/internal/clock"
	"github.com/roach88/tillsync/internal/model"
	"github.com/roach88/tillsync/internal/remote"
)

// Default intervals.
const (
	DefaultSyncInterval    = 60 * time.Second
	DefaultRefreshInterval = 300 * time.Second
)

// ErrDeprovisioned is returned by Run and RunCycle once the authority has
// rejected the device credentials.
var ErrDeprovisioned = errors.New("device deprovisioned")

// Gateway is the request layer to the central authority.
// Implemented by *remote.Gateway.
type Gateway interface {
	ProbeHealth(ctx context.Context) bool
	Heartbeat(ctx context.Context) error
	FetchMembers(ctx context.Context) ([]model.Member, error)
	FetchProducts(ctx context.Context) ([]model.Product, error)
	FetchConfig(ctx context.Context) (model.DeviceConfig, error)
	SubmitBookings(ctx context.Context, bookings []model.Booking) error
	MemberBalance(ctx context.Context, memberID string) (model.Money, bool)
}

// Store is the durable local state. Implemented by *store.Store.
type Store interface {
	SaveBooking(ctx context.Context, b model.Booking) error
	ListUndelivered(ctx context.Context) ([]model.Booking, error)
	MarkDelivered(ctx context.Context, ids []string, at time.Time) (int64, error)
	ReplaceMembers(ctx context.Context, members []model.Member) error
	ReplaceProducts(ctx context.Context, products []model.Product) error
	DeviceConfig(ctx context.Context) (cfg model.DeviceConfig, fingerprint string, found bool, err error)
	SaveDeviceConfig(ctx context.Context, cfg model.DeviceConfig) error
}

// Host applies lock configuration changes. Implemented by *host.Host.
type Host interface {
	SwapLock(cfg *model.LockConfig) bool
}

// Deprovisioner is invoked once the heartbeat is rejected.
// Implemented by *deprovision.Handler.
type Deprovisioner interface {
	Deprovision(ctx context.Context) error
}

// Status is a snapshot of the engine's status fields. Zero times mean
// "never".
type Status struct {
	Online             bool      `json:"online"`
	LastSyncAt         time.Time `json:"last_sync_at"`
	LastCacheRefreshAt time.Time `json:"last_cache_refresh_at"`
	ShowMemberBalance  bool      `json:"show_member_balance"`
}

// Engine runs the reconciliation loop.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine
//   - RunCycle(): called by Run; tests may call it directly instead of Run
//   - SubmitBookingNow(), ForceRefresh(), MemberBalance(), Status(), Stop():
//     safe from any goroutine
//
// Flush and refresh are each guarded so that a manual trigger never runs
// concurrently with the loop's own flush or refresh.
type Engine struct {
	gateway Gateway
	store   Store
	host    Host
	deprov  Deprovisioner
	clock   clock.Clock
	ids     IDGenerator

	syncInterval    time.Duration
	refreshInterval time.Duration

	initialLock    *model.LockConfig
	hasInitialLock bool

	online      atomic.Bool
	showBalance atomic.Bool
	lastSync    atomic.Int64 // unix nanos, 0 = never
	lastRefresh atomic.Int64 // unix nanos, 0 = never

	flushing   atomic.Bool
	refreshing atomic.Bool

	// applied is the fingerprint of the lock configuration the host runs.
	// Written only while refreshing is held.
	applied       string
	appliedLoaded bool

	// mu also serializes booking commits with Stop.
	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	runCtx  context.Context
	tasks   sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for timestamps and the cycle sleep.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the booking id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithSyncInterval sets the sleep between cycles.
//
// Default: 60s (DefaultSyncInterval)
func WithSyncInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.syncInterval = d
	}
}

// WithRefreshInterval sets the maximum cache age before a refresh.
//
// Default: 300s (DefaultRefreshInterval)
func WithRefreshInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.refreshInterval = d
	}
}

// WithInitialLock records the lock configuration the host was started
// with. Without it the cached configuration in the store is assumed.
func WithInitialLock(cfg *model.LockConfig) Option {
	return func(e *Engine) {
		e.initialLock = cfg
		e.hasInitialLock = true
	}
}

// New creates an Engine. deprov may be nil, in which case a rejected
// heartbeat only stops the loop.
func New(gw Gateway, st Store, host Host, deprov Deprovisioner, opts ...Option) *Engine {
	e := &Engine{
		gateway:         gw,
		store:           st,
		host:            host,
		deprov:          deprov,
		clock:           clock.Real(),
		ids:             UUIDv7Generator{},
		syncInterval:    DefaultSyncInterval,
		refreshInterval: DefaultRefreshInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes cycles until ctx is done, Stop is called or the device is
// deprovisioned. Returns ctx.Err() on cancellation, nil after Stop and an
// error wrapping ErrDeprovisioned after a rejected heartbeat.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.cancel = cancel
	e.runCtx = ctx
	e.mu.Unlock()

	slog.Info("sync engine starting",
		"sync_interval", e.syncInterval,
		"refresh_interval", e.refreshInterval,
	)

	for {
		if err := e.RunCycle(ctx); err != nil {
			slog.Error("sync engine stopping", "error", err)
			return err
		}

		select {
		case <-ctx.Done():
			if e.isStopped() {
				slog.Info("sync engine stopping: stopped")
				return nil
			}
			slog.Info("sync engine stopping: context cancelled")
			return ctx.Err()
		case <-e.clock.After(e.syncInterval):
		}
	}
}

// Stop ends the loop without waiting for it. An in-flight request runs to
// its own timeout. Once Stop returns, SubmitBookingNow rejects new bookings.
// Safe to call more than once and before Run.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	if e.cancel != nil {
		e.cancel()
	}
}

// Wait blocks until every on-demand flush and refresh has finished.
func (e *Engine) Wait() {
	e.tasks.Wait()
}

func (e *Engine) isStopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// RunCycle performs one reconciliation cycle. Every failure except a
// rejected heartbeat is logged and left for the next cycle.
//
// Returns an error wrapping ErrDeprovisioned if the heartbeat was rejected;
// in that case nothing was flushed or refreshed.
func (e *Engine) RunCycle(ctx context.Context) error {
	online := e.gateway.ProbeHealth(ctx)
	if e.online.Swap(online) != online {
		slog.Info("connectivity changed", "online", online)
	}
	if !online {
		slog.Debug("offline, skipping cycle")
		return nil
	}

	if err := e.gateway.Heartbeat(ctx); err != nil {
		if remote.IsAuthError(err) {
			slog.Error("heartbeat rejected, deprovisioning", "error", err)
			e.deprovision(ctx)
			return fmt.Errorf("%w: %w", ErrDeprovisioned, err)
		}
		slog.Warn("heartbeat failed", "error", err)
		return nil
	}

	e.flush(ctx)

	if e.refreshDue() {
		e.refresh(ctx)
	}
	return nil
}

func (e *Engine) deprovision(ctx context.Context) {
	if e.deprov == nil {
		e.Stop()
		return
	}
	if err := e.deprov.Deprovision(ctx); err != nil {
		slog.Error("deprovision failed", "error", err)
	}
}

// Status returns a snapshot of the status fields.
func (e *Engine) Status() Status {
	return Status{
		Online:             e.online.Load(),
		LastSyncAt:         fromNanos(e.lastSync.Load()),
		LastCacheRefreshAt: fromNanos(e.lastRefresh.Load()),
		ShowMemberBalance:  e.showBalance.Load(),
	}
}

// background returns the context for on-demand tasks: the Run context
// while the loop runs, otherwise a fresh one.
func (e *Engine) background() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runCtx != nil {
		return e.runCtx
	}
	return context.Background()
}

// spawn runs fn as a tracked on-demand task.
func (e *Engine) spawn(fn func(ctx context.Context)) {
	ctx := e.background()
	e.tasks.Add(1)
	go func() {
		defer e.tasks.Done()
		fn(ctx)
	}()
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
