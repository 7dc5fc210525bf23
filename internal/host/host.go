package host

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/tillsync/internal/clock"
	"github.com/roach88/tillsync/internal/lock"
	"github.com/roach88/tillsync/internal/model"
)

// ErrRestartRequested is returned by Run after RequestRestart.
var ErrRestartRequested = errors.New("restart requested")

// shutdownTimeout bounds closing the lock when Run exits.
const shutdownTimeout = 5 * time.Second

// DriverFactory builds the driver for a lock configuration (nil = no lock).
type DriverFactory func(cfg *model.LockConfig) (lock.Driver, error)

// Host owns the active lock driver and applies posted commands.
//
// Thread-safety model:
//   - SwapLock(), OpenLock(), RequestRestart(), DriverName(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Host struct {
	queue     *commandQueue
	clock     clock.Clock
	newDriver DriverFactory
	initial   *model.LockConfig

	driverName atomic.Pointer[string]

	// Owned by the Run goroutine.
	driver  lock.Driver
	opening uint64
	isOpen  bool
	openFor time.Duration
}

// Option configures a Host.
type Option func(*Host)

// WithClock sets the clock used to schedule lock closing.
func WithClock(c clock.Clock) Option {
	return func(h *Host) {
		h.clock = c
	}
}

// WithDriverFactory replaces lock.New as the driver constructor.
func WithDriverFactory(f DriverFactory) Option {
	return func(h *Host) {
		h.newDriver = f
	}
}

// New creates a Host whose first driver is built from initial when Run
// starts.
func New(initial *model.LockConfig, opts ...Option) *Host {
	h := &Host{
		queue: newCommandQueue(),
		clock: clock.Real(),
		newDriver: func(cfg *model.LockConfig) (lock.Driver, error) {
			return lock.New(cfg)
		},
		initial: cloneLock(initial),
	}
	for _, opt := range opts {
		opt(h)
	}
	none := "none"
	h.driverName.Store(&none)
	return h
}

// SwapLock asks the host to release the current driver and build one for
// cfg. Returns false if the host has stopped.
func (h *Host) SwapLock(cfg *model.LockConfig) bool {
	return h.queue.Enqueue(Command{Type: CommandSwapLock, Lock: cloneLock(cfg)})
}

// OpenLock asks the host to open the lock for its configured duration.
// Returns false if the host has stopped.
func (h *Host) OpenLock(reason string) bool {
	return h.queue.Enqueue(Command{Type: CommandOpenLock, Reason: reason})
}

// RequestRestart asks the host to stop so the process restarts from a clean
// state. Returns false if the host has already stopped.
func (h *Host) RequestRestart() bool {
	return h.queue.Enqueue(Command{Type: CommandRestart})
}

// DriverName returns the name of the active driver ("none" before Run).
func (h *Host) DriverName() string {
	return *h.driverName.Load()
}

// Run builds the initial driver and applies commands until ctx is done or a
// restart is requested. The driver is closed and released before Run
// returns.
func (h *Host) Run(ctx context.Context) error {
	slog.Info("host starting")
	h.install(h.initial)
	defer h.shutdown()

	for {
		cmd, ok := h.queue.TryDequeue()
		if ok {
			if h.apply(ctx, cmd) {
				slog.Info("host stopping: restart requested")
				h.queue.Close()
				return ErrRestartRequested
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("host stopping: context cancelled")
			h.queue.Close()
			return ctx.Err()
		case <-h.queue.Wait():
		}
	}
}

// apply executes one command. Returns true if the host must stop.
// CRITICAL: Called only from Run() goroutine.
func (h *Host) apply(ctx context.Context, cmd Command) bool {
	switch cmd.Type {
	case CommandSwapLock:
		h.closeIfOpen(ctx)
		h.release()
		h.install(cmd.Lock)

	case CommandOpenLock:
		if err := h.driver.Activate(ctx); err != nil {
			slog.Warn("lock open failed", "reason", cmd.Reason, "error", err)
			return false
		}
		h.opening++
		h.isOpen = true
		slog.Info("lock opened", "reason", cmd.Reason, "duration", h.openFor)
		h.scheduleClose(ctx, h.opening)

	case CommandCloseLock:
		// A later open or a swap supersedes this close.
		if cmd.opening == h.opening {
			h.closeIfOpen(ctx)
		}

	case CommandRestart:
		return true
	}
	return false
}

// scheduleClose posts a close command for opening after the open duration.
func (h *Host) scheduleClose(ctx context.Context, opening uint64) {
	after := h.clock.After(h.openFor)
	go func() {
		select {
		case <-after:
			h.queue.Enqueue(Command{Type: CommandCloseLock, opening: opening})
		case <-ctx.Done():
		}
	}()
}

func (h *Host) install(cfg *model.LockConfig) {
	d, err := h.newDriver(cfg)
	if err != nil {
		slog.Error("lock driver unavailable, lock disabled", "error", err)
		d = lock.Noop{}
	}
	h.driver = d
	h.openFor = model.DefaultOpenDuration
	if cfg != nil && cfg.OpenDuration > 0 {
		h.openFor = cfg.OpenDuration
	}

	name := lock.Name(d)
	h.driverName.Store(&name)
	slog.Info("lock driver installed", "driver", name)
}

func (h *Host) closeIfOpen(ctx context.Context) {
	if !h.isOpen {
		return
	}
	h.isOpen = false
	// Invalidate any pending close for this opening.
	h.opening++
	if err := h.driver.Deactivate(ctx); err != nil {
		slog.Warn("lock close failed", "error", err)
		return
	}
	slog.Info("lock closed")
}

func (h *Host) release() {
	if h.driver == nil {
		return
	}
	if err := h.driver.Release(); err != nil {
		slog.Warn("lock driver release failed", "driver", lock.Name(h.driver), "error", err)
	}
	h.driver = nil
}

func (h *Host) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	h.closeIfOpen(ctx)
	h.release()
	none := "none"
	h.driverName.Store(&none)
}

func cloneLock(cfg *model.LockConfig) *model.LockConfig {
	if cfg == nil {
		return nil
	}
	c := *cfg
	if cfg.GPIOPin != nil {
		pin := *cfg.GPIOPin
		c.GPIOPin = &pin
	}
	return &c
}
