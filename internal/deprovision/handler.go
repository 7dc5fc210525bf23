package deprovision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Stopper halts a periodic activity without waiting for it to exit.
// Implemented by *engine.Engine.
type Stopper interface {
	Stop()
}

// Wiper deletes every locally persisted record. Implemented by *store.Store.
type Wiper interface {
	Wipe(ctx context.Context) error
}

// CredentialRemover deletes the persisted credential record.
// Implemented by config.CredentialFile.
type CredentialRemover interface {
	Remove() error
}

// Restarter requests a full process restart. Implemented by *host.Host.
type Restarter interface {
	RequestRestart() bool
}

// Handler performs deprovisioning exactly once.
//
// Thread-safety: Deprovision may be called concurrently. Only the first call
// does the work; the others block until it has finished and return its
// result.
type Handler struct {
	wiper     Wiper
	creds     CredentialRemover
	restarter Restarter

	mu       sync.Mutex
	stoppers []Stopper

	once sync.Once
	err  error
	done atomic.Bool
}

// New creates a Handler. creds and restarter may be nil.
func New(wiper Wiper, creds CredentialRemover, restarter Restarter) *Handler {
	return &Handler{
		wiper:     wiper,
		creds:     creds,
		restarter: restarter,
	}
}

// AddStopper registers an activity to halt before wiping. Must be called
// before Deprovision.
func (h *Handler) AddStopper(s Stopper) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stoppers = append(h.stoppers, s)
}

// Done reports whether deprovisioning has completed.
func (h *Handler) Done() bool {
	return h.done.Load()
}

// Deprovision stops activity, wipes state, removes credentials and requests
// a restart. Every step is attempted even if an earlier one fails; the
// returned error joins all failures.
func (h *Handler) Deprovision(ctx context.Context) error {
	h.once.Do(func() {
		h.err = h.run(ctx)
		h.done.Store(true)
	})
	return h.err
}

func (h *Handler) run(ctx context.Context) error {
	slog.Error("deprovisioning device: credentials rejected by server")

	h.mu.Lock()
	stoppers := h.stoppers
	h.mu.Unlock()
	for _, s := range stoppers {
		s.Stop()
	}

	// Stopping may cancel the caller's context; the wipe must still run.
	ctx = context.WithoutCancel(ctx)

	var errs []error
	if err := h.wiper.Wipe(ctx); err != nil {
		errs = append(errs, fmt.Errorf("wipe local store: %w", err))
	}
	if h.creds != nil {
		if err := h.creds.Remove(); err != nil {
			errs = append(errs, fmt.Errorf("remove credentials: %w", err))
		}
	}
	if h.restarter != nil && !h.restarter.RequestRestart() {
		slog.Warn("host already stopped, restart request dropped")
	}

	err := errors.Join(errs...)
	if err != nil {
		slog.Error("deprovisioning incomplete", "error", err)
		return err
	}
	slog.Info("device deprovisioned, restarting into setup")
	return nil
}
