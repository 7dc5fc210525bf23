package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/tillsync/internal/clock"
	"github.com/roach88/tillsync/internal/remote"
)

// EventLockOpen asks the device to open its lock (e.g. after a web purchase).
const EventLockOpen = "lock:open"

// ErrStreamClosed is reported when the authority ends the stream.
var ErrStreamClosed = errors.New("event stream closed by server")

// Opener opens the event stream. Implemented by *remote.Gateway.
type Opener interface {
	OpenEvents(ctx context.Context) (io.ReadCloser, error)
}

// Host receives side-effect requests. Implemented by *host.Host.
type Host interface {
	OpenLock(reason string) bool
}

// Deprovisioner is invoked once the authority rejects the device.
// Implemented by *deprovision.Handler.
type Deprovisioner interface {
	Deprovision(ctx context.Context) error
}

// Channel maintains the event stream connection.
type Channel struct {
	opener  Opener
	host    Host
	deprov  Deprovisioner
	clock   clock.Clock
	backoff Backoff

	connected atomic.Bool

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
}

// Option configures a Channel.
type Option func(*Channel)

// WithClock sets the clock used for reconnect delays.
func WithClock(c clock.Clock) Option {
	return func(ch *Channel) {
		ch.clock = c
	}
}

// WithBackoff sets the initial and maximum reconnect delays.
func WithBackoff(initial, max time.Duration) Option {
	return func(ch *Channel) {
		ch.backoff = Backoff{Initial: initial, Max: max}
	}
}

// New creates a Channel. deprov may be nil.
func New(opener Opener, host Host, deprov Deprovisioner, opts ...Option) *Channel {
	ch := &Channel{
		opener:  opener,
		host:    host,
		deprov:  deprov,
		clock:   clock.Real(),
		backoff: Backoff{Initial: DefaultInitialBackoff, Max: DefaultMaxBackoff},
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch
}

// Connected reports whether a stream is currently open.
func (ch *Channel) Connected() bool {
	return ch.connected.Load()
}

// Stop closes the stream and ends Run without waiting for it. Events that
// arrive after Stop are dropped. Safe to call more than once and before Run.
func (ch *Channel) Stop() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.stopped = true
	if ch.cancel != nil {
		ch.cancel()
	}
}

func (ch *Channel) isStopped() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.stopped
}

// Run connects and consumes the stream until ctx is done, Stop is called or
// the authority rejects the device. Transient failures, including the server
// closing the stream, are retried after a backoff delay.
//
// Returns ctx.Err() on cancellation, nil after Stop and the
// *remote.AuthError on rejection, after deprovisioning has run.
func (ch *Channel) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch.mu.Lock()
	if ch.stopped {
		ch.mu.Unlock()
		return nil
	}
	ch.cancel = cancel
	ch.mu.Unlock()

	slog.Info("event channel starting")

	for {
		err := ch.consume(ctx)
		if ctx.Err() != nil {
			return ch.stopping(ctx)
		}

		if remote.IsAuthError(err) {
			slog.Error("event channel unauthorized, stopping", "error", err)
			if ch.deprov != nil {
				if derr := ch.deprov.Deprovision(ctx); derr != nil {
					slog.Error("deprovision failed", "error", derr)
				}
			}
			return err
		}

		delay := ch.backoff.Next()
		slog.Warn("event stream disconnected, reconnecting",
			"error", err,
			"attempt", ch.backoff.Failures(),
			"backoff", delay,
		)
		select {
		case <-ctx.Done():
			return ch.stopping(ctx)
		case <-ch.clock.After(delay):
		}
	}
}

func (ch *Channel) stopping(ctx context.Context) error {
	if ch.isStopped() {
		slog.Info("event channel stopping: stopped")
		return nil
	}
	slog.Info("event channel stopping: context cancelled")
	return ctx.Err()
}

// consume runs one connection. It always returns a non-nil error.
func (ch *Channel) consume(ctx context.Context) error {
	body, err := ch.opener.OpenEvents(ctx)
	if err != nil {
		return err
	}
	defer body.Close()

	ch.backoff.Reset()
	ch.connected.Store(true)
	defer ch.connected.Store(false)
	slog.Info("event stream connected")

	if err := Parse(body, ch.dispatch); err != nil {
		return err
	}
	return ErrStreamClosed
}

type lockOpenData struct {
	MemberName string `json:"member_name"`
}

// dispatch hands one event to the host.
func (ch *Channel) dispatch(ev Event) {
	slog.Debug("event received", "type", ev.Type)
	if ch.isStopped() {
		slog.Debug("event channel stopped, dropping event", "type", ev.Type)
		return
	}

	switch ev.Type {
	case EventLockOpen:
		var data lockOpenData
		if err := json.Unmarshal([]byte(ev.Data), &data); err != nil {
			slog.Warn("invalid event payload", "type", ev.Type, "error", err)
			return
		}
		reason := data.MemberName
		if reason == "" {
			reason = "unknown member"
		}
		if !ch.host.OpenLock(fmt.Sprintf("remote purchase by %s", reason)) {
			slog.Warn("host stopped, dropping lock open", "member", reason)
		}
	default:
		slog.Debug("ignoring unknown event type", "type", ev.Type)
	}
}
