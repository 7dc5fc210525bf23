package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/tillsync/internal/model"
)

// ErrInvalidBooking is returned by SubmitBookingNow for a malformed booking.
var ErrInvalidBooking = errors.New("invalid booking")

// ErrStopped is returned by SubmitBookingNow once the engine was stopped.
// After deprovisioning the store may already be wiped, so nothing new is
// written to it.
var ErrStopped = errors.New("sync engine stopped")

// SubmitBookingNow commits a booking locally and, if the device is online,
// starts a flush in the background. total must equal the sum of the line
// items. The returned booking carries the generated id.
//
// The local commit is synchronous; a storage failure is returned and
// nothing is queued. Stop waits for an in-flight commit, so a booking is
// either saved before the engine stops or rejected with ErrStopped.
func (e *Engine) SubmitBookingNow(ctx context.Context, memberID string, items []model.LineItem, total model.Money) (model.Booking, error) {
	if memberID == "" {
		return model.Booking{}, fmt.Errorf("%w: empty member id", ErrInvalidBooking)
	}
	if len(items) == 0 {
		return model.Booking{}, fmt.Errorf("%w: no items", ErrInvalidBooking)
	}
	for _, item := range items {
		if item.ProductID == "" {
			return model.Booking{}, fmt.Errorf("%w: item without product id", ErrInvalidBooking)
		}
		if item.Quantity <= 0 {
			return model.Booking{}, fmt.Errorf("%w: quantity %d for product %s", ErrInvalidBooking, item.Quantity, item.ProductID)
		}
	}
	sum, err := model.Total(items)
	if err != nil {
		return model.Booking{}, fmt.Errorf("%w: %w", ErrInvalidBooking, err)
	}
	if sum.Cmp(total) != 0 {
		return model.Booking{}, fmt.Errorf("%w: total %s does not match items %s", ErrInvalidBooking, total, sum)
	}

	b := model.Booking{
		ID:         e.ids.Generate(),
		MemberID:   memberID,
		Items:      items,
		TotalPrice: total,
		BookedAt:   e.clock.Now().UTC(),
	}
	if err := e.save(ctx, b); err != nil {
		return model.Booking{}, err
	}
	slog.Info("booking saved", "id", b.ID, "member", memberID, "total", total.String())

	if e.online.Load() {
		e.spawn(func(ctx context.Context) {
			e.flush(ctx)
		})
	}
	return b, nil
}

func (e *Engine) save(ctx context.Context, b model.Booking) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrStopped
	}
	if err := e.store.SaveBooking(ctx, b); err != nil {
		return fmt.Errorf("submit booking: %w", err)
	}
	return nil
}

// flush submits every undelivered booking in one batch. Returns false if
// another flush was already running. Bookings saved while the batch is in
// flight are not part of it and go out with the next flush.
func (e *Engine) flush(ctx context.Context) bool {
	if !e.flushing.CompareAndSwap(false, true) {
		slog.Debug("flush already running")
		return false
	}
	defer e.flushing.Store(false)

	pending, err := e.store.ListUndelivered(ctx)
	if err != nil {
		slog.Error("list undelivered bookings", "error", err)
		return true
	}
	if len(pending) == 0 {
		e.lastSync.Store(toNanos(e.clock.Now()))
		return true
	}

	if err := e.gateway.SubmitBookings(ctx, pending); err != nil {
		slog.Warn("booking flush failed, will retry", "count", len(pending), "error", err)
		return true
	}

	ids := make([]string, len(pending))
	for i, b := range pending {
		ids[i] = b.ID
	}
	now := e.clock.Now()
	marked, err := e.store.MarkDelivered(ctx, ids, now)
	if err != nil {
		// The batch is resent next cycle under the same idempotency key.
		slog.Error("mark bookings delivered", "count", len(ids), "error", err)
		return true
	}

	e.lastSync.Store(toNanos(now))
	slog.Info("bookings delivered", "count", marked)
	return true
}
