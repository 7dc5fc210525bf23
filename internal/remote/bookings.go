package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/roach88/tillsync/internal/model"
)

// idempotencyHeader carries model.BatchKey so the authority can recognize
// a batch resent after a lost acknowledgment.
const idempotencyHeader = "Idempotency-Key"

type batchWire struct {
	Bookings []bookingWire `json:"bookings"`
}

type bookingWire struct {
	ID         string           `json:"id"`
	MemberID   string           `json:"member_id"`
	BookedAt   string           `json:"booked_at"`
	TotalPrice model.Money      `json:"total_price"`
	Items      []model.LineItem `json:"items"`
}

// EncodeBatch renders bookings in the wire format of the sync endpoint.
func EncodeBatch(bookings []model.Booking) ([]byte, error) {
	batch := batchWire{Bookings: make([]bookingWire, len(bookings))}
	for i, b := range bookings {
		items := b.Items
		if items == nil {
			items = []model.LineItem{}
		}
		batch.Bookings[i] = bookingWire{
			ID:         b.ID,
			MemberID:   b.MemberID,
			BookedAt:   b.BookedAt.UTC().Format(time.RFC3339),
			TotalPrice: b.TotalPrice,
			Items:      items,
		}
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	return data, nil
}

// SubmitBookings delivers a batch of bookings. An empty batch succeeds
// without a request. Only 200 and 201 count as acknowledgment; every other
// outcome is an error and the whole batch must be resent later.
func (g *Gateway) SubmitBookings(ctx context.Context, bookings []model.Booking) error {
	const op = "submit bookings"
	if len(bookings) == 0 {
		return nil
	}

	body, err := EncodeBatch(bookings)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}
	key, err := model.BatchKey(bookings)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}

	header := http.Header{}
	header.Set(idempotencyHeader, key)
	resp, err := g.do(ctx, op, http.MethodPost, "/sync/bookings", bytes.NewReader(body), header)
	if err != nil {
		return err
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &TransientError{Op: op, StatusCode: resp.StatusCode}
	}
	return nil
}

type balanceWire struct {
	OpenAmount *model.Money `json:"open_amount"`
}

// MemberBalance returns the open amount of a member. ok is false when the
// balance is unknown for any reason.
func (g *Gateway) MemberBalance(ctx context.Context, memberID string) (balance model.Money, ok bool) {
	const op = "member balance"

	var wire balanceWire
	if err := g.getJSON(ctx, op, "/members/"+url.PathEscape(memberID)+"/balance", &wire); err != nil {
		slog.Debug("balance lookup failed", "member_id", memberID, "error", err)
		return model.Money{}, false
	}
	if wire.OpenAmount == nil {
		return model.Money{}, false
	}
	return *wire.OpenAmount, true
}
