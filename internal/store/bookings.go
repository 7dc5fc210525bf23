package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/tillsync/internal/model"
)

// markChunkSize keeps IN (...) lists under SQLite's bound-parameter limit.
const markChunkSize = 500

// SaveBooking appends a booking to the queue. The booking is stored as
// undelivered regardless of b.Delivered.
//
// Returns an error if a booking with the same ID already exists; bookings
// are never overwritten.
func (s *Store) SaveBooking(ctx context.Context, b model.Booking) error {
	if b.ID == "" {
		return fmt.Errorf("save booking: empty id")
	}
	if b.MemberID == "" {
		return fmt.Errorf("save booking %s: empty member id", b.ID)
	}

	itemsJSON, err := marshalItems(b.Items)
	if err != nil {
		return fmt.Errorf("save booking %s: %w", b.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bookings (id, member_id, items, total_price, booked_at, delivered)
		VALUES (?, ?, ?, ?, ?, 0)
	`,
		b.ID,
		b.MemberID,
		itemsJSON,
		b.TotalPrice.String(),
		formatTime(b.BookedAt),
	)
	if err != nil {
		return fmt.Errorf("save booking %s: %w", b.ID, err)
	}
	return nil
}

// ListUndelivered returns every booking not yet acknowledged by the central
// authority, in insertion order.
// Returns an empty slice (not nil) if nothing is pending.
func (s *Store) ListUndelivered(ctx context.Context) ([]model.Booking, error) {
	return s.listBookings(ctx, true)
}

// ListBookings returns the full local booking audit trail in insertion order.
func (s *Store) ListBookings(ctx context.Context) ([]model.Booking, error) {
	return s.listBookings(ctx, false)
}

func (s *Store) listBookings(ctx context.Context, undeliveredOnly bool) ([]model.Booking, error) {
	query := `
		SELECT id, member_id, items, total_price, booked_at, delivered, delivered_at
		FROM bookings`
	if undeliveredOnly {
		query += ` WHERE delivered = 0`
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	bookings := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookings: %w", err)
	}
	return bookings, nil
}

// MarkDelivered flags the given bookings as delivered at the given time, in
// one transaction. Bookings that are already delivered are left unchanged,
// so a booking is never marked twice. Returns the number of bookings that
// changed state.
func (s *Store) MarkDelivered(ctx context.Context, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mark delivered: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	deliveredAt := formatTime(at)
	var changed int64
	for start := 0; start < len(ids); start += markChunkSize {
		end := min(start+markChunkSize, len(ids))
		chunk := ids[start:end]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, deliveredAt)
		for _, id := range chunk {
			args = append(args, id)
		}

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		result, err := tx.ExecContext(ctx, `
			UPDATE bookings SET delivered = 1, delivered_at = ?
			WHERE delivered = 0 AND id IN (`+placeholders+`)
		`, args...)
		if err != nil {
			return 0, fmt.Errorf("mark delivered: update: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("mark delivered: rows affected: %w", err)
		}
		changed += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mark delivered: commit: %w", err)
	}
	return changed, nil
}

// scanBooking scans one bookings row.
func scanBooking(rows *sql.Rows) (model.Booking, error) {
	var (
		b           model.Booking
		itemsJSON   string
		total       string
		bookedAt    string
		delivered   int
		deliveredAt sql.NullString
	)
	if err := rows.Scan(&b.ID, &b.MemberID, &itemsJSON, &total, &bookedAt, &delivered, &deliveredAt); err != nil {
		return model.Booking{}, fmt.Errorf("scan booking: %w", err)
	}

	var err error
	if b.Items, err = unmarshalItems(itemsJSON); err != nil {
		return model.Booking{}, fmt.Errorf("scan booking %s: %w", b.ID, err)
	}
	if b.TotalPrice, err = model.ParseMoney(total); err != nil {
		return model.Booking{}, fmt.Errorf("scan booking %s: %w", b.ID, err)
	}
	if b.BookedAt, err = parseTime(bookedAt); err != nil {
		return model.Booking{}, fmt.Errorf("scan booking %s: %w", b.ID, err)
	}
	b.Delivered = delivered == 1
	if deliveredAt.Valid {
		if b.DeliveredAt, err = parseTime(deliveredAt.String); err != nil {
			return model.Booking{}, fmt.Errorf("scan booking %s: %w", b.ID, err)
		}
	}
	return b, nil
}

func marshalItems(items []model.LineItem) (string, error) {
	if items == nil {
		items = []model.LineItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("marshal items: %w", err)
	}
	return string(data), nil
}

func unmarshalItems(data string) ([]model.LineItem, error) {
	items := []model.LineItem{}
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	return items, nil
}
