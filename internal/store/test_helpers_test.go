package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/tillsync/internal/model"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestBooking creates a single-line booking with a consistent total.
func createTestBooking(id, memberID, unitPrice string, qty int64) model.Booking {
	items := []model.LineItem{{
		ProductID: "p-" + id,
		Quantity:  qty,
		UnitPrice: model.MustMoney(unitPrice),
	}}
	total, err := model.Total(items)
	if err != nil {
		panic(err)
	}
	return model.Booking{
		ID:         id,
		MemberID:   memberID,
		Items:      items,
		TotalPrice: total,
		BookedAt:   time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}
}

func bookingIDs(bookings []model.Booking) []string {
	ids := make([]string, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
	}
	return ids
}

func testMembers() []model.Member {
	return []model.Member{
		{ID: "m1", Name: "Ada", RFIDToken: "04A1B2C3"},
		{ID: "m2", Name: "Grace", RFIDToken: "04D4E5F6"},
		{ID: "m3", Name: "Linus"},
	}
}

func testProducts() []model.Product {
	return []model.Product{
		{ID: "p1", Name: "Club Mate", Barcode: "4029764001807", Price: model.MustMoney("1.50")},
		{ID: "p2", Name: "Pretzel", Price: model.MustMoney("2.00")},
	}
}

func seedMembers(t *testing.T, s *Store) {
	t.Helper()
	if err := s.ReplaceMembers(context.Background(), testMembers()); err != nil {
		t.Fatalf("ReplaceMembers() failed: %v", err)
	}
}

func seedProducts(t *testing.T, s *Store) {
	t.Helper()
	if err := s.ReplaceProducts(context.Background(), testProducts()); err != nil {
		t.Fatalf("ReplaceProducts() failed: %v", err)
	}
}

func relayConfig(pin int) model.DeviceConfig {
	return model.DeviceConfig{
		Lock: &model.LockConfig{
			Kind:         model.LockRelay,
			GPIOPin:      &pin,
			OpenDuration: model.DefaultOpenDuration,
		},
	}
}
