package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveBooking_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	b := createTestBooking("b1", "m1", "1.75", 2)
	require.NoError(t, s.SaveBooking(ctx, b))

	got, err := s.ListUndelivered(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "b1", got[0].ID)
	assert.Equal(t, "m1", got[0].MemberID)
	assert.Equal(t, "3.50", got[0].TotalPrice.String())
	assert.True(t, b.BookedAt.Equal(got[0].BookedAt))
	assert.False(t, got[0].Delivered)
	require.Len(t, got[0].Items, 1)
	assert.Equal(t, int64(2), got[0].Items[0].Quantity)
	assert.Equal(t, "1.75", got[0].Items[0].UnitPrice.String())
}

func TestSaveBooking_DuplicateIDRejected(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	require.NoError(t, s.SaveBooking(ctx, createTestBooking("b1", "m1", "1.00", 1)))
	err := s.SaveBooking(ctx, createTestBooking("b1", "m2", "9.00", 1))
	require.Error(t, err)

	got, err := s.ListBookings(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].MemberID, "existing booking must not be overwritten")
}

func TestSaveBooking_RequiresIDs(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	assert.Error(t, s.SaveBooking(ctx, createTestBooking("", "m1", "1.00", 1)))
	assert.Error(t, s.SaveBooking(ctx, createTestBooking("b1", "", "1.00", 1)))
}

func TestSaveBooking_IgnoresDeliveredFlag(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	b := createTestBooking("b1", "m1", "1.00", 1)
	b.Delivered = true
	require.NoError(t, s.SaveBooking(ctx, b))

	got, err := s.ListUndelivered(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestListUndelivered_InsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	// Later booked_at first: order must follow insertion, not timestamps.
	late := createTestBooking("z", "m1", "1.00", 1)
	late.BookedAt = late.BookedAt.Add(time.Hour)
	require.NoError(t, s.SaveBooking(ctx, late))
	require.NoError(t, s.SaveBooking(ctx, createTestBooking("a", "m1", "1.00", 1)))
	require.NoError(t, s.SaveBooking(ctx, createTestBooking("m", "m1", "1.00", 1)))

	got, err := s.ListUndelivered(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "m"}, bookingIDs(got))
}

func TestListUndelivered_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)

	got, err := s.ListUndelivered(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestMarkDelivered_OnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	require.NoError(t, s.SaveBooking(ctx, createTestBooking("b1", "m1", "3.50", 1)))
	require.NoError(t, s.SaveBooking(ctx, createTestBooking("b2", "m1", "7.20", 1)))

	first := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	n, err := s.MarkDelivered(ctx, []string{"b1", "b2"}, first)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// A replayed acknowledgment changes nothing.
	n, err = s.MarkDelivered(ctx, []string{"b1", "b2"}, first.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	pending, err := s.ListUndelivered(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	all, err := s.ListBookings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, b := range all {
		assert.True(t, b.Delivered)
		assert.True(t, first.Equal(b.DeliveredAt), "delivered_at must keep the first acknowledgment")
	}
}

func TestMarkDelivered_LeavesOthersPending(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	require.NoError(t, s.SaveBooking(ctx, createTestBooking("b1", "m1", "1.00", 1)))
	require.NoError(t, s.SaveBooking(ctx, createTestBooking("b2", "m1", "1.00", 1)))

	n, err := s.MarkDelivered(ctx, []string{"b1", "unknown"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	pending, err := s.ListUndelivered(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b2"}, bookingIDs(pending))
}

func TestMarkDelivered_Empty(t *testing.T) {
	s := createTestStore(t)

	n, err := s.MarkDelivered(context.Background(), nil, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMarkDelivered_LargeBatchChunks(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	var ids []string
	for i := 0; i < markChunkSize*2+7; i++ {
		b := createTestBooking(fmt.Sprintf("bulk-%04d", i), "m1", "1.00", 1)
		require.NoError(t, s.SaveBooking(ctx, b))
		ids = append(ids, b.ID)
	}

	n, err := s.MarkDelivered(ctx, ids, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(len(ids)), n)
}

// Bookings survive closing and reopening the database, and a flush replayed
// after a crash between submit and mark still marks each booking once.
func TestBookings_SurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "till.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.SaveBooking(ctx, createTestBooking("b1", "m1", "3.50", 1)))
	require.NoError(t, s1.SaveBooking(ctx, createTestBooking("b2", "m1", "7.20", 1)))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	pending, err := s2.ListUndelivered(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2"}, bookingIDs(pending))
	assert.Equal(t, "3.50", pending[0].TotalPrice.String())
	assert.Equal(t, "7.20", pending[1].TotalPrice.String())

	n, err := s2.MarkDelivered(ctx, bookingIDs(pending), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	pending, err = s2.ListUndelivered(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
