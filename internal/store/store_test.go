package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// Verify file was created
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_OpensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	var count int
	err = s2.db.QueryRow("SELECT COUNT(*) FROM bookings").Scan(&count)
	if err != nil {
		t.Errorf("query failed: %v", err)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"members", "products", "bookings", "device_config"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}

	if err := s.verifyPragma("user_version", "1"); err != nil {
		t.Error(err)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestDB_ReturnsUnderlyingConnection(t *testing.T) {
	s := createTestStore(t)

	var db *sql.DB = s.DB()
	require.NotNil(t, db)
	assert.NoError(t, db.Ping())
}

func TestPragma_JournalMode(t *testing.T) {
	s := createTestStore(t)

	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
}

func TestPragma_Synchronous(t *testing.T) {
	s := createTestStore(t)

	// FULL = 2
	if err := s.verifyPragma("synchronous", "2"); err != nil {
		t.Error(err)
	}
}

func TestPragma_BusyTimeout(t *testing.T) {
	s := createTestStore(t)

	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestPragma_ForeignKeys(t *testing.T) {
	s := createTestStore(t)

	// ON = 1
	if err := s.verifyPragma("foreign_keys", "1"); err != nil {
		t.Error(err)
	}
}

func TestSchema_UndeliveredIndex(t *testing.T) {
	s := createTestStore(t)

	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name=?",
		"idx_bookings_undelivered",
	).Scan(&name)
	require.NoError(t, err)
}

func TestConstraint_DeviceConfigSingleRow(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`INSERT INTO device_config (id, updated_at) VALUES (2, 'x')`)
	assert.Error(t, err, "device_config must only accept id = 1")
}

func TestWipe_RemovesEverything(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	seedMembers(t, s)
	seedProducts(t, s)
	require.NoError(t, s.SaveBooking(ctx, createTestBooking("b1", "m1", "3.50", 1)))
	require.NoError(t, s.SaveDeviceConfig(ctx, relayConfig(18)))

	require.NoError(t, s.Wipe(ctx))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, st)

	_, _, found, err := s.DeviceConfig(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStats_CountsQueueStates(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	seedMembers(t, s)
	seedProducts(t, s)
	require.NoError(t, s.SaveBooking(ctx, createTestBooking("b1", "m1", "3.50", 1)))
	require.NoError(t, s.SaveBooking(ctx, createTestBooking("b2", "m1", "7.20", 1)))
	_, err := s.MarkDelivered(ctx, []string{"b1"}, s.now())
	require.NoError(t, err)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Members: 3, Products: 2, Undelivered: 1, Delivered: 1}, st)
}
