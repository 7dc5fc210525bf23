package engine

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tillsync/internal/model"
	"github.com/roach88/tillsync/internal/remote"
	"github.com/roach88/tillsync/internal/store"
	"github.com/roach88/tillsync/internal/testutil"
)

const (
	testTenant = "club"
	testAPIKey = "secret"
)

var testStart = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// recordingHost records every lock swap.
type recordingHost struct {
	mu    sync.Mutex
	swaps []*model.LockConfig
}

func (h *recordingHost) SwapLock(cfg *model.LockConfig) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.swaps = append(h.swaps, cfg)
	return true
}

func (h *recordingHost) Swaps() []*model.LockConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*model.LockConfig(nil), h.swaps...)
}

// countingDeprovisioner counts calls and stops the engine like the real
// handler does.
type countingDeprovisioner struct {
	mu     sync.Mutex
	calls  int
	engine *Engine
}

func (d *countingDeprovisioner) Deprovision(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.engine != nil {
		d.engine.Stop()
	}
	return nil
}

func (d *countingDeprovisioner) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type testEnv struct {
	fa     *testutil.FakeAuthority
	store  *store.Store
	dbPath string
	host   *recordingHost
	deprov *countingDeprovisioner
	clock  *testutil.ManualClock
	engine *Engine
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		fa:     testutil.NewFakeAuthority(t, testTenant, testAPIKey),
		dbPath: filepath.Join(t.TempDir(), "till.db"),
		host:   &recordingHost{},
		deprov: &countingDeprovisioner{},
		clock:  testutil.NewManualClock(testStart),
	}
	env.openStore(t)
	env.newEngine(opts...)
	return env
}

func (env *testEnv) openStore(t *testing.T) {
	t.Helper()
	s, err := store.Open(env.dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	env.store = s
}

// newEngine replaces the engine, simulating a process restart when the
// store has been reopened.
func (env *testEnv) newEngine(opts ...Option) {
	gw := remote.New(remote.Config{ServerURL: env.fa.URL(), Tenant: testTenant, APIKey: testAPIKey})
	base := []Option{
		WithClock(env.clock),
		WithIDGenerator(testutil.NewSequenceIDGenerator("booking")),
	}
	env.engine = New(gw, env.store, env.host, env.deprov, append(base, opts...)...)
	env.deprov.engine = env.engine
}

func lineItem(productID string, qty int64, unitPrice string) model.LineItem {
	return model.LineItem{ProductID: productID, Quantity: qty, UnitPrice: model.MustMoney(unitPrice)}
}

func submit(t *testing.T, e *Engine, memberID string, items ...model.LineItem) model.Booking {
	t.Helper()
	total, err := model.Total(items)
	require.NoError(t, err)
	b, err := e.SubmitBookingNow(context.Background(), memberID, items, total)
	require.NoError(t, err)
	return b
}

// batchIDs decodes a submitted batch and returns its booking ids.
func batchIDs(t *testing.T, raw []byte) []string {
	t.Helper()
	var batch struct {
		Bookings []struct {
			ID string `json:"id"`
		} `json:"bookings"`
	}
	require.NoError(t, json.Unmarshal(raw, &batch))
	ids := make([]string, len(batch.Bookings))
	for i, b := range batch.Bookings {
		ids[i] = b.ID
	}
	return ids
}

func relayLock(pin int) string {
	raw, _ := json.Marshal(map[string]any{
		"lock": map[string]any{"lock_type": "gpio", "lock_gpio_pin": pin},
	})
	return string(raw)
}

func testMembers() []model.Member {
	return []model.Member{
		{ID: "m1", Name: "Ada", RFIDToken: "04A1B2C3"},
		{ID: "m2", Name: "Grace", RFIDToken: "04D4E5F6"},
	}
}

func testProducts() []model.Product {
	return []model.Product{
		{ID: "p1", Name: "Club Mate", Barcode: "4029764001807", Price: model.MustMoney("1.50")},
		{ID: "p2", Name: "Water", Price: model.MustMoney("2.00")},
	}
}
