package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tillsync/internal/engine"
	"github.com/roach88/tillsync/internal/model"
	"github.com/roach88/tillsync/internal/store"
)

type fakeEngine struct {
	mu        sync.Mutex
	status    engine.Status
	balances  map[string]string
	submitted []model.Booking
	refreshes int
	submitErr error
}

func (f *fakeEngine) SubmitBookingNow(_ context.Context, memberID string, items []model.LineItem, total model.Money) (model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return model.Booking{}, f.submitErr
	}
	if memberID == "" {
		return model.Booking{}, fmt.Errorf("%w: empty member id", engine.ErrInvalidBooking)
	}
	b := model.Booking{
		ID:         fmt.Sprintf("booking-%04d", len(f.submitted)+1),
		MemberID:   memberID,
		Items:      items,
		TotalPrice: total,
		BookedAt:   time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	f.submitted = append(f.submitted, b)
	return b, nil
}

func (f *fakeEngine) Submitted() []model.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Booking(nil), f.submitted...)
}

func (f *fakeEngine) Refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func (f *fakeEngine) ForceRefresh() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return true
}

func (f *fakeEngine) MemberBalance(_ context.Context, memberID string) (model.Money, bool) {
	raw, ok := f.balances[memberID]
	if !ok {
		return model.Money{}, false
	}
	return model.MustMoney(raw), true
}

func (f *fakeEngine) Status() engine.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeEngine, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "till.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.ReplaceMembers(ctx, []model.Member{{ID: "m1", Name: "Ada", RFIDToken: "04A1B2C3"}}))
	require.NoError(t, s.ReplaceProducts(ctx, []model.Product{
		{ID: "p1", Name: "Club Mate", Barcode: "4029764001807", Price: model.MustMoney("1.50")},
	}))

	eng := &fakeEngine{balances: map[string]string{"m1": "12.50"}}
	srv := httptest.NewServer(NewRouter(&Handler{Engine: eng, Store: s}))
	t.Cleanup(srv.Close)
	return srv, eng, s
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, v any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestStatus(t *testing.T) {
	srv, eng, s := newTestServer(t)
	synced := time.Date(2026, 3, 14, 9, 5, 0, 0, time.UTC)
	eng.mu.Lock()
	eng.status = engine.Status{Online: true, LastSyncAt: synced, ShowMemberBalance: true}
	eng.mu.Unlock()
	require.NoError(t, s.SaveBooking(context.Background(), model.Booking{
		ID: "b1", MemberID: "m1", TotalPrice: model.MustMoney("1.50"), BookedAt: synced,
	}))

	var got map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/status", &got))

	assert.Equal(t, true, got["online"])
	assert.Equal(t, "2026-03-14T09:05:00Z", got["last_sync_at"])
	assert.Nil(t, got["last_cache_refresh_at"], "never refreshed")
	assert.Equal(t, float64(1), got["pending_bookings"])
	assert.Equal(t, true, got["show_member_balance"])
}

func TestMemberByToken(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var m model.Member
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/members/by-token/04A1B2C3", &m))
	assert.Equal(t, model.Member{ID: "m1", Name: "Ada", RFIDToken: "04A1B2C3"}, m)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/members/by-token/FFFFFFFF", nil))
}

func TestProductByBarcode(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var got map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/products/by-barcode/4029764001807", &got))
	assert.Equal(t, "p1", got["id"])
	assert.Equal(t, "1.50", got["price"])

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/products/by-barcode/0000", nil))
}

func TestMemberBalance(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var got map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/members/m1/balance", &got))
	assert.Equal(t, "12.50", got["open_amount"])

	got = nil
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/members/m2/balance", &got))
	assert.Contains(t, got, "open_amount")
	assert.Nil(t, got["open_amount"])
}

func TestCreateBooking(t *testing.T) {
	srv, eng, _ := newTestServer(t)

	body := `{"member_id":"m1","items":[
		{"product_id":"p1","quantity":1,"unit_price":"1.50"},
		{"product_id":"p2","quantity":1,"unit_price":2.00}
	]}`
	var got map[string]any
	require.Equal(t, http.StatusCreated, postJSON(t, srv.URL+"/bookings", body, &got))

	assert.Equal(t, "booking-0001", got["id"])
	assert.Equal(t, "3.50", got["total_price"])
	submitted := eng.Submitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, "m1", submitted[0].MemberID)
	assert.Len(t, submitted[0].Items, 2)
}

func TestCreateBooking_BadRequests(t *testing.T) {
	srv, eng, _ := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, postJSON(t, srv.URL+"/bookings", `{`, nil))
	assert.Equal(t, http.StatusBadRequest,
		postJSON(t, srv.URL+"/bookings", `{"items":[{"product_id":"p1","quantity":1,"unit_price":"1.50"}]}`, nil))
	assert.Empty(t, eng.Submitted())
}

func TestCreateBooking_StoreFailure(t *testing.T) {
	srv, eng, _ := newTestServer(t)
	eng.mu.Lock()
	eng.submitErr = fmt.Errorf("submit booking: disk I/O error")
	eng.mu.Unlock()

	body := `{"member_id":"m1","items":[{"product_id":"p1","quantity":1,"unit_price":"1.50"}]}`
	assert.Equal(t, http.StatusInternalServerError, postJSON(t, srv.URL+"/bookings", body, nil))
}

func TestCreateBooking_EngineStopped(t *testing.T) {
	srv, eng, _ := newTestServer(t)
	eng.mu.Lock()
	eng.submitErr = engine.ErrStopped
	eng.mu.Unlock()

	body := `{"member_id":"m1","items":[{"product_id":"p1","quantity":1,"unit_price":"1.50"}]}`
	var got map[string]any
	assert.Equal(t, http.StatusServiceUnavailable, postJSON(t, srv.URL+"/bookings", body, &got))
	assert.Equal(t, "till is shutting down", got["error"])
}

func TestRefresh(t *testing.T) {
	srv, eng, _ := newTestServer(t)

	var got map[string]bool
	require.Equal(t, http.StatusAccepted, postJSON(t, srv.URL+"/refresh", "", &got))
	assert.True(t, got["started"])
	assert.Equal(t, 1, eng.Refreshes())
}

func TestServeListener_Shutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ServeListener(ctx, ln, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
