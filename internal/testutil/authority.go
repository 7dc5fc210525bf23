package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/tillsync/internal/model"
)

// Endpoint names used by FakeAuthority for status overrides and call counts.
const (
	EndpointHealth    = "health"
	EndpointHeartbeat = "heartbeat"
	EndpointMembers   = "members"
	EndpointProducts  = "products"
	EndpointConfig    = "config"
	EndpointSync      = "sync"
	EndpointBalance   = "balance"
	EndpointEvents    = "events"
	EndpointProvision = "provision"
)

// FakeAuthority is an in-process central authority for tests.
//
// It serves the tenant API under /api/v1/kasse/{tenant}, checks the
// X-API-Key header, records every call and every submitted booking batch,
// and lets tests override the status code of any endpoint.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeAuthority struct {
	Server *httptest.Server
	Tenant string
	APIKey string

	mu         sync.Mutex
	revoked    bool
	status     map[string]int
	calls      map[string]int
	members    []model.Member
	products   []model.Product
	configJSON string
	balances   map[string]string
	eventsBody string
	holdEvents bool
	setupCode  string
	batches    [][]byte
	keys       []string
	syncHold   *syncHold

	done chan struct{}
}

// NewFakeAuthority starts a fake authority for tenant accepting apiKey.
// The server is closed when the test finishes.
func NewFakeAuthority(t testing.TB, tenant, apiKey string) *FakeAuthority {
	t.Helper()

	fa := &FakeAuthority{
		Tenant:     tenant,
		APIKey:     apiKey,
		status:     make(map[string]int),
		calls:      make(map[string]int),
		balances:   make(map[string]string),
		configJSON: `{}`,
		done:       make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Get("/health", fa.handleHealth)
	r.Route("/api/v1/kasse/{tenant}", func(r chi.Router) {
		r.Post("/provision", fa.handleProvision)
		r.Get("/heartbeat", fa.authenticate(EndpointHeartbeat, fa.handleHeartbeat))
		r.Get("/members", fa.authenticate(EndpointMembers, fa.handleMembers))
		r.Get("/products", fa.authenticate(EndpointProducts, fa.handleProducts))
		r.Get("/config", fa.authenticate(EndpointConfig, fa.handleConfig))
		r.Get("/members/{id}/balance", fa.authenticate(EndpointBalance, fa.handleBalance))
		r.Post("/sync/bookings", fa.authenticate(EndpointSync, fa.handleSync))
		r.Get("/events", fa.authenticate(EndpointEvents, fa.handleEvents))
	})

	fa.Server = httptest.NewServer(r)
	t.Cleanup(func() {
		close(fa.done)
		fa.Server.Close()
	})
	return fa
}

// URL returns the server base URL.
func (fa *FakeAuthority) URL() string {
	return fa.Server.URL
}

// SetStatus forces endpoint to answer with code. A code of 0 restores the
// default behavior.
func (fa *FakeAuthority) SetStatus(endpoint string, code int) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	if code == 0 {
		delete(fa.status, endpoint)
		return
	}
	fa.status[endpoint] = code
}

// Revoke makes every authenticated endpoint answer 401.
func (fa *FakeAuthority) Revoke() {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.revoked = true
}

// SetMembers sets the member collection served by /members.
func (fa *FakeAuthority) SetMembers(members []model.Member) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.members = members
}

// SetProducts sets the product collection served by /products.
func (fa *FakeAuthority) SetProducts(products []model.Product) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.products = products
}

// SetConfig sets the raw JSON body served by /config.
func (fa *FakeAuthority) SetConfig(raw string) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.configJSON = raw
}

// SetBalance sets the raw JSON body served for a member's balance.
func (fa *FakeAuthority) SetBalance(memberID, raw string) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.balances[memberID] = raw
}

// SetEvents sets the body written to each /events connection. If hold is
// true the connection stays open after the body until the client goes away.
func (fa *FakeAuthority) SetEvents(body string, hold bool) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.eventsBody = body
	fa.holdEvents = hold
}

// syncHold parks booking submissions until released.
type syncHold struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

// HoldSync makes /sync/bookings record each batch and then wait before
// answering until release is called. entered receives a value when a held
// request arrives. After release, submissions are answered immediately.
func (fa *FakeAuthority) HoldSync() (entered <-chan struct{}, release func()) {
	hold := &syncHold{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
	fa.mu.Lock()
	fa.syncHold = hold
	fa.mu.Unlock()
	return hold.entered, func() {
		hold.once.Do(func() { close(hold.release) })
	}
}

// SetSetupCode sets the setup code accepted by /provision.
func (fa *FakeAuthority) SetSetupCode(code string) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.setupCode = code
}

// Calls returns how many requests endpoint has received.
func (fa *FakeAuthority) Calls(endpoint string) int {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.calls[endpoint]
}

// Batches returns the raw bodies of every booking batch received,
// including rejected ones.
func (fa *FakeAuthority) Batches() [][]byte {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	out := make([][]byte, len(fa.batches))
	copy(out, fa.batches)
	return out
}

// IdempotencyKeys returns the Idempotency-Key header of every batch received.
func (fa *FakeAuthority) IdempotencyKeys() []string {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	out := make([]string, len(fa.keys))
	copy(out, fa.keys)
	return out
}

// record counts the call and returns the forced status, if any.
func (fa *FakeAuthority) record(endpoint string) (int, bool) {
	fa.count(endpoint)
	return fa.forced(endpoint)
}

func (fa *FakeAuthority) count(endpoint string) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.calls[endpoint]++
}

// forced returns the status set with SetStatus for endpoint, if any.
func (fa *FakeAuthority) forced(endpoint string) (int, bool) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	code, ok := fa.status[endpoint]
	return code, ok
}

// authenticate counts the call to endpoint, then rejects unknown tenants
// and wrong or revoked keys before calling next.
func (fa *FakeAuthority) authenticate(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fa.count(endpoint)

		fa.mu.Lock()
		revoked := fa.revoked
		fa.mu.Unlock()

		if chi.URLParam(r, "tenant") != fa.Tenant {
			http.Error(w, `{"detail":"tenant not found"}`, http.StatusNotFound)
			return
		}
		if revoked || r.Header.Get("X-API-Key") != fa.APIKey {
			http.Error(w, `{"detail":"invalid api key"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (fa *FakeAuthority) handleHealth(w http.ResponseWriter, r *http.Request) {
	if code, ok := fa.record(EndpointHealth); ok {
		w.WriteHeader(code)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (fa *FakeAuthority) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if code, ok := fa.forced(EndpointHeartbeat); ok {
		w.WriteHeader(code)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (fa *FakeAuthority) handleMembers(w http.ResponseWriter, r *http.Request) {
	if code, ok := fa.forced(EndpointMembers); ok {
		w.WriteHeader(code)
		return
	}
	fa.mu.Lock()
	members := fa.members
	fa.mu.Unlock()
	if members == nil {
		members = []model.Member{}
	}
	writeJSON(w, http.StatusOK, members)
}

func (fa *FakeAuthority) handleProducts(w http.ResponseWriter, r *http.Request) {
	if code, ok := fa.forced(EndpointProducts); ok {
		w.WriteHeader(code)
		return
	}
	fa.mu.Lock()
	products := fa.products
	fa.mu.Unlock()
	if products == nil {
		products = []model.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

func (fa *FakeAuthority) handleConfig(w http.ResponseWriter, r *http.Request) {
	if code, ok := fa.forced(EndpointConfig); ok {
		w.WriteHeader(code)
		return
	}
	fa.mu.Lock()
	raw := fa.configJSON
	fa.mu.Unlock()
	writeRaw(w, http.StatusOK, raw)
}

func (fa *FakeAuthority) handleBalance(w http.ResponseWriter, r *http.Request) {
	if code, ok := fa.forced(EndpointBalance); ok {
		w.WriteHeader(code)
		return
	}
	fa.mu.Lock()
	raw, ok := fa.balances[chi.URLParam(r, "id")]
	fa.mu.Unlock()
	if !ok {
		http.Error(w, `{"detail":"member not found"}`, http.StatusNotFound)
		return
	}
	writeRaw(w, http.StatusOK, raw)
}

func (fa *FakeAuthority) handleSync(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fa.mu.Lock()
	fa.batches = append(fa.batches, body)
	fa.keys = append(fa.keys, r.Header.Get("Idempotency-Key"))
	hold := fa.syncHold
	fa.mu.Unlock()

	if hold != nil {
		select {
		case hold.entered <- struct{}{}:
		default:
		}
		select {
		case <-hold.release:
		case <-r.Context().Done():
			return
		case <-fa.done:
			return
		}
	}

	if code, ok := fa.forced(EndpointSync); ok {
		w.WriteHeader(code)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (fa *FakeAuthority) handleEvents(w http.ResponseWriter, r *http.Request) {
	if code, ok := fa.forced(EndpointEvents); ok {
		w.WriteHeader(code)
		return
	}
	fa.mu.Lock()
	body, hold := fa.eventsBody, fa.holdEvents
	fa.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, body)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	if hold {
		select {
		case <-r.Context().Done():
		case <-fa.done:
		}
	}
}

func (fa *FakeAuthority) handleProvision(w http.ResponseWriter, r *http.Request) {
	if code, ok := fa.record(EndpointProvision); ok {
		w.WriteHeader(code)
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fa.mu.Lock()
	code := fa.setupCode
	fa.mu.Unlock()
	if code == "" || req.Token != code {
		http.Error(w, `{"detail":"invalid setup code"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"api_url":       fa.Server.URL,
		"tenant_slug":   chi.URLParam(r, "tenant"),
		"register_id":   "reg-1",
		"register_name": "Fridge",
		"api_key":       fa.APIKey,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, code int, raw string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	io.WriteString(w, raw)
}
