package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Default timeouts. The health probe is tighter than data calls so a slow
// or half-open peer cannot stall the sync loop.
const (
	DefaultHealthTimeout        = 5 * time.Second
	DefaultHealthConnectTimeout = 3 * time.Second
	DefaultRequestTimeout       = 10 * time.Second
	DefaultConnectTimeout       = 5 * time.Second
	DefaultEventsConnectTimeout = 10 * time.Second
)

// maxResponseSize bounds JSON response body reads.
const maxResponseSize int64 = 32 << 20

// maxErrorBody bounds the response text kept in error messages.
const maxErrorBody = 512

// apiKeyHeader carries the device credential.
const apiKeyHeader = "X-API-Key"

// Config identifies the tenant and sets per-purpose timeouts.
// Zero timeouts take the defaults above.
type Config struct {
	ServerURL string
	Tenant    string
	APIKey    string

	HealthTimeout        time.Duration
	HealthConnectTimeout time.Duration
	RequestTimeout       time.Duration
	ConnectTimeout       time.Duration
	EventsConnectTimeout time.Duration
}

// Gateway issues requests to the central authority. It holds no mutable
// state and is safe for concurrent use.
type Gateway struct {
	server string
	base   string
	apiKey string

	health *http.Client
	data   *http.Client
	events *http.Client
}

// New creates a Gateway for the tenant in cfg.
func New(cfg Config) *Gateway {
	server := strings.TrimRight(cfg.ServerURL, "/")

	healthTotal := orDefault(cfg.HealthTimeout, DefaultHealthTimeout)
	healthConnect := orDefault(cfg.HealthConnectTimeout, DefaultHealthConnectTimeout)
	total := orDefault(cfg.RequestTimeout, DefaultRequestTimeout)
	connect := orDefault(cfg.ConnectTimeout, DefaultConnectTimeout)
	eventsConnect := orDefault(cfg.EventsConnectTimeout, DefaultEventsConnectTimeout)

	// The event stream has no overall timeout: server push may be
	// arbitrarily sparse once connected.
	eventsTransport := newTransport(eventsConnect)
	eventsTransport.ResponseHeaderTimeout = eventsConnect

	return &Gateway{
		server: server,
		base:   TenantBase(server, cfg.Tenant),
		apiKey: cfg.APIKey,
		health: &http.Client{Timeout: healthTotal, Transport: newTransport(healthConnect)},
		data:   &http.Client{Timeout: total, Transport: newTransport(connect)},
		events: &http.Client{Transport: eventsTransport},
	}
}

// TenantBase returns the tenant-scoped API base URL.
func TenantBase(server, tenant string) string {
	return strings.TrimRight(server, "/") + "/api/v1/kasse/" + url.PathEscape(tenant)
}

func newTransport(connect time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{
		Timeout:   connect,
		KeepAlive: 30 * time.Second,
	}).DialContext
	t.TLSHandshakeTimeout = connect
	return t
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// ProbeHealth reports whether the authority answers its health endpoint
// with 200. Any failure yields false.
func (g *Gateway) ProbeHealth(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.server+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := g.health.Do(req)
	if err != nil {
		return false
	}
	defer drain(resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Heartbeat verifies that the device credentials and tenant are still
// valid. Returns *AuthError on rejection, *TransientError on any other
// failure.
func (g *Gateway) Heartbeat(ctx context.Context) error {
	resp, err := g.do(ctx, "heartbeat", http.MethodGet, "/heartbeat", nil, nil)
	if err != nil {
		return err
	}
	drain(resp.Body)
	return nil
}

// do sends an authenticated tenant-scoped request and returns the response
// if its status is 2xx. Any other outcome is classified; the caller owns
// the returned body.
func (g *Gateway) do(ctx context.Context, op, method, path string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.base+path, body)
	if err != nil {
		return nil, &TransientError{Op: op, Err: err}
	}
	req.Header.Set(apiKeyHeader, g.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := g.data.Do(req)
	if err != nil {
		return nil, &TransientError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer drain(resp.Body)
		return nil, classify(op, resp.StatusCode, errorBody(resp.Body))
	}
	return resp, nil
}

// getJSON fetches path and decodes the JSON body into v.
func (g *Gateway) getJSON(ctx context.Context, op, path string, v any) error {
	resp, err := g.do(ctx, op, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	defer drain(resp.Body)

	if err := decodeResponse(resp.Body, v); err != nil {
		return &TransientError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

// decodeResponse reads a JSON body up to maxResponseSize and decodes it.
func decodeResponse(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// errorBody returns the start of an error response for diagnostics.
// Read errors are ignored.
func errorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	return strings.TrimSpace(string(data))
}

// drain discards what is left of a body so the connection can be reused.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxResponseSize))
	body.Close()
}
