package remote

import (
	"context"
	"io"
	"net/http"
)

// OpenEvents opens the tenant's server-push event stream and returns its
// body. The caller must close it. Returns *AuthError on rejection and
// *TransientError on any other failure to connect.
//
// Only connecting is bounded by a timeout; reading the stream is not.
func (g *Gateway) OpenEvents(ctx context.Context) (io.ReadCloser, error) {
	const op = "open events"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.base+"/events", nil)
	if err != nil {
		return nil, &TransientError{Op: op, Err: err}
	}
	req.Header.Set(apiKeyHeader, g.apiKey)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := g.events.Do(req)
	if err != nil {
		return nil, &TransientError{Op: op, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer drain(resp.Body)
		return nil, classify(op, resp.StatusCode, errorBody(resp.Body))
	}
	return resp.Body, nil
}
