package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// provisionTimeout bounds the one-time setup request.
const provisionTimeout = 15 * time.Second

// Credentials is what the authority returns for a redeemed setup code.
type Credentials struct {
	ServerURL    string `json:"api_url"`
	Tenant       string `json:"tenant_slug"`
	APIKey       string `json:"api_key"`
	RegisterID   string `json:"register_id,omitempty"`
	RegisterName string `json:"register_name,omitempty"`
}

// NormalizeSetupCode strips dashes and whitespace and upper-cases a setup
// code as typed by an operator ("abcd-1234" becomes "ABCD1234").
func NormalizeSetupCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(code, "-", "")))
}

// Provision redeems a setup code for device credentials. This is a one-time
// out-of-band request and is not part of the steady-state gateway.
//
// The authority answers 404 for an unknown code and 410 for an expired one;
// both are returned as *TransientError carrying the status code.
func Provision(ctx context.Context, serverURL, tenant, code string) (Credentials, error) {
	const op = "provision"

	server := strings.TrimRight(serverURL, "/")
	body, err := json.Marshal(map[string]string{"token": NormalizeSetupCode(code)})
	if err != nil {
		return Credentials{}, fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, TenantBase(server, tenant)+"/provision", bytes.NewReader(body))
	if err != nil {
		return Credentials{}, &TransientError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	client := &http.Client{Timeout: provisionTimeout, Transport: newTransport(DefaultConnectTimeout)}
	resp, err := client.Do(req)
	if err != nil {
		return Credentials{}, &TransientError{Op: op, Err: err}
	}
	defer drain(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		te := &TransientError{Op: op, StatusCode: resp.StatusCode}
		if msg := errorBody(resp.Body); msg != "" {
			te.Err = errors.New(msg)
		}
		return Credentials{}, te
	}

	var creds Credentials
	if err := decodeResponse(resp.Body, &creds); err != nil {
		return Credentials{}, &TransientError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if creds.APIKey == "" {
		return Credentials{}, &TransientError{Op: op, StatusCode: resp.StatusCode, Err: errors.New("response carries no api key")}
	}
	if creds.ServerURL == "" {
		creds.ServerURL = server
	}
	if creds.Tenant == "" {
		creds.Tenant = tenant
	}
	return creds, nil
}
