package lock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// Shelly drives a Shelly switch (Gen 2+ RPC API) on the LAN.
type Shelly struct {
	url    string
	client *http.Client
}

// NewShelly returns a driver for the Shelly switch at host ("ip[:port]").
func NewShelly(host string, client *http.Client) *Shelly {
	return &Shelly{
		url:    "http://" + host + "/rpc/Switch.Set",
		client: client,
	}
}

// Activate switches the relay on.
func (s *Shelly) Activate(ctx context.Context) error {
	return s.set(ctx, true)
}

// Deactivate switches the relay off.
func (s *Shelly) Deactivate(ctx context.Context) error {
	return s.set(ctx, false)
}

func (s *Shelly) Release() error { return nil }

func (s *Shelly) set(ctx context.Context, on bool) error {
	body := []byte(`{"id":0,"on":false}`)
	if on {
		body = []byte(`{"id":0,"on":true}`)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("shelly switch set: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := doSwitch(s.client, req); err != nil {
		return fmt.Errorf("shelly switch set on=%t: %w", on, err)
	}
	slog.Debug("shelly switched", "on", on)
	return nil
}

// Tasmota drives a Tasmota switch on the LAN.
type Tasmota struct {
	base   string
	client *http.Client
}

// NewTasmota returns a driver for the Tasmota switch at host ("ip[:port]").
func NewTasmota(host string, client *http.Client) *Tasmota {
	return &Tasmota{
		base:   "http://" + host + "/cm",
		client: client,
	}
}

// Activate sends "Power On".
func (t *Tasmota) Activate(ctx context.Context) error {
	return t.power(ctx, "On")
}

// Deactivate sends "Power Off".
func (t *Tasmota) Deactivate(ctx context.Context) error {
	return t.power(ctx, "Off")
}

func (t *Tasmota) Release() error { return nil }

func (t *Tasmota) power(ctx context.Context, state string) error {
	cmnd := url.PathEscape("Power " + state)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.base+"?cmnd="+cmnd, nil)
	if err != nil {
		return fmt.Errorf("tasmota power %s: %w", state, err)
	}

	if err := doSwitch(t.client, req); err != nil {
		return fmt.Errorf("tasmota power %s: %w", state, err)
	}
	slog.Debug("tasmota switched", "state", state)
	return nil
}

// doSwitch sends req and fails on any non-2xx status.
func doSwitch(client *http.Client, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
