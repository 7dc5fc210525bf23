package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// LockKind identifies a lock driver family.
type LockKind string

const (
	// LockNone means no lock is attached.
	LockNone LockKind = ""

	// LockRelay is a relay wired to a local GPIO pin.
	LockRelay LockKind = "gpio"

	// LockShelly is a Shelly switch on the LAN (HTTP RPC API).
	LockShelly LockKind = "shelly"

	// LockTasmota is a Tasmota switch on the LAN (HTTP command API).
	LockTasmota LockKind = "tasmota"
)

// DefaultOpenDuration is used when the server omits lock_open_duration_ms.
const DefaultOpenDuration = 3 * time.Second

// IsLAN reports whether the kind is a LAN-attached switch.
func (k LockKind) IsLAN() bool {
	return k == LockShelly || k == LockTasmota
}

// LockConfig selects and parameterizes the active lock driver.
// Host is used by LAN switches, GPIOPin by the local relay.
type LockConfig struct {
	Kind         LockKind
	Host         string
	GPIOPin      *int
	OpenDuration time.Duration
}

// lockWire is the JSON shape used by the central authority.
type lockWire struct {
	LockType           string  `json:"lock_type"`
	LockHost           *string `json:"lock_host,omitempty"`
	LockGPIOPin        *int    `json:"lock_gpio_pin,omitempty"`
	LockOpenDurationMs *int64  `json:"lock_open_duration_ms,omitempty"`
}

// MarshalJSON encodes the configuration in the authority's wire format.
func (c LockConfig) MarshalJSON() ([]byte, error) {
	w := lockWire{LockType: string(c.Kind), LockGPIOPin: c.GPIOPin}
	if c.Host != "" {
		host := c.Host
		w.LockHost = &host
	}
	ms := c.openDuration().Milliseconds()
	w.LockOpenDurationMs = &ms
	return json.Marshal(w)
}

// UnmarshalJSON decodes the authority's wire format. A missing open duration
// defaults to DefaultOpenDuration.
func (c *LockConfig) UnmarshalJSON(data []byte) error {
	var w lockWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("lock config: %w", err)
	}
	cfg := LockConfig{
		Kind:         LockKind(w.LockType),
		GPIOPin:      w.LockGPIOPin,
		OpenDuration: DefaultOpenDuration,
	}
	if w.LockHost != nil {
		cfg.Host = *w.LockHost
	}
	if w.LockOpenDurationMs != nil {
		cfg.OpenDuration = time.Duration(*w.LockOpenDurationMs) * time.Millisecond
	}
	*c = cfg
	return nil
}

func (c LockConfig) openDuration() time.Duration {
	if c.OpenDuration <= 0 {
		return DefaultOpenDuration
	}
	return c.OpenDuration
}

// canonicalMap returns the configuration as a plain map for canonical JSON.
// Absent optional fields are omitted rather than encoded as null.
func (c LockConfig) canonicalMap() map[string]any {
	m := map[string]any{
		"lock_type":             string(c.Kind),
		"lock_open_duration_ms": c.openDuration().Milliseconds(),
	}
	if c.Host != "" {
		m["lock_host"] = c.Host
	}
	if c.GPIOPin != nil {
		m["lock_gpio_pin"] = int64(*c.GPIOPin)
	}
	return m
}
