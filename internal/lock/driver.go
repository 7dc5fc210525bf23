package lock

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/roach88/tillsync/internal/model"
)

// Driver is the capability interface implemented by every lock backend.
type Driver interface {
	// Activate opens the lock.
	Activate(ctx context.Context) error

	// Deactivate closes the lock.
	Deactivate(ctx context.Context) error

	// Release frees resources held by the driver. The driver must not be
	// used afterwards.
	Release() error
}

// DefaultGPIORoot is the Linux sysfs GPIO class directory.
const DefaultGPIORoot = "/sys/class/gpio"

// switchTimeout bounds each request to a LAN switch.
const switchTimeout = 5 * time.Second

type factoryConfig struct {
	client   *http.Client
	gpioRoot string
}

// Option configures New.
type Option func(*factoryConfig)

// WithHTTPClient sets the client used by LAN switch drivers.
func WithHTTPClient(c *http.Client) Option {
	return func(f *factoryConfig) {
		f.client = c
	}
}

// WithGPIORoot sets the sysfs GPIO directory used by the relay driver.
// Tests point this at a temp directory.
func WithGPIORoot(root string) Option {
	return func(f *factoryConfig) {
		f.gpioRoot = root
	}
}

// New constructs the driver for cfg. A nil cfg yields Noop.
//
// A relay configuration on a machine without sysfs GPIO also yields Noop,
// so a kiosk under development keeps working without hardware.
// Returns an error if cfg is missing a parameter its kind requires.
func New(cfg *model.LockConfig, opts ...Option) (Driver, error) {
	f := factoryConfig{
		client:   &http.Client{Timeout: switchTimeout},
		gpioRoot: DefaultGPIORoot,
	}
	for _, opt := range opts {
		opt(&f)
	}

	if cfg == nil {
		return Noop{}, nil
	}

	switch cfg.Kind {
	case model.LockRelay:
		if cfg.GPIOPin == nil {
			return nil, fmt.Errorf("new lock: %s requires a gpio pin", cfg.Kind)
		}
		if !gpioAvailable(f.gpioRoot) {
			slog.Warn("relay lock configured but gpio is unavailable, lock disabled",
				"gpio_root", f.gpioRoot)
			return Noop{}, nil
		}
		return NewRelay(f.gpioRoot, *cfg.GPIOPin)
	case model.LockShelly:
		if cfg.Host == "" {
			return nil, fmt.Errorf("new lock: %s requires a host", cfg.Kind)
		}
		return NewShelly(cfg.Host, f.client), nil
	case model.LockTasmota:
		if cfg.Host == "" {
			return nil, fmt.Errorf("new lock: %s requires a host", cfg.Kind)
		}
		return NewTasmota(cfg.Host, f.client), nil
	default:
		slog.Warn("unknown lock type, lock disabled", "lock_type", string(cfg.Kind))
		return Noop{}, nil
	}
}

// Noop is the driver used when no lock is attached.
type Noop struct{}

// Activate logs the request and does nothing else.
func (Noop) Activate(context.Context) error {
	slog.Debug("no lock configured, ignoring open")
	return nil
}

func (Noop) Deactivate(context.Context) error { return nil }

func (Noop) Release() error { return nil }

// Name returns a short driver name for logs and status output.
func Name(d Driver) string {
	switch d.(type) {
	case Noop:
		return "noop"
	case *Relay:
		return "relay"
	case *Shelly:
		return "shelly"
	case *Tasmota:
		return "tasmota"
	default:
		return fmt.Sprintf("%T", d)
	}
}
