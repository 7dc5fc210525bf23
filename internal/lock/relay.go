package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// Relay drives a relay wired to a GPIO pin through the sysfs interface.
// High opens the lock.
type Relay struct {
	root string
	pin  int
}

// NewRelay exports pin under root and configures it as an output, initially
// low (locked).
func NewRelay(root string, pin int) (*Relay, error) {
	if pin < 0 {
		return nil, fmt.Errorf("new relay: invalid gpio pin %d", pin)
	}
	r := &Relay{root: root, pin: pin}

	if _, err := os.Stat(r.pinDir()); errors.Is(err, os.ErrNotExist) {
		if err := r.write("export", strconv.Itoa(pin)); err != nil {
			return nil, fmt.Errorf("new relay: export pin %d: %w", pin, err)
		}
	}
	// "low" sets the direction to output and drives the pin low atomically.
	if err := r.write(filepath.Join(r.pinName(), "direction"), "low"); err != nil {
		return nil, fmt.Errorf("new relay: configure pin %d: %w", pin, err)
	}

	slog.Info("relay lock ready", "gpio_pin", pin)
	return r, nil
}

// Activate drives the pin high.
func (r *Relay) Activate(context.Context) error {
	if err := r.setValue("1"); err != nil {
		return fmt.Errorf("activate relay: %w", err)
	}
	slog.Debug("gpio high", "gpio_pin", r.pin)
	return nil
}

// Deactivate drives the pin low.
func (r *Relay) Deactivate(context.Context) error {
	if err := r.setValue("0"); err != nil {
		return fmt.Errorf("deactivate relay: %w", err)
	}
	slog.Debug("gpio low", "gpio_pin", r.pin)
	return nil
}

// Release drives the pin low and unexports it.
func (r *Relay) Release() error {
	if err := r.setValue("0"); err != nil {
		return fmt.Errorf("release relay: %w", err)
	}
	if err := r.write("unexport", strconv.Itoa(r.pin)); err != nil {
		return fmt.Errorf("release relay: unexport pin %d: %w", r.pin, err)
	}
	slog.Info("relay lock released", "gpio_pin", r.pin)
	return nil
}

func (r *Relay) setValue(v string) error {
	return r.write(filepath.Join(r.pinName(), "value"), v)
}

func (r *Relay) pinName() string {
	return "gpio" + strconv.Itoa(r.pin)
}

func (r *Relay) pinDir() string {
	return filepath.Join(r.root, r.pinName())
}

func (r *Relay) write(name, value string) error {
	return os.WriteFile(filepath.Join(r.root, name), []byte(value), 0o644)
}

// gpioAvailable reports whether root looks like a sysfs GPIO class directory.
func gpioAvailable(root string) bool {
	_, err := os.Stat(filepath.Join(root, "export"))
	return err == nil
}
