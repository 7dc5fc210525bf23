// Package lock implements the door-lock driver family.
//
// A Driver is a capability with three operations: Activate opens the lock,
// Deactivate closes it, Release frees any hardware handles. Drivers are
// owned by exactly one goroutine (the host); nothing else calls them.
//
// Supported drivers:
//   - Relay: a relay on a local GPIO pin, driven through Linux sysfs
//   - Shelly: a Shelly switch on the LAN (HTTP RPC, Switch.Set)
//   - Tasmota: a Tasmota switch on the LAN (HTTP command API)
//   - Noop: no lock attached
//
// Lock configurations received from the central authority are validated
// against an embedded CUE schema before they are cached or applied.
package lock
