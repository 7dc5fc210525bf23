// Package host is the single owner of hardware handles.
//
// Background tasks never touch the lock driver directly. They post
// commands (swap the lock configuration, open the lock, restart) to the
// host's queue; the host's Run goroutine drains the queue and applies each
// command in order. Only that goroutine constructs, activates, deactivates
// or releases a driver.
//
// A restart request makes Run release the driver and return
// ErrRestartRequested; the process then re-reads all state from scratch.
package host
