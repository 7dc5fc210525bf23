// Package engine implements the offline-first sync engine of a till.
//
// The engine owns the periodic reconciliation loop. Each cycle:
//
//  1. Probes connectivity and records the online flag.
//  2. If online, checks the device credentials (heartbeat). A rejection
//     ends the loop and triggers deprovisioning.
//  3. Flushes every undelivered booking in one batch and marks the batch
//     delivered only after the authority acknowledged it.
//  4. Refreshes members, products and device configuration when the cache
//     is older than the refresh interval, and hands a changed lock
//     configuration to the host.
//
// Bookings are committed locally first, so the front end never waits on
// the network. Status fields are atomics and may be read from any
// goroutine.
//
// CRITICAL: A booking is marked delivered only as a direct result of a
// successful submission of a batch that included it. The batch carries an
// Idempotency-Key derived from its booking ids, so a batch resent after a
// crash between acknowledgment and marking is accepted once by the server.
package engine
