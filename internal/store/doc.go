// Package store provides SQLite-backed durable storage for the till.
//
// The store holds three kinds of state:
//   - Reference caches: members and products, replaced wholesale on refresh
//   - Booking queue: append-only local sales with a delivered flag
//   - Device configuration: a single cached row (lock config + feature flags)
//
// # Critical Patterns
//
// Atomic mutations
//   - Every multi-step mutation runs in one transaction (BeginTx + deferred
//     Rollback). A failed operation leaves prior state intact.
//   - ReplaceMembers/ReplaceProducts delete and insert inside one
//     transaction, so readers observe the old or the new set, never a mix.
//
// Exactly-once delivery marking
//   - MarkDelivered only flips rows that are still undelivered and reports
//     how many changed. A delivered booking never reappears in
//     ListUndelivered.
//
// Deterministic ordering
//   - Bookings are ordered by seq (insertion order), never by timestamps.
//
// # Database Configuration
//
//   - WAL mode: Crash-safe commits, concurrent reads during writes
//   - synchronous=FULL: A committed booking survives power loss
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - Single connection: SQLite has one writer; the pool serializes callers
package store
