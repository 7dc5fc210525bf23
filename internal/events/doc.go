// Package events consumes the central authority's server-push event stream.
//
// The stream is a line protocol:
//   - lines starting with ":" are keepalive comments
//   - "event: <type>" sets the type of the pending event
//   - "data: <text>" lines accumulate, joined by newlines
//   - a blank line dispatches the pending event and resets it
//
// Channel keeps one connection open, hands recognized events to the host
// as commands, and reconnects with capped exponential backoff. An
// authorization failure stops the channel for good and triggers
// deprovisioning.
package events
