// Package remote is the stateless request layer to the central authority.
//
// Every tenant-scoped call carries the device API key in the X-API-Key
// header and is classified into one of three outcomes:
//   - success
//   - *TransientError: network failure, timeout, 5xx, malformed response.
//     Callers retry on their next cycle.
//   - *AuthError: the authority rejected the credentials or does not know
//     the tenant (401, 403, 404). Callers treat it as fatal.
//
// 404 deliberately counts as an authorization failure: the authority answers
// 404 for a deleted tenant, and a device whose tenant is gone must re-enter
// setup just like one whose key was revoked.
//
// Health probes and balance lookups never fail; they report false/unknown.
package remote
