// Package csrf implements both halves of the anti-forgery token
// lifecycle.
//
// [Server] issues per-session tokens bound to a dedicated cookie,
// stores them in Redis, and rejects mutating requests whose header
// token does not match — always with the machine-readable
// CSRF_TOKEN_INVALID body so clients can recover specifically.
//
// [Coordinator] is the client half: it caches the last-fetched token,
// shares a single in-flight fetch between concurrent callers through an
// awaitable promise with a timeout, attaches the token to outgoing
// mutating requests, and discards the cache when the server rejects it.
//
// # Architecture boundaries
//
// The server half never inspects request bodies or authentication
// state; it only compares the cookie-bound token against the header.
//
// # What this package must NOT do
//
//   - Retry a rejected request on the caller's behalf; after a
//     rejection the cache is cleared and the caller resubmits.
//   - Busy-poll for an in-flight fetch.
package csrf
