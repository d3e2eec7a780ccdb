// Package brewauth provides the credential and session state machine for
// the PureBrew storefront: password login with account lockout, JWT
// access tokens with a single rotating refresh token, optional TOTP
// second factor with backup codes, multi-email verification, and
// password history/expiry enforcement.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// brewauth is the public surface. It exposes [Engine], [Builder],
// [Config], the [AccountStore] integration interface, and value types.
// Hashing, token signing, and transport concerns live in the password,
// jwt, csrf, middleware, and httpapi sub-packages; short-lived state
// (reset tokens, verification tokens, login challenges) lives in Redis
// behind unexported stores.
//
// # What this package must NOT do
//
//   - Expose Redis clients, store encodings, or plaintext secrets in its
//     public API.
//   - Persist plaintext passwords, backup codes, or reset tokens; only
//     hashes are stored.
//   - Speak HTTP. Cookies, headers, and status codes belong to httpapi
//     and middleware.
package brewauth
