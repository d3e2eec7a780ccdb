// Package httpapi exposes the authentication engine over HTTP.
//
// The package mounts a chi router with the storefront's auth surface:
// registration, login (with the partial-success second-factor handoff),
// token refresh and logout, password reset, two-factor management,
// backup codes, secondary-email verification, and admin account
// blocking. Access and refresh tokens travel in httpOnly cookies named
// "token" and "refreshToken"; the Authorization header takes precedence
// over the cookie for access checks.
//
// # Architecture boundaries
//
// Handlers decode JSON, call one engine operation, and encode the
// result. All authentication decisions live in the engine; all CSRF
// decisions live in the csrf package. Error responses follow a fixed
// mapping in which credential-shaped failures collapse into a generic
// 401 and only lockout and CSRF violations carry a machine-readable
// code.
//
// # What this package must NOT do
//
//   - no password or token verification of its own
//   - no direct store or Redis access
//   - no stack traces or internal identifiers in response bodies
package httpapi
