// Package middleware exposes HTTP adapters for access-token
// authentication built on top of brewauth.Engine verification.
//
// # Guards
//
//   - [Guard] — verifies the access token from the Authorization header
//     or the token cookie (header wins) and injects the identity.
//   - [RequireAdmin] — restricts a route group to admin accounts.
//   - [ClientInfo] — records caller IP and User-Agent for audit.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself — pass/reject is delegated to
// Engine.VerifyAccess.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis or the account store for anything beyond the admin
//     flag check.
//   - Perform silent token refresh; refresh is an explicit client call.
package middleware
