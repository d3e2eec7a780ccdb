// Package internal contains helper utilities that are intentionally private
// to brewauth: secure random token and backup-code generation, and the
// hashing helpers shared by the token stores.
//
// # What this package must NOT do
//
//   - Export types that appear in the public brewauth API.
//   - Be imported by any package outside the brewauth module.
package internal
