// Package password implements password hashing and the credential policy rules.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The [Argon2] hasher supports transparent parameter upgrades: if the stored
// hash was produced with weaker parameters, [Argon2.NeedsUpgrade] returns true
// so the caller can re-hash on the next successful login.
//
// [Policy] layers the storefront's credential rules on top: a composition
// strength rule (length plus lowercase, uppercase, digit, and symbol classes)
// and reuse checks against a bounded hash history.
//
// # Architecture boundaries
//
// This package owns hashing, verification, and per-password policy decisions.
// Where the history bound applies (reset versus profile change) is decided by
// the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords — callers supply plaintext and receive hashes.
//   - Import any other brewauth package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
