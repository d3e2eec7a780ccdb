// Package jwt issues and verifies the signed tokens the authentication
// engine hands to storefront clients.
//
// Two token kinds exist: short-lived access tokens presented on every
// request, and long-lived refresh tokens used only to mint replacements.
// Both carry the account id as the subject claim and a kind marker so a
// token of one audience is never accepted by the other.
//
// # Architecture boundaries
//
// This package only signs and verifies. It does not know about accounts,
// fingerprints, rotation, or cookies; those decisions belong to the
// engine and the HTTP layer.
//
// # What this package must NOT do
//
// It must not reach into storage, log token contents, or accept tokens
// signed with an algorithm other than the configured one.
package jwt
