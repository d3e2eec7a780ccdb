// Package botcheck verifies registration-time bot-check assertions
// against the external verification service. The engine treats it as an
// opaque pass/fail collaborator.
//
// # What this package must NOT do
//
//   - Cache verdicts; every assertion is verified fresh.
//   - Leak the shared secret into errors or logs.
package botcheck
