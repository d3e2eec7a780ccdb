// Package mailer delivers the engine's out-of-band messages.
//
// Two implementations of the engine's Mailer dependency live here: an
// SMTP relay client for real deployments and a logger-backed mailer
// for development. Both receive the raw single-use token and render it
// into a storefront link; neither ever sees password material.
package mailer
