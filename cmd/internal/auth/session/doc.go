// Package session persists issued refresh tokens and their revocation state.
//
// A row is active while revoked is false; expiry is enforced by callers against
// ExpiresAt. Revocation only ever moves a row from active to revoked.
//
// Token strings are never stored. Every lookup hashes the presented token with the
// configured Hasher and matches on the digest.
package session
