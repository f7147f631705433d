// Package token issues and verifies the bearer credentials used by the community API.
//
// Access tokens are short-lived and never persisted. Refresh tokens carry a random
// identifier and a distinct type claim; their lifecycle is tracked by the session store.
//
// Two interchangeable formats are provided: JWT (HS256) and PASETO v4.local. Both are
// pure functions of the configured key, the clock and the input string.
package token
