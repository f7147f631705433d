// Package identity owns community users as seen by the authentication core.
//
// It exposes the lookups login and refresh depend on (by email including
// soft-deleted accounts, and by id for active accounts), password verification for
// the hash formats in use, and persistence over Postgres, SQLite or memory.
package identity
