// Package token provides the at-rest hashing used for persisted refresh tokens.
//
// Stored rows never contain a usable token string: lookups hash the presented value
// and compare digests. Without a key the digest is SHA-256; with a key it is
// HMAC-SHA256, so a leaked table cannot be brute-forced offline without the key.
package token
