// Package password hashes and verifies account passwords.
//
// New hashes are Argon2id in PHC form:
//
//	$argon2id$v=19$m=<KiB>,t=<iterations>,p=<parallelism>$<salt>$<key>
//
// Verification also accepts bcrypt ($2a$, $2b$, $2y$) hashes carried over from
// accounts created before Argon2id was adopted. Stored hashes are treated as
// untrusted input: parameters far above the configured cost are refused.
package password
