// Package authn decides, per request, whether credentials are required, extracts and
// verifies them, and binds the caller's Identity into the request context.
//
// Decisions come from one ordered rule table evaluated once per request (first match
// wins, no match means Strict). Authenticator strategies are pluggable: the default
// TokenAuthenticator verifies a stateless access token, StoreAuthenticator resolves the
// refresh-token cookie against the session store.
package authn
