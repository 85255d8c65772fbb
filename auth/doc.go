// Package auth authenticates gateway callers and authorizes what they may do.
//
// Inbound callers present either a static API key (looked up by hash in a
// keystore.Store) or an OAuth2 bearer token (validated locally as a JWT or
// remotely through token introspection). Every scheme yields an Identity
// whose permission strings are checked by a PermissionAuthorizer.
//
// Outbound calls use the CredentialSource capability, implemented here by
// StaticKeySource and by tokencache.Cache for OAuth2 client credentials.
package auth
