// Package secret resolves credentials referenced from configuration.
//
// Values pass through strict environment expansion first: ${VAR} must be
// set, and $$ yields a literal dollar. A value of the form
//
//	secretref:<provider>:<ref>
//
// is then replaced by what the named Provider returns. References may also
// appear inline, as in "Bearer secretref:env:UPSTREAM_TOKEN".
//
// Built-in providers:
//   - env:  ref is an environment variable name.
//   - file: ref is a path, optionally confined to a root directory
//     (for example mounted container secrets).
package secret
