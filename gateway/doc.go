// Package gateway is the authenticated invocation path for catalog tools.
//
// Every call runs the same steps in order:
//
//  1. authenticate the presented credential
//  2. authorize tool:<name>:call for the resulting identity
//  3. resolve the tool in the catalog
//  4. bind and coerce the arguments
//  5. invoke the handler under the executor (rate limit, bulkhead, timeout)
//  6. render the result as a single text content block
//
// Unauthenticated callers learn nothing about which tools exist: resolution
// happens only after steps 1 and 2 succeed. Failures at any step become an
// *Error carrying a Kind, and Invoke never panics or returns a Go error to the
// transport.
package gateway
