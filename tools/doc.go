// Package tools holds the built-in tool definitions served by the toolgate
// binary: echo, and upstream_get, which proxies read-only GET requests to a
// configured upstream API under the upstream credential.
package tools
