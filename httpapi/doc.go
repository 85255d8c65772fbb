// Package httpapi serves the gateway over plain HTTP and JSON.
//
// Routes:
//
//	GET    /tools          list tools (tool:*:list)
//	POST   /tools/call     invoke {name, arguments} (tool:<name>:call)
//	GET    /keys           list API keys (key:*:manage)
//	POST   /keys           issue a key {name, permissions}
//	GET    /keys/{id}      show one key
//	DELETE /keys/{id}      revoke a key
//	GET    /health         detailed health report
//	GET    /healthz        liveness
//	GET    /readyz         readiness
//	GET    /metrics        Prometheus exposition, when configured
//
// Errors are JSON {error, kind, param?} with a status derived from kind.
package httpapi
