// Package httpapi is the hosted-mode HTTP surface: tenant and access-key
// administration endpoints plus the authenticated MCP mount. Every request
// passes through one auth middleware that turns transport headers into a
// per-request auth context; nothing credential-bearing is ever stored in
// shared state.
package httpapi
