// Package domain defines the core business entities for the Meta Ads
// MCP gateway.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - TokenInfo: A cached upstream Meta access token
//   - AuthContext: Per-request carrier of tenant credentials
//   - User / OAuthToken / PersonalAccessToken: Multi-tenant records
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
package domain
