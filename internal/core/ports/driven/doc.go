// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - GraphClient: HTTP access to the Meta Graph API
//
// # Optional Interfaces
//
// These can be nil - the resolver skips the matching credential source:
//
//   - TokenCache: Local single-tenant token persistence
//   - RelayClient: Hosted auth-relay lookup
//   - UserStore / OAuthTokenStore / AccessKeyStore: Multi-tenant persistence
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
