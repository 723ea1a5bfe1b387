// Package services implements the driving port interfaces.
// CredentialResolver is the precedence engine selecting the upstream
// credential for each call; AuthManager drives the interactive OAuth flow
// for local single-tenant mode.
//
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
package services
