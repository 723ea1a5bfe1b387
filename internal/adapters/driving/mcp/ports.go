package mcp

import (
	"github.com/pipeboard-co/meta-ads-mcp/internal/core/ports/driven"
	"github.com/pipeboard-co/meta-ads-mcp/internal/core/ports/driving"
)

// Ports aggregates the driving and driven ports required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Resolver picks the upstream credential for every tool call.
	Resolver driving.CredentialResolver

	// Graph performs the Meta Graph API requests.
	Graph driven.GraphClient

	// Auth drives the interactive login flow. Optional: when nil the
	// get_login_link tool reports interactive login as unavailable.
	Auth driving.AuthService

	// DisableLoginLink hides the get_login_link tool entirely.
	DisableLoginLink bool

	// Relay forwards bulk operations through the relay service. Required
	// when EnableDuplication is set.
	Relay driven.RelayForwarder

	// RelayKey is the process-wide relay key, used when a request carries
	// none of its own.
	RelayKey string

	// EnableDuplication registers the duplicate_* tools. Off by default:
	// duplication runs through the hosted relay and needs a relay key.
	EnableDuplication bool
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Resolver == nil {
		return ErrMissingResolver
	}
	if p.Graph == nil {
		return ErrMissingGraphClient
	}
	if p.EnableDuplication && p.Relay == nil {
		return ErrMissingRelayForwarder
	}
	return nil
}
