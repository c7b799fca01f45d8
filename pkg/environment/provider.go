// Package environment resolves named values (API keys, key-manager secrets,
// template variables) from pluggable sources, grounded on the prior art's
// environment.Provider seam. The core only depends on the interface: where
// a value actually comes from (process environment, a secrets file, a
// keychain) is an external collaborator's concern.
package environment

import "context"

// Provider retrieves the value of a named variable.
type Provider interface {
	// Get returns (value, true) if name is found (value may be empty), or
	// ("", false) if not found.
	Get(ctx context.Context, name string) (string, bool)
}
