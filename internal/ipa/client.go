// Package ipa talks to the identity management server. The real
// implementation shells out to the ipa CLI; a file-backed shim stands in for
// development and tests.
package ipa

import (
	"context"

	"github.com/accessops/idm-access-manager/internal/domain"
)

// Client is the engine's view of the identity management server. Every
// mutating call is an ensure operation: create-if-absent, no-op when the named
// object already exists, and never an attribute update of an existing object.
type Client interface {
	// Ping verifies connectivity and the validity of the credential context.
	Ping(ctx context.Context) error

	// TrustDomains lists the trusted external realms, live from the server.
	TrustDomains(ctx context.Context) ([]domain.TrustDomain, error)

	// Hosts lists all enrolled host FQDNs.
	Hosts(ctx context.Context) ([]string, error)

	// Ensure creates the desired object if absent. The returned string is
	// human-readable command output for the result set.
	Ensure(ctx context.Context, obj domain.DesiredObject) (string, error)

	// DisableSudoRule deactivates a sudo rule, used when revoking or expiring
	// temporary access. Disabling an already-disabled rule is a no-op.
	DisableSudoRule(ctx context.Context, name string) (string, error)

	// TestHBAC runs a read-only host-based-access simulation for a user,
	// target host and service.
	TestHBAC(ctx context.Context, user, host, service string) (string, error)
}

// Credential is the explicit Kerberos execution context threaded into every
// server invocation. Principal and keytab are optional; when empty the
// ambient credential cache of the process is used.
type Credential struct {
	Principal string
	Keytab    string
	CachePath string
}
