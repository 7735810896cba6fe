// Package catalog owns the fixed role and environment templates and the
// canonical naming scheme for all provisioned objects. Everything here is
// pure: no I/O, no clock, no external state.
package catalog

import (
	"fmt"
	"strings"

	"github.com/accessops/idm-access-manager/internal/domain"
)

// RoleTemplate maps a role identifier to the sudo commands it grants.
type RoleTemplate struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Commands    []string `json:"commands"`
}

// Catalog is the injected role template table. The reconciliation logic never
// hard-codes role names; extending access tiers means extending this table.
type Catalog struct {
	roles map[string]RoleTemplate
	order []string
}

// New builds a catalog from the given templates, preserving their order.
func New(templates ...RoleTemplate) *Catalog {
	c := &Catalog{roles: make(map[string]RoleTemplate, len(templates))}
	for _, t := range templates {
		if _, ok := c.roles[t.Name]; !ok {
			c.order = append(c.order, t.Name)
		}
		c.roles[t.Name] = t
	}
	return c
}

// Default returns the standard role catalog: full, devops, readonly.
func Default() *Catalog {
	return New(
		RoleTemplate{
			Name:        "full",
			Description: "Full sudo access",
			Commands:    []string{"ALL"},
		},
		RoleTemplate{
			Name:        "devops",
			Description: "Service management commands",
			Commands: []string{
				"/usr/bin/systemctl",
				"/usr/bin/journalctl",
				"/bin/systemctl",
				"/bin/journalctl",
			},
		},
		RoleTemplate{
			Name:        "readonly",
			Description: "Read-only inspection commands",
			Commands: []string{
				"/usr/bin/cat",
				"/usr/bin/less",
				"/usr/bin/tail",
				"/usr/bin/head",
				"/usr/bin/journalctl -xe",
			},
		},
	)
}

// Roles returns the role templates in catalog order.
func (c *Catalog) Roles() []RoleTemplate {
	roles := make([]RoleTemplate, 0, len(c.order))
	for _, name := range c.order {
		roles = append(roles, c.roles[name])
	}
	return roles
}

// RoleNames returns the known role identifiers in catalog order.
func (c *Catalog) RoleNames() []string {
	return append([]string(nil), c.order...)
}

// HasRole reports whether the role identifier exists in the catalog.
func (c *Catalog) HasRole(role string) bool {
	_, ok := c.roles[role]
	return ok
}

// SudoCommands returns the command set granted by the role.
func (c *Catalog) SudoCommands(role string) ([]string, error) {
	t, ok := c.roles[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownRole, role)
	}
	return append([]string(nil), t.Commands...), nil
}

// DefaultEnvironments returns the DEV/QUA/PRD environment set used when an
// application is created without explicit environments.
func (c *Catalog) DefaultEnvironments() []domain.Environment {
	roles := c.RoleNames()
	return []domain.Environment{
		{Name: "DEV", HostPattern: "*{app}*dev*", Roles: append([]string(nil), roles...)},
		{Name: "QUA", HostPattern: "*{app}*qua*", Roles: append([]string(nil), roles...)},
		{Name: "PRD", HostPattern: "*{app}*prd*", Roles: append([]string(nil), roles...)},
	}
}

// ExternalGroupName is the canonical name of the group in the external trust
// domain: IdM_{app}_{env}_{role}, lower-cased components. This format is part
// of the wire contract with pre-existing objects and must not change.
func ExternalGroupName(app, env, role string) string {
	return fmt.Sprintf("IdM_%s_%s_%s",
		strings.ToLower(app), strings.ToLower(env), strings.ToLower(role))
}

// ExternalGroupRef renders the realm-qualified reference to an external
// group: {NETBIOS}\{group}.
func ExternalGroupRef(netbios, group string) string {
	return netbios + `\` + group
}

// HostPattern substitutes the application name into an environment's host
// pattern template, e.g. "*{app}*dev*" -> "*webapp*dev*".
func HostPattern(app, template string) string {
	return strings.ReplaceAll(template, "{app}", app)
}

// Local object names inside the identity management server. These embed the
// application name, so they are collision-free across applications.

// HostGroupName names the per-environment host group.
func HostGroupName(app, env string) string {
	return fmt.Sprintf("%s-%s-hosts", strings.ToLower(app), strings.ToLower(env))
}

// LinkedGroupName names the realm-linked external group object.
func LinkedGroupName(app, env, role, netbios string) string {
	return fmt.Sprintf("%s-%s-%s-%s",
		strings.ToLower(app), strings.ToLower(env), strings.ToLower(role), strings.ToLower(netbios))
}

// PosixGroupName names the POSIX group containing the external groups.
func PosixGroupName(app, env, role string) string {
	return fmt.Sprintf("%s-%s-%s",
		strings.ToLower(app), strings.ToLower(env), strings.ToLower(role))
}

// HBACRuleName names the host-based access rule.
func HBACRuleName(app, env, role string) string {
	return PosixGroupName(app, env, role) + "-access"
}

// SudoRuleName names the sudo rule.
func SudoRuleName(app, env, role string) string {
	return PosixGroupName(app, env, role) + "-sudo"
}

// TemporarySudoRuleName names the time-scoped sudo rule backing a temporary
// access grant. The request ID suffix keeps concurrent grants for the same
// user and role distinct.
func TemporarySudoRuleName(user, app, env, role, requestID string) string {
	id := requestID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("tmp-%s-%s-%s-%s-%s",
		strings.ToLower(user), strings.ToLower(app), strings.ToLower(env), strings.ToLower(role), id)
}
