// Package planner builds the full desired-object set for an application: the
// cross product of realms, environments and roles, flattened into a named,
// typed, deterministically ordered list.
package planner

import (
	"fmt"

	"github.com/accessops/idm-access-manager/internal/catalog"
	"github.com/accessops/idm-access-manager/internal/domain"
)

// Planner derives desired state from application definitions. It performs no
// I/O; trust domains are passed in by the caller.
type Planner struct {
	catalog *catalog.Catalog
}

// New creates a Planner using the given role catalog.
func New(c *catalog.Catalog) *Planner {
	return &Planner{catalog: c}
}

type objectKey struct {
	category domain.ObjectCategory
	name     string
}

// Build enumerates every object the application requires. Iteration order is
// environment -> role -> realm, each in declared order, so identical input
// always yields an identical list. The order is also a dependency order for
// an executor ensuring objects front to back: every external group a POSIX
// group references precedes it, and the groups a rule binds precede the rule.
//
// Validation happens before any object is produced: an unknown role returns
// ErrUnknownRole, a realm absent from the trust domain catalog returns
// ErrUnknownRealm, and in both cases the object list is empty.
func (p *Planner) Build(app *domain.Application, trustDomains []domain.TrustDomain) ([]domain.DesiredObject, error) {
	if err := p.validate(app, trustDomains); err != nil {
		return nil, err
	}

	var objects []domain.DesiredObject
	seen := make(map[objectKey]bool)
	emit := func(obj domain.DesiredObject) {
		key := objectKey{obj.Category, obj.Name}
		if seen[key] {
			return
		}
		seen[key] = true
		objects = append(objects, obj)
	}

	for _, env := range app.Environments {
		hostGroup := catalog.HostGroupName(app.Name, env.Name)
		emit(domain.DesiredObject{
			Category:    domain.CategoryHostGroup,
			Name:        hostGroup,
			Description: fmt.Sprintf("Host group for %s %s", app.Name, env.Name),
			HostPattern: catalog.HostPattern(app.Name, env.HostPattern),
		})

		for _, role := range env.Roles {
			adGroup := catalog.ExternalGroupName(app.Name, env.Name, role)
			members := make([]string, 0, len(app.Realms))
			for _, realm := range app.Realms {
				linked := catalog.LinkedGroupName(app.Name, env.Name, role, realm)
				emit(domain.DesiredObject{
					Category:       domain.CategoryExternalGroup,
					Name:           linked,
					Description:    fmt.Sprintf("External group for %s@%s", adGroup, realm),
					ExternalMember: catalog.ExternalGroupRef(realm, adGroup),
				})
				members = append(members, linked)
			}

			posixGroup := catalog.PosixGroupName(app.Name, env.Name, role)
			emit(domain.DesiredObject{
				Category:     domain.CategoryPosixGroup,
				Name:         posixGroup,
				Description:  fmt.Sprintf("POSIX group for %s", posixGroup),
				MemberGroups: members,
			})

			emit(domain.DesiredObject{
				Category:    domain.CategoryHBACRule,
				Name:        catalog.HBACRuleName(app.Name, env.Name, role),
				Description: fmt.Sprintf("HBAC rule for %s", posixGroup),
				UserGroup:   posixGroup,
				HostGroup:   hostGroup,
				Service:     "sshd",
			})

			commands, _ := p.catalog.SudoCommands(role) // validated above
			emit(domain.DesiredObject{
				Category:     domain.CategorySudoRule,
				Name:         catalog.SudoRuleName(app.Name, env.Name, role),
				Description:  fmt.Sprintf("Sudo rule for %s", posixGroup),
				UserGroup:    posixGroup,
				HostGroup:    hostGroup,
				SudoCommands: commands,
			})
		}
	}

	return objects, nil
}

func (p *Planner) validate(app *domain.Application, trustDomains []domain.TrustDomain) error {
	if len(app.Realms) == 0 {
		return fmt.Errorf("%w: application has no realms", domain.ErrInvalidInput)
	}
	if len(app.Environments) == 0 {
		return fmt.Errorf("%w: application has no environments", domain.ErrInvalidInput)
	}

	known := make(map[string]bool, len(trustDomains))
	for _, td := range trustDomains {
		known[td.NetBIOSName] = true
	}
	for _, realm := range app.Realms {
		if !known[realm] {
			return fmt.Errorf("%w: %q", domain.ErrUnknownRealm, realm)
		}
	}

	for _, env := range app.Environments {
		for _, role := range env.Roles {
			if !p.catalog.HasRole(role) {
				return fmt.Errorf("%w: %q in environment %s", domain.ErrUnknownRole, role, env.Name)
			}
		}
	}
	return nil
}
