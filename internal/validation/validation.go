// Package validation checks user-supplied configuration before any external
// call is made. Failures here are synchronous and side-effect free.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/accessops/idm-access-manager/internal/catalog"
	"github.com/accessops/idm-access-manager/internal/domain"
)

// Provisioned object names embed these components, so they are restricted to
// characters safe in group, rule and DN names.
var nameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// ValidateName checks an application or environment name component.
func ValidateName(field, value string) *ValidationError {
	if value == "" {
		return NewValidationError(field, value, "must not be empty")
	}
	if len(value) > 64 {
		return NewValidationError(field, value, "must be at most 64 characters")
	}
	if !nameRe.MatchString(value) {
		return NewValidationError(field, value, "must start with a letter or digit and contain only letters, digits, hyphens and underscores")
	}
	return nil
}

// ValidateApplication checks an application definition against the role
// catalog. Realm existence is deliberately not checked here; realms are
// validated against the live trust domain catalog at apply time.
func ValidateApplication(app *domain.Application, c *catalog.Catalog) ValidationErrors {
	var errs ValidationErrors

	if err := ValidateName("name", app.Name); err != nil {
		errs = append(errs, err)
	}
	if len(app.Realms) == 0 {
		errs.Add("realms", "", "at least one realm is required")
	}
	for i, realm := range app.Realms {
		if strings.TrimSpace(realm) == "" {
			errs.Add(fmt.Sprintf("realms[%d]", i), realm, "must not be empty")
		}
	}
	if len(app.Environments) == 0 {
		errs.Add("environments", "", "at least one environment is required")
	}
	for i, env := range app.Environments {
		prefix := fmt.Sprintf("environments[%d]", i)
		if err := ValidateName(prefix+".name", env.Name); err != nil {
			errs = append(errs, err)
		}
		if env.HostPattern == "" {
			errs.Add(prefix+".hostPattern", "", "must not be empty")
		}
		if len(env.Roles) == 0 {
			errs.Add(prefix+".roles", "", "at least one role is required")
		}
		for j, role := range env.Roles {
			if !c.HasRole(role) {
				errs.Add(fmt.Sprintf("%s.roles[%d]", prefix, j), role,
					fmt.Sprintf("unknown role; known roles: %s", strings.Join(c.RoleNames(), ", ")))
			}
		}
	}
	return errs
}

// ValidateGrantRequest checks a temporary access grant or request submission.
func ValidateGrantRequest(req *domain.GrantAccessRequest, c *catalog.Catalog) ValidationErrors {
	var errs ValidationErrors

	if strings.TrimSpace(req.User) == "" {
		errs.Add("user", req.User, "must not be empty")
	}
	if strings.TrimSpace(req.Domain) == "" {
		errs.Add("domain", req.Domain, "must not be empty")
	}
	if err := ValidateName("application", req.Application); err != nil {
		errs = append(errs, err)
	}
	if err := ValidateName("environment", req.Environment); err != nil {
		errs = append(errs, err)
	}
	if !c.HasRole(req.Role) {
		errs.Add("role", req.Role,
			fmt.Sprintf("unknown role; known roles: %s", strings.Join(c.RoleNames(), ", ")))
	}
	if req.DurationHours <= 0 {
		errs.Add("durationHours", fmt.Sprintf("%d", req.DurationHours), "must be positive")
	}
	if req.DurationHours > 24*7 {
		errs.Add("durationHours", fmt.Sprintf("%d", req.DurationHours), "must be at most one week")
	}
	return errs
}
