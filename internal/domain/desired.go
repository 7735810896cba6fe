package domain

// ObjectCategory identifies the kind of access-control object a DesiredObject
// describes. The set is closed; result sets are keyed by it.
type ObjectCategory string

const (
	CategoryHostGroup     ObjectCategory = "hostgroup"
	CategoryExternalGroup ObjectCategory = "external_group"
	CategoryPosixGroup    ObjectCategory = "posix_group"
	CategoryHBACRule      ObjectCategory = "hbac_rule"
	CategorySudoRule      ObjectCategory = "sudo_rule"
)

// Categories lists all object categories in apply order.
func Categories() []ObjectCategory {
	return []ObjectCategory{
		CategoryHostGroup,
		CategoryExternalGroup,
		CategoryPosixGroup,
		CategoryHBACRule,
		CategorySudoRule,
	}
}

// DesiredObject is one access-control object the reconciliation pass must
// ensure exists. Instances live only for the duration of a single pass.
// Which attribute fields are meaningful depends on the category.
type DesiredObject struct {
	Category    ObjectCategory `json:"category"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`

	// hostgroup
	HostPattern string `json:"hostPattern,omitempty"`

	// external_group
	ExternalMember string `json:"externalMember,omitempty"` // NETBIOS\IdM_app_env_role

	// posix_group
	MemberGroups []string `json:"memberGroups,omitempty"`

	// hbac_rule and sudo_rule
	UserGroup string `json:"userGroup,omitempty"`
	HostGroup string `json:"hostGroup,omitempty"`

	// sudo_rule: direct user members, used for temporary grants where the
	// subject is a single external user rather than a group
	Users []string `json:"users,omitempty"`

	// hbac_rule
	Service string `json:"service,omitempty"`

	// sudo_rule
	SudoCommands []string `json:"sudoCommands,omitempty"`
}
