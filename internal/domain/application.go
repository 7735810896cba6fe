package domain

import "time"

// Environment is one deployment tier of an application. It is owned by its
// Application and has no identity outside it. The host pattern is a glob
// template containing the {app} placeholder, e.g. "*{app}*dev*".
type Environment struct {
	Name        string   `json:"name"`
	HostPattern string   `json:"hostPattern"`
	Roles       []string `json:"roles"`
}

// Application describes one application's access configuration: which trusted
// realms may reach it and which environments and roles exist.
type Application struct {
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	Realms           []string        `json:"realms"` // NetBIOS names of trust domains
	Environments     []Environment   `json:"environments"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	LastApplied      *time.Time      `json:"lastApplied,omitempty"`
	LastApplyResults *ApplyResultSet `json:"lastApplyResults,omitempty"`
}

// Stale reports whether the declared configuration has changed since the last
// apply pass. It is derived on every read, never stored.
func (a *Application) Stale() bool {
	if a.LastApplied == nil {
		return true
	}
	return a.UpdatedAt.After(*a.LastApplied)
}

// Clone returns a deep copy so handlers can mutate request-scoped copies
// without aliasing store-owned records.
func (a *Application) Clone() *Application {
	c := *a
	c.Realms = append([]string(nil), a.Realms...)
	c.Environments = make([]Environment, len(a.Environments))
	for i, env := range a.Environments {
		c.Environments[i] = env
		c.Environments[i].Roles = append([]string(nil), env.Roles...)
	}
	if a.LastApplied != nil {
		t := *a.LastApplied
		c.LastApplied = &t
	}
	if a.LastApplyResults != nil {
		rs := a.LastApplyResults.Clone()
		c.LastApplyResults = &rs
	}
	return &c
}

// CreateApplicationRequest is the request body for creating an application.
// Environments are optional; the default DEV/QUA/PRD set is used when absent.
type CreateApplicationRequest struct {
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Realms       []string      `json:"realms"`
	Environments []Environment `json:"environments,omitempty"`
}

// UpdateApplicationRequest is the request body for updating an application.
// The name is immutable after creation.
type UpdateApplicationRequest struct {
	Description  *string       `json:"description,omitempty"`
	Realms       []string      `json:"realms,omitempty"`
	Environments []Environment `json:"environments,omitempty"`
}
