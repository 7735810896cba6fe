package domain

import "time"

// AccessRequestStatus is the lifecycle state of a temporary access request.
type AccessRequestStatus string

const (
	StatusPending  AccessRequestStatus = "pending"
	StatusApproved AccessRequestStatus = "approved"
	StatusDenied   AccessRequestStatus = "denied"
	StatusExpired  AccessRequestStatus = "expired"
	StatusRevoked  AccessRequestStatus = "revoked"
)

// AccessRequest is a time-bounded grant of role access outside the standard
// application lifecycle. Requests are never deleted; they only move through
// pending → approved → expired/revoked, or pending → denied.
type AccessRequest struct {
	ID          string              `json:"id"`
	User        string              `json:"user"`
	Domain      string              `json:"domain"` // NetBIOS name of the trust domain
	Application string              `json:"application"`
	Environment string              `json:"environment"`
	Role        string              `json:"role"`
	Reason      string              `json:"reason"`
	RequestedBy string              `json:"requestedBy"`
	RequestedAt time.Time           `json:"requestedAt"`
	ExpiresAt   time.Time           `json:"expiresAt"`
	Status      AccessRequestStatus `json:"status"`
	ApprovedBy  string              `json:"approvedBy,omitempty"`
	ApprovedAt  *time.Time          `json:"approvedAt,omitempty"`
	SudoRule    string              `json:"sudoRule,omitempty"` // name of the provisioned rule
}

// EffectiveStatus derives the status as of now. An approved request past its
// deadline reads as expired even before the sweep has persisted the
// transition, and never reverts to approved.
func (r *AccessRequest) EffectiveStatus(now time.Time) AccessRequestStatus {
	if r.Status == StatusApproved && now.After(r.ExpiresAt) {
		return StatusExpired
	}
	return r.Status
}

// Terminal reports whether the stored status admits no further transitions.
func (s AccessRequestStatus) Terminal() bool {
	return s == StatusDenied || s == StatusExpired || s == StatusRevoked
}

// GrantAccessRequest is the request body for both the direct-grant path and
// the request/approve path. DurationHours bounds the grant lifetime.
type GrantAccessRequest struct {
	User          string `json:"user"`
	Domain        string `json:"domain"`
	Application   string `json:"application"`
	Environment   string `json:"environment"`
	Role          string `json:"role"`
	DurationHours int    `json:"durationHours"`
	Reason        string `json:"reason,omitempty"`
	RequestedBy   string `json:"requestedBy,omitempty"`
}
