package storage

import (
	"context"
	"time"

	"github.com/accessops/idm-access-manager/internal/domain"
)

// Storage defines the interface for the storage layer.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Close closes the storage connection.
	Close() error

	// API Keys
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
	CountAPIKeys(ctx context.Context) (int, error)

	// Applications, keyed by unique name. Create fails with ErrAlreadyExists
	// on a duplicate name; Update fails with ErrNotFound on a missing one.
	// Update persists the record as given, including its UpdatedAt; bumping
	// the timestamp on configuration edits is the caller's responsibility.
	CreateApplication(ctx context.Context, app *domain.Application) error
	GetApplication(ctx context.Context, name string) (*domain.Application, error)
	ListApplications(ctx context.Context) ([]*domain.Application, error)
	UpdateApplication(ctx context.Context, app *domain.Application) error
	DeleteApplication(ctx context.Context, name string) error

	// SetApplyResults records the outcome of a reconciliation pass. It never
	// touches UpdatedAt: an apply is not a configuration edit.
	SetApplyResults(ctx context.Context, name string, appliedAt time.Time, results domain.ApplyResultSet) error

	// Temporary access requests. Requests are never deleted.
	CreateAccessRequest(ctx context.Context, req *domain.AccessRequest) error
	GetAccessRequest(ctx context.Context, id string) (*domain.AccessRequest, error)
	ListAccessRequests(ctx context.Context) ([]*domain.AccessRequest, error)
	ListAccessRequestsByStatus(ctx context.Context, status domain.AccessRequestStatus) ([]*domain.AccessRequest, error)
	UpdateAccessRequest(ctx context.Context, req *domain.AccessRequest) error
}
