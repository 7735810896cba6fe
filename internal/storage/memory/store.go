package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/accessops/idm-access-manager/internal/domain"
)

// Store is an in-memory implementation of the storage interface for testing.
type Store struct {
	mu sync.RWMutex

	apiKeys      map[string]*domain.APIKey        // key: id
	applications map[string]*domain.Application   // key: name
	requests     map[string]*domain.AccessRequest // key: id
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		apiKeys:      make(map[string]*domain.APIKey),
		applications: make(map[string]*domain.Application),
		requests:     make(map[string]*domain.AccessRequest),
	}
}

func (s *Store) Close() error { return nil }

// ============================================
// API Keys
// ============================================

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.apiKeys[key.ID]; exists {
		return domain.ErrAlreadyExists
	}
	s.apiKeys[key.ID] = key
	return nil
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, key := range s.apiKeys {
		if key.KeyHash == keyHash {
			return key, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]*domain.APIKey, 0, len(s.apiKeys))
	for _, key := range s.apiKeys {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys, nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.apiKeys[id]; !exists {
		return domain.ErrNotFound
	}
	delete(s.apiKeys, id)
	return nil
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, exists := s.apiKeys[id]
	if !exists {
		return domain.ErrNotFound
	}
	now := time.Now()
	key.LastUsedAt = &now
	return nil
}

func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.apiKeys), nil
}

// ============================================
// Applications
// ============================================

func (s *Store) CreateApplication(ctx context.Context, app *domain.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.applications[app.Name]; exists {
		return domain.ErrAlreadyExists
	}
	s.applications[app.Name] = app.Clone()
	return nil
}

func (s *Store) GetApplication(ctx context.Context, name string) (*domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, exists := s.applications[name]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return app.Clone(), nil
}

func (s *Store) ListApplications(ctx context.Context) ([]*domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	apps := make([]*domain.Application, 0, len(s.applications))
	for _, app := range s.applications {
		apps = append(apps, app.Clone())
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })
	return apps, nil
}

func (s *Store) UpdateApplication(ctx context.Context, app *domain.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.applications[app.Name]; !exists {
		return domain.ErrNotFound
	}
	s.applications[app.Name] = app.Clone()
	return nil
}

func (s *Store) DeleteApplication(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.applications[name]; !exists {
		return domain.ErrNotFound
	}
	delete(s.applications, name)
	return nil
}

func (s *Store) SetApplyResults(ctx context.Context, name string, appliedAt time.Time, results domain.ApplyResultSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, exists := s.applications[name]
	if !exists {
		return domain.ErrNotFound
	}
	t := appliedAt
	app.LastApplied = &t
	rs := results.Clone()
	app.LastApplyResults = &rs
	return nil
}

// ============================================
// Access Requests
// ============================================

func (s *Store) CreateAccessRequest(ctx context.Context, req *domain.AccessRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; exists {
		return domain.ErrAlreadyExists
	}
	clone := *req
	s.requests[req.ID] = &clone
	return nil
}

func (s *Store) GetAccessRequest(ctx context.Context, id string) (*domain.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, exists := s.requests[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	clone := *req
	return &clone, nil
}

func (s *Store) ListAccessRequests(ctx context.Context) ([]*domain.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reqs := make([]*domain.AccessRequest, 0, len(s.requests))
	for _, req := range s.requests {
		clone := *req
		reqs = append(reqs, &clone)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].RequestedAt.After(reqs[j].RequestedAt) })
	return reqs, nil
}

func (s *Store) ListAccessRequestsByStatus(ctx context.Context, status domain.AccessRequestStatus) ([]*domain.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reqs := make([]*domain.AccessRequest, 0)
	for _, req := range s.requests {
		if req.Status == status {
			clone := *req
			reqs = append(reqs, &clone)
		}
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].RequestedAt.After(reqs[j].RequestedAt) })
	return reqs, nil
}

func (s *Store) UpdateAccessRequest(ctx context.Context, req *domain.AccessRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; !exists {
		return domain.ErrNotFound
	}
	clone := *req
	s.requests[req.ID] = &clone
	return nil
}
