package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/accessops/idm-access-manager/internal/catalog"
	"github.com/accessops/idm-access-manager/internal/domain"
	"github.com/accessops/idm-access-manager/internal/ipa"
	"github.com/accessops/idm-access-manager/internal/obs"
	"github.com/accessops/idm-access-manager/internal/storage"
	"github.com/accessops/idm-access-manager/internal/validation"
)

// AccessService manages time-bounded access grants. Grants are provisioned as
// dedicated sudo rules so revocation and expiry never touch the application's
// standing rule set.
type AccessService struct {
	store   storage.Storage
	client  ipa.Client
	catalog *catalog.Catalog
	now     func() time.Time
}

// NewAccessService creates an AccessService.
func NewAccessService(store storage.Storage, client ipa.Client, c *catalog.Catalog) *AccessService {
	return &AccessService{
		store:   store,
		client:  client,
		catalog: c,
		now:     time.Now,
	}
}

// validate checks the grant body against the catalog and the stored
// application: the role must exist in the catalog, the application must exist,
// and the named environment must be configured on it.
func (s *AccessService) validate(ctx context.Context, req *domain.GrantAccessRequest) (*domain.Application, error) {
	if errs := validation.ValidateGrantRequest(req, s.catalog); errs != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, errs.Error())
	}
	app, err := s.store.GetApplication(ctx, req.Application)
	if err != nil {
		return nil, err
	}
	for _, env := range app.Environments {
		if env.Name == req.Environment {
			return app, nil
		}
	}
	return nil, fmt.Errorf("%w: environment %q not configured on application %q",
		domain.ErrInvalidInput, req.Environment, req.Application)
}

// newRequest builds the stored record common to both entry paths.
func (s *AccessService) newRequest(req *domain.GrantAccessRequest, status domain.AccessRequestStatus) *domain.AccessRequest {
	now := s.now().UTC()
	return &domain.AccessRequest{
		ID:          uuid.New().String(),
		User:        req.User,
		Domain:      req.Domain,
		Application: req.Application,
		Environment: req.Environment,
		Role:        req.Role,
		Reason:      req.Reason,
		RequestedBy: req.RequestedBy,
		RequestedAt: now,
		ExpiresAt:   now.Add(time.Duration(req.DurationHours) * time.Hour),
		Status:      status,
	}
}

// Grant provisions temporary access immediately, skipping the approval queue.
// The caller is both requester and approver.
func (s *AccessService) Grant(ctx context.Context, req *domain.GrantAccessRequest) (*domain.AccessRequest, error) {
	if _, err := s.validate(ctx, req); err != nil {
		return nil, err
	}
	ar := s.newRequest(req, domain.StatusApproved)
	ar.ApprovedBy = req.RequestedBy
	approvedAt := ar.RequestedAt
	ar.ApprovedAt = &approvedAt

	if err := s.provision(ctx, ar); err != nil {
		return nil, err
	}
	if err := s.store.CreateAccessRequest(ctx, ar); err != nil {
		return nil, err
	}
	return ar, nil
}

// Submit files a pending request for later approval. Nothing is provisioned
// until an approver acts on it.
func (s *AccessService) Submit(ctx context.Context, req *domain.GrantAccessRequest) (*domain.AccessRequest, error) {
	if _, err := s.validate(ctx, req); err != nil {
		return nil, err
	}
	ar := s.newRequest(req, domain.StatusPending)
	if err := s.store.CreateAccessRequest(ctx, ar); err != nil {
		return nil, err
	}
	return ar, nil
}

// Approve provisions a pending request. The expiry clock started at
// submission, not approval; a request approved late grants less time.
func (s *AccessService) Approve(ctx context.Context, id, approver string) (*domain.AccessRequest, error) {
	ar, err := s.store.GetAccessRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if ar.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: cannot approve a %s request", domain.ErrInvalidTransition, ar.Status)
	}
	if s.now().After(ar.ExpiresAt) {
		ar.Status = domain.StatusExpired
		if err := s.store.UpdateAccessRequest(ctx, ar); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: request expired before approval", domain.ErrInvalidTransition)
	}

	ar.Status = domain.StatusApproved
	ar.ApprovedBy = approver
	approvedAt := s.now().UTC()
	ar.ApprovedAt = &approvedAt

	if err := s.provision(ctx, ar); err != nil {
		return nil, err
	}
	if err := s.store.UpdateAccessRequest(ctx, ar); err != nil {
		return nil, err
	}
	return ar, nil
}

// Deny rejects a pending request.
func (s *AccessService) Deny(ctx context.Context, id, approver string) (*domain.AccessRequest, error) {
	ar, err := s.store.GetAccessRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if ar.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: cannot deny a %s request", domain.ErrInvalidTransition, ar.Status)
	}
	ar.Status = domain.StatusDenied
	ar.ApprovedBy = approver
	if err := s.store.UpdateAccessRequest(ctx, ar); err != nil {
		return nil, err
	}
	return ar, nil
}

// Revoke tears down an approved grant before its deadline. The rule is
// disabled first; the status flips only once the server confirms, so a failed
// revocation stays approved and visible.
func (s *AccessService) Revoke(ctx context.Context, id string) (*domain.AccessRequest, error) {
	ar, err := s.store.GetAccessRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if ar.Status != domain.StatusApproved {
		return nil, fmt.Errorf("%w: cannot revoke a %s request", domain.ErrInvalidTransition, ar.Status)
	}
	if ar.SudoRule != "" {
		if _, err := s.client.DisableSudoRule(ctx, ar.SudoRule); err != nil {
			return nil, fmt.Errorf("disabling sudo rule %s: %w", ar.SudoRule, err)
		}
	}
	ar.Status = domain.StatusRevoked
	if err := s.store.UpdateAccessRequest(ctx, ar); err != nil {
		return nil, err
	}
	return ar, nil
}

// Get returns a single request with its effective status materialized.
func (s *AccessService) Get(ctx context.Context, id string) (*domain.AccessRequest, error) {
	ar, err := s.store.GetAccessRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	ar.Status = ar.EffectiveStatus(s.now())
	return ar, nil
}

// List returns all requests, optionally filtered by effective status.
func (s *AccessService) List(ctx context.Context, status domain.AccessRequestStatus) ([]*domain.AccessRequest, error) {
	all, err := s.store.ListAccessRequests(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var out []*domain.AccessRequest
	for _, ar := range all {
		ar.Status = ar.EffectiveStatus(now)
		if status != "" && ar.Status != status {
			continue
		}
		out = append(out, ar)
	}
	return out, nil
}

// provision creates the grant's dedicated sudo rule. The rule name is recorded
// on the request so expiry and revocation can find it later.
func (s *AccessService) provision(ctx context.Context, ar *domain.AccessRequest) error {
	commands, err := s.catalog.SudoCommands(ar.Role)
	if err != nil {
		return err
	}
	rule := catalog.TemporarySudoRuleName(ar.User, ar.Application, ar.Environment, ar.Role, ar.ID)
	obj := domain.DesiredObject{
		Category: domain.CategorySudoRule,
		Name:     rule,
		Description: fmt.Sprintf("Temporary %s access for %s until %s",
			ar.Role, ar.User, ar.ExpiresAt.UTC().Format(time.RFC3339)),
		Users:        []string{ar.User + "@" + ar.Domain},
		HostGroup:    catalog.HostGroupName(ar.Application, ar.Environment),
		SudoCommands: commands,
	}
	if _, err := s.client.Ensure(ctx, obj); err != nil {
		return fmt.Errorf("provisioning sudo rule %s: %w", rule, err)
	}
	ar.SudoRule = rule
	return nil
}

// Sweep expires every approved grant past its deadline: disable the rule, then
// persist the transition. A failed disable leaves the request approved so the
// next sweep retries it.
func (s *AccessService) Sweep(ctx context.Context) error {
	approved, err := s.store.ListAccessRequestsByStatus(ctx, domain.StatusApproved)
	if err != nil {
		return err
	}
	now := s.now()
	var firstErr error
	for _, ar := range approved {
		if !now.After(ar.ExpiresAt) {
			continue
		}
		if ar.SudoRule != "" {
			if _, err := s.client.DisableSudoRule(ctx, ar.SudoRule); err != nil {
				log.Printf("sweep: disabling sudo rule %s for request %s: %v", ar.SudoRule, ar.ID, err)
				obs.ObserveExpiration(false)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
		}
		ar.Status = domain.StatusExpired
		if err := s.store.UpdateAccessRequest(ctx, ar); err != nil {
			log.Printf("sweep: persisting expiry of request %s: %v", ar.ID, err)
			obs.ObserveExpiration(false)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		obs.ObserveExpiration(true)
		log.Printf("sweep: expired grant %s (%s on %s/%s)", ar.ID, ar.User, ar.Application, ar.Environment)
	}
	return firstErr
}

// RunSweeper runs Sweep on a fixed interval until the context is cancelled.
func (s *AccessService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("sweep pass finished with errors: %v", err)
			}
		}
	}
}
