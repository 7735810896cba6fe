package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/accessops/idm-access-manager/internal/domain"
	"github.com/accessops/idm-access-manager/internal/ipa"
	"github.com/accessops/idm-access-manager/internal/obs"
	"github.com/accessops/idm-access-manager/internal/planner"
	"github.com/accessops/idm-access-manager/internal/storage"
)

// Reconciler applies an application's desired state against the identity
// management server. Each object is ensured independently; one failure never
// aborts the rest of the pass.
type Reconciler struct {
	store         storage.Storage
	client        ipa.Client
	planner       *planner.Planner
	objectTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-application apply locks
}

// NewReconciler creates a Reconciler. objectTimeout bounds each individual
// ensure operation; a timeout is that object's failure, not the pass's.
func NewReconciler(store storage.Storage, client ipa.Client, p *planner.Planner, objectTimeout time.Duration) *Reconciler {
	return &Reconciler{
		store:         store,
		client:        client,
		planner:       p,
		objectTimeout: objectTimeout,
		locks:         make(map[string]*sync.Mutex),
	}
}

// appLock returns the mutex serializing apply passes for one application.
// Two concurrent passes for the same application would interleave writes to
// last_apply_results; passes for different applications run freely.
func (r *Reconciler) appLock(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[name]
	if !ok {
		l = &sync.Mutex{}
		r.locks[name] = l
	}
	return l
}

// Plan builds the desired-object list for an application without applying it.
func (r *Reconciler) Plan(ctx context.Context, name string) ([]domain.DesiredObject, error) {
	app, err := r.store.GetApplication(ctx, name)
	if err != nil {
		return nil, err
	}
	trustDomains, err := r.client.TrustDomains(ctx)
	if err != nil {
		return nil, err
	}
	return r.planner.Build(app, trustDomains)
}

// Apply runs one reconciliation pass for the named application.
//
// Validation errors and an unreachable upstream abort before any object is
// touched. Once the pass starts, every desired object is attempted exactly
// once; per-object failures are recorded in the result set, never raised. On
// completion the pass timestamp and results are written back to the
// application record regardless of individual failures.
func (r *Reconciler) Apply(ctx context.Context, name string) (*domain.ApplyResponse, error) {
	app, err := r.store.GetApplication(ctx, name)
	if err != nil {
		return nil, err
	}

	trustDomains, err := r.client.TrustDomains(ctx)
	if err != nil {
		return nil, err
	}

	objects, err := r.planner.Build(app, trustDomains)
	if err != nil {
		return nil, err
	}

	lock := r.appLock(name)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	results := make(domain.ApplyResultSet)
	for _, obj := range objects {
		output, err := r.ensureOne(ctx, obj)
		if err != nil {
			results.Record(obj.Category, obj.Name, false, err.Error())
			obs.ObserveApplyObject(string(obj.Category), false)
			log.Printf("apply %s: %s %s failed: %v", name, obj.Category, obj.Name, err)
			continue
		}
		results.Record(obj.Category, obj.Name, true, output)
		obs.ObserveApplyObject(string(obj.Category), true)
	}
	obs.ObserveApplyPass(time.Since(start))

	appliedAt := time.Now()
	if err := r.store.SetApplyResults(ctx, name, appliedAt, results); err != nil {
		return nil, fmt.Errorf("recording apply results: %w", err)
	}

	return &domain.ApplyResponse{
		Application: name,
		AppliedAt:   appliedAt.UTC().Format(time.RFC3339),
		Summary:     results.Summarize(),
		Results:     results,
	}, nil
}

// ensureOne ensures a single object under its own timeout.
func (r *Reconciler) ensureOne(ctx context.Context, obj domain.DesiredObject) (string, error) {
	if r.objectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.objectTimeout)
		defer cancel()
	}
	return r.client.Ensure(ctx, obj)
}
