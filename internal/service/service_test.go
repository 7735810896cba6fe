package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/accessops/idm-access-manager/internal/catalog"
	"github.com/accessops/idm-access-manager/internal/domain"
	"github.com/accessops/idm-access-manager/internal/planner"
	"github.com/accessops/idm-access-manager/internal/storage/memory"
)

// fakeClient records every call and can be told to fail specific objects.
type fakeClient struct {
	mu           sync.Mutex
	trustDomains []domain.TrustDomain
	trustErr     error
	ensured      []domain.DesiredObject
	failNames    map[string]error
	disabled     []string
	disableErr   error
}

func (f *fakeClient) Ping(ctx context.Context) error { return nil }

func (f *fakeClient) TrustDomains(ctx context.Context) ([]domain.TrustDomain, error) {
	if f.trustErr != nil {
		return nil, f.trustErr
	}
	return f.trustDomains, nil
}

func (f *fakeClient) Hosts(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeClient) Ensure(ctx context.Context, obj domain.DesiredObject) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failNames[obj.Name]; ok {
		return "", err
	}
	f.ensured = append(f.ensured, obj)
	return "created", nil
}

func (f *fakeClient) DisableSudoRule(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disableErr != nil {
		return "", f.disableErr
	}
	f.disabled = append(f.disabled, name)
	return "disabled", nil
}

func (f *fakeClient) TestHBAC(ctx context.Context, user, host, service string) (string, error) {
	return "access granted", nil
}

func corpTrust() []domain.TrustDomain {
	return []domain.TrustDomain{
		{Name: "corp.example.com", NetBIOSName: "CORP", Realm: "CORP.EXAMPLE.COM", Type: "ad"},
	}
}

func testApplication() *domain.Application {
	return &domain.Application{
		Name:   "webapp",
		Realms: []string{"CORP"},
		Environments: []domain.Environment{
			{Name: "DEV", HostPattern: "*{app}*dev*", Roles: []string{"full", "devops"}},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func newTestReconciler(t *testing.T, client *fakeClient) (*Reconciler, *memory.Store) {
	t.Helper()
	store := memory.New()
	if err := store.CreateApplication(context.Background(), testApplication()); err != nil {
		t.Fatalf("seeding application: %v", err)
	}
	return NewReconciler(store, client, planner.New(catalog.Default()), time.Minute), store
}

func TestApplyRecordsResults(t *testing.T) {
	client := &fakeClient{trustDomains: corpTrust()}
	rec, store := newTestReconciler(t, client)

	resp, err := rec.Apply(context.Background(), "webapp")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(client.ensured) == 0 {
		t.Fatal("no objects were ensured")
	}
	for _, summary := range resp.Summary {
		if summary.Failed != 0 {
			t.Errorf("category %s: %d failures", summary.Category, summary.Failed)
		}
	}

	app, err := store.GetApplication(context.Background(), "webapp")
	if err != nil {
		t.Fatalf("GetApplication() error = %v", err)
	}
	if app.LastApplied == nil {
		t.Fatal("LastApplied not set after apply")
	}
	if app.Stale() {
		t.Error("application still stale after apply")
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	client := &fakeClient{trustDomains: corpTrust()}
	rec, store := newTestReconciler(t, client)

	if _, err := rec.Apply(context.Background(), "webapp"); err != nil {
		t.Fatalf("first Apply() error = %v", err)
	}
	first, _ := store.GetApplication(context.Background(), "webapp")

	time.Sleep(time.Millisecond)
	resp, err := rec.Apply(context.Background(), "webapp")
	if err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}
	for _, summary := range resp.Summary {
		if summary.Failed != 0 {
			t.Errorf("second pass category %s: %d failures", summary.Category, summary.Failed)
		}
	}

	second, _ := store.GetApplication(context.Background(), "webapp")
	if !second.LastApplied.After(*first.LastApplied) {
		t.Error("second apply did not advance LastApplied")
	}
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Error("apply must not touch UpdatedAt")
	}
}

func TestApplyPartialFailureIsIsolated(t *testing.T) {
	failing := "webapp-dev-full-corp"
	client := &fakeClient{
		trustDomains: corpTrust(),
		failNames:    map[string]error{failing: errors.New("boom")},
	}
	rec, store := newTestReconciler(t, client)

	resp, err := rec.Apply(context.Background(), "webapp")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	res, ok := resp.Results[domain.CategoryExternalGroup][failing]
	if !ok {
		t.Fatalf("no result recorded for %s", failing)
	}
	if res.Success {
		t.Error("failed object reported as success")
	}
	if !strings.Contains(res.Message, "boom") {
		t.Errorf("failure message = %q, want the underlying error", res.Message)
	}

	succeeded := 0
	for _, summary := range resp.Summary {
		succeeded += summary.Succeeded
	}
	if succeeded == 0 {
		t.Error("one failing object aborted its siblings")
	}

	app, _ := store.GetApplication(context.Background(), "webapp")
	if app.LastApplied == nil {
		t.Error("partial failure must still record the pass")
	}
}

func TestApplyAbortsWhenUpstreamUnavailable(t *testing.T) {
	client := &fakeClient{trustErr: domain.ErrUpstreamUnavailable}
	rec, store := newTestReconciler(t, client)

	_, err := rec.Apply(context.Background(), "webapp")
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("Apply() error = %v, want ErrUpstreamUnavailable", err)
	}
	if len(client.ensured) != 0 {
		t.Error("objects were ensured despite unavailable upstream")
	}
	app, _ := store.GetApplication(context.Background(), "webapp")
	if app.LastApplied != nil {
		t.Error("aborted pass must not record apply results")
	}
}

// dependencyClient mimics server-side membership semantics: adding a member
// group that does not exist yet fails, and re-ensuring an existing object is
// a skip that never touches members.
type dependencyClient struct {
	fakeClient
	created map[string]bool
	members map[string][]string
}

func (d *dependencyClient) Ensure(ctx context.Context, obj domain.DesiredObject) (string, error) {
	if d.created[obj.Name] {
		return "already exists, left unchanged", nil
	}
	if obj.Category == domain.CategoryPosixGroup {
		for _, member := range obj.MemberGroups {
			if !d.created[member] {
				return "", fmt.Errorf("adding member group %s: no such entry", member)
			}
		}
		d.members[obj.Name] = append([]string(nil), obj.MemberGroups...)
	}
	d.created[obj.Name] = true
	return "created", nil
}

func TestApplyMultiRealmConvergesOnFirstPass(t *testing.T) {
	client := &dependencyClient{
		fakeClient: fakeClient{trustDomains: []domain.TrustDomain{
			{Name: "acme.example.com", NetBIOSName: "ACME", Realm: "ACME.EXAMPLE.COM", Type: "ad"},
			{Name: "corp.example.com", NetBIOSName: "CORP", Realm: "CORP.EXAMPLE.COM", Type: "ad"},
		}},
		created: make(map[string]bool),
		members: make(map[string][]string),
	}

	store := memory.New()
	app := testApplication()
	app.Realms = []string{"ACME", "CORP"}
	if err := store.CreateApplication(context.Background(), app); err != nil {
		t.Fatalf("seeding application: %v", err)
	}
	rec := NewReconciler(store, client, planner.New(catalog.Default()), time.Minute)

	resp, err := rec.Apply(context.Background(), "webapp")
	if err != nil {
		t.Fatalf("first Apply() error = %v", err)
	}
	for _, summary := range resp.Summary {
		if summary.Failed != 0 {
			t.Fatalf("first pass category %s: %d failures: %v",
				summary.Category, summary.Failed, resp.Results[summary.Category])
		}
	}

	want := []string{"webapp-dev-full-acme", "webapp-dev-full-corp"}
	if got := client.members["webapp-dev-full"]; !reflect.DeepEqual(got, want) {
		t.Errorf("posix group members = %v, want %v", got, want)
	}

	resp, err = rec.Apply(context.Background(), "webapp")
	if err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}
	for _, summary := range resp.Summary {
		if summary.Failed != 0 {
			t.Errorf("second pass category %s: %d failures", summary.Category, summary.Failed)
		}
	}
}

func TestApplyUnknownApplication(t *testing.T) {
	client := &fakeClient{trustDomains: corpTrust()}
	rec, _ := newTestReconciler(t, client)

	if _, err := rec.Apply(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Apply() error = %v, want ErrNotFound", err)
	}
}

func TestPlanDoesNotTouchServer(t *testing.T) {
	client := &fakeClient{trustDomains: corpTrust()}
	rec, store := newTestReconciler(t, client)

	objects, err := rec.Plan(context.Background(), "webapp")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(objects) == 0 {
		t.Fatal("empty plan for valid application")
	}
	if len(client.ensured) != 0 {
		t.Error("Plan() ensured objects")
	}
	app, _ := store.GetApplication(context.Background(), "webapp")
	if app.LastApplied != nil {
		t.Error("Plan() recorded apply results")
	}
}

func newTestAccessService(t *testing.T) (*AccessService, *fakeClient, *memory.Store) {
	t.Helper()
	store := memory.New()
	if err := store.CreateApplication(context.Background(), testApplication()); err != nil {
		t.Fatalf("seeding application: %v", err)
	}
	client := &fakeClient{trustDomains: corpTrust()}
	return NewAccessService(store, client, catalog.Default()), client, store
}

func grantBody() *domain.GrantAccessRequest {
	return &domain.GrantAccessRequest{
		User:          "jdoe",
		Domain:        "CORP",
		Application:   "webapp",
		Environment:   "DEV",
		Role:          "devops",
		DurationHours: 4,
		Reason:        "incident 4711",
		RequestedBy:   "admin",
	}
}

func TestGrantProvisionsTemporaryRule(t *testing.T) {
	svc, client, _ := newTestAccessService(t)

	ar, err := svc.Grant(context.Background(), grantBody())
	if err != nil {
		t.Fatalf("Grant() error = %v", err)
	}
	if ar.Status != domain.StatusApproved {
		t.Errorf("status = %s, want approved", ar.Status)
	}
	if got, want := ar.ExpiresAt.Sub(ar.RequestedAt), 4*time.Hour; got != want {
		t.Errorf("grant lifetime = %v, want %v", got, want)
	}
	if !strings.HasPrefix(ar.SudoRule, "tmp-jdoe-webapp-dev-devops-") {
		t.Errorf("sudo rule name = %q", ar.SudoRule)
	}

	if len(client.ensured) != 1 {
		t.Fatalf("ensured %d objects, want 1", len(client.ensured))
	}
	obj := client.ensured[0]
	if obj.Category != domain.CategorySudoRule {
		t.Errorf("category = %s, want sudo_rule", obj.Category)
	}
	if len(obj.Users) != 1 || obj.Users[0] != "jdoe@CORP" {
		t.Errorf("rule users = %v, want [jdoe@CORP]", obj.Users)
	}
	if obj.HostGroup != "webapp-dev-hosts" {
		t.Errorf("rule host group = %q", obj.HostGroup)
	}
}

func TestGrantRejectsUnknownEnvironment(t *testing.T) {
	svc, client, _ := newTestAccessService(t)

	body := grantBody()
	body.Environment = "PRD"
	if _, err := svc.Grant(context.Background(), body); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("Grant() error = %v, want ErrInvalidInput", err)
	}
	if len(client.ensured) != 0 {
		t.Error("rule provisioned for invalid grant")
	}
}

func TestSubmitApproveFlow(t *testing.T) {
	svc, client, _ := newTestAccessService(t)

	ar, err := svc.Submit(context.Background(), grantBody())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if ar.Status != domain.StatusPending {
		t.Fatalf("status = %s, want pending", ar.Status)
	}
	if len(client.ensured) != 0 {
		t.Error("pending request provisioned a rule")
	}

	approved, err := svc.Approve(context.Background(), ar.ID, "secops")
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if approved.Status != domain.StatusApproved {
		t.Errorf("status = %s, want approved", approved.Status)
	}
	if approved.ApprovedBy != "secops" {
		t.Errorf("approvedBy = %q", approved.ApprovedBy)
	}
	if len(client.ensured) != 1 {
		t.Fatalf("ensured %d objects after approval, want 1", len(client.ensured))
	}

	if _, err := svc.Approve(context.Background(), ar.ID, "secops"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("second Approve() error = %v, want ErrInvalidTransition", err)
	}
}

func TestDenyIsTerminal(t *testing.T) {
	svc, _, _ := newTestAccessService(t)

	ar, err := svc.Submit(context.Background(), grantBody())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	denied, err := svc.Deny(context.Background(), ar.ID, "secops")
	if err != nil {
		t.Fatalf("Deny() error = %v", err)
	}
	if denied.Status != domain.StatusDenied {
		t.Errorf("status = %s, want denied", denied.Status)
	}
	if _, err := svc.Approve(context.Background(), ar.ID, "secops"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Approve() after deny error = %v, want ErrInvalidTransition", err)
	}
}

func TestRevokeDisablesRule(t *testing.T) {
	svc, client, _ := newTestAccessService(t)

	ar, err := svc.Grant(context.Background(), grantBody())
	if err != nil {
		t.Fatalf("Grant() error = %v", err)
	}
	revoked, err := svc.Revoke(context.Background(), ar.ID)
	if err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if revoked.Status != domain.StatusRevoked {
		t.Errorf("status = %s, want revoked", revoked.Status)
	}
	if len(client.disabled) != 1 || client.disabled[0] != ar.SudoRule {
		t.Errorf("disabled rules = %v, want [%s]", client.disabled, ar.SudoRule)
	}
	if _, err := svc.Revoke(context.Background(), ar.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("second Revoke() error = %v, want ErrInvalidTransition", err)
	}
}

func TestEffectiveStatusReadsExpired(t *testing.T) {
	svc, _, _ := newTestAccessService(t)

	ar, err := svc.Grant(context.Background(), grantBody())
	if err != nil {
		t.Fatalf("Grant() error = %v", err)
	}

	svc.now = func() time.Time { return ar.ExpiresAt.Add(time.Minute) }
	got, err := svc.Get(context.Background(), ar.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != domain.StatusExpired {
		t.Errorf("effective status = %s, want expired", got.Status)
	}
}

func TestSweepExpiresOverdueGrants(t *testing.T) {
	svc, client, store := newTestAccessService(t)

	overdue, err := svc.Grant(context.Background(), grantBody())
	if err != nil {
		t.Fatalf("Grant() error = %v", err)
	}
	fresh, err := svc.Grant(context.Background(), grantBody())
	if err != nil {
		t.Fatalf("Grant() error = %v", err)
	}

	// Push only the first grant past its deadline.
	overdue.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	if err := store.UpdateAccessRequest(context.Background(), overdue); err != nil {
		t.Fatalf("UpdateAccessRequest() error = %v", err)
	}

	if err := svc.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}

	if len(client.disabled) != 1 || client.disabled[0] != overdue.SudoRule {
		t.Errorf("disabled rules = %v, want [%s]", client.disabled, overdue.SudoRule)
	}
	got, _ := store.GetAccessRequest(context.Background(), overdue.ID)
	if got.Status != domain.StatusExpired {
		t.Errorf("overdue status = %s, want expired", got.Status)
	}
	still, _ := store.GetAccessRequest(context.Background(), fresh.ID)
	if still.Status != domain.StatusApproved {
		t.Errorf("fresh status = %s, want approved", still.Status)
	}
}

func TestSweepRetriesFailedDisable(t *testing.T) {
	svc, client, store := newTestAccessService(t)

	ar, err := svc.Grant(context.Background(), grantBody())
	if err != nil {
		t.Fatalf("Grant() error = %v", err)
	}
	ar.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	if err := store.UpdateAccessRequest(context.Background(), ar); err != nil {
		t.Fatalf("UpdateAccessRequest() error = %v", err)
	}

	client.disableErr = errors.New("server gone")
	if err := svc.Sweep(context.Background()); err == nil {
		t.Fatal("Sweep() returned nil despite disable failure")
	}
	got, _ := store.GetAccessRequest(context.Background(), ar.ID)
	if got.Status != domain.StatusApproved {
		t.Errorf("status after failed sweep = %s, want approved for retry", got.Status)
	}

	client.disableErr = nil
	if err := svc.Sweep(context.Background()); err != nil {
		t.Fatalf("retry Sweep() error = %v", err)
	}
	got, _ = store.GetAccessRequest(context.Background(), ar.ID)
	if got.Status != domain.StatusExpired {
		t.Errorf("status after retry = %s, want expired", got.Status)
	}
}
