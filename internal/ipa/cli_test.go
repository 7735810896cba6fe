package ipa

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/accessops/idm-access-manager/internal/domain"
)

// fakeRunner records invocations and returns scripted responses keyed by the
// first argument (the ipa subcommand).
type fakeRunner struct {
	calls     [][]string
	responses map[string]string
	errors    map[string]error
}

func (r *fakeRunner) Run(ctx context.Context, args ...string) (string, error) {
	r.calls = append(r.calls, args)
	if err, ok := r.errors[args[0]]; ok {
		return "", err
	}
	return r.responses[args[0]], nil
}

func newFakeClient(r *fakeRunner) *CLIClient {
	return &CLIClient{runner: r}
}

func TestTrustDomains_ParsesRawOutput(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"trust-find": `
  cn: acme.example.com
  ipantflatname: ACME
  cn: corp.example.com
  ipantflatname: CORP
`,
	}}
	c := newFakeClient(runner)

	domains, err := c.TrustDomains(context.Background())
	if err != nil {
		t.Fatalf("TrustDomains failed: %v", err)
	}
	if len(domains) != 2 {
		t.Fatalf("Expected 2 trust domains, got %d", len(domains))
	}
	if domains[0].NetBIOSName != "ACME" || domains[0].Realm != "ACME.EXAMPLE.COM" {
		t.Errorf("Unexpected first domain: %+v", domains[0])
	}
	if domains[1].Name != "corp.example.com" {
		t.Errorf("Unexpected second domain: %+v", domains[1])
	}
}

func TestTrustDomains_UpstreamUnavailable(t *testing.T) {
	runner := &fakeRunner{errors: map[string]error{
		"trust-find": errors.New("cannot contact KDC"),
	}}
	c := newFakeClient(runner)

	_, err := c.TrustDomains(context.Background())
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Errorf("Expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestHosts_ParsesFQDNs(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"host-find": `
  fqdn: web-webapp-dev-01.example.com
  fqdn: db-other-prd-01.example.com
`,
	}}
	c := newFakeClient(runner)

	hosts, err := c.Hosts(context.Background())
	if err != nil {
		t.Fatalf("Hosts failed: %v", err)
	}
	if len(hosts) != 2 || hosts[0] != "web-webapp-dev-01.example.com" {
		t.Errorf("Unexpected hosts: %v", hosts)
	}
}

func TestEnsure_ExistingObjectIsSatisfied(t *testing.T) {
	runner := &fakeRunner{errors: map[string]error{
		"group-add": errors.New(`group with name "webapp-dev-full" already exists`),
	}}
	c := newFakeClient(runner)

	out, err := c.Ensure(context.Background(), domain.DesiredObject{
		Category:     domain.CategoryPosixGroup,
		Name:         "webapp-dev-full",
		MemberGroups: []string{"webapp-dev-full-acme"},
	})
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if !strings.Contains(out, "already exists") {
		t.Errorf("Expected already-exists output, got %q", out)
	}
	// create-or-skip: no member adds on an existing object
	for _, call := range runner.calls {
		if call[0] == "group-add-member" {
			t.Error("Members must not be touched on an existing object")
		}
	}
}

func TestEnsure_HostGroupPopulatesMatchingHosts(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"hostgroup-add": "Added hostgroup",
		"host-find": `
  fqdn: web-webapp-dev-01.example.com
  fqdn: db-other-prd-01.example.com
`,
	}}
	c := newFakeClient(runner)

	out, err := c.Ensure(context.Background(), domain.DesiredObject{
		Category:    domain.CategoryHostGroup,
		Name:        "webapp-dev-hosts",
		HostPattern: "*webapp*dev*",
	})
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if !strings.Contains(out, "1 matching hosts added") {
		t.Errorf("Expected one matching host, got %q", out)
	}

	var memberAdds [][]string
	for _, call := range runner.calls {
		if call[0] == "hostgroup-add-member" {
			memberAdds = append(memberAdds, call)
		}
	}
	if len(memberAdds) != 1 || memberAdds[0][3] != "web-webapp-dev-01.example.com" {
		t.Errorf("Unexpected member adds: %v", memberAdds)
	}
}

func TestEnsure_ExistingHostGroupStillReconcilesMembers(t *testing.T) {
	runner := &fakeRunner{
		responses: map[string]string{
			"host-find": `
  fqdn: web-webapp-dev-02.example.com
`,
		},
		errors: map[string]error{
			"hostgroup-add": errors.New(`hostgroup with name "webapp-dev-hosts" already exists`),
		},
	}
	c := newFakeClient(runner)

	out, err := c.Ensure(context.Background(), domain.DesiredObject{
		Category:    domain.CategoryHostGroup,
		Name:        "webapp-dev-hosts",
		HostPattern: "*webapp*dev*",
	})
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if !strings.Contains(out, "1 matching hosts added") {
		t.Errorf("Expected the newly enrolled host to be added, got %q", out)
	}

	// Hosts enrolled after group creation must join on re-apply.
	var memberAdds [][]string
	for _, call := range runner.calls {
		if call[0] == "hostgroup-add-member" {
			memberAdds = append(memberAdds, call)
		}
	}
	if len(memberAdds) != 1 || memberAdds[0][3] != "web-webapp-dev-02.example.com" {
		t.Errorf("Unexpected member adds: %v", memberAdds)
	}
}

func TestEnsure_SudoRuleAllUsesCommandCategory(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{"sudorule-add": "Added rule"}}
	c := newFakeClient(runner)

	_, err := c.Ensure(context.Background(), domain.DesiredObject{
		Category:     domain.CategorySudoRule,
		Name:         "webapp-dev-full-sudo",
		UserGroup:    "webapp-dev-full",
		HostGroup:    "webapp-dev-hosts",
		SudoCommands: []string{"ALL"},
	})
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	var sawCmdcat bool
	for _, call := range runner.calls {
		if call[0] == "sudorule-mod" {
			sawCmdcat = true
		}
		if call[0] == "sudorule-add-allow-command" {
			t.Error("ALL must not be added as a literal command")
		}
	}
	if !sawCmdcat {
		t.Error("Expected sudorule-mod --cmdcat=all for the full role")
	}
}

func TestEnsure_SudoRuleWithDirectUsers(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{"sudorule-add": "Added rule"}}
	c := newFakeClient(runner)

	_, err := c.Ensure(context.Background(), domain.DesiredObject{
		Category:     domain.CategorySudoRule,
		Name:         "tmp-jdoe-webapp-dev-devops-abc12345",
		Users:        []string{"jdoe@CORP"},
		HostGroup:    "webapp-dev-hosts",
		SudoCommands: []string{"/usr/bin/systemctl"},
	})
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	var userAdds [][]string
	for _, call := range runner.calls {
		if call[0] == "sudorule-add-user" {
			userAdds = append(userAdds, call)
		}
	}
	if len(userAdds) != 1 {
		t.Fatalf("Expected 1 user add, got %v", userAdds)
	}
	if userAdds[0][2] != "--users" || userAdds[0][3] != "jdoe@CORP" {
		t.Errorf("Expected direct user membership, got %v", userAdds[0])
	}
}

func TestDisableSudoRule_AlreadyDisabled(t *testing.T) {
	runner := &fakeRunner{errors: map[string]error{
		"sudorule-disable": errors.New("rule already disabled"),
	}}
	c := newFakeClient(runner)

	out, err := c.DisableSudoRule(context.Background(), "tmp-jdoe-webapp-prd-devops-abc")
	if err != nil {
		t.Fatalf("DisableSudoRule failed: %v", err)
	}
	if out != "already disabled" {
		t.Errorf("Expected already disabled, got %q", out)
	}
}

func TestMatchHostPattern(t *testing.T) {
	cases := []struct {
		host    string
		pattern string
		want    bool
	}{
		{"web-webapp-dev-01.example.com", "*webapp*dev*", true},
		{"WEB-WEBAPP-DEV-01.example.com", "*webapp*dev*", true},
		{"db-other-prd-01.example.com", "*webapp*dev*", false},
		{"webapp-dev", "*webapp*dev*", true},
	}
	for _, tc := range cases {
		if got := matchHostPattern(tc.host, tc.pattern); got != tc.want {
			t.Errorf("matchHostPattern(%q, %q) = %v, want %v", tc.host, tc.pattern, got, tc.want)
		}
	}
}
