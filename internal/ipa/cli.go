package ipa

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path"
	"strings"

	"github.com/accessops/idm-access-manager/internal/domain"
)

// commandRunner executes one ipa invocation. Abstracted so tests can fake the
// subprocess boundary.
type commandRunner interface {
	Run(ctx context.Context, args ...string) (stdout string, err error)
}

// CLIClient drives the ipa command-line tool. It assumes the execution
// environment already holds (or can obtain via keytab) a privileged Kerberos
// ticket; authentication failures surface as ErrUpstreamUnavailable.
type CLIClient struct {
	runner commandRunner
	cred   Credential
}

var _ Client = (*CLIClient)(nil)

// NewCLIClient creates a client invoking the ipa binary with the given
// credential context.
func NewCLIClient(cred Credential) *CLIClient {
	return &CLIClient{runner: &execRunner{cred: cred}, cred: cred}
}

type execRunner struct {
	cred Credential
}

func (r *execRunner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "ipa", args...)
	cmd.Env = os.Environ()
	if r.cred.CachePath != "" {
		cmd.Env = append(cmd.Env, "KRB5CCNAME="+r.cred.CachePath)
	}
	if r.cred.Keytab != "" {
		cmd.Env = append(cmd.Env, "KRB5_CLIENT_KTNAME="+r.cred.Keytab)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("ipa %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Ping checks connectivity with the lightest server round trip available.
func (c *CLIClient) Ping(ctx context.Context) error {
	if _, err := c.runner.Run(ctx, "ping"); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return nil
}

// TrustDomains lists trusted realms via trust-find. A transport or
// authentication failure maps to ErrUpstreamUnavailable so callers can tell
// "no realms known" apart from "zero realms configured".
func (c *CLIClient) TrustDomains(ctx context.Context) ([]domain.TrustDomain, error) {
	out, err := c.runner.Run(ctx, "trust-find", "--raw")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return parseTrustFind(out), nil
}

// parseTrustFind extracts trust entries from raw trust-find output. The raw
// format is "attr: value" lines grouped per entry, entries separated by the
// "cn:" attribute reappearing.
func parseTrustFind(out string) []domain.TrustDomain {
	var domains []domain.TrustDomain
	var current *domain.TrustDomain
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(key) {
		case "cn":
			if current != nil {
				domains = append(domains, *current)
			}
			current = &domain.TrustDomain{
				Name:  value,
				Realm: strings.ToUpper(value),
				Type:  "ad",
			}
		case "ipantflatname":
			if current != nil {
				current.NetBIOSName = value
			}
		}
	}
	if current != nil {
		domains = append(domains, *current)
	}
	return domains
}

// Hosts lists enrolled host FQDNs via host-find.
func (c *CLIClient) Hosts(ctx context.Context) ([]string, error) {
	out, err := c.runner.Run(ctx, "host-find", "--raw")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	var hosts []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if fqdn, ok := strings.CutPrefix(line, "fqdn:"); ok {
			if fqdn = strings.TrimSpace(fqdn); fqdn != "" {
				hosts = append(hosts, fqdn)
			}
		}
	}
	return hosts, nil
}

// Ensure creates the object if absent. The ipa CLI reports an existing object
// as an error containing "already exists"; that outcome satisfies the desired
// state and is reported as success.
func (c *CLIClient) Ensure(ctx context.Context, obj domain.DesiredObject) (string, error) {
	switch obj.Category {
	case domain.CategoryHostGroup:
		return c.ensureHostGroup(ctx, obj)
	case domain.CategoryExternalGroup:
		return c.ensureExternalGroup(ctx, obj)
	case domain.CategoryPosixGroup:
		return c.ensurePosixGroup(ctx, obj)
	case domain.CategoryHBACRule:
		return c.ensureHBACRule(ctx, obj)
	case domain.CategorySudoRule:
		return c.ensureSudoRule(ctx, obj)
	default:
		return "", fmt.Errorf("%w: unknown object category %q", domain.ErrInvalidInput, obj.Category)
	}
}

// create runs an *-add command, treating "already exists" as satisfied.
// The bool result reports whether the object was newly created.
func (c *CLIClient) create(ctx context.Context, args ...string) (string, bool, error) {
	out, err := c.runner.Run(ctx, args...)
	if err != nil {
		if alreadyExists(err) {
			return "already exists, left unchanged", false, nil
		}
		return out, false, err
	}
	return strings.TrimSpace(out), true, nil
}

func alreadyExists(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists")
}

// alreadyMember covers *-add-member on a pre-existing membership, which the
// ipa CLI reports as a non-zero "this entry is already a member" failure.
func alreadyMember(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already a member")
}

func (c *CLIClient) ensureHostGroup(ctx context.Context, obj domain.DesiredObject) (string, error) {
	out, _, err := c.create(ctx, "hostgroup-add", obj.Name, "--desc", obj.Description)
	if err != nil {
		return out, err
	}

	// Membership is reconciled on every pass, not only on creation, so hosts
	// enrolled since the group was created join on the next apply. Adds are
	// best-effort; a miss here is visible on the next apply.
	hosts, err := c.Hosts(ctx)
	if err != nil {
		return out + "; host enumeration failed: " + err.Error(), nil
	}
	added := 0
	for _, host := range hosts {
		if !matchHostPattern(host, obj.HostPattern) {
			continue
		}
		if _, err := c.runner.Run(ctx, "hostgroup-add-member", obj.Name, "--hosts", host); err != nil && !alreadyMember(err) {
			log.Printf("hostgroup %s: adding member %s: %v", obj.Name, host, err)
			continue
		}
		added++
	}
	return fmt.Sprintf("%s; %d matching hosts added", out, added), nil
}

// matchHostPattern is a case-insensitive wildcard match of a hostname against
// an environment host pattern like "*webapp*dev*".
func matchHostPattern(host, pattern string) bool {
	ok, err := path.Match(strings.ToLower(pattern), strings.ToLower(host))
	return err == nil && ok
}

func (c *CLIClient) ensureExternalGroup(ctx context.Context, obj domain.DesiredObject) (string, error) {
	out, created, err := c.create(ctx, "group-add", obj.Name, "--external", "--desc", obj.Description)
	if err != nil {
		return out, err
	}
	if !created {
		return out, nil
	}
	if _, err := c.runner.Run(ctx, "group-add-member", obj.Name, "--external", obj.ExternalMember); err != nil && !alreadyMember(err) {
		return out, fmt.Errorf("linking external member %s: %w", obj.ExternalMember, err)
	}
	return out, nil
}

func (c *CLIClient) ensurePosixGroup(ctx context.Context, obj domain.DesiredObject) (string, error) {
	out, created, err := c.create(ctx, "group-add", obj.Name, "--desc", obj.Description)
	if err != nil {
		return out, err
	}
	if !created {
		return out, nil
	}
	for _, member := range obj.MemberGroups {
		if _, err := c.runner.Run(ctx, "group-add-member", obj.Name, "--groups", member); err != nil && !alreadyMember(err) {
			return out, fmt.Errorf("adding member group %s: %w", member, err)
		}
	}
	return out, nil
}

func (c *CLIClient) ensureHBACRule(ctx context.Context, obj domain.DesiredObject) (string, error) {
	out, created, err := c.create(ctx, "hbacrule-add", obj.Name, "--desc", obj.Description)
	if err != nil {
		return out, err
	}
	if !created {
		return out, nil
	}
	steps := [][]string{
		{"hbacrule-add-user", obj.Name, "--groups", obj.UserGroup},
		{"hbacrule-add-host", obj.Name, "--hostgroups", obj.HostGroup},
		{"hbacrule-add-service", obj.Name, "--hbacsvcs", obj.Service},
	}
	for _, step := range steps {
		if _, err := c.runner.Run(ctx, step...); err != nil && !alreadyMember(err) {
			return out, fmt.Errorf("%s: %w", step[0], err)
		}
	}
	return out, nil
}

func (c *CLIClient) ensureSudoRule(ctx context.Context, obj domain.DesiredObject) (string, error) {
	out, created, err := c.create(ctx, "sudorule-add", obj.Name, "--desc", obj.Description)
	if err != nil {
		return out, err
	}
	if !created {
		return out, nil
	}
	var steps [][]string
	if obj.UserGroup != "" {
		steps = append(steps, []string{"sudorule-add-user", obj.Name, "--groups", obj.UserGroup})
	}
	for _, user := range obj.Users {
		steps = append(steps, []string{"sudorule-add-user", obj.Name, "--users", user})
	}
	steps = append(steps, []string{"sudorule-add-host", obj.Name, "--hostgroups", obj.HostGroup})
	for _, cmd := range obj.SudoCommands {
		if cmd == "ALL" {
			steps = append(steps, []string{"sudorule-mod", obj.Name, "--cmdcat=all"})
			continue
		}
		steps = append(steps, []string{"sudorule-add-allow-command", obj.Name, "--sudocmds", cmd})
	}
	for _, step := range steps {
		if _, err := c.runner.Run(ctx, step...); err != nil && !alreadyMember(err) {
			return out, fmt.Errorf("%s: %w", step[0], err)
		}
	}
	return out, nil
}

// DisableSudoRule deactivates a sudo rule. An already-disabled rule is fine.
func (c *CLIClient) DisableSudoRule(ctx context.Context, name string) (string, error) {
	out, err := c.runner.Run(ctx, "sudorule-disable", name)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "already disabled") {
			return "already disabled", nil
		}
		return out, err
	}
	return strings.TrimSpace(out), nil
}

// TestHBAC runs the server-side HBAC simulation.
func (c *CLIClient) TestHBAC(ctx context.Context, user, host, service string) (string, error) {
	out, err := c.runner.Run(ctx, "hbactest", "--user", user, "--host", host, "--service", service)
	if err != nil {
		return out, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return strings.TrimSpace(out), nil
}
