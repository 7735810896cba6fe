package catalog_test

import (
	"errors"
	"testing"

	"github.com/accessops/idm-access-manager/internal/catalog"
	"github.com/accessops/idm-access-manager/internal/domain"
)

func TestExternalGroupName_Stable(t *testing.T) {
	got := catalog.ExternalGroupName("webapp", "dev", "full")
	if got != "IdM_webapp_dev_full" {
		t.Errorf("Expected IdM_webapp_dev_full, got %s", got)
	}

	// Mixed-case input is normalized, prefix casing is preserved.
	got = catalog.ExternalGroupName("WebApp", "DEV", "Full")
	if got != "IdM_webapp_dev_full" {
		t.Errorf("Expected IdM_webapp_dev_full, got %s", got)
	}
}

func TestExternalGroupRef(t *testing.T) {
	got := catalog.ExternalGroupRef("ACME", "IdM_webapp_dev_full")
	if got != `ACME\IdM_webapp_dev_full` {
		t.Errorf(`Expected ACME\IdM_webapp_dev_full, got %s`, got)
	}
}

func TestHostPattern(t *testing.T) {
	got := catalog.HostPattern("webapp", "*{app}*dev*")
	if got != "*webapp*dev*" {
		t.Errorf("Expected *webapp*dev*, got %s", got)
	}

	// Templates without the placeholder pass through unchanged.
	got = catalog.HostPattern("webapp", "db-*.example.com")
	if got != "db-*.example.com" {
		t.Errorf("Expected db-*.example.com, got %s", got)
	}
}

func TestLocalNames(t *testing.T) {
	if got := catalog.HostGroupName("WebApp", "DEV"); got != "webapp-dev-hosts" {
		t.Errorf("HostGroupName: got %s", got)
	}
	if got := catalog.LinkedGroupName("webapp", "dev", "full", "ACME"); got != "webapp-dev-full-acme" {
		t.Errorf("LinkedGroupName: got %s", got)
	}
	if got := catalog.PosixGroupName("webapp", "dev", "full"); got != "webapp-dev-full" {
		t.Errorf("PosixGroupName: got %s", got)
	}
	if got := catalog.HBACRuleName("webapp", "dev", "full"); got != "webapp-dev-full-access" {
		t.Errorf("HBACRuleName: got %s", got)
	}
	if got := catalog.SudoRuleName("webapp", "dev", "full"); got != "webapp-dev-full-sudo" {
		t.Errorf("SudoRuleName: got %s", got)
	}
}

func TestTemporarySudoRuleName_TruncatesID(t *testing.T) {
	got := catalog.TemporarySudoRuleName("jdoe", "webapp", "prd", "devops", "0123456789abcdef")
	want := "tmp-jdoe-webapp-prd-devops-01234567"
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestSudoCommands(t *testing.T) {
	c := catalog.Default()

	cmds, err := c.SudoCommands("full")
	if err != nil {
		t.Fatalf("SudoCommands(full) failed: %v", err)
	}
	if len(cmds) != 1 || cmds[0] != "ALL" {
		t.Errorf("Expected [ALL], got %v", cmds)
	}

	cmds, err = c.SudoCommands("readonly")
	if err != nil {
		t.Fatalf("SudoCommands(readonly) failed: %v", err)
	}
	if len(cmds) == 0 {
		t.Error("Expected readonly commands")
	}
	for _, cmd := range cmds {
		if cmd == "ALL" {
			t.Error("readonly must not grant ALL")
		}
	}
}

func TestSudoCommands_UnknownRole(t *testing.T) {
	c := catalog.Default()

	_, err := c.SudoCommands("superadmin")
	if !errors.Is(err, domain.ErrUnknownRole) {
		t.Errorf("Expected ErrUnknownRole, got %v", err)
	}
}

func TestDefaultEnvironments(t *testing.T) {
	c := catalog.Default()

	envs := c.DefaultEnvironments()
	if len(envs) != 3 {
		t.Fatalf("Expected 3 default environments, got %d", len(envs))
	}

	names := []string{"DEV", "QUA", "PRD"}
	for i, env := range envs {
		if env.Name != names[i] {
			t.Errorf("Expected environment %s at %d, got %s", names[i], i, env.Name)
		}
		if len(env.Roles) != 3 {
			t.Errorf("Expected 3 roles in %s, got %d", env.Name, len(env.Roles))
		}
		if !c.HasRole(env.Roles[0]) {
			t.Errorf("Default environment %s lists unknown role %s", env.Name, env.Roles[0])
		}
	}
}
