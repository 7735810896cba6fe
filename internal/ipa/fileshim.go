package ipa

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/accessops/idm-access-manager/internal/domain"
)

// FileShim is a file-backed stand-in for a real identity management server,
// used for local development and tests. Ensured objects are recorded in a
// JSON file so create-or-skip semantics survive restarts.
type FileShim struct {
	filePath string
	mu       sync.Mutex

	trustDomains []domain.TrustDomain
	hosts        []string
}

var _ Client = (*FileShim)(nil)

type shimState struct {
	Objects       map[string]domain.DesiredObject `json:"objects"` // key: category/name
	DisabledRules []string                        `json:"disabledRules,omitempty"`
}

// NewFileShim creates a shim persisting to filePath. The shim reports one
// synthetic trust domain so applications can be exercised end to end.
func NewFileShim(filePath string) *FileShim {
	return &FileShim{
		filePath: filePath,
		trustDomains: []domain.TrustDomain{
			{Name: "shim.example.com", NetBIOSName: "SHIM", Realm: "SHIM.EXAMPLE.COM", Type: "ad"},
		},
		hosts: []string{"shim-dev-01.example.com", "shim-prd-01.example.com"},
	}
}

func (f *FileShim) load() (*shimState, error) {
	data, err := os.ReadFile(f.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &shimState{Objects: make(map[string]domain.DesiredObject)}, nil
		}
		return nil, fmt.Errorf("reading shim state: %w", err)
	}
	var state shimState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing shim state: %w", err)
	}
	if state.Objects == nil {
		state.Objects = make(map[string]domain.DesiredObject)
	}
	return &state, nil
}

func (f *FileShim) save(state *shimState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.filePath, data, 0644)
}

func (f *FileShim) Ping(ctx context.Context) error { return nil }

func (f *FileShim) TrustDomains(ctx context.Context) ([]domain.TrustDomain, error) {
	return append([]domain.TrustDomain(nil), f.trustDomains...), nil
}

func (f *FileShim) Hosts(ctx context.Context) ([]string, error) {
	return append([]string(nil), f.hosts...), nil
}

func (f *FileShim) Ensure(ctx context.Context, obj domain.DesiredObject) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.load()
	if err != nil {
		return "", err
	}
	key := string(obj.Category) + "/" + obj.Name
	if _, exists := state.Objects[key]; exists {
		return "already exists, left unchanged", nil
	}
	state.Objects[key] = obj
	if err := f.save(state); err != nil {
		return "", err
	}
	return "created", nil
}

func (f *FileShim) DisableSudoRule(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.load()
	if err != nil {
		return "", err
	}
	for _, disabled := range state.DisabledRules {
		if disabled == name {
			return "already disabled", nil
		}
	}
	state.DisabledRules = append(state.DisabledRules, name)
	if err := f.save(state); err != nil {
		return "", err
	}
	return "disabled", nil
}

func (f *FileShim) TestHBAC(ctx context.Context, user, host, service string) (string, error) {
	return fmt.Sprintf("shim: access granted for %s to %s via %s", user, host, service), nil
}
