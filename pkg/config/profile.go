package config

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/titlevault/pkg/chain"
	"github.com/Mindburn-Labs/titlevault/pkg/property"
)

// Profile is a deployment profile. It pins the ledger contract generation
// and the order in which registration entrypoints are tried.
type Profile struct {
	Name   string        `yaml:"name" json:"name"`
	Ledger LedgerProfile `yaml:"ledger" json:"ledger"`
	// Roles maps role identifiers to display names.
	Roles map[string]string `yaml:"roles,omitempty" json:"roles,omitempty"`
}

type LedgerProfile struct {
	ContractVersion string           `yaml:"contract_version,omitempty" json:"contract_version,omitempty"`
	Registration    []chain.PlanStep `yaml:"registration,omitempty" json:"registration,omitempty"`
}

// DefaultProfile uses the built-in registration plan.
func DefaultProfile() *Profile {
	return &Profile{
		Name:   "default",
		Ledger: LedgerProfile{Registration: chain.DefaultRegistrationPlan},
	}
}

// LoadProfile reads and validates a profile YAML file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile parses profile YAML. Omitted sections keep their defaults.
func ParseProfile(data []byte) (*Profile, error) {
	p := DefaultProfile()
	p.Ledger.Registration = nil
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if len(p.Ledger.Registration) == 0 {
		p.Ledger.Registration = chain.DefaultRegistrationPlan
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks version strings, constraints and role names.
func (p *Profile) Validate() error {
	if p.Ledger.ContractVersion != "" {
		if _, err := semver.NewVersion(p.Ledger.ContractVersion); err != nil {
			return fmt.Errorf("profile %q: contract_version: %w", p.Name, err)
		}
	}
	seen := make(map[string]bool, len(p.Ledger.Registration))
	for i, step := range p.Ledger.Registration {
		if step.Entrypoint == "" {
			return fmt.Errorf("profile %q: registration[%d]: entrypoint is required", p.Name, i)
		}
		if seen[step.Entrypoint] {
			return fmt.Errorf("profile %q: registration entrypoint %q listed twice", p.Name, step.Entrypoint)
		}
		seen[step.Entrypoint] = true
		if step.Versions != "" {
			if _, err := semver.NewConstraint(step.Versions); err != nil {
				return fmt.Errorf("profile %q: registration[%d] versions: %w", p.Name, i, err)
			}
		}
	}
	for role := range p.Roles {
		if _, err := property.ParseRole(role); err != nil {
			return fmt.Errorf("profile %q: roles: %w", p.Name, err)
		}
	}
	return nil
}

// ContractVersion prefers the environment over the profile.
func (p *Profile) ContractVersion(c *Config) string {
	if c != nil && c.ContractVersion != "" {
		return c.ContractVersion
	}
	return p.Ledger.ContractVersion
}

// RoleDisplayName returns the configured name for role, or the role id.
func (p *Profile) RoleDisplayName(role property.Role) string {
	for k, v := range p.Roles {
		if r, err := property.ParseRole(k); err == nil && r == role && v != "" {
			return v
		}
	}
	return string(role)
}

// LoadProfileFor loads c.ProfilePath, or the default profile when unset.
func LoadProfileFor(c *Config) (*Profile, error) {
	if c.ProfilePath == "" {
		return DefaultProfile(), nil
	}
	return LoadProfile(c.ProfilePath)
}
