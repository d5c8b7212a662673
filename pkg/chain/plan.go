package chain

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// PlanStep names a registration entrypoint and the contract versions that expose it.
type PlanStep struct {
	Entrypoint string `yaml:"entrypoint" json:"entrypoint"`
	Versions   string `yaml:"versions" json:"versions"`
}

// DefaultRegistrationPlan is the order in which registration entrypoints are
// tried: the id-indexed registry first, then the hash-indexed vaults.
var DefaultRegistrationPlan = []PlanStep{
	{Entrypoint: "requestRegistration", Versions: ">= 2.0.0"},
	{Entrypoint: "registerProperty", Versions: ">= 1.0.0"},
	{Entrypoint: "storeHash", Versions: "*"},
}

// SelectEntrypoints returns the available entrypoints named by plan, in plan
// order, filtered by the deployed contract version. An empty version keeps
// every step.
func SelectEntrypoints(plan []PlanStep, contractVersion string, available []Entrypoint) ([]Entrypoint, error) {
	byName := make(map[string]Entrypoint, len(available))
	for _, ep := range available {
		byName[ep.Name()] = ep
	}

	var version *semver.Version
	if contractVersion != "" {
		v, err := semver.NewVersion(contractVersion)
		if err != nil {
			return nil, fmt.Errorf("parse contract version %q: %w", contractVersion, err)
		}
		version = v
	}

	selected := make([]Entrypoint, 0, len(plan))
	for _, step := range plan {
		ep, ok := byName[step.Entrypoint]
		if !ok {
			continue
		}
		if version != nil && step.Versions != "" {
			c, err := semver.NewConstraint(step.Versions)
			if err != nil {
				return nil, fmt.Errorf("parse constraint for %s: %w", step.Entrypoint, err)
			}
			if !c.Check(version) {
				continue
			}
		}
		selected = append(selected, ep)
	}
	return selected, nil
}
