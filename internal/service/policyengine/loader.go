package policyengine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dannycabezas/semantic-firewall/internal/domain/policy"
)

// LoadPolicyFile reads a YAML rule table from path. An empty path returns
// DefaultPolicy, matching spec.md §9's "policy rules file optional" note.
func LoadPolicyFile(path string) (policy.Policy, error) {
	if path == "" {
		return DefaultPolicy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return policy.Policy{}, fmt.Errorf("read policy file %s: %w", path, err)
	}

	var p policy.Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return policy.Policy{}, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	if p.DefaultAction == "" {
		p.DefaultAction = policy.ActionAllow
	}
	return p, nil
}
