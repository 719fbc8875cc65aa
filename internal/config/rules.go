package config

import (
	"fmt"
	"os"

	"github.com/boddenberg/leadchat-go/internal/domain"

	"gopkg.in/yaml.v3"
)

// rulesFile mirrors the YAML layout:
//
//	default:
//	  delay_seconds: 30
//	  enable_exit_intent: true
//	pages:
//	  pricing:
//	    delay_seconds: 15
//	    enable_exit_intent: true
type rulesFile struct {
	Default *domain.TriggerRule                    `yaml:"default"`
	Pages   map[domain.PageType]domain.TriggerRule `yaml:"pages"`
}

// TriggerRulesOverride holds rules read from a file. A nil Default means the
// built-in default rule stays in place.
type TriggerRulesOverride struct {
	Default *domain.TriggerRule
	Pages   map[domain.PageType]domain.TriggerRule
}

// LoadTriggerRules reads trigger rule overrides from a YAML file.
func LoadTriggerRules(path string) (*TriggerRulesOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trigger rules: %w", err)
	}

	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse trigger rules: %w", err)
	}

	for page, rule := range f.Pages {
		if rule.DelaySeconds < 0 {
			return nil, fmt.Errorf("trigger rule %q: delay_seconds must be >= 0", page)
		}
	}
	if f.Default != nil && f.Default.DelaySeconds < 0 {
		return nil, fmt.Errorf("default trigger rule: delay_seconds must be >= 0")
	}

	return &TriggerRulesOverride{Default: f.Default, Pages: f.Pages}, nil
}
