// Package plugins loads project traceability rules from .factory/rules.
// YAML files hold one rule per document; Go files are interpreted and expose
// MatchRules() ([]map[string]any, error).
package plugins

import (
	"fmt"
	"strings"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/traceability"
)

// RuleDefinition describes a phrase rule loaded from a plugin file.
//
// The struct mirrors the on-disk schema under .factory/rules/*.yaml.
type RuleDefinition struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string   `json:"category,omitempty" yaml:"category,omitempty"`
	Phrases     []string `json:"phrases" yaml:"phrases"`
}

// Normalized returns a trimmed copy with blank and duplicate phrases removed.
// Phrases are lowercased since matching runs on normalized text.
func (def RuleDefinition) Normalized() RuleDefinition {
	clone := RuleDefinition{
		Name:        strings.TrimSpace(def.Name),
		Description: strings.TrimSpace(def.Description),
		Category:    strings.ToLower(strings.TrimSpace(def.Category)),
	}
	seen := make(map[string]bool, len(def.Phrases))
	for _, phrase := range def.Phrases {
		p := strings.ToLower(strings.Join(strings.Fields(phrase), " "))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		clone.Phrases = append(clone.Phrases, p)
	}
	return clone
}

// Validate ensures the rule has a usable name and at least one phrase.
func (def RuleDefinition) Validate() error {
	normalized := def.Normalized()
	if normalized.Name == "" {
		return fmt.Errorf("plugin: name is required")
	}
	if isReservedName(normalized.Name) {
		return fmt.Errorf("plugin %s: name is reserved for a built-in rule", normalized.Name)
	}
	if len(normalized.Phrases) == 0 {
		return fmt.Errorf("plugin %s: at least one phrase is required", normalized.Name)
	}
	return nil
}

// Rule converts the definition into a mapper rule.
func (def RuleDefinition) Rule() traceability.Rule {
	normalized := def.Normalized()
	return traceability.PhraseRule{
		RuleName: normalized.Name,
		Category: normalized.Category,
		Phrases:  normalized.Phrases,
	}
}

func isReservedName(name string) bool {
	if name == traceability.ForcedRule {
		return true
	}
	for _, rule := range traceability.DefaultRules(nil) {
		if rule.Name() == name {
			return true
		}
	}
	return false
}
