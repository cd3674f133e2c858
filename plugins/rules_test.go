package plugins

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/config"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/traceability"
)

const workOrdersYAML = `name: work-orders
description: Work order vocabulary
category: data
phrases:
  - work order
  - " Work   Order "
  - invoice
`

const dispatchPlugin = `package main

func MatchRules() ([]map[string]any, error) {
	return []map[string]any{
		{
			"name":     "dispatch-board",
			"category": "dispatch",
			"phrases":  []string{"Dispatch Board", "route plan"},
		},
	}, nil
}`

func writeRule(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func phraseRule(t *testing.T, rule traceability.Rule) traceability.PhraseRule {
	t.Helper()
	phrase, ok := rule.(traceability.PhraseRule)
	if !ok {
		t.Fatalf("expected PhraseRule, got %T", rule)
	}
	return phrase
}

func TestProjectRules(t *testing.T) {
	cfg := initTestConfig(t)
	writeRule(t, cfg.RulesDir(), "work-orders.yaml", workOrdersYAML)
	writeRule(t, cfg.RulesDir(), "dispatch.go", dispatchPlugin)
	writeRule(t, cfg.RulesDir(), "dispatch_test.go", "package main\n")
	writeRule(t, cfg.RulesDir(), "README.md", "not a rule")

	rules, err := ProjectRules(cfg)
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	if rules[0].Name() != "work-orders" || rules[1].Name() != "dispatch-board" {
		t.Fatalf("unexpected rule order: %s, %s", rules[0].Name(), rules[1].Name())
	}
	if got := phraseRule(t, rules[0]).Phrases; len(got) != 2 {
		t.Fatalf("duplicate phrases not collapsed: %v", got)
	}
	dispatch := phraseRule(t, rules[1])
	if dispatch.Category != "dispatch" || dispatch.Phrases[0] != "dispatch board" {
		t.Fatalf("go rule not normalized: %+v", dispatch)
	}

	req := traceability.Requirement{ID: "DATA-010", Text: "Every work order links to an invoice", Category: "data"}
	criterion := &traceability.AcceptanceCriterion{ID: "AC-001-1", Text: "Closing a Work Order notifies billing"}
	if !rules[0].Match(req, &traceability.Story{ID: "US-001"}, criterion) {
		t.Fatalf("expected work-orders rule to match")
	}
}

func TestLoadRulesMultiDocumentYAML(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "billing.yml", "name: invoices\nphrases: [invoice]\n---\nname: payments\nphrases: [card payment, refund]\n")
	rules, err := LoadRules(dir)
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	if len(rules) != 2 || rules[0].Name() != "invoices" || rules[1].Name() != "payments" {
		t.Fatalf("unexpected rules %v", rules)
	}
}

func TestLoadRulesMissingDir(t *testing.T) {
	rules, err := LoadRules(filepath.Join(t.TempDir(), "absent"))
	if err != nil || rules != nil {
		t.Fatalf("expected no rules, got %v, %v", rules, err)
	}
	if rules, err := ProjectRules(nil); err != nil || rules != nil {
		t.Fatalf("nil config should load nothing")
	}
}

func TestLoadRulesRejects(t *testing.T) {
	cases := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{"duplicate across files", map[string]string{"a.yaml": workOrdersYAML, "b.yml": workOrdersYAML}, "duplicate rule name work-orders"},
		{"duplicate yaml and go", map[string]string{"a.yaml": "name: dispatch-board\nphrases: [x]\n", "b.go": dispatchPlugin}, "duplicate rule name dispatch-board"},
		{"reserved name", map[string]string{"a.yaml": "name: literal\nphrases: [x]\n"}, "reserved"},
		{"reserved forced", map[string]string{"a.go": "package main\n\nfunc MatchRules() []map[string]any {\n\treturn []map[string]any{{\"name\": \"forced\", \"phrases\": \"x\"}}\n}\n"}, "reserved"},
		{"unknown yaml key", map[string]string{"a.yaml": "name: x\nphrase: [y]\n"}, "field phrase not found"},
		{"empty yaml", map[string]string{"a.yaml": "  \n"}, "no rule definitions"},
		{"bad yaml", map[string]string{"a.yaml": "name: ["}, "decode rule 1"},
		{"missing func", map[string]string{"a.go": "package main\n"}, "must define MatchRules()"},
		{"plugin error", map[string]string{"a.go": "package main\n\nimport \"errors\"\n\nfunc MatchRules() ([]map[string]any, error) {\n\treturn nil, errors.New(\"rules unavailable\")\n}\n"}, "rules unavailable"},
		{"unknown go key", map[string]string{"a.go": "package main\n\nfunc MatchRules() []map[string]any {\n\treturn []map[string]any{{\"name\": \"x\", \"phrase\": \"y\"}}\n}\n"}, `unknown field "phrase"`},
		{"wrong phrase type", map[string]string{"a.go": "package main\n\nfunc MatchRules() []map[string]any {\n\treturn []map[string]any{{\"name\": \"x\", \"phrases\": 3}}\n}\n"}, "phrases must be a list of strings"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tc.files {
				writeRule(t, dir, name, content)
			}
			_, err := LoadRules(dir)
			if err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestDefinitionValidate(t *testing.T) {
	cases := []struct {
		name string
		def  RuleDefinition
	}{
		{"missing name", RuleDefinition{Phrases: []string{"x"}}},
		{"no phrases", RuleDefinition{Name: "empty", Phrases: []string{"  "}}},
		{"reserved builtin", RuleDefinition{Name: "literal", Phrases: []string{"x"}}},
		{"reserved forced", RuleDefinition{Name: traceability.ForcedRule, Phrases: []string{"x"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.def.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func initTestConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	if err := config.InitFactoryDir(root); err != nil {
		t.Fatalf("init factory: %v", err)
	}
	return &config.Config{
		ProjectDir:        root,
		FactoryProjectDir: filepath.Join(root, config.FactoryDir),
	}
}
