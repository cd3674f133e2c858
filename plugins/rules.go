package plugins

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gfenimore/service-software-factory-v2-sub000/internal/config"
	"github.com/gfenimore/service-software-factory-v2-sub000/internal/traceability"
)

// ProjectRules loads the rule plugins under the project's .factory/rules.
func ProjectRules(cfg *config.Config) ([]traceability.Rule, error) {
	if cfg == nil {
		return nil, nil
	}
	return LoadRules(cfg.RulesDir())
}

// LoadRules loads every rule plugin in dir: YAML files first, then Go files,
// each group in file name order. A missing directory means no plugins.
func LoadRules(dir string) ([]traceability.Rule, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("plugin: read %s: %w", dir, err)
	}

	var yamlFiles, goFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch ext := strings.ToLower(filepath.Ext(name)); {
		case ext == ".yaml" || ext == ".yml":
			yamlFiles = append(yamlFiles, filepath.Join(dir, name))
		case ext == ".go" && !strings.HasSuffix(name, "_test.go"):
			goFiles = append(goFiles, filepath.Join(dir, name))
		}
	}

	set := newRuleSet()
	for _, path := range yamlFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("plugin: read %s: %w", path, err)
		}
		defs, err := decodeRuleYAML(data)
		if err != nil {
			return nil, fmt.Errorf("plugin: %s: %w", path, err)
		}
		if err := set.addAll(path, defs); err != nil {
			return nil, err
		}
	}
	for _, path := range goFiles {
		defs, err := evalGoRules(path)
		if err != nil {
			return nil, err
		}
		if err := set.addAll(path, defs); err != nil {
			return nil, err
		}
	}
	return set.rules, nil
}

// decodeRuleYAML reads one rule per YAML document; a file may hold several
// documents separated by ---.
func decodeRuleYAML(data []byte) ([]RuleDefinition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("no rule definitions")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var defs []RuleDefinition
	for {
		var def RuleDefinition
		err := dec.Decode(&def)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode rule %d: %w", len(defs)+1, err)
		}
		defs = append(defs, def)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("no rule definitions")
	}
	return defs, nil
}

// ruleSet collects plugin rules in load order and keeps names unique.
type ruleSet struct {
	rules   []traceability.Rule
	sources map[string]string
}

func newRuleSet() *ruleSet {
	return &ruleSet{sources: map[string]string{}}
}

func (s *ruleSet) addAll(path string, defs []RuleDefinition) error {
	for i, def := range defs {
		source := path
		if len(defs) > 1 {
			source = fmt.Sprintf("%s#%d", path, i+1)
		}
		if err := s.add(source, def); err != nil {
			return err
		}
	}
	return nil
}

func (s *ruleSet) add(source string, def RuleDefinition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("%w (%s)", err, source)
	}
	name := def.Normalized().Name
	if existing, ok := s.sources[name]; ok {
		return fmt.Errorf("plugin: duplicate rule name %s (%s and %s)", name, existing, source)
	}
	s.sources[name] = source
	s.rules = append(s.rules, def.Rule())
	return nil
}
