package plugins

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// matchRulesFunc is the function a Go rule plugin must define:
//
//	func MatchRules() ([]map[string]any, error)
//
// Each map uses the YAML keys: name, description, category, phrases.
const matchRulesFunc = "MatchRules"

// evalGoRules interprets one Go plugin file and decodes its rules.
func evalGoRules(path string) ([]RuleDefinition, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	if strings.TrimSpace(string(code)) == "" {
		return nil, fmt.Errorf("plugin: %s is empty", path)
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("plugin: interpret %s: %w", path, err)
	}
	fn, err := i.Eval(matchRulesFunc)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s must define %s(): %w", path, matchRulesFunc, err)
	}
	raw, err := callMatchRules(fn)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, err)
	}
	defs := make([]RuleDefinition, 0, len(raw))
	for idx, fields := range raw {
		def, err := definitionFromFields(fields)
		if err != nil {
			return nil, fmt.Errorf("plugin: %s rule %d: %w", path, idx+1, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func callMatchRules(fn reflect.Value) ([]map[string]any, error) {
	if !fn.IsValid() || fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", matchRulesFunc)
	}
	if fn.Type().NumIn() != 0 {
		return nil, fmt.Errorf("%s must take no arguments", matchRulesFunc)
	}
	out := fn.Call(nil)
	switch len(out) {
	case 1:
	case 2:
		if errVal := out[1]; !errVal.IsNil() {
			if err, ok := errVal.Interface().(error); ok {
				return nil, err
			}
			return nil, fmt.Errorf("%s returned a non-error second value", matchRulesFunc)
		}
	default:
		return nil, fmt.Errorf("%s must return ([]map[string]any, error)", matchRulesFunc)
	}
	list := out[0]
	if list.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%s must return a slice, got %s", matchRulesFunc, list.Kind())
	}
	raw := make([]map[string]any, list.Len())
	for i := range raw {
		m, ok := list.Index(i).Interface().(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s rule %d is %T, not map[string]any", matchRulesFunc, i+1, list.Index(i).Interface())
		}
		raw[i] = m
	}
	return raw, nil
}

// definitionFromFields decodes a plugin map. Unknown keys are rejected so a
// typo does not silently drop phrases.
func definitionFromFields(fields map[string]any) (RuleDefinition, error) {
	var def RuleDefinition
	for key, value := range fields {
		var err error
		switch key {
		case "name":
			def.Name, err = stringField(key, value)
		case "description":
			def.Description, err = stringField(key, value)
		case "category":
			def.Category, err = stringField(key, value)
		case "phrases":
			def.Phrases, err = stringsField(key, value)
		default:
			err = fmt.Errorf("unknown field %q", key)
		}
		if err != nil {
			return RuleDefinition{}, err
		}
	}
	return def, nil
}

func stringField(key string, value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", key, value)
	}
	return s, nil
}

func stringsField(key string, value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string, got %T", key, i, item)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be a list of strings, got %T", key, value)
	}
}
