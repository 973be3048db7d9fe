package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/ir"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/vars"
)

var varRef = regexp.MustCompile(`\$\{var\.([A-Za-z_][A-Za-z0-9_-]*)\}`)

// ExpandForEach expands resources with ForEach or Count fields into individual
// resources named name[0] or name["key"]. ForEach keys are expanded in sorted
// order. An explicit count of 0 yields no instances.
func ExpandForEach(resources []*ir.Resource) []*ir.Resource {
	var expanded []*ir.Resource

	for _, res := range resources {
		switch {
		case res.Count != nil:
			for i := 0; i < *res.Count; i++ {
				clone := cloneResource(res)
				clone.Name = fmt.Sprintf("%s[%d]", res.Name, i)
				clone.Properties = substituteAll(clone.Properties, map[string]string{
					"${count.index}": strconv.Itoa(i),
				})
				expanded = append(expanded, clone)
			}
		case len(res.ForEach) > 0:
			keys := make([]string, 0, len(res.ForEach))
			for key := range res.ForEach {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				clone := cloneResource(res)
				clone.Name = fmt.Sprintf("%s[%q]", res.Name, key)
				clone.Properties = substituteAll(clone.Properties, map[string]string{
					"${each.key}":   key,
					"${each.value}": fmt.Sprintf("%v", res.ForEach[key]),
				})
				expanded = append(expanded, clone)
			}
		default:
			expanded = append(expanded, res)
		}
	}

	return expanded
}

// Interpolate substitutes ${var.name} in every resource's properties and in
// outputs. A string that is exactly one reference takes the variable's typed
// value; embedded references are formatted into the string.
func Interpolate(resources []*ir.Resource, outputs map[string]any, values map[string]any) ([]*ir.Resource, map[string]any, error) {
	out := make([]*ir.Resource, 0, len(resources))
	for _, res := range resources {
		props, err := substituteVars(res.Properties, values)
		if err != nil {
			return nil, nil, &vars.ValidationError{Subject: "resource " + res.Address(), Reason: err.Error()}
		}
		clone := cloneResource(res)
		if props != nil {
			clone.Properties = props.(map[string]any)
		}
		out = append(out, clone)
	}

	resolved, err := substituteVars(outputs, values)
	if err != nil {
		return nil, nil, &vars.ValidationError{Subject: "outputs", Reason: err.Error()}
	}
	var outMap map[string]any
	if resolved != nil {
		outMap = resolved.(map[string]any)
	}
	return out, outMap, nil
}

func substituteVars(v any, values map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		if m := varRef.FindStringSubmatch(val); m != nil && m[0] == val {
			value, ok := values[m[1]]
			if !ok {
				return nil, fmt.Errorf("undefined variable %q", m[1])
			}
			return value, nil
		}
		var missing string
		result := varRef.ReplaceAllStringFunc(val, func(ref string) string {
			name := varRef.FindStringSubmatch(ref)[1]
			value, ok := values[name]
			if !ok {
				missing = name
				return ref
			}
			return fmt.Sprintf("%v", value)
		})
		if missing != "" {
			return nil, fmt.Errorf("undefined variable %q", missing)
		}
		return result, nil
	case map[string]any:
		if val == nil {
			return nil, nil
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			sub, err := substituteVars(item, values)
			if err != nil {
				return nil, err
			}
			out[k] = sub
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			sub, err := substituteVars(item, values)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	default:
		return v, nil
	}
}

func cloneResource(res *ir.Resource) *ir.Resource {
	clone := &ir.Resource{
		Type:     res.Type,
		Name:     res.Name,
		Provider: res.Provider,
		Timeout:  res.Timeout,
	}
	if res.Lifecycle != nil {
		clone.Lifecycle = &ir.Lifecycle{
			PreventDestroy: res.Lifecycle.PreventDestroy,
			IgnoreChanges:  append([]string{}, res.Lifecycle.IgnoreChanges...),
		}
	}
	clone.DependsOn = append([]string{}, res.DependsOn...)
	clone.Properties = deepCopyMap(res.Properties)
	return clone
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	result := make(map[string]any, len(m))
	for k, v := range m {
		result[k] = deepCopyValue(v)
	}
	return result
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		clone := make([]any, len(val))
		for i, item := range val {
			clone[i] = deepCopyValue(item)
		}
		return clone
	default:
		return v
	}
}

func substituteAll(props map[string]any, replacements map[string]string) map[string]any {
	if props == nil {
		return nil
	}
	result := make(map[string]any, len(props))
	for k, v := range props {
		result[k] = substituteValue(v, replacements)
	}
	return result
}

func substituteValue(v any, replacements map[string]string) any {
	switch val := v.(type) {
	case string:
		result := val
		for old, newVal := range replacements {
			result = strings.ReplaceAll(result, old, newVal)
		}
		return result
	case map[string]any:
		return substituteAll(val, replacements)
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = substituteValue(item, replacements)
		}
		return result
	default:
		return v
	}
}
