// Package vars resolves declared input variables against their overrides.
package vars

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/ir"
	"gopkg.in/yaml.v3"
)

// Variable types.
const (
	TypeString = "string"
	TypeNumber = "number"
	TypeBool   = "bool"
	TypeList   = "list"
	TypeMap    = "map"
	TypeAny    = "any"
)

// ValidationError reports a declared value that fails its declared type, or a
// declaration that cannot be planned at all.
type ValidationError struct {
	Subject string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Subject, e.Reason)
}

// Resolve merges defaults, file values and flag overrides (in increasing
// precedence) and type-checks every result. All failures are joined.
func Resolve(decls map[string]*ir.Variable, fileValues map[string]any, flags map[string]string) (map[string]any, error) {
	var errs []error
	resolved := make(map[string]any, len(decls))

	for _, name := range unknownNames(decls, fileValues, flags) {
		errs = append(errs, &ValidationError{
			Subject: "variable " + name,
			Reason:  "not declared",
		})
	}

	names := make([]string, 0, len(decls))
	for name := range decls {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		decl := decls[name]
		typ := decl.Type
		if typ == "" {
			typ = TypeAny
		}
		if !knownType(typ) {
			errs = append(errs, &ValidationError{
				Subject: "variable " + name,
				Reason:  fmt.Sprintf("unknown type %q", typ),
			})
			continue
		}

		value, set := decl.Default, decl.Default != nil
		if v, ok := fileValues[name]; ok {
			value, set = v, true
		}
		if raw, ok := flags[name]; ok {
			parsed, err := parseFlag(typ, raw)
			if err != nil {
				errs = append(errs, &ValidationError{
					Subject: "variable " + name,
					Reason:  err.Error(),
				})
				continue
			}
			value, set = parsed, true
		}

		if !set {
			errs = append(errs, &ValidationError{
				Subject: "variable " + name,
				Reason:  "no value given and no default declared",
			})
			continue
		}
		if err := Check(typ, value); err != nil {
			errs = append(errs, &ValidationError{
				Subject: "variable " + name,
				Reason:  err.Error(),
			})
			continue
		}
		resolved[name] = normalize(typ, value)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return resolved, nil
}

// Check reports whether value conforms to typ.
func Check(typ string, value any) error {
	switch typ {
	case TypeAny, "":
		return nil
	case TypeString:
		if _, ok := value.(string); ok {
			return nil
		}
	case TypeNumber:
		switch value.(type) {
		case int, int32, int64, float32, float64, uint, uint32, uint64:
			return nil
		}
	case TypeBool:
		if _, ok := value.(bool); ok {
			return nil
		}
	case TypeList:
		if _, ok := value.([]any); ok {
			return nil
		}
	case TypeMap:
		switch value.(type) {
		case map[string]any, map[any]any:
			return nil
		}
	}
	return fmt.Errorf("expected %s, got %T", typ, value)
}

// LoadFile reads a YAML (or JSON) file of variable values.
func LoadFile(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read variables file %s: %w", path, err)
	}
	values := map[string]any{}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("failed to parse variables file %s: %w", path, err)
	}
	return values, nil
}

func parseFlag(typ, raw string) (any, error) {
	switch typ {
	case TypeString:
		return raw, nil
	case TypeNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("expected number, got %q", raw)
		}
		return f, nil
	case TypeBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("expected bool, got %q", raw)
		}
		return b, nil
	default:
		// Lists and maps use YAML flow syntax: [a, b] or {k: v}.
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("failed to parse %q: %w", raw, err)
		}
		return v, nil
	}
}

func normalize(typ string, value any) any {
	switch v := value.(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[fmt.Sprintf("%v", k)] = val
		}
		return out
	}
	return value
}

func knownType(typ string) bool {
	switch typ {
	case TypeString, TypeNumber, TypeBool, TypeList, TypeMap, TypeAny:
		return true
	}
	return false
}

func unknownNames(decls map[string]*ir.Variable, fileValues map[string]any, flags map[string]string) []string {
	seen := map[string]bool{}
	for name := range fileValues {
		if _, ok := decls[name]; !ok {
			seen[name] = true
		}
	}
	for name := range flags {
		if _, ok := decls[name]; !ok {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
