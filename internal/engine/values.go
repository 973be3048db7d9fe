package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"sort"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/ir"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// normalizeValue converts decoded declaration values into the shapes structpb
// accepts: string-keyed maps and []any lists.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = normalizeValue(v)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[fmt.Sprint(k)] = normalizeValue(v)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = v
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = normalizeValue(v)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = v
		}
		return out
	default:
		return v
	}
}

func normalizeProps(props map[string]any) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	return normalizeValue(props).(map[string]any)
}

func canonicalStruct(props map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(normalizeProps(props))
	if err != nil {
		return nil, fmt.Errorf("canonicalize properties: %w", err)
	}
	return s, nil
}

func canonicalValue(v any) (*structpb.Value, error) {
	val, err := structpb.NewValue(normalizeValue(v))
	if err != nil {
		return nil, fmt.Errorf("canonicalize value: %w", err)
	}
	return val, nil
}

// InputsHash returns the SHA-256 of the deterministic protobuf encoding of
// props, so integer and float spellings of the same number hash equally.
func InputsHash(props map[string]any) (string, error) {
	s, err := canonicalStruct(props)
	if err != nil {
		return "", err
	}
	b, err := proto.MarshalOptions{Deterministic: true}.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode properties: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// diffProperties compares desired against prior inputs, skipping ignored
// top-level keys. It returns nil when nothing differs.
func diffProperties(prior, desired map[string]any, ignore []string) (map[string]*ir.PropertyDiff, error) {
	keys := map[string]bool{}
	for k := range prior {
		keys[k] = true
	}
	for k := range desired {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		if !slices.Contains(ignore, k) {
			sorted = append(sorted, k)
		}
	}
	sort.Strings(sorted)

	var diff map[string]*ir.PropertyDiff
	for _, k := range sorted {
		before, hadBefore := prior[k]
		after, hasAfter := desired[k]

		var pd *ir.PropertyDiff
		switch {
		case !hadBefore:
			pd = &ir.PropertyDiff{After: after, Action: "create"}
		case !hasAfter:
			pd = &ir.PropertyDiff{Before: before, Action: "delete"}
		default:
			a, err := canonicalValue(before)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", k, err)
			}
			b, err := canonicalValue(after)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", k, err)
			}
			if !proto.Equal(a, b) {
				pd = &ir.PropertyDiff{Before: before, After: after, Action: "update"}
			}
		}
		if pd != nil {
			if diff == nil {
				diff = map[string]*ir.PropertyDiff{}
			}
			diff[k] = pd
		}
	}
	return diff, nil
}

// observedProperties returns the recorded inputs of prior with live values
// laid over them. A declared property is taken from the provider's outputs
// when the provider reports the same key and the value differs from the
// declaration once its references are resolved against state. Empty declared
// values leave the provider's choice alone.
func observedProperties(prior *ir.ResourceState, desired map[string]any, state *ir.State) map[string]any {
	observed := normalizeProps(prior.Inputs)
	for k, want := range desired {
		live, reported := prior.Outputs[k]
		if !reported || want == nil || want == "" {
			continue
		}
		resolved, err := resolveReferences(want, state)
		if err != nil {
			continue
		}
		if !sameValue(resolved, live) {
			observed[k] = normalizeValue(live)
		}
	}
	return observed
}

func sameValue(a, b any) bool {
	x, err := canonicalValue(a)
	if err != nil {
		return false
	}
	y, err := canonicalValue(b)
	if err != nil {
		return false
	}
	return proto.Equal(x, y)
}
