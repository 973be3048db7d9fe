package ir

import "fmt"

// DefaultType is used when a declaration omits its type.
const DefaultType = "null_resource"

// Resource is the desired-state declaration of one managed resource.
type Resource struct {
	Type       string         `pkl:"type" json:"type" yaml:"type"` // e.g. "aws:EC2.Vpc"
	Name       string         `pkl:"name" json:"name" yaml:"name"`
	Provider   string         `pkl:"provider" json:"provider" yaml:"provider"`
	Lifecycle  *Lifecycle     `pkl:"lifecycle" json:"lifecycle,omitempty" yaml:"lifecycle,omitempty"`
	DependsOn  []string       `pkl:"dependsOn" json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
	Count      *int           `pkl:"count" json:"count,omitempty" yaml:"count,omitempty"` // nil: a single instance; 0: none
	ForEach    map[string]any `pkl:"forEach" json:"forEach,omitempty" yaml:"forEach,omitempty"`
	Timeout    string         `pkl:"timeout" json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Properties map[string]any `pkl:"properties" json:"properties,omitempty" yaml:"properties,omitempty"`
}

type Lifecycle struct {
	PreventDestroy bool     `pkl:"preventDestroy" json:"preventDestroy,omitempty" yaml:"preventDestroy,omitempty"`
	IgnoreChanges  []string `pkl:"ignoreChanges" json:"ignoreChanges,omitempty" yaml:"ignoreChanges,omitempty"`
}

// Address returns the declaration id, "<type>.<name>".
func (r *Resource) Address() string {
	return Address(r.Type, r.Name)
}

// Address joins a resource type and name into a declaration id.
func Address(typ, name string) string {
	if typ == "" {
		typ = DefaultType
	}
	return fmt.Sprintf("%s.%s", typ, name)
}
