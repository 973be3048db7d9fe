package ir

// Config is a loaded declaration set.
type Config struct {
	Variables map[string]*Variable `pkl:"variables" json:"variables,omitempty" yaml:"variables,omitempty"`
	Resources []*Resource          `pkl:"resources" json:"resources" yaml:"resources"`
	Outputs   map[string]any       `pkl:"outputs" json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// Variable is a declared input with an optional default.
type Variable struct {
	Type        string `pkl:"type" json:"type" yaml:"type"` // string, number, bool, list, map, any
	Description string `pkl:"description" json:"description,omitempty" yaml:"description,omitempty"`
	Default     any    `pkl:"default" json:"default,omitempty" yaml:"default,omitempty"`
}
