package ir

// State is the persisted record of what the last apply produced.
type State struct {
	Version   int              `json:"version"`
	Serial    int              `json:"serial"`
	Lineage   string           `json:"lineage"`
	Resources []*ResourceState `json:"resources"`
	Outputs   map[string]any   `json:"outputs,omitempty"`
}

type ResourceState struct {
	Type         string         `json:"type"`
	Name         string         `json:"name"`
	Provider     string         `json:"provider"`
	Inputs       map[string]any `json:"inputs,omitempty"` // declared properties, references unresolved
	InputsHash   string         `json:"inputsHash"`
	Outputs      map[string]any `json:"outputs,omitempty"` // provider returned
	Dependencies []string       `json:"dependencies,omitempty"`
}

func (r *ResourceState) Address() string {
	return Address(r.Type, r.Name)
}

// Lookup returns the resource recorded under addr.
func (s *State) Lookup(addr string) (*ResourceState, bool) {
	for _, res := range s.Resources {
		if res.Address() == addr {
			return res, true
		}
	}
	return nil, false
}
