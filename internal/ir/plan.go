package ir

// Change actions.
const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionNoOp   = "NOOP"
	ActionDelete = "DELETE"
)

// Plan is an ordered list of changes. Creates, updates and no-ops come first in
// dependency order; deletes follow in reverse dependency order.
type Plan struct {
	Metadata *PlanMetadata     `json:"metadata"`
	Changes  []*ResourceChange `json:"changes"`
	Summary  *PlanSummary      `json:"summary"`
	Outputs  map[string]any    `json:"outputs,omitempty"`
}

type PlanMetadata struct {
	Timestamp   string `json:"timestamp"`
	ConfigHash  string `json:"configHash"`
	PriorSerial int    `json:"priorSerial"`
}

type ResourceChange struct {
	Address      string                   `json:"address"`
	Action       string                   `json:"action"`
	Desired      *Resource                `json:"resource,omitempty"`
	Prior        *ResourceState           `json:"prior,omitempty"`
	Dependencies []string                 `json:"dependencies,omitempty"`
	Diff         map[string]*PropertyDiff `json:"diff,omitempty"`
}

// Provider returns the provider responsible for the change.
func (c *ResourceChange) Provider() string {
	if c.Desired != nil && c.Desired.Provider != "" {
		return c.Desired.Provider
	}
	if c.Prior != nil && c.Prior.Provider != "" {
		return c.Prior.Provider
	}
	return "null"
}

type PropertyDiff struct {
	Before any    `json:"before,omitempty"`
	After  any    `json:"after,omitempty"`
	Action string `json:"action"` // "create", "update", "delete"
}

type PlanSummary struct {
	Create int `json:"create"`
	Update int `json:"update"`
	Delete int `json:"delete"`
	NoOp   int `json:"noop"`
}

// HasChanges reports whether applying the plan would call any provider.
func (p *Plan) HasChanges() bool {
	return p.Summary != nil && p.Summary.Create+p.Summary.Update+p.Summary.Delete > 0
}
