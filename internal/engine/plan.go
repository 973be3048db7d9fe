package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/ir"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/logging"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/vars"
	"github.com/Rammina/codepipeline-inplace-quicksetup/pkg/providersdk"
)

// ProviderSource hands out configured providers by name.
type ProviderSource interface {
	Get(name string) (providersdk.Provider, error)
}

// Engine orchestrates the lifecycle of resources.
type Engine struct {
	providers       ProviderSource
	Parallelism     int          // concurrent provider calls during apply; <= 1 is sequential
	ContinueOnError bool         // keep applying subtrees unaffected by a failure
	RetryPolicy     *RetryPolicy // reads only
}

func NewEngine(providers ProviderSource) *Engine {
	return &Engine{
		providers:   providers,
		Parallelism: 1,
		RetryPolicy: DefaultRetryPolicy(),
	}
}

// PlanOptions carries resolved variable values and an optional target set.
type PlanOptions struct {
	Variables map[string]any
	Targets   []string
}

// Plan compares the declaration set with state and returns the ordered changes.
// It makes no provider calls.
func (e *Engine) Plan(ctx context.Context, cfg *ir.Config, state *ir.State, opts PlanOptions) (*ir.Plan, error) {
	if state == nil {
		state = &ir.State{}
	}
	logging.Debug("creating plan", "resources", len(cfg.Resources), "state_resources", len(state.Resources), "targets", len(opts.Targets))

	resources, outputs, err := prepare(cfg, opts.Variables)
	if err != nil {
		return nil, err
	}
	dag, err := BuildGraph(resources)
	if err != nil {
		return nil, err
	}
	stateDAG, err := BuildStateGraph(state.Resources)
	if err != nil {
		return nil, fmt.Errorf("state dependency graph: %w", err)
	}

	targetSet, err := targetClosure(opts.Targets, dag, stateDAG)
	if err != nil {
		return nil, err
	}

	plan := newPlan(cfg, state, outputs)

	byAddr := make(map[string]*ir.Resource, len(resources))
	for _, res := range resources {
		byAddr[res.Address()] = res
	}

	for _, addr := range dag.CreationOrder() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if targetSet != nil && !targetSet[addr] {
			continue
		}
		res := byAddr[addr]
		desired := normalizeProps(res.Properties)
		change := &ir.ResourceChange{
			Address:      addr,
			Desired:      res,
			Dependencies: dag.Dependencies(addr),
		}

		prior, exists := state.Lookup(addr)
		if !exists {
			change.Action = ir.ActionCreate
			diff, err := diffProperties(nil, desired, nil)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", addr, err)
			}
			change.Diff = diff
			plan.Summary.Create++
		} else {
			change.Prior = prior
			var ignore []string
			if res.Lifecycle != nil {
				ignore = res.Lifecycle.IgnoreChanges
			}
			diff, err := diffProperties(observedProperties(prior, desired, state), desired, ignore)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", addr, err)
			}
			if len(diff) == 0 {
				change.Action = ir.ActionNoOp
				plan.Summary.NoOp++
			} else {
				change.Action = ir.ActionUpdate
				change.Diff = diff
				plan.Summary.Update++
			}
		}
		plan.Changes = append(plan.Changes, change)
	}

	for _, addr := range stateDAG.DestructionOrder() {
		if dag.Has(addr) {
			continue
		}
		if targetSet != nil && !targetSet[addr] {
			continue
		}
		prior, _ := state.Lookup(addr)
		plan.Changes = append(plan.Changes, deleteChange(prior))
		plan.Summary.Delete++
	}

	logging.Debug("plan created", "create", plan.Summary.Create, "update", plan.Summary.Update,
		"delete", plan.Summary.Delete, "noop", plan.Summary.NoOp)
	return plan, nil
}

// DestroyPlan plans the deletion of every resource in state, dependents first.
// Declarations still marked preventDestroy fail the plan.
func (e *Engine) DestroyPlan(ctx context.Context, cfg *ir.Config, state *ir.State, opts PlanOptions) (*ir.Plan, error) {
	if state == nil {
		state = &ir.State{}
	}
	if cfg == nil {
		cfg = &ir.Config{}
	}
	resources, _, err := prepare(cfg, opts.Variables)
	if err != nil {
		return nil, err
	}
	protected := map[string]bool{}
	for _, res := range resources {
		if res.Lifecycle != nil && res.Lifecycle.PreventDestroy {
			protected[res.Address()] = true
		}
	}

	stateDAG, err := BuildStateGraph(state.Resources)
	if err != nil {
		return nil, fmt.Errorf("state dependency graph: %w", err)
	}

	var targetSet map[string]bool
	if len(opts.Targets) > 0 {
		targetSet = map[string]bool{}
		for _, t := range opts.Targets {
			if !stateDAG.Has(t) {
				return nil, &vars.ValidationError{Subject: "target " + t, Reason: "not present in state"}
			}
			targetSet[t] = true
			for _, dependent := range stateDAG.TransitiveDependents(t) {
				targetSet[dependent] = true
			}
		}
	}

	plan := newPlan(cfg, state, nil)
	for _, addr := range stateDAG.DestructionOrder() {
		if targetSet != nil && !targetSet[addr] {
			continue
		}
		if protected[addr] {
			return nil, fmt.Errorf("%s: lifecycle.preventDestroy is set, refusing to destroy", addr)
		}
		prior, _ := state.Lookup(addr)
		plan.Changes = append(plan.Changes, deleteChange(prior))
		plan.Summary.Delete++
	}
	return plan, nil
}

// Validate runs every pre-plan check: variable substitution, reference
// resolution and cycle detection.
func Validate(cfg *ir.Config, values map[string]any) (*Graph, error) {
	resources, _, err := prepare(cfg, values)
	if err != nil {
		return nil, err
	}
	for _, res := range resources {
		if _, err := ResourceTimeout(res); err != nil {
			return nil, &vars.ValidationError{Subject: "resource " + res.Address(), Reason: err.Error()}
		}
	}
	return BuildGraph(resources)
}

func prepare(cfg *ir.Config, values map[string]any) ([]*ir.Resource, map[string]any, error) {
	expanded := ExpandForEach(cfg.Resources)
	return Interpolate(expanded, cfg.Outputs, values)
}

func newPlan(cfg *ir.Config, state *ir.State, outputs map[string]any) *ir.Plan {
	return &ir.Plan{
		Metadata: &ir.PlanMetadata{
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
			ConfigHash:  configHash(cfg),
			PriorSerial: state.Serial,
		},
		Changes: []*ir.ResourceChange{},
		Summary: &ir.PlanSummary{},
		Outputs: outputs,
	}
}

func deleteChange(prior *ir.ResourceState) *ir.ResourceChange {
	return &ir.ResourceChange{
		Address:      prior.Address(),
		Action:       ir.ActionDelete,
		Prior:        prior,
		Dependencies: append([]string{}, prior.Dependencies...),
	}
}

// targetClosure expands targets with their transitive dependencies. Targets
// naming resources only present in state select their deletion.
func targetClosure(targets []string, dag, stateDAG *Graph) (map[string]bool, error) {
	if len(targets) == 0 {
		return nil, nil
	}
	set := map[string]bool{}
	for _, t := range targets {
		switch {
		case dag.Has(t):
			set[t] = true
			for _, dep := range dag.TransitiveDeps(t) {
				set[dep] = true
			}
		case stateDAG.Has(t):
			set[t] = true
		default:
			return nil, &vars.ValidationError{Subject: "target " + t, Reason: "no such resource"}
		}
	}
	return set, nil
}

func configHash(cfg *ir.Config) string {
	b, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Addresses returns the ids of changes with the given action, in plan order.
func Addresses(plan *ir.Plan, action string) []string {
	var out []string
	for _, c := range plan.Changes {
		if c.Action == action {
			out = append(out, c.Address)
		}
	}
	return out
}
