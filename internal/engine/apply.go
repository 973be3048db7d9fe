package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/ir"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/logging"
	"github.com/Rammina/codepipeline-inplace-quicksetup/pkg/providersdk"
)

// Apply event statuses.
const (
	EventStarted   = "started"
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventSkipped   = "skipped"
)

// ApplyEvent represents a progress event during apply.
type ApplyEvent struct {
	Address  string
	Action   string
	Status   string
	Duration time.Duration
	Error    error
}

// ApplyCallback is called for each apply event if set.
type ApplyCallback func(event ApplyEvent)

type changeStatus int

const (
	statusPending changeStatus = iota
	statusSucceeded
	statusFailed
	statusSkipped
	statusUntouched
)

// Apply executes a plan and returns the updated state.
func (e *Engine) Apply(ctx context.Context, plan *ir.Plan, state *ir.State) (*ir.State, error) {
	return e.ApplyWithCallback(ctx, plan, state, nil)
}

// ApplyWithCallback executes a plan with progress event callbacks. Every
// create, update and delete is sent to its provider exactly once. The returned
// state always records the calls that succeeded, even when err is non-nil:
//
//	state, err := eng.Apply(ctx, plan, state)
//	save(state) // persist partial progress before inspecting err
func (e *Engine) ApplyWithCallback(ctx context.Context, plan *ir.Plan, state *ir.State, callback ApplyCallback) (*ir.State, error) {
	if state == nil {
		state = &ir.State{}
	}
	run := &applyRun{
		engine:   e,
		state:    state,
		callback: callback,
		status:   make(map[string]changeStatus, len(plan.Changes)),
	}

	var createUpdates, deletes []*ir.ResourceChange
	for _, change := range plan.Changes {
		switch change.Action {
		case ir.ActionCreate, ir.ActionUpdate:
			createUpdates = append(createUpdates, change)
		case ir.ActionDelete:
			deletes = append(deletes, change)
		}
	}

	run.phase(ctx, createUpdates, createBlockers(createUpdates))
	run.phase(ctx, deletes, deleteBlockers(deletes))

	state.Serial++
	state.Outputs = run.resolveOutputs(plan.Outputs)

	return state, run.result(ctx, plan)
}

type applyRun struct {
	engine   *Engine
	callback ApplyCallback

	mu     sync.Mutex // guards everything below
	state  *ir.State
	status map[string]changeStatus
	errs   []*ProviderCallError
}

// createBlockers maps each change to the changes it must wait for: its
// dependencies that are also being created or updated.
func createBlockers(changes []*ir.ResourceChange) map[string][]string {
	inPhase := map[string]bool{}
	for _, c := range changes {
		inPhase[c.Address] = true
	}
	blockers := map[string][]string{}
	for _, c := range changes {
		for _, dep := range c.Dependencies {
			if inPhase[dep] {
				blockers[c.Address] = append(blockers[c.Address], dep)
			}
		}
	}
	return blockers
}

// deleteBlockers inverts the recorded dependencies: a resource is deleted
// only after every resource depending on it is gone.
func deleteBlockers(changes []*ir.ResourceChange) map[string][]string {
	inPhase := map[string]bool{}
	for _, c := range changes {
		inPhase[c.Address] = true
	}
	blockers := map[string][]string{}
	for _, c := range changes {
		for _, dep := range c.Dependencies {
			if inPhase[dep] {
				blockers[dep] = append(blockers[dep], c.Address)
			}
		}
	}
	return blockers
}

// phase applies changes in plan order. The plan order puts every change
// after its blockers, so goroutines only ever wait on earlier ones and the
// group limit cannot deadlock.
func (r *applyRun) phase(ctx context.Context, changes []*ir.ResourceChange, blockers map[string][]string) {
	limit := r.engine.Parallelism
	if limit < 1 {
		limit = 1
	}

	done := make(map[string]chan struct{}, len(changes))
	for _, c := range changes {
		done[c.Address] = make(chan struct{})
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for _, change := range changes {
		g.Go(func() error {
			defer close(done[change.Address])
			for _, b := range blockers[change.Address] {
				<-done[b]
			}
			r.run(ctx, change, blockers[change.Address])
			return nil
		})
	}
	_ = g.Wait()
}

func (r *applyRun) run(ctx context.Context, change *ir.ResourceChange, blockers []string) {
	r.mu.Lock()
	for _, b := range blockers {
		if s := r.status[b]; s == statusFailed || s == statusSkipped {
			r.status[change.Address] = statusSkipped
			r.mu.Unlock()
			logging.Warn("skipping resource, dependency failed", "address", change.Address, "dependency", b)
			r.emit(ApplyEvent{Address: change.Address, Action: change.Action, Status: EventSkipped})
			return
		}
	}
	if (len(r.errs) > 0 && !r.engine.ContinueOnError) || ctx.Err() != nil {
		r.status[change.Address] = statusUntouched
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	start := time.Now()
	r.emit(ApplyEvent{Address: change.Address, Action: change.Action, Status: EventStarted})

	err := r.applyChange(ctx, change)

	r.mu.Lock()
	if err != nil {
		r.status[change.Address] = statusFailed
		r.errs = append(r.errs, err)
	} else {
		r.status[change.Address] = statusSucceeded
	}
	r.mu.Unlock()

	if err != nil {
		logging.Error("apply failed", "address", change.Address, "action", change.Action, "error", err.Err)
		r.emit(ApplyEvent{Address: change.Address, Action: change.Action, Status: EventFailed, Duration: time.Since(start), Error: err})
		return
	}
	r.emit(ApplyEvent{Address: change.Address, Action: change.Action, Status: EventCompleted, Duration: time.Since(start)})
}

func (r *applyRun) emit(event ApplyEvent) {
	if r.callback != nil {
		r.callback(event)
	}
}

func (r *applyRun) applyChange(ctx context.Context, change *ir.ResourceChange) *ProviderCallError {
	addr := change.Address
	op := strings.ToLower(change.Action)
	fail := func(op string, err error) *ProviderCallError {
		return &ProviderCallError{Address: addr, Operation: op, Err: err}
	}
	logging.Debug("applying change", "address", addr, "action", change.Action)

	prov, err := r.engine.providers.Get(change.Provider())
	if err != nil {
		return fail(op, err)
	}

	timeout, err := ResourceTimeout(change.Desired)
	if err != nil {
		return fail(op, err)
	}
	ctx, cancel := WithTimeout(ctx, timeout)
	defer cancel()

	switch change.Action {
	case ir.ActionCreate, ir.ActionUpdate:
		res := change.Desired
		inputs := normalizeProps(res.Properties)
		hash, err := InputsHash(inputs)
		if err != nil {
			return fail(op, err)
		}

		r.mu.Lock()
		resolved, err := resolveReferences(inputs, r.state)
		var priorOutputs map[string]any
		if prior, ok := r.state.Lookup(addr); ok {
			priorOutputs = prior.Outputs
		}
		r.mu.Unlock()
		if err != nil {
			return fail("resolve", err)
		}
		props := resolved.(map[string]any)

		var resp *providersdk.ApplyResponse
		if change.Action == ir.ActionCreate {
			resp, err = prov.Create(ctx, &providersdk.CreateRequest{Type: res.Type, Name: res.Name, Properties: props})
		} else {
			resp, err = prov.Update(ctx, &providersdk.UpdateRequest{Type: res.Type, Name: res.Name, Properties: props, PriorOutputs: priorOutputs})
		}
		if err != nil {
			return fail(op, err)
		}

		var outputs map[string]any
		if resp != nil {
			outputs = resp.Outputs
		}
		r.record(&ir.ResourceState{
			Type:         res.Type,
			Name:         res.Name,
			Provider:     change.Provider(),
			Inputs:       inputs,
			InputsHash:   hash,
			Outputs:      outputs,
			Dependencies: change.Dependencies,
		})

	case ir.ActionDelete:
		prior := change.Prior
		r.mu.Lock()
		if current, ok := r.state.Lookup(addr); ok {
			prior = current
		}
		r.mu.Unlock()
		if prior == nil {
			return fail(op, fmt.Errorf("no recorded state for %s", addr))
		}

		if err := prov.Delete(ctx, &providersdk.DeleteRequest{Type: prior.Type, Name: prior.Name, PriorOutputs: prior.Outputs}); err != nil {
			return fail(op, err)
		}
		r.forget(addr)

	default:
		return fail(op, fmt.Errorf("unsupported action %q", change.Action))
	}
	return nil
}

func (r *applyRun) record(res *ir.ResourceState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	addr := res.Address()
	for i, existing := range r.state.Resources {
		if existing.Address() == addr {
			r.state.Resources[i] = res
			return
		}
	}
	r.state.Resources = append(r.state.Resources, res)
}

func (r *applyRun) forget(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.state.Resources {
		if existing.Address() == addr {
			r.state.Resources = append(r.state.Resources[:i], r.state.Resources[i+1:]...)
			return
		}
	}
}

// resolveOutputs resolves references in declared outputs. Outputs whose
// references cannot be resolved keep the reference string.
func (r *applyRun) resolveOutputs(outputs map[string]any) map[string]any {
	if outputs == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]any, len(outputs))
	for k, v := range outputs {
		resolved, err := resolveReferences(normalizeValue(v), r.state)
		if err != nil {
			out[k] = v
			continue
		}
		out[k] = resolved
	}
	return out
}

func (r *applyRun) result(ctx context.Context, plan *ir.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	applyErr := &ApplyError{Errors: r.errs}
	for _, change := range plan.Changes {
		if change.Action == ir.ActionNoOp {
			continue
		}
		switch r.status[change.Address] {
		case statusSucceeded:
			applyErr.Succeeded = append(applyErr.Succeeded, change.Address)
		case statusFailed:
			applyErr.Failed = append(applyErr.Failed, change.Address)
		case statusSkipped:
			applyErr.Skipped = append(applyErr.Skipped, change.Address)
		default:
			applyErr.Untouched = append(applyErr.Untouched, change.Address)
		}
	}

	if len(r.errs) > 0 {
		return applyErr
	}
	if err := ctx.Err(); err != nil && len(applyErr.Untouched) > 0 {
		return fmt.Errorf("apply cancelled with %d resource(s) untouched: %w", len(applyErr.Untouched), err)
	}
	return nil
}

// resolveReferences replaces ptr:// strings with the referenced attribute of
// an already-applied resource, looked up in outputs first, then inputs.
func resolveReferences(val any, state *ir.State) (any, error) {
	switch v := val.(type) {
	case string:
		addr, attr, ok := parseRef(v)
		if !ok {
			return v, nil
		}
		res, found := state.Lookup(addr)
		if !found {
			return nil, fmt.Errorf("reference %s: %s has not been applied", v, addr)
		}
		if out, ok := res.Outputs[attr]; ok {
			return out, nil
		}
		if in, ok := res.Inputs[attr]; ok {
			return resolveReferences(in, state)
		}
		return nil, fmt.Errorf("reference %s: %s has no attribute %q", v, addr, attr)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			resolved, err := resolveReferences(item, state)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := resolveReferences(item, state)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}
