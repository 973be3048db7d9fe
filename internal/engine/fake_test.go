package engine

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/ir"
	"github.com/Rammina/codepipeline-inplace-quicksetup/pkg/providersdk"
)

// recordingProvider records every call and returns "id-<name>" as the id
// output. Failures are injected per declaration id.
type recordingProvider struct {
	mu       sync.Mutex
	calls    []string
	received map[string]map[string]any
	fail     map[string]error
	gone     map[string]bool
	live     map[string]map[string]any // read outputs laid over recorded ones
	readErrs []error
	delay    time.Duration
}

func newRecordingProvider() *recordingProvider {
	return &recordingProvider{
		received: map[string]map[string]any{},
		fail:     map[string]error{},
		gone:     map[string]bool{},
		live:     map[string]map[string]any{},
	}
}

func (p *recordingProvider) Configure(ctx context.Context, cfg providersdk.Config) error {
	return nil
}

func (p *recordingProvider) Read(ctx context.Context, req *providersdk.ReadRequest) (*providersdk.ReadResponse, error) {
	addr := ir.Address(req.Type, req.Name)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "read "+addr)
	if len(p.readErrs) > 0 {
		err := p.readErrs[0]
		p.readErrs = p.readErrs[1:]
		return nil, err
	}
	if p.gone[addr] {
		return &providersdk.ReadResponse{Exists: false}, nil
	}
	outputs := maps.Clone(req.Outputs)
	if live, ok := p.live[addr]; ok {
		if outputs == nil {
			outputs = map[string]any{}
		}
		maps.Copy(outputs, live)
	}
	return &providersdk.ReadResponse{Exists: true, Outputs: outputs}, nil
}

func (p *recordingProvider) Create(ctx context.Context, req *providersdk.CreateRequest) (*providersdk.ApplyResponse, error) {
	return p.write(ctx, "create", req.Type, req.Name, req.Properties)
}

func (p *recordingProvider) Update(ctx context.Context, req *providersdk.UpdateRequest) (*providersdk.ApplyResponse, error) {
	return p.write(ctx, "update", req.Type, req.Name, req.Properties)
}

func (p *recordingProvider) Delete(ctx context.Context, req *providersdk.DeleteRequest) error {
	addr := ir.Address(req.Type, req.Name)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "delete "+addr)
	return p.fail[addr]
}

func (p *recordingProvider) write(ctx context.Context, op, typ, name string, props map[string]any) (*providersdk.ApplyResponse, error) {
	addr := ir.Address(typ, name)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, op+" "+addr)
	p.received[addr] = props
	if err := p.fail[addr]; err != nil {
		return nil, err
	}
	return &providersdk.ApplyResponse{Outputs: map[string]any{"id": "id-" + name}}, nil
}

func (p *recordingProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.calls...)
}

type staticSource map[string]providersdk.Provider

func (s staticSource) Get(name string) (providersdk.Provider, error) {
	if name == "" {
		name = "null"
	}
	p, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("provider not loaded: %s", name)
	}
	return p, nil
}

func newTestEngine() (*Engine, *recordingProvider) {
	prov := newRecordingProvider()
	eng := NewEngine(staticSource{"null": prov, "aws": prov})
	eng.RetryPolicy = &RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return eng, prov
}

func intPtr(n int) *int { return &n }

func indexOf(slice []string, item string) int {
	for i, s := range slice {
		if s == item {
			return i
		}
	}
	return -1
}
