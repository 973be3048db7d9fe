package null

import (
	"context"
	"fmt"

	"github.com/Rammina/codepipeline-inplace-quicksetup/pkg/providersdk"
)

// ResourceType is the only type the null provider owns.
const ResourceType = "null_resource"

// Provider manages resources that exist only in state. It is useful for
// ordering hooks and for exercising the engine without a cloud account.
type Provider struct{}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Configure(ctx context.Context, cfg providersdk.Config) error {
	return nil
}

func (p *Provider) Read(ctx context.Context, req *providersdk.ReadRequest) (*providersdk.ReadResponse, error) {
	if err := checkType(req.Type); err != nil {
		return nil, err
	}
	// Null resources never drift.
	return &providersdk.ReadResponse{Exists: true, Outputs: req.Outputs}, nil
}

func (p *Provider) Create(ctx context.Context, req *providersdk.CreateRequest) (*providersdk.ApplyResponse, error) {
	return p.write(req.Type, req.Name, req.Properties)
}

func (p *Provider) Update(ctx context.Context, req *providersdk.UpdateRequest) (*providersdk.ApplyResponse, error) {
	return p.write(req.Type, req.Name, req.Properties)
}

func (p *Provider) Delete(ctx context.Context, req *providersdk.DeleteRequest) error {
	return checkType(req.Type)
}

func (p *Provider) write(typ, name string, props map[string]any) (*providersdk.ApplyResponse, error) {
	if err := checkType(typ); err != nil {
		return nil, err
	}

	var cfg Config
	if err := providersdk.Decode(props, &cfg); err != nil {
		return nil, err
	}

	outputs, err := providersdk.Encode(State{
		ID:       fmt.Sprintf("null-%s", name),
		Triggers: cfg.Triggers,
	})
	if err != nil {
		return nil, err
	}
	return &providersdk.ApplyResponse{Outputs: outputs}, nil
}

func checkType(typ string) error {
	if typ != ResourceType && typ != "" {
		return &providersdk.UnsupportedTypeError{Provider: "null", Type: typ}
	}
	return nil
}

type Config struct {
	Triggers map[string]string `json:"triggers"`
}

type State struct {
	ID       string            `json:"id"`
	Triggers map[string]string `json:"triggers,omitempty"`
}
