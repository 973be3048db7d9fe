// Package providersdk defines the contract between the engine and resource
// providers. Properties travel as JSON-compatible maps; providers decode them
// into their own typed configs.
package providersdk

import (
	"context"
	"encoding/json"
	"fmt"
)

// Config carries the provider-wide settings. It is passed explicitly rather
// than read from the process environment so providers can be swapped for fakes.
type Config struct {
	Region  string
	Profile string
}

// Provider creates, reads, updates and deletes resources of the types it owns.
// Every method call maps to at most one logical provider operation.
type Provider interface {
	Configure(ctx context.Context, cfg Config) error
	Read(ctx context.Context, req *ReadRequest) (*ReadResponse, error)
	Create(ctx context.Context, req *CreateRequest) (*ApplyResponse, error)
	Update(ctx context.Context, req *UpdateRequest) (*ApplyResponse, error)
	Delete(ctx context.Context, req *DeleteRequest) error
}

type CreateRequest struct {
	Type       string
	Name       string
	Properties map[string]any
}

type UpdateRequest struct {
	Type         string
	Name         string
	Properties   map[string]any
	PriorOutputs map[string]any
}

type DeleteRequest struct {
	Type         string
	Name         string
	PriorOutputs map[string]any
}

type ReadRequest struct {
	Type    string
	Name    string
	Outputs map[string]any
}

type ReadResponse struct {
	Exists  bool
	Outputs map[string]any
}

type ApplyResponse struct {
	Outputs map[string]any
}

// UnsupportedTypeError is returned for resource types a provider does not own.
type UnsupportedTypeError struct {
	Provider string
	Type     string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("provider %s does not support resource type %s", e.Provider, e.Type)
}

// Decode converts a property map into a typed config struct.
func Decode(props map[string]any, out any) error {
	raw, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode properties: %w", err)
	}
	return nil
}

// Encode converts a typed state struct into an output map.
func Encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outputs: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode outputs: %w", err)
	}
	return out, nil
}
