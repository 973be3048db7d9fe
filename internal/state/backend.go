package state

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/ir"
)

// Backend defines the interface for state storage backends.
type Backend interface {
	// Read loads the state from the backend.
	Read(ctx context.Context) (*ir.State, error)

	// Write saves the state to the backend.
	Write(ctx context.Context, state *ir.State) error

	// Lock acquires an exclusive lock on the state.
	Lock(ctx context.Context) error

	// Unlock releases the lock on the state.
	Unlock(ctx context.Context) error
}

// BackendConfig holds configuration for a state backend.
type BackendConfig struct {
	Type string `mapstructure:"type"` // "local" or "s3"

	// local
	Path string `mapstructure:"path"`

	// s3
	Bucket        string `mapstructure:"bucket"`
	Key           string `mapstructure:"key"`
	Region        string `mapstructure:"region"`
	DynamoDBTable string `mapstructure:"dynamodb_table"` // for locking
	Encrypt       bool   `mapstructure:"encrypt"`
	Profile       string `mapstructure:"profile"`
}

// NewBackend creates a state backend from configuration. Relative local
// paths are resolved against projectDir.
func NewBackend(ctx context.Context, cfg *BackendConfig, projectDir string) (Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backend configuration is nil")
	}

	switch cfg.Type {
	case "local", "":
		path := cfg.Path
		if path == "" {
			path = DefaultPath
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(projectDir, path)
		}
		return NewManager(path), nil
	case "s3":
		return newS3Backend(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}

// WithLock runs fn while holding the backend's lock.
func WithLock(ctx context.Context, b Backend, fn func() error) error {
	if err := b.Lock(ctx); err != nil {
		return err
	}
	err := fn()
	if unlockErr := b.Unlock(context.WithoutCancel(ctx)); unlockErr != nil && err == nil {
		err = unlockErr
	}
	return err
}
