package engine

import (
	"context"
	"fmt"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/ir"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/logging"
	"github.com/Rammina/codepipeline-inplace-quicksetup/pkg/providersdk"
)

// Refresh reads every resource in state from its provider and returns an
// updated copy. Resources the provider reports as gone are dropped, so the
// next plan creates them again. Reads are retried on transient errors.
func (e *Engine) Refresh(ctx context.Context, state *ir.State) (*ir.State, error) {
	if state == nil {
		return &ir.State{}, nil
	}
	refreshed := &ir.State{
		Version: state.Version,
		Serial:  state.Serial,
		Lineage: state.Lineage,
		Outputs: state.Outputs,
	}

	for _, res := range state.Resources {
		addr := res.Address()
		prov, err := e.providers.Get(res.Provider)
		if err != nil {
			return nil, fmt.Errorf("refresh %s: %w", addr, err)
		}

		var resp *providersdk.ReadResponse
		err = RetryWithBackoff(ctx, e.RetryPolicy, func() error {
			var readErr error
			resp, readErr = prov.Read(ctx, &providersdk.ReadRequest{
				Type:    res.Type,
				Name:    res.Name,
				Outputs: res.Outputs,
			})
			return readErr
		}, IsTransientError)
		if err != nil {
			return nil, fmt.Errorf("refresh %s: %w", addr, err)
		}

		if resp == nil || !resp.Exists {
			logging.Warn("resource no longer exists", "address", addr)
			continue
		}

		updated := *res
		if resp.Outputs != nil {
			updated.Outputs = resp.Outputs
		}
		refreshed.Resources = append(refreshed.Resources, &updated)
	}
	return refreshed, nil
}
