package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/engine"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/ir"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/state"
)

type applyOptions struct {
	autoApprove bool
	targets     []string
}

func newApplyCmd(opts *globalOptions) *cobra.Command {
	ao := &applyOptions{}
	cmd := &cobra.Command{
		Use:   "apply [path]",
		Short: "Create or update infrastructure",
		Long: `Plans the declaration set and applies the changes in dependency order.

State is written after every apply, including one that fails part way, so
resources that were created are not forgotten. Failed resources are listed
on stderr as "<resource id>: <message>".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openSession(cmd, args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return state.WithLock(ctx, s.backend, func() error {
				plan, current, err := s.plan(ctx, opts, ao.targets)
				if err != nil {
					return err
				}
				s.printPlan(plan)
				if !plan.HasChanges() {
					if len(current.Resources) > 0 {
						// Record refreshed outputs even when nothing changes.
						return s.writeState(ctx, current)
					}
					return nil
				}

				if !ao.autoApprove && !confirm(cmd.InOrStdin(), s.out, "Do you want to perform these actions?") {
					fmt.Fprintln(s.out, "Apply cancelled.")
					return nil
				}
				return s.apply(ctx, plan, current, "Apply")
			})
		},
	}
	cmd.Flags().BoolVar(&ao.autoApprove, "auto-approve", false, "Skip interactive approval of the plan")
	cmd.Flags().StringArrayVar(&ao.targets, "target", nil, "Limit apply to a resource id and its dependencies; repeatable")
	cmd.Flags().Int("parallelism", 1, "Number of concurrent provider calls")
	cmd.Flags().Bool("continue-on-error", false, "Keep applying resources unaffected by a failure")
	return cmd
}

// apply executes plan and always persists the resulting state.
func (s *session) apply(ctx context.Context, plan *ir.Plan, current *ir.State, verb string) error {
	fmt.Fprintln(s.out)
	newState, applyErr := s.engine.ApplyWithCallback(ctx, plan, current, func(event engine.ApplyEvent) {
		renderEvent(s.out, event)
	})
	if err := s.writeState(ctx, newState); err != nil {
		return errors.Join(applyErr, err)
	}
	if applyErr != nil {
		return applyErr
	}

	fmt.Fprintf(s.out, "\n%s complete! Resources: %d added, %d changed, %d destroyed.\n",
		verb, plan.Summary.Create, plan.Summary.Update, plan.Summary.Delete)
	renderOutputs(s.out, newState.Outputs)
	return nil
}
