package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/engine"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/eval"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/ir"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/state"
)

type destroyOptions struct {
	autoApprove bool
	targets     []string
}

func newDestroyCmd(opts *globalOptions) *cobra.Command {
	do := &destroyOptions{}
	cmd := &cobra.Command{
		Use:   "destroy [path]",
		Short: "Destroy all managed infrastructure",
		Long: `Deletes every resource recorded in state, dependents before the resources
they depend on. This is the inverse of 'quicksetup apply'.

Declarations are optional. When present, resources marked
lifecycle.preventDestroy stop the destroy before anything is deleted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openSession(cmd, args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if _, err := eval.NewEvaluator(s.dir).ResolveEntryPoint(s.entry); err == nil {
				if err := s.loadConfig(ctx, opts); err != nil {
					return err
				}
			} else {
				s.cfg = &ir.Config{}
			}

			return state.WithLock(ctx, s.backend, func() error {
				current, err := s.readState(ctx)
				if err != nil {
					return err
				}
				plan, err := s.engine.DestroyPlan(ctx, s.cfg, current, engine.PlanOptions{
					Variables: s.values,
					Targets:   do.targets,
				})
				if err != nil {
					return err
				}
				if !plan.HasChanges() {
					fmt.Fprintln(s.out, "\nNo resources to destroy.")
					return nil
				}

				fmt.Fprintln(s.out, "\nquicksetup will destroy the following resources:")
				s.renderPlanChanges(plan)
				fmt.Fprintln(s.out)
				renderPlanSummary(s.out, plan)

				if !do.autoApprove && !confirm(cmd.InOrStdin(), s.out, "Do you really want to destroy all resources?") {
					fmt.Fprintln(s.out, "Destroy cancelled.")
					return nil
				}
				return s.apply(ctx, plan, current, "Destroy")
			})
		},
	}
	cmd.Flags().BoolVar(&do.autoApprove, "auto-approve", false, "Skip interactive approval")
	cmd.Flags().StringArrayVar(&do.targets, "target", nil, "Destroy only this resource id and its dependents; repeatable")
	cmd.Flags().Int("parallelism", 1, "Number of concurrent provider calls")
	cmd.Flags().Bool("continue-on-error", false, "Keep deleting resources unaffected by a failure")
	return cmd
}
