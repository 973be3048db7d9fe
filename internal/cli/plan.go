package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/engine"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/ir"
)

type planOptions struct {
	out     string
	targets []string
}

func newPlanCmd(opts *globalOptions) *cobra.Command {
	po := &planOptions{}
	cmd := &cobra.Command{
		Use:   "plan [path]",
		Short: "Show the changes apply would make",
		Long: `Compares the declaration set with recorded (and, unless --no-refresh is
given, live) state and prints the ordered changes. Nothing is modified.

The plan shows:
  + resources to be created
  ~ resources to be updated (with a property diff)
  - resources to be deleted`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openSession(cmd, args)
			if err != nil {
				return err
			}
			plan, _, err := s.plan(cmd.Context(), opts, po.targets)
			if err != nil {
				return err
			}
			s.printPlan(plan)

			if po.out != "" {
				if err := writePlanFile(po.out, plan); err != nil {
					return err
				}
				fmt.Fprintf(s.out, "\nPlan written to %s\n", po.out)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&po.out, "out", "o", "", "Write the plan as JSON to this file")
	cmd.Flags().StringArrayVar(&po.targets, "target", nil, "Limit planning to a resource id and its dependencies; repeatable")
	return cmd
}

// plan loads declarations and state and computes the changes. The state it
// returns is the one the plan was computed against.
func (s *session) plan(ctx context.Context, opts *globalOptions, targets []string) (*ir.Plan, *ir.State, error) {
	if err := s.loadConfig(ctx, opts); err != nil {
		return nil, nil, err
	}
	// Reference and cycle errors surface before any provider is touched.
	if _, err := engine.Validate(s.cfg, s.values); err != nil {
		return nil, nil, err
	}
	if err := s.loadRequiredProviders(ctx, s.cfg); err != nil {
		return nil, nil, err
	}
	current, err := s.readState(ctx)
	if err != nil {
		return nil, nil, err
	}

	plan, err := s.engine.Plan(ctx, s.cfg, current, engine.PlanOptions{
		Variables: s.values,
		Targets:   targets,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("plan generation failed: %w", err)
	}
	return plan, current, nil
}

func (s *session) printPlan(plan *ir.Plan) {
	if !plan.HasChanges() {
		fmt.Fprintln(s.out, "\nNo changes. Infrastructure is up-to-date.")
		return
	}
	fmt.Fprintln(s.out, "\nquicksetup will perform the following actions:")
	s.renderPlanChanges(plan)
	fmt.Fprintln(s.out)
	renderPlanSummary(s.out, plan)
}

func writePlanFile(path string, plan *ir.Plan) error {
	raw, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write plan %s: %w", path, err)
	}
	return nil
}

func readPlanFile(path string) (*ir.Plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan %s: %w", path, err)
	}
	var plan ir.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}
	if plan.Summary == nil {
		plan.Summary = &ir.PlanSummary{}
	}
	return &plan, nil
}
