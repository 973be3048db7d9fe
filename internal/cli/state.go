package cli

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/ir"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/state"
)

func newStateCmd(opts *globalOptions) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and modify recorded state",
	}
	cmd.PersistentFlags().StringVarP(&dir, "dir", "C", "", "Project directory (default: working directory)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List resources in state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, current, err := opts.openState(cmd, dir)
			if err != nil {
				return err
			}
			if len(current.Resources) == 0 {
				fmt.Fprintln(s.out, "No resources in state.")
				return nil
			}
			fmt.Fprintf(s.out, "State version: %d, serial: %d, lineage: %s\n\n", current.Version, current.Serial, current.Lineage)
			renderResources(s.out, current.Resources)
			fmt.Fprintf(s.out, "\nTotal: %d resource(s)\n", len(current.Resources))
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show attributes of a single resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, current, err := opts.openState(cmd, dir)
			if err != nil {
				return err
			}
			res, ok := current.Lookup(args[0])
			if !ok {
				return fmt.Errorf("resource %s not found in state", args[0])
			}
			renderResourceState(s, res)
			return nil
		},
	}

	mv := &cobra.Command{
		Use:   "mv <source> <destination>",
		Short: "Record a resource under a new id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst := args[0], args[1]
			typ, name, ok := strings.Cut(dst, ".")
			if !ok || typ == "" || name == "" {
				return fmt.Errorf("invalid destination %q, expected <type>.<name>", dst)
			}
			return opts.mutateState(cmd, dir, func(s *session, current *ir.State) error {
				if _, taken := current.Lookup(dst); taken {
					return fmt.Errorf("resource %s already exists in state", dst)
				}
				res, found := current.Lookup(src)
				if !found {
					return fmt.Errorf("resource %s not found in state", src)
				}
				res.Type, res.Name = typ, name
				for _, other := range current.Resources {
					for i, dep := range other.Dependencies {
						if dep == src {
							other.Dependencies[i] = dst
						}
					}
				}
				current.Serial++
				fmt.Fprintf(s.out, "Moved %s to %s\n", src, dst)
				return nil
			})
		},
	}

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Forget a resource without destroying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			return opts.mutateState(cmd, dir, func(s *session, current *ir.State) error {
				if !state.Remove(current, target) {
					return fmt.Errorf("resource %s not found in state", target)
				}
				fmt.Fprintf(s.out, "Removed %s from state (resource was NOT destroyed)\n", target)
				return nil
			})
		},
	}

	cmd.AddCommand(list, show, mv, rm)
	return cmd
}

func (o *globalOptions) openState(cmd *cobra.Command, dir string) (*session, *ir.State, error) {
	s, err := o.openSession(cmd, dirArgs(dir))
	if err != nil {
		return nil, nil, err
	}
	current, err := s.backend.Read(cmd.Context())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read state: %w", err)
	}
	return s, current, nil
}

// mutateState runs fn on the locked state and writes the result when fn
// succeeds.
func (o *globalOptions) mutateState(cmd *cobra.Command, dir string, fn func(*session, *ir.State) error) error {
	s, err := o.openSession(cmd, dirArgs(dir))
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	return state.WithLock(ctx, s.backend, func() error {
		current, err := s.backend.Read(ctx)
		if err != nil {
			return fmt.Errorf("failed to read state: %w", err)
		}
		if err := fn(s, current); err != nil {
			return err
		}
		return s.writeState(ctx, current)
	})
}

func renderResourceState(s *session, res *ir.ResourceState) {
	w := s.out
	fmt.Fprintf(w, "# %s\n", res.Address())
	fmt.Fprintf(w, "  provider = %s\n", res.Provider)
	fmt.Fprintf(w, "  type     = %s\n", res.Type)
	fmt.Fprintf(w, "  name     = %s\n", res.Name)
	if len(res.Dependencies) > 0 {
		fmt.Fprintf(w, "  depends  = %s\n", strings.Join(res.Dependencies, ", "))
	}

	if len(res.Inputs) > 0 {
		fmt.Fprintln(w, "\n  Inputs:")
		for _, k := range slices.Sorted(maps.Keys(res.Inputs)) {
			fmt.Fprintf(w, "    %s = %s\n", k, formatValue(res.Inputs[k]))
		}
	}
	if len(res.Outputs) > 0 {
		fmt.Fprintln(w, "\n  Outputs:")
		for _, k := range slices.Sorted(maps.Keys(res.Outputs)) {
			fmt.Fprintf(w, "    %s = %s\n", k, formatValue(res.Outputs[k]))
		}
	}
	if res.InputsHash != "" {
		fmt.Fprintf(w, "\n  inputs_hash = %s\n", res.InputsHash)
	}
}
