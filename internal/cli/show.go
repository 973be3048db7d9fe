package cli

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"
)

func newShowCmd(opts *globalOptions) *cobra.Command {
	var (
		asJSON bool
		dir    string
	)
	cmd := &cobra.Command{
		Use:   "show [planfile]",
		Short: "Show the current state or a saved plan",
		Long: `Without arguments, displays the recorded state. Given a file written by
'quicksetup plan --out', renders that plan.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openSession(cmd, dirArgs(dir))
			if err != nil {
				return err
			}

			if len(args) > 0 {
				plan, err := readPlanFile(args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(s, plan)
				}
				s.printPlan(plan)
				return nil
			}

			current, err := s.backend.Read(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read state: %w", err)
			}
			if asJSON {
				return writeJSON(s, current)
			}

			w := s.out
			fmt.Fprintf(w, "State: version=%d serial=%d lineage=%s\n", current.Version, current.Serial, current.Lineage)
			fmt.Fprintf(w, "Resources: %d\n\n", len(current.Resources))
			for _, res := range current.Resources {
				fmt.Fprintf(w, "# %s\n", res.Address())
				fmt.Fprintf(w, "  provider = %s\n", res.Provider)
				for _, k := range slices.Sorted(maps.Keys(res.Outputs)) {
					fmt.Fprintf(w, "  %s = %s\n", k, formatValue(res.Outputs[k]))
				}
				fmt.Fprintln(w)
			}
			renderOutputs(w, current.Outputs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	cmd.Flags().StringVarP(&dir, "dir", "C", "", "Project directory (default: working directory)")
	return cmd
}
