package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newOutputCmd(opts *globalOptions) *cobra.Command {
	var (
		asJSON bool
		dir    string
	)
	cmd := &cobra.Command{
		Use:   "output [name]",
		Short: "Show output values from state",
		Long: `Reads output values recorded by the last apply.

If no name is given, all outputs are displayed. If a name is given,
only that output's value is printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openSession(cmd, dirArgs(dir))
			if err != nil {
				return err
			}
			current, err := s.backend.Read(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read state: %w", err)
			}

			if len(args) > 0 {
				name := args[0]
				val, ok := current.Outputs[name]
				if !ok {
					return fmt.Errorf("output %q not found", name)
				}
				if asJSON {
					return writeJSON(s, val)
				}
				if str, ok := val.(string); ok {
					fmt.Fprintln(s.out, str)
					return nil
				}
				fmt.Fprintln(s.out, formatValue(val))
				return nil
			}

			if len(current.Outputs) == 0 {
				fmt.Fprintln(s.out, "No outputs defined.")
				return nil
			}
			if asJSON {
				return writeJSON(s, current.Outputs)
			}
			renderOutputs(s.out, current.Outputs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	cmd.Flags().StringVarP(&dir, "dir", "C", "", "Project directory (default: working directory)")
	return cmd
}

func dirArgs(dir string) []string {
	if dir == "" {
		return nil
	}
	return []string{dir}
}

func writeJSON(s *session, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	fmt.Fprintln(s.out, string(data))
	return nil
}
