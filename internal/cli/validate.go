package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/engine"
)

func newValidateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Check the declaration set without contacting any provider",
		Long: `Loads the declaration set, resolves variables, checks every ptr://
reference and dependsOn entry and rejects dependency cycles.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openSession(cmd, args)
			if err != nil {
				return err
			}
			if err := s.loadConfig(cmd.Context(), opts); err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			g, err := engine.Validate(s.cfg, s.values)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			fmt.Fprintf(s.out, "Configuration is valid: %d resource(s).\n", len(g.CreationOrder()))
			return nil
		},
	}
}
