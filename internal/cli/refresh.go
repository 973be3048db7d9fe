package cli

import (
	"fmt"
	"reflect"

	"github.com/spf13/cobra"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/state"
)

func newRefreshCmd(opts *globalOptions) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Update state to match real infrastructure",
		Long: `Reads every managed resource from its provider and records what actually
exists. Resources deleted outside quicksetup are dropped from state so the
next apply creates them again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openSession(cmd, dirArgs(dir))
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return state.WithLock(ctx, s.backend, func() error {
				current, err := s.backend.Read(ctx)
				if err != nil {
					return fmt.Errorf("failed to read state: %w", err)
				}
				if len(current.Resources) == 0 {
					fmt.Fprintln(s.out, "No resources to refresh.")
					return nil
				}
				if err := s.loadStateProviders(ctx, current); err != nil {
					return err
				}

				fmt.Fprintf(s.out, "Refreshing %d resource(s)...\n\n", len(current.Resources))
				refreshed, err := s.engine.Refresh(ctx, current)
				if err != nil {
					return err
				}

				drifted, deleted := 0, 0
				for _, res := range current.Resources {
					addr := res.Address()
					now, ok := refreshed.Lookup(addr)
					switch {
					case !ok:
						fmt.Fprintf(s.out, "  %s%s: DELETED (no longer exists in provider)%s\n", s.colorize(colorRed), addr, s.colorize(colorReset))
						deleted++
					case !reflect.DeepEqual(now.Outputs, res.Outputs):
						fmt.Fprintf(s.out, "  %s%s: DRIFTED (state updated)%s\n", s.colorize(colorYellow), addr, s.colorize(colorReset))
						drifted++
					default:
						fmt.Fprintf(s.out, "  %s: OK\n", addr)
					}
				}

				if drifted > 0 || deleted > 0 {
					refreshed.Serial++
					if err := s.writeState(ctx, refreshed); err != nil {
						return err
					}
				}
				fmt.Fprintf(s.out, "\nRefresh complete. %d drifted, %d deleted.\n", drifted, deleted)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "C", "", "Project directory (default: working directory)")
	return cmd
}
