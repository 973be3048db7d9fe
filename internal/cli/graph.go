package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/engine"
)

func newGraphCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "graph [path]",
		Short: "Output the dependency graph in DOT format",
		Long: `Generates the resource dependency graph in Graphviz DOT format. Edges
point from a resource to the resources it depends on. Pipe the output to
'dot' to render it:

  quicksetup graph | dot -Tpng > graph.png`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openSession(cmd, args)
			if err != nil {
				return err
			}
			if err := s.loadConfig(cmd.Context(), opts); err != nil {
				return err
			}
			g, err := engine.Validate(s.cfg, s.values)
			if err != nil {
				return fmt.Errorf("failed to build graph: %w", err)
			}

			w := s.out
			fmt.Fprintln(w, "digraph quicksetup {")
			fmt.Fprintln(w, "  rankdir = \"BT\";")
			fmt.Fprintln(w, "  node [shape = rect];")
			fmt.Fprintln(w)

			order := g.CreationOrder()
			for _, id := range order {
				fmt.Fprintf(w, "  %q;\n", id)
			}
			fmt.Fprintln(w)
			for _, id := range order {
				for _, dep := range g.Dependencies(id) {
					fmt.Fprintf(w, "  %q -> %q;\n", id, dep)
				}
			}
			fmt.Fprintln(w, "}")
			return nil
		},
	}
}
