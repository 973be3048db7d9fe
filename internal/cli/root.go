package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/engine"
)

// globalOptions are the flags shared by every command.
type globalOptions struct {
	vars      []string
	varFiles  []string
	logLevel  string
	region    string
	profile   string
	noRefresh bool
	noColor   bool
}

// NewRootCmd builds the quicksetup command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "quicksetup",
		Short: "Dependency-ordered applier for the in-place CodeDeploy quick setup",
		Long: `quicksetup reads a declaration set (main.pkl, main.yaml or main.json) describing
the networking, load balancer, auto scaling group and CodeDeploy/CodePipeline
resources of an in-place deployment, plans the changes against recorded state
and applies them in dependency order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringArrayVar(&opts.vars, "var", nil, "Set a variable (format: name=value); repeatable")
	flags.StringArrayVar(&opts.varFiles, "var-file", nil, "Load variable values from a YAML file; repeatable")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.region, "region", "", "AWS region")
	flags.StringVar(&opts.profile, "profile", "", "AWS shared config profile")
	flags.BoolVar(&opts.noRefresh, "no-refresh", false, "Skip reading live state before planning")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		newInitCmd(opts),
		newValidateCmd(opts),
		newPlanCmd(opts),
		newApplyCmd(opts),
		newDestroyCmd(opts),
		newRefreshCmd(opts),
		newGraphCmd(opts),
		newShowCmd(opts),
		newOutputCmd(opts),
		newStateCmd(opts),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command line and returns the process exit code. Failures
// are written to stderr, one "<resource id>: <message>" line per failed
// resource.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		reportError(stderr, err)
		return 1
	}
	return 0
}

func reportError(w io.Writer, err error) {
	var applyErr *engine.ApplyError
	if !errors.As(err, &applyErr) {
		fmt.Fprintln(w, "Error:", err)
		return
	}
	for _, callErr := range applyErr.Errors {
		fmt.Fprintln(w, callErr.Error())
	}
	for _, group := range []struct {
		label string
		ids   []string
	}{
		{"succeeded", applyErr.Succeeded},
		{"skipped", applyErr.Skipped},
		{"untouched", applyErr.Untouched},
	} {
		for _, id := range group.ids {
			fmt.Fprintf(w, "%s: %s\n", group.label, id)
		}
	}
}
