// Command agent-bootstrap prepares an EC2 instance for in-place CodeDeploy
// deployments: it installs the CodeDeploy agent, starts it and reports
// whether it is running. It is meant to run as instance user data.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/bootstrap"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/logging"
)

type options struct {
	region         string
	service        string
	expected       string
	serviceManager string
	workDir        string
	logLevel       string
}

func newCommand(stdout io.Writer) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "agent-bootstrap",
		Short: "Install and start the CodeDeploy agent",
		Long: `Updates the package index, installs the agent prerequisites, downloads
the regional CodeDeploy installer, runs it and starts the agent service.

The last line of output is "SUCCESS: <service> is running" or
"FAILURE: <service> is not running (...)". A service that does not come up
is reported but does not fail the command.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.Init(opts.logLevel)

			b := &bootstrap.Bootstrapper{
				Region:   opts.region,
				Service:  opts.service,
				Expected: opts.expected,
				WorkDir:  opts.workDir,
				Fetcher:  bootstrap.NewHTTPFetcher(),
				Out:      stdout,
			}
			switch opts.serviceManager {
			case "service":
				b.Services = &bootstrap.CommandServices{Runner: bootstrap.ExecRunner{}}
			case "systemd":
				b.Services = bootstrap.NewSystemdServices()
			default:
				return fmt.Errorf("unknown service manager %q (want service or systemd)", opts.serviceManager)
			}

			state, err := b.Run(cmd.Context())
			logging.Info("bootstrap finished", "state", state, "verified", state.Terminal())
			if errors.Is(err, bootstrap.ErrServiceNotRunning) {
				return nil
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.region, "region", bootstrap.DefaultRegion, "Region whose installer bucket is used")
	flags.StringVar(&opts.service, "service", bootstrap.DefaultService, "Agent service name")
	flags.StringVar(&opts.expected, "expected-status", bootstrap.DefaultExpected, "Status text that counts as running")
	flags.StringVar(&opts.serviceManager, "service-manager", "service", "How to drive the service (service, systemd)")
	flags.StringVar(&opts.workDir, "work-dir", os.TempDir(), "Directory that receives the installer")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmd := newCommand(os.Stdout)
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
