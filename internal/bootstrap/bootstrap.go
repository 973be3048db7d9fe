// Package bootstrap installs the CodeDeploy agent on an EC2 host and
// verifies that its service is running.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/logging"
)

const (
	DefaultRegion   = "us-east-1"
	DefaultService  = "codedeploy-agent"
	DefaultExpected = "running"
)

// DefaultPackages are the installer's prerequisites.
var DefaultPackages = []string{"ruby", "wget"}

// State is the position of a host in the install sequence.
type State int

const (
	NotInstalled State = iota
	Installed
	Started
	VerifiedRunning
	VerifiedNotRunning
)

func (s State) String() string {
	switch s {
	case NotInstalled:
		return "NotInstalled"
	case Installed:
		return "Installed"
	case Started:
		return "Started"
	case VerifiedRunning:
		return "VerifiedRunning"
	case VerifiedNotRunning:
		return "VerifiedNotRunning"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether s is one of the two verification outcomes.
func (s State) Terminal() bool {
	return s == VerifiedRunning || s == VerifiedNotRunning
}

// Bootstrapper runs the install sequence. Zero fields take the defaults.
type Bootstrapper struct {
	Region   string
	Packages []string
	Service  string
	Expected string
	// WorkDir receives the downloaded installer.
	WorkDir string

	Runner   Runner
	Fetcher  Fetcher
	Services ServiceManager
	Out      io.Writer
}

// Run executes every step in order. Package, download and installer failures
// stop the sequence with a FetchError or InstallError. A service that does
// not report the expected status yields VerifiedNotRunning and an error
// wrapping ErrServiceNotRunning, after the failure line is printed.
func (b *Bootstrapper) Run(ctx context.Context) (State, error) {
	b.defaults()
	log := logging.With("bootstrap")
	state := NotInstalled

	b.say("Updating package index")
	if err := b.run(ctx, "yum", "-y", "update"); err != nil {
		return state, err
	}

	b.say("Installing packages: %v", b.Packages)
	if err := b.run(ctx, "yum", append([]string{"-y", "install"}, b.Packages...)...); err != nil {
		return state, err
	}

	url := InstallerURL(b.Region)
	b.say("Downloading %s", url)
	script, err := b.Fetcher.Fetch(ctx, url)
	if err != nil {
		return state, err
	}
	installer := filepath.Join(b.WorkDir, "install")
	if err := os.WriteFile(installer, script, 0o755); err != nil {
		return state, &InstallError{Step: "write installer", Err: err}
	}

	b.say("Running installer")
	if err := b.run(ctx, installer, "auto"); err != nil {
		return state, err
	}
	state = Installed
	log.Info("agent installed", "state", state)

	b.say("Starting %s", b.Service)
	if err := b.Services.Start(ctx, b.Service); err != nil {
		return state, err
	}
	state = Started
	log.Info("service started", "service", b.Service, "state", state)

	status, err := b.Services.Status(ctx, b.Service)
	if err != nil {
		log.Warn("status query failed", "service", b.Service, "error", err)
	}
	probe := ServiceProbe{Service: b.Service, Expected: b.Expected, Observed: status}
	fmt.Fprintln(b.Out, probe.Line())

	if !probe.Matches() {
		state = VerifiedNotRunning
		return state, fmt.Errorf("%s: %w", b.Service, errors.Join(ErrServiceNotRunning, err))
	}
	return VerifiedRunning, nil
}

func (b *Bootstrapper) run(ctx context.Context, name string, args ...string) error {
	out, err := b.Runner.Run(ctx, name, args...)
	if err != nil {
		return &InstallError{Step: filepath.Base(name), Output: out, Err: err}
	}
	return nil
}

func (b *Bootstrapper) say(format string, args ...any) {
	fmt.Fprintf(b.Out, "==> "+format+"\n", args...)
}

func (b *Bootstrapper) defaults() {
	if b.Region == "" {
		b.Region = DefaultRegion
	}
	if len(b.Packages) == 0 {
		b.Packages = DefaultPackages
	}
	if b.Service == "" {
		b.Service = DefaultService
	}
	if b.Expected == "" {
		b.Expected = DefaultExpected
	}
	if b.WorkDir == "" {
		b.WorkDir = os.TempDir()
	}
	if b.Runner == nil {
		b.Runner = ExecRunner{}
	}
	if b.Fetcher == nil {
		b.Fetcher = NewHTTPFetcher()
	}
	if b.Services == nil {
		b.Services = &CommandServices{Runner: b.Runner}
	}
	if b.Out == nil {
		b.Out = os.Stdout
	}
}
