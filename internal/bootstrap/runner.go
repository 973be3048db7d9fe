package bootstrap

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/logging"
)

// Runner runs a host command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	logging.Debug("running command", "cmd", name, "args", strings.Join(args, " "))
	err := cmd.Run()
	return strings.TrimSpace(out.String()), err
}
