package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/config"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/engine"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/eval"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/ir"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/logging"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/provider"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/state"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/vars"
	"github.com/Rammina/codepipeline-inplace-quicksetup/pkg/providersdk"
)

// session holds everything a command needs for one project directory.
type session struct {
	dir      string
	entry    string
	settings *config.Settings
	registry *provider.Registry
	backend  state.Backend
	engine   *engine.Engine
	out      io.Writer
	color    bool

	cfg    *ir.Config
	values map[string]any
}

// openSession resolves the project from the optional path argument, loads
// settings and prepares the state backend. Declarations are loaded lazily
// with loadConfig.
func (o *globalOptions) openSession(cmd *cobra.Command, args []string) (*session, error) {
	dir, entry, err := resolveProject(args)
	if err != nil {
		return nil, err
	}

	settings, err := config.Load(dir, cmd.Flags())
	if err != nil {
		return nil, err
	}
	logging.Init(settings.LogLevel)
	if settings.ConfigFile != "" {
		logging.Debug("loaded settings", "file", settings.ConfigFile)
	}

	ctx := cmd.Context()
	backend, err := state.NewBackend(ctx, &settings.Backend, dir)
	if err != nil {
		return nil, err
	}

	registry := provider.NewRegistry(providersdk.Config{
		Region:  settings.Region,
		Profile: settings.Profile,
	})
	eng := engine.NewEngine(registry)
	eng.Parallelism = settings.Parallelism
	eng.ContinueOnError = settings.ContinueOnError

	return &session{
		dir:      dir,
		entry:    entry,
		settings: settings,
		registry: registry,
		backend:  backend,
		engine:   eng,
		out:      cmd.OutOrStdout(),
		color:    !o.noColor,
	}, nil
}

// resolveProject splits a file or directory argument into the project
// directory and the entry point inside it.
func resolveProject(args []string) (dir, entry string, err error) {
	if len(args) == 0 {
		dir, err = os.Getwd()
		if err != nil {
			return "", "", fmt.Errorf("failed to get working directory: %w", err)
		}
		return dir, "", nil
	}

	absPath, err := filepath.Abs(args[0])
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve path %s: %w", args[0], err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to stat path %s: %w", args[0], err)
	}
	if info.IsDir() {
		return absPath, "", nil
	}
	return filepath.Dir(absPath), filepath.Base(absPath), nil
}

// loadConfig evaluates the declaration set and resolves its variables.
func (s *session) loadConfig(ctx context.Context, o *globalOptions) error {
	flagValues, err := parseVarFlags(o.vars)
	if err != nil {
		return err
	}
	fileValues := map[string]any{}
	for _, path := range o.varFiles {
		values, err := vars.LoadFile(path)
		if err != nil {
			return err
		}
		maps.Copy(fileValues, values)
	}

	cfg, err := eval.NewEvaluator(s.dir).LoadConfig(ctx, s.entry, flagValues)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	values, err := vars.Resolve(cfg.Variables, fileValues, flagValues)
	if err != nil {
		return err
	}
	s.cfg = cfg
	s.values = values
	return nil
}

// readState reads state and, unless refresh is disabled, reconciles it with
// the providers.
func (s *session) readState(ctx context.Context) (*ir.State, error) {
	current, err := s.backend.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	if err := s.loadStateProviders(ctx, current); err != nil {
		return nil, err
	}
	if !s.settings.Refresh || len(current.Resources) == 0 {
		return current, nil
	}

	fmt.Fprintf(s.out, "Refreshing %d resource(s)...\n", len(current.Resources))
	refreshed, err := s.engine.Refresh(ctx, current)
	if err != nil {
		return nil, err
	}
	return refreshed, nil
}

// writeState persists state, reporting failures without hiding err.
func (s *session) writeState(ctx context.Context, st *ir.State) error {
	if err := s.backend.Write(context.WithoutCancel(ctx), st); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	return nil
}

func parseVarFlags(raw []string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, &vars.ValidationError{Subject: "--var " + kv, Reason: "expected name=value"}
		}
		out[name] = value
	}
	return out, nil
}
