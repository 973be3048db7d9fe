package eval

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/apple/pkl-go/pkl"
	"gopkg.in/yaml.v3"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/ir"
)

// EntryPoints are tried in order when a directory is given.
var EntryPoints = []string{"main.pkl", "main.yaml", "main.yml", "main.json"}

// Evaluator loads declaration sets from PKL or YAML/JSON files.
type Evaluator struct {
	projectDir string
}

func NewEvaluator(projectDir string) *Evaluator {
	return &Evaluator{
		projectDir: projectDir,
	}
}

// ResolveEntryPoint turns a file or directory argument into the declaration
// file to load. An empty path means the project directory.
func (e *Evaluator) ResolveEntryPoint(path string) (string, error) {
	if path == "" {
		path = e.projectDir
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.projectDir, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("declaration path: %w", err)
	}
	if !info.IsDir() {
		return path, nil
	}
	for _, name := range EntryPoints {
		candidate := filepath.Join(path, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no entry point in %s (looked for %s)", path, strings.Join(EntryPoints, ", "))
}

// LoadConfig evaluates the configuration file at entryPoint and returns the IR.
// properties are passed to PKL as external properties and ignored for YAML.
func (e *Evaluator) LoadConfig(ctx context.Context, entryPoint string, properties map[string]string) (*ir.Config, error) {
	path, err := e.ResolveEntryPoint(entryPoint)
	if err != nil {
		return nil, err
	}

	var cfg *ir.Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pkl":
		cfg, err = e.loadPkl(ctx, path, properties)
	case ".yaml", ".yml", ".json":
		cfg, err = loadYAML(path)
	default:
		return nil, fmt.Errorf("unsupported declaration file %s", path)
	}
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	if err := check(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (e *Evaluator) loadPkl(ctx context.Context, path string, properties map[string]string) (*ir.Config, error) {
	u, err := url.Parse("file://" + e.projectDir + "/")
	if err != nil {
		return nil, fmt.Errorf("failed to parse project directory URL: %w", err)
	}

	opts := []func(*pkl.EvaluatorOptions){pkl.PreconfiguredOptions}
	if len(properties) > 0 {
		opts = append(opts, func(o *pkl.EvaluatorOptions) {
			if o.Properties == nil {
				o.Properties = make(map[string]string)
			}
			for k, v := range properties {
				o.Properties[k] = v
			}
		})
	}

	var evaluator pkl.Evaluator
	if _, statErr := os.Stat(filepath.Join(e.projectDir, "PklProject")); statErr == nil {
		evaluator, err = pkl.NewProjectEvaluator(ctx, u, opts...)
	} else {
		evaluator, err = pkl.NewEvaluator(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create PKL evaluator: %w", err)
	}
	defer evaluator.Close()

	var cfg ir.Config
	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(path), &cfg); err != nil {
		return nil, fmt.Errorf("failed to evaluate config: %w", err)
	}
	return &cfg, nil
}

func loadYAML(path string) (*ir.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var cfg ir.Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

// applyDefaults fills in the provider from the type prefix ("aws:EC2.Vpc"
// belongs to aws) and the type of untyped declarations.
func applyDefaults(cfg *ir.Config) {
	for _, res := range cfg.Resources {
		if res == nil {
			continue
		}
		if res.Type == "" {
			res.Type = ir.DefaultType
		}
		if res.Provider == "" {
			res.Provider = ProviderFor(res.Type)
		}
	}
}

// ProviderFor returns the provider owning a resource type.
func ProviderFor(typ string) string {
	if i := strings.Index(typ, ":"); i > 0 {
		return typ[:i]
	}
	return "null"
}

func check(cfg *ir.Config) error {
	var errs []error
	for i, res := range cfg.Resources {
		if res == nil {
			errs = append(errs, fmt.Errorf("resource %d is empty", i))
			continue
		}
		if res.Name == "" {
			errs = append(errs, fmt.Errorf("resource %d (%s) has no name", i, res.Type))
		}
		if res.Count != nil && len(res.ForEach) > 0 {
			errs = append(errs, fmt.Errorf("%s: count and forEach are mutually exclusive", res.Address()))
		}
		if res.Count != nil && *res.Count < 0 {
			errs = append(errs, fmt.Errorf("%s: count must not be negative", res.Address()))
		}
	}
	return errors.Join(errs...)
}
