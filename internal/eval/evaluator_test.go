package eval

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stackYAML = `
variables:
  region:
    type: string
    default: us-east-1
  min_size:
    type: number
resources:
  - type: aws:EC2.Vpc
    name: main
    properties:
      cidrBlock: 10.0.0.0/16
      tags:
        Name: quicksetup
  - type: aws:EC2.Subnet
    name: public
    count: 2
    properties:
      vpcId: ptr://aws:EC2.Vpc/main/id
  - name: hook
    dependsOn: [aws:EC2.Vpc.main]
outputs:
  vpcId: ptr://aws:EC2.Vpc/main/id
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEvaluator_LoadYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.yaml", stackYAML)

	cfg, err := NewEvaluator(dir).LoadConfig(context.Background(), "", nil)
	require.NoError(t, err)

	require.Len(t, cfg.Resources, 3)
	assert.Equal(t, "aws", cfg.Resources[0].Provider)
	assert.Equal(t, "10.0.0.0/16", cfg.Resources[0].Properties["cidrBlock"])
	assert.Equal(t, map[string]any{"Name": "quicksetup"}, cfg.Resources[0].Properties["tags"])
	require.NotNil(t, cfg.Resources[1].Count)
	assert.Equal(t, 2, *cfg.Resources[1].Count)
	assert.Nil(t, cfg.Resources[0].Count)
	assert.Equal(t, "null_resource", cfg.Resources[2].Type)
	assert.Equal(t, "null", cfg.Resources[2].Provider)
	assert.Equal(t, []string{"aws:EC2.Vpc.main"}, cfg.Resources[2].DependsOn)

	require.Contains(t, cfg.Variables, "region")
	assert.Equal(t, "us-east-1", cfg.Variables["region"].Default)
	assert.Nil(t, cfg.Variables["min_size"].Default)
	assert.Equal(t, "ptr://aws:EC2.Vpc/main/id", cfg.Outputs["vpcId"])
}

func TestEvaluator_LoadJSONFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "stack.json", `{"resources": [{"type": "aws:S3.Bucket", "name": "artifacts", "properties": {"versioning": true}}]}`)

	cfg, err := NewEvaluator(dir).LoadConfig(context.Background(), path, nil)
	require.NoError(t, err)
	require.Len(t, cfg.Resources, 1)
	assert.Equal(t, true, cfg.Resources[0].Properties["versioning"])
}

func TestEvaluator_RelativePath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "stack"), 0o755))
	writeFile(t, filepath.Join(dir, "stack"), "main.yml", "resources:\n  - name: a\n")

	cfg, err := NewEvaluator(dir).LoadConfig(context.Background(), "stack", nil)
	require.NoError(t, err)
	assert.Equal(t, "null_resource.a", cfg.Resources[0].Address())
}

func TestEvaluator_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"unknown field", "main.yaml", "resources:\n  - name: a\n    propertis: {}\n", "propertis"},
		{"missing name", "main.yaml", "resources:\n  - type: aws:EC2.Vpc\n", "has no name"},
		{"count and forEach", "main.yaml", "resources:\n  - name: a\n    count: 2\n    forEach: {x: 1}\n", "mutually exclusive"},
		{"unsupported extension", "main.toml", "", "unsupported declaration file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeFile(t, dir, tt.file, tt.content)
			_, err := NewEvaluator(dir).LoadConfig(context.Background(), path, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEvaluator_NoEntryPoint(t *testing.T) {
	_, err := NewEvaluator(t.TempDir()).LoadConfig(context.Background(), "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no entry point")
}

func TestProviderFor(t *testing.T) {
	assert.Equal(t, "aws", ProviderFor("aws:CodeDeploy.DeploymentGroup"))
	assert.Equal(t, "null", ProviderFor("null_resource"))
	assert.Equal(t, "null", ProviderFor(""))
}

func TestEvaluator_LoadPkl(t *testing.T) {
	if _, err := exec.LookPath("pkl"); err != nil {
		t.Skip("pkl binary not available")
	}
	dir := t.TempDir()
	writeFile(t, dir, "main.pkl", `
resources = new Listing {
  new {
    type = "null_resource"
    name = "hook"
    provider = "null"
    properties = new Mapping { ["trigger"] = "v1" }
  }
}
`)
	cfg, err := NewEvaluator(dir).LoadConfig(context.Background(), "", nil)
	require.NoError(t, err)
	require.Len(t, cfg.Resources, 1)
	assert.Equal(t, "null_resource.hook", cfg.Resources[0].Address())
}
