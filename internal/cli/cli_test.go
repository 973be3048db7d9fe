package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/engine"
	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/vars"
)

// run executes the command line with stdin answering "no" to prompts.
func run(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetArgs(append(args, "--no-color"))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader("no\n"))
	if err := root.ExecuteContext(context.Background()); err != nil {
		reportError(&errOut, err)
		return 1, out.String(), errOut.String()
	}
	return 0, out.String(), errOut.String()
}

func writeProject(t *testing.T, main string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.yaml"), []byte(main), 0o644))
	return dir
}

const chainYAML = `
variables:
  env:
    type: string
    default: dev
resources:
  - type: null_resource
    name: network
    properties:
      triggers:
        env: "${var.env}"
  - type: null_resource
    name: app
    properties:
      triggers:
        network: ptr://null_resource/network/id
outputs:
  appId: ptr://null_resource/app/id
`

func TestParseVarFlags(t *testing.T) {
	got, err := parseVarFlags([]string{"region=eu-west-1", "tags={\"a\":1}", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"region": "eu-west-1", "tags": `{"a":1}`, "empty": ""}, got)

	for _, bad := range []string{"novalue", "=x"} {
		_, err := parseVarFlags([]string{bad})
		var verr *vars.ValidationError
		require.ErrorAs(t, err, &verr, bad)
		assert.Contains(t, verr.Error(), "expected name=value")
	}
}

func TestResolveProject(t *testing.T) {
	dir := writeProject(t, chainYAML)

	gotDir, entry, err := resolveProject([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, dir, gotDir)
	assert.Empty(t, entry)

	gotDir, entry, err = resolveProject([]string{filepath.Join(dir, "main.yaml")})
	require.NoError(t, err)
	assert.Equal(t, dir, gotDir)
	assert.Equal(t, "main.yaml", entry)

	_, _, err = resolveProject([]string{filepath.Join(dir, "missing")})
	assert.ErrorContains(t, err, "failed to stat path")
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{"vpc-1", `"vpc-1"`},
		{float64(3), "3"},
		{true, "true"},
		{[]any{"a", "b"}, `["a","b"]`},
		{map[string]any{"k": "v"}, `{"k":"v"}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatValue(tt.in))
	}
}

func TestColorize(t *testing.T) {
	assert.Equal(t, colorRed, (&session{color: true}).colorize(colorRed))
	assert.Equal(t, "", (&session{color: false}).colorize(colorRed))
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, confirm(strings.NewReader("yes\n"), &out, "Proceed?"))
	assert.True(t, confirm(strings.NewReader("y\n"), &out, "Proceed?"))
	assert.False(t, confirm(strings.NewReader("no\n"), &out, "Proceed?"))
	assert.False(t, confirm(strings.NewReader(""), &out, "Proceed?"))
	assert.Contains(t, out.String(), "Proceed? Enter 'yes' to continue:")
}

func TestReportError(t *testing.T) {
	var w bytes.Buffer
	reportError(&w, &engine.ApplyError{
		Errors: []*engine.ProviderCallError{
			{Address: "aws:EC2.Vpc.main", Operation: "create", Err: errors.New("VpcLimitExceeded")},
		},
		Succeeded: []string{"aws:IAM.Role.instance"},
		Failed:    []string{"aws:EC2.Vpc.main"},
		Skipped:   []string{"aws:EC2.Subnet.a", "aws:EC2.Subnet.b"},
		Untouched: []string{"aws:S3.Bucket.artifacts"},
	})
	assert.Equal(t, "aws:EC2.Vpc.main: create failed: VpcLimitExceeded\n"+
		"succeeded: aws:IAM.Role.instance\n"+
		"skipped: aws:EC2.Subnet.a\n"+
		"skipped: aws:EC2.Subnet.b\n"+
		"untouched: aws:S3.Bucket.artifacts\n", w.String())

	w.Reset()
	reportError(&w, errors.New("boom"))
	assert.Equal(t, "Error: boom\n", w.String())
}

func TestExecute_ExitCodes(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 0, Execute(context.Background(), []string{"version"}, &out, &errOut))
	assert.Contains(t, out.String(), "quicksetup version dev")

	assert.Equal(t, 1, Execute(context.Background(), []string{"no-such-command"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "Error:")
}

func TestInit(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "project")
	code, out, _ := run(t, "init", dir)
	require.Equal(t, 0, code)
	assert.FileExists(t, filepath.Join(dir, ".quicksetup.yaml"))
	assert.FileExists(t, filepath.Join(dir, "main.yaml"))
	assert.Contains(t, out, "Created ")

	code, out, _ = run(t, "init", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Kept existing")

	// The starter project is valid and applies with the null provider.
	code, out, stderr := run(t, "apply", "--auto-approve", dir)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, `helloId = "null-hello"`)
}

func TestValidate(t *testing.T) {
	dir := writeProject(t, chainYAML)
	code, out, _ := run(t, "validate", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Configuration is valid: 2 resource(s).")
}

func TestValidate_InplaceExample(t *testing.T) {
	dir := filepath.Join("..", "..", "examples", "inplace")

	code, _, stderr := run(t, "validate", dir)
	require.Equal(t, 1, code)
	assert.Contains(t, stderr, "amiId")

	code, out, stderr := run(t, "validate", "--var", "amiId=ami-0123456789abcdef0", dir)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "Configuration is valid: 20 resource(s).")

	code, out, _ = run(t, "graph", "--var", "amiId=ami-0123456789abcdef0", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, out, `"aws:CodeDeploy.DeploymentGroup.app" -> "aws:IAM.Role.codedeploy";`)
	assert.Contains(t, out, `"aws:AutoScaling.AutoScalingGroup.app" -> "aws:EC2.LaunchTemplate.app";`)
}

func TestValidate_CycleFailsBeforeProviders(t *testing.T) {
	dir := writeProject(t, `
resources:
  - type: aws:EC2.Vpc
    name: a
    dependsOn: [aws:EC2.Vpc.b]
  - type: aws:EC2.Vpc
    name: b
    dependsOn: [aws:EC2.Vpc.a]
`)
	code, _, stderr := run(t, "validate", dir)
	require.Equal(t, 1, code)
	assert.Contains(t, stderr, "dependency cycle detected")

	// plan must reject the cycle without configuring the aws provider.
	code, _, stderr = run(t, "plan", dir)
	require.Equal(t, 1, code)
	assert.Contains(t, stderr, "dependency cycle detected")
}

func TestValidate_UnknownReference(t *testing.T) {
	dir := writeProject(t, `
resources:
  - type: null_resource
    name: app
    properties:
      triggers:
        network: ptr://null_resource/ghost/id
`)
	code, _, stderr := run(t, "validate", dir)
	require.Equal(t, 1, code)
	assert.Contains(t, stderr, "null_resource.ghost")
}

func TestGraph(t *testing.T) {
	dir := writeProject(t, chainYAML)
	code, out, _ := run(t, "graph", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "digraph quicksetup {")
	assert.Contains(t, out, `"null_resource.app" -> "null_resource.network";`)
	assert.Less(t, strings.Index(out, `  "null_resource.network";`), strings.Index(out, `  "null_resource.app";`))
}

func TestLifecycle(t *testing.T) {
	dir := writeProject(t, chainYAML)

	code, out, _ := run(t, "plan", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "# null_resource.network will be created")
	assert.Contains(t, out, "# null_resource.app will be created")
	assert.Less(t, strings.Index(out, "null_resource.network will"), strings.Index(out, "null_resource.app will"))

	// Declining the prompt changes nothing.
	code, out, _ = run(t, "apply", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Apply cancelled.")
	assert.NoFileExists(t, filepath.Join(dir, ".quicksetup", "state.json"))

	code, out, stderr := run(t, "apply", "--auto-approve", "--var", "env=prod", dir)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "Apply complete! Resources: 2 added, 0 changed, 0 destroyed.")
	assert.Contains(t, out, `appId = "null-app"`)
	assert.FileExists(t, filepath.Join(dir, ".quicksetup", "state.json"))
	assert.NoFileExists(t, filepath.Join(dir, ".quicksetup", "state.json.lock"))

	code, out, _ = run(t, "plan", "--var", "env=prod", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "No changes. Infrastructure is up-to-date.")

	code, out, _ = run(t, "plan", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "# null_resource.network will be updated")
	assert.NotContains(t, out, "null_resource.app will be")

	code, out, _ = run(t, "output", "--dir", dir, "appId")
	require.Equal(t, 0, code)
	assert.Equal(t, "null-app\n", out)

	code, out, _ = run(t, "output", "--dir", dir, "--json")
	require.Equal(t, 0, code)
	assert.JSONEq(t, `{"appId": "null-app"}`, out)

	code, out, _ = run(t, "state", "list", "--dir", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "null_resource.network")
	assert.Contains(t, out, "Total: 2 resource(s)")

	code, out, _ = run(t, "state", "show", "--dir", dir, "null_resource.app")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "# null_resource.app")
	assert.Contains(t, out, `id = "null-app"`)

	code, out, _ = run(t, "refresh", "--dir", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Refresh complete. 0 drifted, 0 deleted.")

	code, out, stderr = run(t, "destroy", "--auto-approve", dir)
	require.Equal(t, 0, code, stderr)
	assert.Less(t, strings.Index(out, "null_resource.app will be deleted"), strings.Index(out, "null_resource.network will be deleted"))
	assert.Contains(t, out, "Destroy complete! Resources: 0 added, 0 changed, 2 destroyed.")

	code, out, _ = run(t, "state", "list", "--dir", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "No resources in state.")
}

func TestStateRm(t *testing.T) {
	dir := writeProject(t, chainYAML)
	code, _, stderr := run(t, "apply", "--auto-approve", dir)
	require.Equal(t, 0, code, stderr)

	code, out, _ := run(t, "state", "rm", "--dir", dir, "null_resource.app")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Removed null_resource.app from state")

	code, _, stderr = run(t, "state", "rm", "--dir", dir, "null_resource.app")
	require.Equal(t, 1, code)
	assert.Contains(t, stderr, "not found in state")

	// The forgotten resource is planned for creation again.
	code, out, _ = run(t, "plan", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "# null_resource.app will be created")
}

func TestPlanOutAndShow(t *testing.T) {
	dir := writeProject(t, chainYAML)
	planFile := filepath.Join(t.TempDir(), "plan.json")

	code, out, _ := run(t, "plan", "--out", planFile, dir)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Plan written to "+planFile)

	code, out, _ = run(t, "show", "--dir", dir, planFile)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "# null_resource.app will be created")
}

func TestDestroy_WithoutDeclarations(t *testing.T) {
	dir := t.TempDir()
	code, out, _ := run(t, "destroy", "--auto-approve", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "No resources to destroy.")
}

func TestPlan_BadVarFlag(t *testing.T) {
	dir := writeProject(t, chainYAML)
	code, _, stderr := run(t, "plan", "--var", "oops", dir)
	require.Equal(t, 1, code)
	assert.Contains(t, stderr, "expected name=value")
}
