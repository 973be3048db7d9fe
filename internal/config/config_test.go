package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/state"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("region", "", "")
	fs.String("profile", "", "")
	fs.Int("parallelism", 1, "")
	fs.Bool("continue-on-error", false, "")
	fs.String("log-level", "info", "")
	fs.Bool("no-refresh", false, "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(t.TempDir(), nil)
	require.NoError(t, err)

	assert.Equal(t, "us-east-1", s.Region)
	assert.Equal(t, 1, s.Parallelism)
	assert.True(t, s.Refresh)
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, "local", s.Backend.Type)
	assert.Equal(t, state.DefaultPath, s.Backend.Path)
	assert.Equal(t, "us-east-1", s.Backend.Region, "backend inherits the region")
	assert.Empty(t, s.ConfigFile)
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	content := `
region: eu-west-1
parallelism: 4
backend:
  type: s3
  bucket: team-state
  dynamodb_table: locks
  encrypt: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".quicksetup.yaml"), []byte(content), 0o644))
	t.Setenv("QUICKSETUP_PROFILE", "ops")
	t.Setenv("QUICKSETUP_BACKEND_KEY", "apps/web.json")

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--parallelism=8", "--no-refresh"}))

	s, err := Load(dir, fs)
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", s.Region)
	assert.Equal(t, "ops", s.Profile)
	assert.Equal(t, 8, s.Parallelism)
	assert.False(t, s.Refresh)
	assert.Equal(t, "s3", s.Backend.Type)
	assert.Equal(t, "team-state", s.Backend.Bucket)
	assert.Equal(t, "apps/web.json", s.Backend.Key)
	assert.Equal(t, "locks", s.Backend.DynamoDBTable)
	assert.True(t, s.Backend.Encrypt)
	assert.Equal(t, "eu-west-1", s.Backend.Region)
	assert.Equal(t, "ops", s.Backend.Profile)
	assert.Equal(t, filepath.Join(dir, ".quicksetup.yaml"), s.ConfigFile)
}

func TestLoad_UnsetFlagsDoNotOverrideFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".quicksetup.yaml"), []byte("region: ap-south-1\n"), 0o644))

	fs := testFlags()
	require.NoError(t, fs.Parse(nil))
	s, err := Load(dir, fs)
	require.NoError(t, err)
	assert.Equal(t, "ap-south-1", s.Region)
	assert.True(t, s.Refresh)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"parallelism", "parallelism: 0\n", "parallelism must be at least 1"},
		{"s3 without bucket", "backend:\n  type: s3\n", "backend.bucket is required"},
		{"unknown backend", "backend:\n  type: gcs\n", "unknown backend type"},
		{"malformed", "region: [\n", "failed to read settings"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, ".quicksetup.yaml"), []byte(tt.content), 0o644))
			_, err := Load(dir, nil)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
