package state

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/ir"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ReadWrite(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "")
	statePath := filepath.Join(t.TempDir(), ".quicksetup", "state.json")
	mgr := NewManager(statePath)
	ctx := context.Background()

	s, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, Version, s.Version)
	assert.Equal(t, 0, s.Serial)
	assert.Empty(t, s.Lineage)

	s.Serial = 3
	s.Resources = []*ir.ResourceState{
		{
			Type:         "aws:S3.Bucket",
			Name:         "artifacts",
			Provider:     "aws",
			Inputs:       map[string]any{"versioning": true},
			InputsHash:   "hash123",
			Outputs:      map[string]any{"id": "artifacts-bucket"},
			Dependencies: []string{"aws:IAM.Role.service"},
		},
	}
	require.NoError(t, mgr.Write(ctx, s))
	_, err = uuid.Parse(s.Lineage)
	require.NoError(t, err, "lineage is assigned on first write")

	content, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"type": "aws:S3.Bucket"`)
	assert.NoFileExists(t, statePath+".tmp")

	back, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.Lineage, back.Lineage)
	assert.Equal(t, 3, back.Serial)
	require.Len(t, back.Resources, 1)
	assert.Equal(t, "artifacts-bucket", back.Resources[0].Outputs["id"])
	assert.Equal(t, []string{"aws:IAM.Role.service"}, back.Resources[0].Dependencies)

	lineage := back.Lineage
	require.NoError(t, mgr.Write(ctx, back))
	again, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, lineage, again.Lineage, "lineage is stable across writes")
}

func TestManager_EncryptedRoundTrip(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "secret")
	mgr := NewManager(filepath.Join(t.TempDir(), "state.json"))
	ctx := context.Background()

	require.NoError(t, mgr.Write(ctx, &ir.State{Serial: 1}))
	raw, err := os.ReadFile(mgr.Path())
	require.NoError(t, err)
	assert.True(t, IsEncrypted(raw))

	s, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Serial)
}

func TestDecode_RejectsNewerVersion(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "")
	_, err := Decode([]byte(`{"version": 99}`))
	assert.ErrorContains(t, err, "newer than supported")

	_, err = Decode([]byte(`not json`))
	assert.ErrorContains(t, err, "failed to parse state")
}

func TestManager_Lock(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "state.json"))
	ctx := context.Background()

	require.NoError(t, mgr.Lock(ctx))
	err := mgr.Lock(ctx)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, mgr.Unlock(ctx))
	require.NoError(t, mgr.Unlock(ctx), "unlock is idempotent")
	require.NoError(t, mgr.Lock(ctx))
	require.NoError(t, mgr.Unlock(ctx))
}

func TestManager_LockHeldByLiveProcessIsNotBroken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	first, second := NewManager(path), NewManager(path)
	ctx := context.Background()

	require.NoError(t, first.Lock(ctx))
	old := time.Now().Add(-2 * StaleLockAge)
	require.NoError(t, os.Chtimes(first.lockPath(), old, old))

	assert.ErrorIs(t, second.Lock(ctx), ErrLocked)
	require.NoError(t, first.Unlock(ctx))
	require.NoError(t, second.Lock(ctx))
	require.NoError(t, second.Unlock(ctx))
}

func TestManager_LockOfExitedProcessIsBroken(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "state.json"))
	host, err := os.Hostname()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(mgr.lockPath()), 0o755))
	content := fmt.Sprintf("pid=%d\nhost=%s\ntime=2020-01-01T00:00:00Z\n", math.MaxInt32, host)
	require.NoError(t, os.WriteFile(mgr.lockPath(), []byte(content), 0o644))

	require.NoError(t, mgr.Lock(context.Background()))
	raw, err := os.ReadFile(mgr.lockPath())
	require.NoError(t, err)
	assert.Contains(t, string(raw), fmt.Sprintf("pid=%d\n", os.Getpid()))
}

func TestManager_ForeignLockExpiresByAge(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "state.json"))
	ctx := context.Background()
	require.NoError(t, os.MkdirAll(filepath.Dir(mgr.lockPath()), 0o755))
	require.NoError(t, os.WriteFile(mgr.lockPath(), []byte("pid=1\nhost=some-other-host\n"), 0o644))

	assert.ErrorIs(t, mgr.Lock(ctx), ErrLocked)

	old := time.Now().Add(-StaleLockAge - time.Minute)
	require.NoError(t, os.Chtimes(mgr.lockPath(), old, old))
	require.NoError(t, mgr.Lock(ctx))
}

func TestWithLock(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "state.json"))
	ctx := context.Background()

	ran := false
	err := WithLock(ctx, mgr, func() error {
		ran = true
		assert.FileExists(t, mgr.lockPath())
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.NoFileExists(t, mgr.lockPath())
}

func TestRemove(t *testing.T) {
	s := &ir.State{Resources: []*ir.ResourceState{
		{Type: "null_resource", Name: "a"},
		{Type: "null_resource", Name: "b"},
	}}
	assert.True(t, Remove(s, "null_resource.a"))
	assert.False(t, Remove(s, "null_resource.a"))
	require.Len(t, s.Resources, 1)
	assert.Equal(t, 1, s.Serial)
}

func TestNewBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := NewBackend(ctx, nil, dir)
	assert.ErrorContains(t, err, "nil")

	_, err = NewBackend(ctx, &BackendConfig{Type: "redis"}, dir)
	assert.ErrorContains(t, err, "unknown backend type")

	b, err := NewBackend(ctx, &BackendConfig{}, dir)
	require.NoError(t, err)
	mgr, ok := b.(*Manager)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, DefaultPath), mgr.Path())

	b, err = NewBackend(ctx, &BackendConfig{Type: "local", Path: "/tmp/elsewhere.json"}, dir)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/elsewhere.json", b.(*Manager).Path())
}
