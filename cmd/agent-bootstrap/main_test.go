package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/bootstrap"
)

func TestNewCommand_Defaults(t *testing.T) {
	cmd := newCommand(&bytes.Buffer{})
	flags := cmd.Flags()

	for name, want := range map[string]string{
		"region":          bootstrap.DefaultRegion,
		"service":         bootstrap.DefaultService,
		"expected-status": bootstrap.DefaultExpected,
		"service-manager": "service",
	} {
		f := flags.Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, want, f.DefValue, name)
	}
}

func TestNewCommand_UnknownServiceManager(t *testing.T) {
	cmd := newCommand(&bytes.Buffer{})
	cmd.SetArgs([]string{"--service-manager", "upstart"})
	err := cmd.ExecuteContext(context.Background())
	assert.ErrorContains(t, err, `unknown service manager "upstart"`)
}

func TestNewCommand_RejectsArguments(t *testing.T) {
	cmd := newCommand(&bytes.Buffer{})
	cmd.SetArgs([]string{"extra"})
	assert.Error(t, cmd.ExecuteContext(context.Background()))
}
