package vars

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func declared() map[string]*ir.Variable {
	return map[string]*ir.Variable{
		"region":       {Type: TypeString, Default: "us-east-1"},
		"min_size":     {Type: TypeNumber, Default: 1},
		"public":       {Type: TypeBool, Default: true},
		"subnet_cidrs": {Type: TypeList, Default: []any{"10.0.1.0/24"}},
		"tags":         {Type: TypeMap, Default: map[string]any{"app": "demo"}},
	}
}

func TestResolve_Defaults(t *testing.T) {
	got, err := Resolve(declared(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", got["region"])
	assert.Equal(t, float64(1), got["min_size"])
	assert.Equal(t, true, got["public"])
	assert.Equal(t, []any{"10.0.1.0/24"}, got["subnet_cidrs"])
}

func TestResolve_Precedence(t *testing.T) {
	file := map[string]any{"region": "eu-west-1", "min_size": 2}
	flags := map[string]string{"min_size": "3", "subnet_cidrs": "[10.0.1.0/24, 10.0.2.0/24]"}

	got, err := Resolve(declared(), file, flags)
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", got["region"])
	assert.Equal(t, float64(3), got["min_size"])
	assert.Equal(t, []any{"10.0.1.0/24", "10.0.2.0/24"}, got["subnet_cidrs"])
}

func TestResolve_TypeMismatch(t *testing.T) {
	tests := []struct {
		name  string
		file  map[string]any
		flags map[string]string
		want  string
	}{
		{"flag not a number", nil, map[string]string{"min_size": "two"}, "variable min_size"},
		{"flag not a bool", nil, map[string]string{"public": "maybe"}, "variable public"},
		{"file wrong type", map[string]any{"region": 42}, nil, "expected string"},
		{"file list for map", map[string]any{"tags": []any{"x"}}, nil, "expected map"},
		{"undeclared", map[string]any{"zone": "a"}, nil, "variable zone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(declared(), tt.file, tt.flags)
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestResolve_MissingValue(t *testing.T) {
	decls := map[string]*ir.Variable{"ami": {Type: TypeString, Description: "AMI for instances"}}
	_, err := Resolve(decls, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no value given")
}

func TestResolve_UnknownType(t *testing.T) {
	decls := map[string]*ir.Variable{"x": {Type: "tuple", Default: "a"}}
	_, err := Resolve(decls, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vars.yaml")
	require.NoError(t, os.WriteFile(path, []byte("region: ap-south-1\nmin_size: 2\n"), 0o644))

	values, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ap-south-1", values["region"])
	assert.Equal(t, 2, values["min_size"])
}
