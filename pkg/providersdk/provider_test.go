package providersdk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string            `json:"name"`
	Port  int               `json:"port"`
	Tags  map[string]string `json:"tags"`
	Hosts []string          `json:"hosts"`
}

func TestDecodeEncode(t *testing.T) {
	props := map[string]any{
		"name":  "web",
		"port":  80,
		"tags":  map[string]any{"env": "dev"},
		"hosts": []any{"a", "b"},
	}

	var s sample
	require.NoError(t, Decode(props, &s))
	assert.Equal(t, "web", s.Name)
	assert.Equal(t, 80, s.Port)
	assert.Equal(t, "dev", s.Tags["env"])
	assert.Equal(t, []string{"a", "b"}, s.Hosts)

	out, err := Encode(s)
	require.NoError(t, err)
	assert.Equal(t, "web", out["name"])
	assert.Equal(t, float64(80), out["port"])
}

func TestDecode_TypeMismatch(t *testing.T) {
	var s sample
	err := Decode(map[string]any{"port": "eighty"}, &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestUnsupportedTypeError(t *testing.T) {
	err := &UnsupportedTypeError{Provider: "aws", Type: "aws:Foo.Bar"}
	assert.Equal(t, "provider aws does not support resource type aws:Foo.Bar", err.Error())
}
