package topology

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apphost/types"
)

func TestLoadHCLFileMatchesBuilder(t *testing.T) {
	fromFile, err := LoadHCLFile("testdata/sample.hcl")
	require.NoError(t, err)

	fromCode, err := Evaluate("sample", sampleDescriptor)
	require.NoError(t, err)

	if diff := cmp.Diff(fromCode, fromFile); diff != "" {
		t.Fatalf("HCL graph differs from builder graph (-code +hcl):\n%s", diff)
	}
}

func TestParseHCLLiteralConversion(t *testing.T) {
	src := []byte(`
container "app" {
  image = "img"
  env = {
    PUID         = 1000
    ALLOW_SIGNUP = false
    "TZ"         = "Australia/Brisbane"
  }
}
`)
	name, d, err := ParseHCL(src, "inline.hcl")
	require.NoError(t, err)
	assert.Equal(t, "apphost", name)

	g, err := Evaluate(name, d)
	require.NoError(t, err)
	app, ok := g.Container("app")
	require.True(t, ok)
	assert.Equal(t, []types.EnvVar{
		{Name: "PUID", Value: types.Literal("1000")},
		{Name: "ALLOW_SIGNUP", Value: types.Literal("false")},
		{Name: "TZ", Value: types.Literal("Australia/Brisbane")},
	}, app.Env)
}

func TestParseHCLKeywordLiterals(t *testing.T) {
	src := []byte(`
container "app" {
  image = "img"
  env = {
    ENABLED  = true
    DISABLED = false
  }
}
`)
	name, d, err := ParseHCL(src, "inline.hcl")
	require.NoError(t, err)
	g, err := Evaluate(name, d)
	require.NoError(t, err)
	app, _ := g.Container("app")
	assert.Equal(t, []types.EnvVar{
		{Name: "ENABLED", Value: types.Literal("true")},
		{Name: "DISABLED", Value: types.Literal("false")},
	}, app.Env)
}

func TestParseHCLForwardReferences(t *testing.T) {
	src := []byte(`
container "web" {
  image    = "web"
  wait_for = ["api"]
  env      = { API_URL = api.endpoint.http.url }
}

container "api" {
  image = "api"

  http_endpoint "http" {
    port        = 8081
    target_port = 8080
  }
}
`)
	name, d, err := ParseHCL(src, "forward.hcl")
	require.NoError(t, err)
	g, err := Evaluate(name, d)
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "web"}, g.TopoOrder)
	web, _ := g.Container("web")
	assert.Equal(t, []string{"api"}, web.WaitFor)
}

func TestParseHCLErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `container "app" {`},
		{"missing image", `container "app" {}`},
		{"unknown block", `queue "jobs" {}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseHCL([]byte(tt.src), "bad.hcl")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDescriptor)
		})
	}
}

func TestParseHCLReferenceErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"undeclared wait_for", `
container "app" {
  image    = "img"
  wait_for = ["db"]
}`},
		{"undeclared endpoint resource", `
container "app" {
  image = "img"
  env   = { HOST = ghost.endpoint.tcp.host }
}`},
		{"unsupported reference", `
postgres "pg" {}
container "app" {
  image = "img"
  env   = { HOST = pg.hostname }
}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, d, err := ParseHCL([]byte(tt.src), "refs.hcl")
			require.NoError(t, err)
			_, err = Evaluate(name, d)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDescriptor)
		})
	}
}
