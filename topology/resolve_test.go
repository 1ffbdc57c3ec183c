package topology

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apphost/types"
)

type fakeResolver struct {
	ready     map[string]bool
	endpoints map[string]types.Allocation
	params    map[string]string
	reads     []string
}

func (f *fakeResolver) Provisioned(resource string) bool { return f.ready[resource] }

func (f *fakeResolver) Endpoint(resource, endpoint string) (types.Allocation, error) {
	f.reads = append(f.reads, resource+"/"+endpoint)
	a, ok := f.endpoints[resource+"/"+endpoint]
	if !ok {
		return types.Allocation{}, fmt.Errorf("no endpoint %s/%s", resource, endpoint)
	}
	return a, nil
}

func (f *fakeResolver) Parameter(resource, name string) (string, error) {
	v, ok := f.params[resource+"/"+name]
	if !ok {
		return "", fmt.Errorf("no parameter %s/%s", resource, name)
	}
	return v, nil
}

func TestResolveEnvironment(t *testing.T) {
	g, err := Evaluate("sample", sampleDescriptor)
	require.NoError(t, err)

	r := &fakeResolver{
		ready:     map[string]bool{"postgres": true},
		endpoints: map[string]types.Allocation{"postgres/tcp": {Host: "postgres", Port: 5432, PublishedHost: "127.0.0.1", PublishedPort: 49153}},
		params:    map[string]string{"postgres/password": "s3cret"},
	}
	env, err := ResolveEnvironment(g, "app", r)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"MODE":        "prod",
		"DB_HOST":     "postgres",
		"DB_PORT":     "5432",
		"DB_PASSWORD": "s3cret",
	}, env)
}

func TestResolveEnvironmentWaitsForProvisioning(t *testing.T) {
	g, err := Evaluate("sample", sampleDescriptor)
	require.NoError(t, err)

	r := &fakeResolver{
		ready:     map[string]bool{},
		endpoints: map[string]types.Allocation{"postgres/tcp": {Host: "postgres", Port: 5432}},
	}
	_, err = ResolveEnvironment(g, "app", r)
	require.Error(t, err)

	var notReady NotProvisionedError
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, "postgres", notReady.Resource)
	assert.Empty(t, r.reads, "endpoint must not be read before the resource is provisioned")
}

func TestResolveEndpointURL(t *testing.T) {
	g, err := Evaluate("urls", func(b *Builder) {
		api := b.DeclareContainer("api", "img", "")
		b.AddHTTPEndpoint(api, 8080, 80, "http")
		web := b.DeclareContainer("web", "img", "")
		b.SetEnvironment(web, "API_URL", api.Endpoint("http").Property(types.EndpointURL))
	})
	require.NoError(t, err)

	r := &fakeResolver{
		ready:     map[string]bool{"api": true},
		endpoints: map[string]types.Allocation{"api/http": {Host: "api", Port: 80}},
	}
	env, err := ResolveEnvironment(g, "web", r)
	require.NoError(t, err)
	assert.Equal(t, "http://api:80", env["API_URL"])

	_, err = ResolveEnvironment(g, "nope", r)
	assert.ErrorAs(t, err, &UndeclaredResourceError{})
}
