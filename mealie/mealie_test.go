package mealie

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apphost/topology"
	"apphost/types"
)

func sortedKeys() []string {
	keys := append([]string(nil), EnvKeys...)
	sort.Strings(keys)
	return keys
}

func TestProfilesDependOnDatabase(t *testing.T) {
	for _, p := range []Profile{PlainContainer, CloudManaged} {
		t.Run(p.Name, func(t *testing.T) {
			g, err := Build(p, DefaultOptions())
			require.NoError(t, err)

			app, ok := g.Container(AppName)
			require.True(t, ok)
			assert.Contains(t, app.WaitFor, DatabaseName)
			assert.Contains(t, g.DependenciesOf(AppName), DatabaseName)
			assert.Contains(t, g.Edges, topology.Edge{From: AppName, To: DatabaseName, Kind: topology.EdgeWaitFor})

			order := g.TopoOrder
			assert.Less(t, indexOf(order, ServerName), indexOf(order, DatabaseName))
			assert.Less(t, indexOf(order, DatabaseName), indexOf(order, AppName))
		})
	}
}

func TestProfilesEnvironmentKeys(t *testing.T) {
	for _, p := range []Profile{PlainContainer, CloudManaged} {
		t.Run(p.Name, func(t *testing.T) {
			g, err := Build(p, DefaultOptions())
			require.NoError(t, err)
			app, _ := g.Container(AppName)

			keys := app.EnvKeys()
			assert.Equal(t, sortedKeys(), keys)
			assert.Len(t, app.Env, len(EnvKeys), "no duplicate keys")
		})
	}
}

func TestPlainContainerProfile(t *testing.T) {
	g, err := Build(PlainContainer, DefaultOptions())
	require.NoError(t, err)

	app, ok := g.Container(AppName)
	require.True(t, ok)
	assert.Equal(t, "ghcr.io/mealie-recipes/mealie:v3.9.2", app.ImageRef())
	assert.Equal(t, []types.Endpoint{{Name: "http", Scheme: "http", Port: 9925, TargetPort: 9000}}, app.Endpoints)
	assert.Equal(t, []types.VolumeMount{{Name: "mealie-data", Target: "/app/data"}}, app.Volumes)
	assert.Empty(t, app.References)
	assert.Empty(t, g.Environments)

	server, ok := g.Server(ServerName)
	require.True(t, ok)
	assert.Equal(t, "postgres:17", server.ImageRef())
	assert.Equal(t, types.LifetimePersistent, server.Lifetime)
	assert.Equal(t, types.AuthPassword, server.Auth)
	assert.Nil(t, server.DataVolume)
}

func TestCloudManagedProfile(t *testing.T) {
	g, err := Build(CloudManaged, DefaultOptions())
	require.NoError(t, err)

	app, ok := g.Container(AppName)
	require.True(t, ok)
	assert.Equal(t, []types.Endpoint{{Name: "http", Scheme: "http", Port: 80, TargetPort: 9000}}, app.Endpoints)
	assert.Equal(t, []string{DatabaseName}, app.References)
	assert.Equal(t, []types.ComputeEnvironment{{Name: EnvironmentName}}, g.Environments)

	plain, err := Build(PlainContainer, DefaultOptions())
	require.NoError(t, err)
	plainApp, _ := plain.Container(AppName)
	assert.Equal(t, plainApp.EnvKeys(), app.EnvKeys())
	assert.Equal(t, plainApp.Env, app.Env)

	server, ok := g.Server(ServerName)
	require.True(t, ok)
	assert.Equal(t, types.BackendManaged, server.Backend)
	require.NotNil(t, server.DataVolume)
	assert.Equal(t, types.PostgresDataPath, server.DataVolume.Target)
}

func TestEnvironmentValues(t *testing.T) {
	g, err := Build(PlainContainer, Options{AllowSignup: true, PUID: 1001, PGID: 1002, TimeZone: "UTC"})
	require.NoError(t, err)
	app, _ := g.Container(AppName)

	values := make(map[string]types.Value, len(app.Env))
	for _, e := range app.Env {
		values[e.Name] = e.Value
	}
	assert.Equal(t, types.Literal("true"), values["ALLOW_SIGNUP"])
	assert.Equal(t, types.Literal("1001"), values["PUID"])
	assert.Equal(t, types.Literal("1002"), values["PGID"])
	assert.Equal(t, types.Literal("UTC"), values["TZ"])
	assert.Equal(t, types.Literal("postgres"), values["DB_ENGINE"])
	assert.Equal(t, types.Literal(DatabaseName), values["POSTGRES_DB"])
	assert.Equal(t, types.ParameterValue(ServerName, types.ParamUserName), values["POSTGRES_USER"])
	assert.Equal(t, types.ParameterValue(ServerName, types.ParamPassword), values["POSTGRES_PASSWORD"])
	assert.Equal(t, types.EndpointValue(ServerName, "tcp", types.EndpointHost), values["POSTGRES_SERVER"])
	assert.Equal(t, types.EndpointValue(ServerName, "tcp", types.EndpointPort), values["POSTGRES_PORT"])
}

func TestBuildIsIdempotent(t *testing.T) {
	for _, p := range []Profile{PlainContainer, CloudManaged} {
		first, err := Build(p, DefaultOptions())
		require.NoError(t, err)
		second, err := Build(p, DefaultOptions())
		require.NoError(t, err)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("%s: graphs differ (-first +second):\n%s", p.Name, diff)
		}
	}
}

func TestExampleDescriptorsMatchProfiles(t *testing.T) {
	tests := []struct {
		file    string
		profile Profile
	}{
		{"../examples/mealie.hcl", PlainContainer},
		{"../examples/mealie-cloud.hcl", CloudManaged},
	}
	for _, tt := range tests {
		t.Run(tt.profile.Name, func(t *testing.T) {
			fromFile, err := topology.LoadHCLFile(tt.file)
			require.NoError(t, err)
			fromCode, err := Build(tt.profile, DefaultOptions())
			require.NoError(t, err)
			if diff := cmp.Diff(fromCode, fromFile); diff != "" {
				t.Fatalf("descriptor file differs from profile (-code +file):\n%s", diff)
			}
		})
	}
}

func TestLookupProfile(t *testing.T) {
	p, err := LookupProfile("cloud-managed")
	require.NoError(t, err)
	assert.Equal(t, 80, p.HTTPPort)

	_, err = LookupProfile("kubernetes")
	assert.Error(t, err)
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}
