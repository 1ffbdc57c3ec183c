// Package mealie declares the Mealie deployment topology for both supported
// deployment targets.
package mealie

import (
	"fmt"
	"strconv"

	"apphost/topology"
	"apphost/types"
)

const (
	Image   = "ghcr.io/mealie-recipes/mealie"
	Version = "v3.9.2"

	AppName      = "mealie-app"
	ServerName   = "postgres"
	DatabaseName = "mealiedb"

	EnvironmentName = "mealie"

	HTTPTargetPort = 9000
	DataVolume     = "mealie-data"
	DataPath       = "/app/data"
)

// EnvKeys is the environment the application container receives.
var EnvKeys = []string{
	"ALLOW_SIGNUP",
	"PUID",
	"PGID",
	"TZ",
	"DB_ENGINE",
	"POSTGRES_USER",
	"POSTGRES_PASSWORD",
	"POSTGRES_SERVER",
	"POSTGRES_PORT",
	"POSTGRES_DB",
}

// Profile is a deployment target for the topology.
type Profile struct {
	Name          string
	HTTPPort      int
	Backend       types.Backend
	Environment   bool // declare a compute environment for the app
	DataVolume    bool // keep the database files in a named volume
	PinImage      bool // pin the database image instead of the backend default
	WithReference bool
}

var (
	// PlainContainer runs the database as a plain container and publishes the app on 9925.
	PlainContainer = Profile{
		Name:     "plain-container",
		HTTPPort: 9925,
		Backend:  types.BackendContainer,
		PinImage: true,
	}

	// CloudManaged targets a managed database service and a container-app environment
	// publishing the app on port 80.
	CloudManaged = Profile{
		Name:          "cloud-managed",
		HTTPPort:      80,
		Backend:       types.BackendManaged,
		Environment:   true,
		DataVolume:    true,
		WithReference: true,
	}
)

// Profiles lists the known profiles by name.
var Profiles = map[string]Profile{
	PlainContainer.Name: PlainContainer,
	CloudManaged.Name:   CloudManaged,
}

// LookupProfile returns the profile with the given name.
func LookupProfile(name string) (Profile, error) {
	p, ok := Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q (want %q or %q)", name, PlainContainer.Name, CloudManaged.Name)
	}
	return p, nil
}

// Options are the application settings that are not part of the topology shape.
type Options struct {
	AllowSignup bool
	PUID        int
	PGID        int
	TimeZone    string
}

// DefaultOptions returns the settings Mealie is deployed with by default.
func DefaultOptions() Options {
	return Options{
		AllowSignup: false,
		PUID:        1000,
		PGID:        1000,
		TimeZone:    "Australia/Brisbane",
	}
}

// Descriptor returns the topology for profile p.
func Descriptor(p Profile, opts Options) topology.Descriptor {
	return func(b *topology.Builder) {
		if p.Environment {
			b.DeclareEnvironment(EnvironmentName)
		}

		spec := topology.ServerSpec{
			Auth:     types.AuthPassword,
			Lifetime: types.LifetimePersistent,
			Backend:  p.Backend,
		}
		if p.PinImage {
			spec.Image = types.DefaultPostgresImage
			spec.Tag = "17"
		}
		if p.DataVolume {
			spec.DataVolume = &types.VolumeMount{}
		}
		postgres := b.DeclareDatabaseServer(ServerName, spec)
		mealieDB := b.DeclareDatabase(postgres, DatabaseName)
		tcp := postgres.Endpoint(types.PostgresEndpointName)

		app := b.DeclareContainer(AppName, Image, Version)
		b.AddHTTPEndpoint(app, p.HTTPPort, HTTPTargetPort, types.DefaultHTTPEndpointName)
		b.SetEnvironment(app, "ALLOW_SIGNUP", types.Literal(strconv.FormatBool(opts.AllowSignup)))
		b.SetEnvironment(app, "PUID", types.Literal(strconv.Itoa(opts.PUID)))
		b.SetEnvironment(app, "PGID", types.Literal(strconv.Itoa(opts.PGID)))
		b.SetEnvironment(app, "TZ", types.Literal(opts.TimeZone))
		b.SetEnvironment(app, "DB_ENGINE", types.Literal("postgres"))
		b.SetEnvironment(app, "POSTGRES_USER", postgres.UserName())
		b.SetEnvironment(app, "POSTGRES_PASSWORD", postgres.Password())
		b.SetEnvironment(app, "POSTGRES_SERVER", tcp.Property(types.EndpointHost))
		b.SetEnvironment(app, "POSTGRES_PORT", tcp.Property(types.EndpointPort))
		b.SetEnvironment(app, "POSTGRES_DB", types.Literal(DatabaseName))
		b.AttachVolume(app, DataVolume, DataPath)
		if p.WithReference {
			b.AddReference(app, mealieDB)
		}
		b.AddStartupDependency(app, mealieDB)
	}
}

// Build evaluates the descriptor for profile p.
func Build(p Profile, opts Options) (*topology.ResourceGraph, error) {
	return topology.Evaluate("mealie", Descriptor(p, opts))
}
