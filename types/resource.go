package types

import (
	"fmt"
	"sort"
)

// ResourceKind identifies the type of a declared resource.
type ResourceKind string

const (
	KindEnvironment    ResourceKind = "environment"
	KindDatabaseServer ResourceKind = "postgres"
	KindDatabase       ResourceKind = "database"
	KindContainer      ResourceKind = "container"
)

// AuthMode is the authentication scheme of a database server.
type AuthMode string

const (
	AuthPassword AuthMode = "password"
)

// Lifetime controls whether a resource outlives the host session.
type Lifetime string

const (
	LifetimeSession    Lifetime = "session"    // Removed when the host shuts down
	LifetimePersistent Lifetime = "persistent" // Reused across sessions, never removed by the host
)

// Backend is the provisioning backend of a database server.
type Backend string

const (
	BackendContainer Backend = "container" // Plain database container
	BackendManaged   Backend = "managed"   // Cloud-managed server, emulated by a container when run locally
)

const (
	DefaultPostgresImage    = "postgres"
	DefaultPostgresTag      = "17"
	DefaultPostgresPort     = 5432
	DefaultPostgresUser     = "postgres"
	PostgresDataPath        = "/var/lib/postgresql/data"
	PostgresEndpointName    = "tcp"
	DefaultHTTPEndpointName = "http"
)

// ComputeEnvironment is the network and ingress scope containers are placed in.
type ComputeEnvironment struct {
	Name string `json:"name" yaml:"name"`
}

// DatabaseServer describes a provisioned PostgreSQL-compatible server.
type DatabaseServer struct {
	Name       string       `json:"name" yaml:"name"`
	Auth       AuthMode     `json:"auth" yaml:"auth"`
	Lifetime   Lifetime     `json:"lifetime" yaml:"lifetime"`
	Backend    Backend      `json:"backend" yaml:"backend"`
	Image      string       `json:"image" yaml:"image"`
	Tag        string       `json:"tag" yaml:"tag"`
	Port       int          `json:"port" yaml:"port"`
	DataVolume *VolumeMount `json:"data_volume,omitempty" yaml:"data_volume,omitempty"`
}

// ImageRef returns the image reference in name:tag form.
func (s DatabaseServer) ImageRef() string {
	return imageRef(s.Image, s.Tag)
}

// Database is a logical database hosted by a DatabaseServer.
type Database struct {
	Name   string `json:"name" yaml:"name"`
	Server string `json:"server" yaml:"server"`
}

// Endpoint is a network endpoint published by a container.
type Endpoint struct {
	Name       string `json:"name" yaml:"name"`
	Scheme     string `json:"scheme" yaml:"scheme"`
	Port       int    `json:"port" yaml:"port"`               // Published port on the host
	TargetPort int    `json:"target_port" yaml:"target_port"` // Port the application listens on
}

// VolumeMount attaches a named volume to a path inside a container.
type VolumeMount struct {
	Name     string `json:"name" yaml:"name"`
	Target   string `json:"target" yaml:"target"`
	ReadOnly bool   `json:"read_only,omitempty" yaml:"read_only,omitempty"`
}

// EnvVar is one environment variable injected into a container at start.
type EnvVar struct {
	Name  string `json:"name" yaml:"name"`
	Value Value  `json:"value" yaml:"value"`
}

// Container describes an application container resource.
type Container struct {
	Name       string        `json:"name" yaml:"name"`
	Image      string        `json:"image" yaml:"image"`
	Tag        string        `json:"tag" yaml:"tag"`
	Endpoints  []Endpoint    `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
	Env        []EnvVar      `json:"env,omitempty" yaml:"env,omitempty"`
	Volumes    []VolumeMount `json:"volumes,omitempty" yaml:"volumes,omitempty"`
	WaitFor    []string      `json:"wait_for,omitempty" yaml:"wait_for,omitempty"`
	References []string      `json:"references,omitempty" yaml:"references,omitempty"`
}

// ImageRef returns the image reference in name:tag form.
func (c Container) ImageRef() string {
	return imageRef(c.Image, c.Tag)
}

// EnvKeys returns the sorted environment variable names of the container.
func (c Container) EnvKeys() []string {
	keys := make([]string, 0, len(c.Env))
	for _, e := range c.Env {
		keys = append(keys, e.Name)
	}
	sort.Strings(keys)
	return keys
}

// Endpoint returns the named endpoint.
func (c Container) Endpoint(name string) (Endpoint, bool) {
	for _, ep := range c.Endpoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return Endpoint{}, false
}

func imageRef(image, tag string) string {
	if tag == "" {
		return image
	}
	return fmt.Sprintf("%s:%s", image, tag)
}
