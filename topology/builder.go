package topology

import (
	"fmt"

	"apphost/types"
)

// Handle refers to a resource declared on a Builder.
type Handle interface {
	ResourceName() string
	owner() *Builder
}

type resourceRef struct {
	b    *Builder
	name string
}

func (r resourceRef) ResourceName() string { return r.name }
func (r resourceRef) owner() *Builder      { return r.b }

// EnvironmentHandle refers to a declared compute environment.
type EnvironmentHandle struct{ resourceRef }

// ServerHandle refers to a declared database server.
type ServerHandle struct{ resourceRef }

// Endpoint returns a reference to one of the server's endpoints.
func (h ServerHandle) Endpoint(name string) EndpointReference {
	return EndpointReference{Resource: h.name, Endpoint: name}
}

// UserName returns a deferred value bound to the server's user name.
func (h ServerHandle) UserName() types.Value {
	return types.ParameterValue(h.name, types.ParamUserName)
}

// Password returns a deferred value bound to the server's password.
func (h ServerHandle) Password() types.Value {
	return types.ParameterValue(h.name, types.ParamPassword)
}

// DatabaseHandle refers to a declared logical database.
type DatabaseHandle struct{ resourceRef }

// ContainerHandle refers to a declared container.
type ContainerHandle struct{ resourceRef }

// Endpoint returns a reference to one of the container's endpoints.
func (h ContainerHandle) Endpoint(name string) EndpointReference {
	return EndpointReference{Resource: h.name, Endpoint: name}
}

// EndpointReference names an endpoint whose address is assigned at provisioning.
type EndpointReference struct {
	Resource string
	Endpoint string
}

// Property returns a deferred value for one property of the endpoint.
func (r EndpointReference) Property(p types.EndpointProperty) types.Value {
	return types.EndpointValue(r.Resource, r.Endpoint, p)
}

// ServerSpec configures a database server declaration. Zero fields take the
// defaults: password auth, session lifetime, container backend, postgres:17.
type ServerSpec struct {
	Auth       types.AuthMode
	Lifetime   types.Lifetime
	Backend    types.Backend
	Image      string
	Tag        string
	DataVolume *types.VolumeMount
}

// Descriptor declares resources on a Builder.
type Descriptor func(b *Builder)

// Evaluate runs d against a fresh Builder and returns the built graph.
func Evaluate(name string, d Descriptor) (*ResourceGraph, error) {
	b := NewBuilder(name)
	d(b)
	return b.Build()
}

// Builder accumulates resource declarations. Declaration errors are recorded
// and reported together by Build, so a descriptor reads top to bottom without
// error checks between calls.
type Builder struct {
	name  string
	order []string
	kinds map[string]types.ResourceKind

	environments map[string]*types.ComputeEnvironment
	servers      map[string]*types.DatabaseServer
	databases    map[string]*types.Database
	containers   map[string]*types.Container

	errs []error
}

// NewBuilder creates an empty Builder for the named topology.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:         name,
		kinds:        make(map[string]types.ResourceKind),
		environments: make(map[string]*types.ComputeEnvironment),
		servers:      make(map[string]*types.DatabaseServer),
		databases:    make(map[string]*types.Database),
		containers:   make(map[string]*types.Container),
	}
}

// Lookup returns a handle for a resource by name. Using the handle of a name
// that is never declared fails Build.
func (b *Builder) Lookup(name string) Handle {
	return resourceRef{b: b, name: name}
}

func (b *Builder) fail(err error) {
	b.errs = append(b.errs, err)
}

func (b *Builder) declare(name string, kind types.ResourceKind) bool {
	if err := validateResourceName(name); err != nil {
		b.fail(err)
		return false
	}
	if _, exists := b.kinds[name]; exists {
		b.fail(DuplicateResourceError{Name: name})
		return false
	}
	b.kinds[name] = kind
	b.order = append(b.order, name)
	return true
}

// owns reports whether h was issued by this builder, recording an error otherwise.
// The name behind h may still be declared later.
func (b *Builder) owns(h Handle, by string) bool {
	if h == nil || h.owner() != b {
		name := ""
		if h != nil {
			name = h.ResourceName()
		}
		b.fail(UndeclaredResourceError{Name: name, By: by})
		return false
	}
	return true
}

// resolves reports whether h was declared on this builder, recording an error otherwise.
func (b *Builder) resolves(h Handle, by string) bool {
	if !b.owns(h, by) {
		return false
	}
	if _, ok := b.kinds[h.ResourceName()]; !ok {
		b.fail(UndeclaredResourceError{Name: h.ResourceName(), By: by})
		return false
	}
	return true
}

func (b *Builder) container(h ContainerHandle, op string) *types.Container {
	if !b.resolves(h, op) {
		return nil
	}
	c, ok := b.containers[h.name]
	if !ok {
		b.fail(InvalidResourceError{Name: h.name, Reason: fmt.Sprintf("%s requires a container", op)})
		return nil
	}
	return c
}

// DeclareEnvironment declares a compute environment.
func (b *Builder) DeclareEnvironment(name string) EnvironmentHandle {
	if b.declare(name, types.KindEnvironment) {
		b.environments[name] = &types.ComputeEnvironment{Name: name}
	}
	return EnvironmentHandle{resourceRef{b: b, name: name}}
}

// DeclareDatabaseServer declares a PostgreSQL-compatible server.
func (b *Builder) DeclareDatabaseServer(name string, spec ServerSpec) ServerHandle {
	h := ServerHandle{resourceRef{b: b, name: name}}
	if !b.declare(name, types.KindDatabaseServer) {
		return h
	}

	server := &types.DatabaseServer{
		Name:     name,
		Auth:     spec.Auth,
		Lifetime: spec.Lifetime,
		Backend:  spec.Backend,
		Image:    spec.Image,
		Tag:      spec.Tag,
		Port:     types.DefaultPostgresPort,
	}
	if server.Auth == "" {
		server.Auth = types.AuthPassword
	}
	if server.Lifetime == "" {
		server.Lifetime = types.LifetimeSession
	}
	if server.Backend == "" {
		server.Backend = types.BackendContainer
	}
	if server.Image == "" {
		server.Image = types.DefaultPostgresImage
		if server.Tag == "" {
			server.Tag = types.DefaultPostgresTag
		}
	}
	if server.Auth != types.AuthPassword {
		b.fail(InvalidResourceError{Name: name, Reason: fmt.Sprintf("unsupported auth mode %q", server.Auth)})
	}
	if server.Lifetime != types.LifetimeSession && server.Lifetime != types.LifetimePersistent {
		b.fail(InvalidResourceError{Name: name, Reason: fmt.Sprintf("unsupported lifetime %q", server.Lifetime)})
	}
	if server.Backend != types.BackendContainer && server.Backend != types.BackendManaged {
		b.fail(InvalidResourceError{Name: name, Reason: fmt.Sprintf("unsupported backend %q", server.Backend)})
	}
	if spec.DataVolume != nil {
		vol := *spec.DataVolume
		if vol.Name == "" {
			vol.Name = name + "-data"
		}
		if vol.Target == "" {
			vol.Target = types.PostgresDataPath
		}
		if err := validateVolume(name, vol.Name, vol.Target); err != nil {
			b.fail(err)
		}
		server.DataVolume = &vol
	}

	b.servers[name] = server
	return h
}

// DeclareDatabase declares a logical database on server.
func (b *Builder) DeclareDatabase(server ServerHandle, name string) DatabaseHandle {
	h := DatabaseHandle{resourceRef{b: b, name: name}}
	if !b.resolves(server, fmt.Sprintf("database %q", name)) {
		return h
	}
	if _, ok := b.servers[server.name]; !ok {
		b.fail(InvalidResourceError{Name: name, Reason: fmt.Sprintf("parent %q is not a database server", server.name)})
		return h
	}
	if b.declare(name, types.KindDatabase) {
		b.databases[name] = &types.Database{Name: name, Server: server.name}
	}
	return h
}

// DeclareContainer declares an application container running image:tag.
func (b *Builder) DeclareContainer(name, image, tag string) ContainerHandle {
	h := ContainerHandle{resourceRef{b: b, name: name}}
	if image == "" {
		b.fail(InvalidResourceError{Name: name, Reason: "image is empty"})
		return h
	}
	if b.declare(name, types.KindContainer) {
		b.containers[name] = &types.Container{Name: name, Image: image, Tag: tag}
	}
	return h
}

// AddHTTPEndpoint publishes targetPort of the container on port of the host.
func (b *Builder) AddHTTPEndpoint(c ContainerHandle, port, targetPort int, name string) {
	ctr := b.container(c, "AddHTTPEndpoint")
	if ctr == nil {
		return
	}
	if name == "" {
		name = types.DefaultHTTPEndpointName
	}
	if _, exists := ctr.Endpoint(name); exists {
		b.fail(InvalidResourceError{Name: ctr.Name, Reason: fmt.Sprintf("duplicate endpoint %q", name)})
		return
	}
	if err := validatePort(ctr.Name, "port", port); err != nil {
		b.fail(err)
		return
	}
	if err := validatePort(ctr.Name, "target port", targetPort); err != nil {
		b.fail(err)
		return
	}
	for _, ep := range ctr.Endpoints {
		if ep.Port == port {
			b.fail(InvalidResourceError{Name: ctr.Name, Reason: fmt.Sprintf("port %d already published by endpoint %q", port, ep.Name)})
			return
		}
	}
	ctr.Endpoints = append(ctr.Endpoints, types.Endpoint{
		Name:       name,
		Scheme:     "http",
		Port:       port,
		TargetPort: targetPort,
	})
}

// SetEnvironment sets one environment variable. Deferred values are checked
// against the declared resources by Build.
func (b *Builder) SetEnvironment(c ContainerHandle, key string, v types.Value) {
	ctr := b.container(c, "SetEnvironment")
	if ctr == nil {
		return
	}
	if err := validateEnvKey(ctr.Name, key); err != nil {
		b.fail(err)
		return
	}
	for _, e := range ctr.Env {
		if e.Name == key {
			b.fail(DuplicateEnvironmentError{Container: ctr.Name, Key: key})
			return
		}
	}
	if v.Kind == "" {
		v.Kind = types.ValueLiteral
	}
	ctr.Env = append(ctr.Env, types.EnvVar{Name: key, Value: v})
}

// AttachVolume mounts the named volume at mountPath.
func (b *Builder) AttachVolume(c ContainerHandle, volume, mountPath string) {
	ctr := b.container(c, "AttachVolume")
	if ctr == nil {
		return
	}
	if err := validateVolume(ctr.Name, volume, mountPath); err != nil {
		b.fail(err)
		return
	}
	for _, m := range ctr.Volumes {
		if m.Target == mountPath {
			b.fail(InvalidResourceError{Name: ctr.Name, Reason: fmt.Sprintf("mount path %q used twice", mountPath)})
			return
		}
	}
	ctr.Volumes = append(ctr.Volumes, types.VolumeMount{Name: volume, Target: mountPath})
}

// AddStartupDependency keeps the container from starting until dep is ready.
// dep may be declared after this call; Build checks that it exists.
func (b *Builder) AddStartupDependency(c ContainerHandle, dep Handle) {
	ctr := b.container(c, "AddStartupDependency")
	if ctr == nil || !b.owns(dep, fmt.Sprintf("wait-for on %q", ctr.Name)) {
		return
	}
	if dep.ResourceName() == ctr.Name {
		b.fail(InvalidResourceError{Name: ctr.Name, Reason: "container cannot wait for itself"})
		return
	}
	ctr.WaitFor = appendUnique(ctr.WaitFor, dep.ResourceName())
}

// AddReference records that the container consumes dep. References order
// startup like dependencies but do not gate on readiness.
func (b *Builder) AddReference(c ContainerHandle, dep Handle) {
	ctr := b.container(c, "AddReference")
	if ctr == nil || !b.owns(dep, fmt.Sprintf("reference on %q", ctr.Name)) {
		return
	}
	if dep.ResourceName() == ctr.Name {
		b.fail(InvalidResourceError{Name: ctr.Name, Reason: "container cannot reference itself"})
		return
	}
	ctr.References = appendUnique(ctr.References, dep.ResourceName())
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
