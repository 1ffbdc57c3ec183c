package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"apphost/topology"
	"apphost/types"
)

const pullConcurrency = 3

// Credentials are the superuser credentials of a database server.
type Credentials struct {
	UserName string
	Password string
}

// IngressRegistrar publishes a container's HTTP endpoint under a public domain.
type IngressRegistrar interface {
	RegisterIngress(ctx context.Context, resource string) (*types.IngressDomain, error)
}

// Options configure an Orchestrator.
type Options struct {
	Network          string        // Used when the graph declares no compute environment
	AdminHost        string        // Address the host process uses to reach published ports
	ReadinessTimeout time.Duration // Per resource
	Credentials      func(server string) (Credentials, error)
}

// Orchestrator materializes a resource graph on a Runtime.
type Orchestrator struct {
	runtime Runtime
	admin   DatabaseAdmin
	state   *StateManager
	ingress IngressRegistrar
	health  *HTTPChecker
	metrics *Metrics
	logger  *slog.Logger
	opts    Options
	session string
}

// NewOrchestrator creates an Orchestrator with a fresh session ID.
func NewOrchestrator(rt Runtime, admin DatabaseAdmin, state *StateManager, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.AdminHost == "" {
		opts.AdminHost = "127.0.0.1"
	}
	if opts.ReadinessTimeout <= 0 {
		opts.ReadinessTimeout = 2 * time.Minute
	}
	if opts.Credentials == nil {
		opts.Credentials = func(string) (Credentials, error) {
			return Credentials{}, errors.New("no credentials configured")
		}
	}
	session := uuid.NewString()
	return &Orchestrator{
		runtime: rt,
		admin:   admin,
		state:   state,
		logger:  logger.With("component", "orchestrator", "session", session),
		opts:    opts,
		session: session,
	}
}

// WithIngress enables public DNS for container HTTP endpoints in compute environments.
func (o *Orchestrator) WithIngress(r IngressRegistrar) *Orchestrator {
	o.ingress = r
	return o
}

// WithHealthChecker makes containers with HTTP endpoints ready only once
// every endpoint answers.
func (o *Orchestrator) WithHealthChecker(c *HTTPChecker) *Orchestrator {
	o.health = c
	return o
}

// WithMetrics records provisioning metrics and resource state gauges.
func (o *Orchestrator) WithMetrics(m *Metrics) *Orchestrator {
	o.metrics = m
	o.state.OnChange(m.RecordState)
	return o
}

// Session returns the ID that labels everything created by this orchestrator.
func (o *Orchestrator) Session() string {
	return o.session
}

// Run provisions every resource of g in topological order. It stops at the
// first failure; resources already started keep running until Shutdown.
func (o *Orchestrator) Run(ctx context.Context, g *topology.ResourceGraph) error {
	for _, n := range g.Nodes {
		o.state.RegisterResource(n.Name, n.Kind)
	}

	network := o.networkName(g)
	if err := o.runtime.EnsureNetwork(ctx, network, o.labels(g, "")); err != nil {
		return err
	}

	if err := o.pullImages(ctx, g); err != nil {
		return err
	}

	for _, name := range g.TopoOrder {
		node, _ := g.Node(name)
		start := time.Now()
		err := o.provision(ctx, g, node, network)
		outcome := "success"
		if err != nil {
			outcome = "failure"
			o.state.MarkFailed(name, err)
		}
		o.metrics.observeProvision(node.Kind, outcome, time.Since(start))
		if err != nil {
			return fmt.Errorf("provision %s %s: %w", node.Kind, name, err)
		}
		o.logger.Info("resource ready", "resource", name, "kind", node.Kind, "duration", time.Since(start))
	}
	return nil
}

func (o *Orchestrator) provision(ctx context.Context, g *topology.ResourceGraph, node topology.Node, network string) error {
	switch node.Kind {
	case types.KindEnvironment:
		return o.provisionEnvironment(ctx, g, node.Name)
	case types.KindDatabaseServer:
		server, _ := g.Server(node.Name)
		return o.provisionServer(ctx, g, server, network)
	case types.KindDatabase:
		db, _ := g.Database(node.Name)
		return o.provisionDatabase(ctx, db)
	case types.KindContainer:
		ctr, _ := g.Container(node.Name)
		return o.provisionContainer(ctx, g, ctr, network)
	default:
		return fmt.Errorf("unsupported resource kind %q", node.Kind)
	}
}

func (o *Orchestrator) provisionEnvironment(ctx context.Context, g *topology.ResourceGraph, name string) error {
	o.state.MarkStarting(name)
	if err := o.runtime.EnsureNetwork(ctx, name, o.labels(g, name)); err != nil {
		return err
	}
	o.state.MarkRunning(name, "")
	return nil
}

func (o *Orchestrator) provisionServer(ctx context.Context, g *topology.ResourceGraph, server types.DatabaseServer, network string) error {
	creds, err := o.opts.Credentials(server.Name)
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	if creds.UserName == "" {
		creds.UserName = types.DefaultPostgresUser
	}
	o.state.SetParameter(server.Name, types.ParamUserName, creds.UserName)
	o.state.SetParameter(server.Name, types.ParamPassword, creds.Password)

	if !o.state.MarkStarting(server.Name) {
		return fmt.Errorf("resource is already %s", o.state.GetResourceState(server.Name))
	}

	spec := ContainerSpec{
		Name:  o.containerName(g, server.Name),
		Image: server.ImageRef(),
		Env: map[string]string{
			"POSTGRES_USER":     creds.UserName,
			"POSTGRES_PASSWORD": creds.Password,
		},
		Ports:      []PortSpec{{ContainerPort: server.Port}},
		Network:    network,
		Aliases:    []string{server.Name},
		Labels:     o.labels(g, server.Name),
		Persistent: server.Lifetime == types.LifetimePersistent,
	}
	if server.DataVolume != nil {
		if err := o.runtime.EnsureVolume(ctx, server.DataVolume.Name, o.labels(g, server.Name)); err != nil {
			return err
		}
		spec.Mounts = append(spec.Mounts, *server.DataVolume)
	}

	rc, err := o.runtime.RunContainer(ctx, spec)
	if err != nil {
		return err
	}
	alloc := types.Allocation{
		Host:          server.Name,
		Port:          server.Port,
		PublishedHost: o.opts.AdminHost,
		PublishedPort: rc.HostPorts[server.Port],
	}
	o.state.SetEndpoint(server.Name, types.PostgresEndpointName, alloc)

	readyCtx, cancel := context.WithTimeout(ctx, o.opts.ReadinessTimeout)
	defer cancel()
	if err := o.admin.WaitReady(readyCtx, adminConn(alloc, creds)); err != nil {
		if !spec.Persistent {
			if stopErr := o.runtime.StopContainer(context.Background(), rc.ID); stopErr != nil {
				o.logger.Warn("failed to stop unready server", "resource", server.Name, "error", stopErr)
			}
		}
		return err
	}

	o.state.MarkRunning(server.Name, rc.ID)
	return nil
}

func (o *Orchestrator) provisionDatabase(ctx context.Context, db types.Database) error {
	if err := o.waitFor(ctx, db.Server); err != nil {
		return err
	}
	if !o.state.MarkStarting(db.Name) {
		return fmt.Errorf("resource is already %s", o.state.GetResourceState(db.Name))
	}

	alloc, err := o.state.Endpoint(db.Server, types.PostgresEndpointName)
	if err != nil {
		return err
	}
	user, err := o.state.Parameter(db.Server, types.ParamUserName)
	if err != nil {
		return err
	}
	password, err := o.state.Parameter(db.Server, types.ParamPassword)
	if err != nil {
		return err
	}

	if err := o.admin.EnsureDatabase(ctx, adminConn(alloc, Credentials{UserName: user, Password: password}), db.Name); err != nil {
		return err
	}
	o.state.MarkRunning(db.Name, "")
	return nil
}

func (o *Orchestrator) provisionContainer(ctx context.Context, g *topology.ResourceGraph, ctr types.Container, network string) error {
	for _, dep := range ctr.WaitFor {
		if err := o.waitFor(ctx, dep); err != nil {
			return err
		}
	}
	if !o.state.MarkStarting(ctr.Name) {
		return fmt.Errorf("resource is already %s", o.state.GetResourceState(ctr.Name))
	}

	env, err := topology.ResolveEnvironment(g, ctr.Name, o.state)
	if err != nil {
		return err
	}

	for _, v := range ctr.Volumes {
		if err := o.runtime.EnsureVolume(ctx, v.Name, o.labels(g, ctr.Name)); err != nil {
			return err
		}
	}

	ports := make([]PortSpec, 0, len(ctr.Endpoints))
	for _, ep := range ctr.Endpoints {
		ports = append(ports, PortSpec{ContainerPort: ep.TargetPort, HostPort: ep.Port})
	}

	rc, err := o.runtime.RunContainer(ctx, ContainerSpec{
		Name:    o.containerName(g, ctr.Name),
		Image:   ctr.ImageRef(),
		Env:     env,
		Ports:   ports,
		Mounts:  slices.Clone(ctr.Volumes),
		Network: network,
		Aliases: []string{ctr.Name},
		Labels:  o.labels(g, ctr.Name),
	})
	if err != nil {
		return err
	}

	for _, ep := range ctr.Endpoints {
		o.state.SetEndpoint(ctr.Name, ep.Name, types.Allocation{
			Host:          ctr.Name,
			Port:          ep.TargetPort,
			PublishedHost: o.opts.AdminHost,
			PublishedPort: rc.HostPorts[ep.TargetPort],
		})
	}
	if err := o.waitHealthy(ctx, ctr, rc); err != nil {
		if stopErr := o.runtime.StopContainer(context.Background(), rc.ID); stopErr != nil {
			o.logger.Warn("failed to stop unhealthy container", "resource", ctr.Name, "error", stopErr)
		}
		return err
	}
	o.state.MarkRunning(ctr.Name, rc.ID)

	if o.ingress != nil && len(g.Environments) > 0 && len(ctr.Endpoints) > 0 {
		o.registerIngress(ctx, ctr.Name)
	}
	return nil
}

func (o *Orchestrator) waitHealthy(ctx context.Context, ctr types.Container, rc RunningContainer) error {
	if o.health == nil {
		return nil
	}
	healthCtx, cancel := context.WithTimeout(ctx, o.opts.ReadinessTimeout)
	defer cancel()
	for _, ep := range ctr.Endpoints {
		addr := net.JoinHostPort(o.opts.AdminHost, strconv.Itoa(rc.HostPorts[ep.TargetPort]))
		if err := o.health.WaitHealthy(healthCtx, ep.Scheme+"://"+addr); err != nil {
			return fmt.Errorf("endpoint %s: %w", ep.Name, err)
		}
	}
	return nil
}

// registerIngress is best effort; a missing DNS record does not stop the app.
func (o *Orchestrator) registerIngress(ctx context.Context, resource string) {
	domain, err := o.ingress.RegisterIngress(ctx, resource)
	if err != nil {
		o.metrics.observeIngress("failure")
		o.logger.Error("ingress registration failed", "resource", resource, "error", err)
		return
	}
	if domain == nil {
		return
	}
	o.metrics.observeIngress("success")
	o.logger.Info("ingress registered", "resource", resource, "domain", domain.Domain)
}

func (o *Orchestrator) waitFor(ctx context.Context, dep string) error {
	waitCtx, cancel := context.WithTimeout(ctx, o.opts.ReadinessTimeout)
	defer cancel()
	if err := o.state.WaitReady(waitCtx, dep); err != nil {
		return fmt.Errorf("dependency %s: %w", dep, err)
	}
	return nil
}

// Shutdown stops resources in reverse topological order. Persistent servers
// are left running so their data and container survive the session.
func (o *Orchestrator) Shutdown(ctx context.Context, g *topology.ResourceGraph) error {
	var errs []error
	for i := len(g.TopoOrder) - 1; i >= 0; i-- {
		name := g.TopoOrder[i]
		if server, ok := g.Server(name); ok && server.Lifetime == types.LifetimePersistent {
			o.logger.Info("leaving persistent resource running", "resource", name)
			continue
		}

		status, ok := o.state.GetResource(name)
		if !ok || !o.state.MarkStopping(name) {
			continue
		}
		if status.ContainerID != "" {
			if err := o.runtime.StopContainer(ctx, status.ContainerID); err != nil {
				errs = append(errs, fmt.Errorf("stop %s: %w", name, err))
			}
		}
		o.state.MarkStopped(name)
		o.logger.Info("resource stopped", "resource", name)
	}
	return errors.Join(errs...)
}

// pullImages fetches every image of the graph concurrently before any
// resource starts.
func (o *Orchestrator) pullImages(ctx context.Context, g *topology.ResourceGraph) error {
	var refs []string
	for _, s := range g.Servers {
		refs = append(refs, s.ImageRef())
	}
	for _, c := range g.Containers {
		refs = append(refs, c.ImageRef())
	}
	slices.Sort(refs)
	refs = slices.Compact(refs)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(pullConcurrency)
	for _, ref := range refs {
		eg.Go(func() error {
			return o.runtime.PullImage(egCtx, ref)
		})
	}
	return eg.Wait()
}

func (o *Orchestrator) networkName(g *topology.ResourceGraph) string {
	if len(g.Environments) > 0 {
		return g.Environments[0].Name
	}
	return o.opts.Network
}

func (o *Orchestrator) containerName(g *topology.ResourceGraph, resource string) string {
	return g.Name + "-" + resource
}

func (o *Orchestrator) labels(g *topology.ResourceGraph, resource string) map[string]string {
	labels := map[string]string{
		LabelTopology: g.Name,
		LabelSession:  o.session,
	}
	if resource != "" {
		labels[LabelResource] = resource
	}
	return labels
}

func adminConn(alloc types.Allocation, creds Credentials) ConnInfo {
	return ConnInfo{
		Host:     alloc.PublishedHost,
		Port:     alloc.PublishedPort,
		User:     creds.UserName,
		Password: creds.Password,
	}
}
