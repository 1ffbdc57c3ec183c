package manager

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

const (
	inspectRetries    = 10
	inspectRetryDelay = 500 * time.Millisecond
)

// ContainerManager interacts with the Docker daemon to run resources.
type ContainerManager struct {
	dockerClient *client.Client
	publishHost  string // Host interface published ports bind to
	logger       *slog.Logger
}

var _ Runtime = (*ContainerManager)(nil)

// NewContainerManager creates a new ContainerManager. An empty dockerHost uses
// the environment (DOCKER_HOST and friends).
func NewContainerManager(dockerHost, publishHost string, logger *slog.Logger) (*ContainerManager, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if dockerHost != "" {
		opts = append(opts, client.WithHost(dockerHost))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if publishHost == "" {
		publishHost = "0.0.0.0"
	}
	return &ContainerManager{
		dockerClient: cli,
		publishHost:  publishHost,
		logger:       logger.With("component", "docker"),
	}, nil
}

// Ping checks that the daemon is reachable.
func (cm *ContainerManager) Ping(ctx context.Context) error {
	if _, err := cm.dockerClient.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return nil
}

// Close releases the docker client.
func (cm *ContainerManager) Close() error {
	return cm.dockerClient.Close()
}

// EnsureNetwork creates a bridge network unless it already exists.
func (cm *ContainerManager) EnsureNetwork(ctx context.Context, name string, labels map[string]string) error {
	if _, err := cm.dockerClient.NetworkInspect(ctx, name, network.InspectOptions{}); err == nil {
		return nil
	} else if !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to inspect network %s: %w", name, err)
	}

	if _, err := cm.dockerClient.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge", Labels: labels}); err != nil {
		return fmt.Errorf("failed to create network %s: %w", name, err)
	}
	cm.logger.Info("network created", "network", name)
	return nil
}

// EnsureVolume creates a named volume unless it already exists.
func (cm *ContainerManager) EnsureVolume(ctx context.Context, name string, labels map[string]string) error {
	if _, err := cm.dockerClient.VolumeInspect(ctx, name); err == nil {
		return nil
	} else if !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to inspect volume %s: %w", name, err)
	}

	if _, err := cm.dockerClient.VolumeCreate(ctx, volume.CreateOptions{Name: name, Labels: labels}); err != nil {
		return fmt.Errorf("failed to create volume %s: %w", name, err)
	}
	cm.logger.Info("volume created", "volume", name)
	return nil
}

// PullImage pulls an image, or refreshes it when already present.
func (cm *ContainerManager) PullImage(ctx context.Context, ref string) error {
	cm.logger.Info("pulling image", "image", ref)
	reader, err := cm.dockerClient.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		cm.logger.Warn("failed to drain image pull output", "image", ref, "error", err)
	}
	return nil
}

// RunContainer creates and starts a container, then reads back its host ports.
func (cm *ContainerManager) RunContainer(ctx context.Context, spec ContainerSpec) (RunningContainer, error) {
	log := cm.logger.With("container", spec.Name)

	existing, err := cm.dockerClient.ContainerInspect(ctx, spec.Name)
	if err != nil && !client.IsErrNotFound(err) {
		return RunningContainer{}, fmt.Errorf("failed to inspect container %s: %w", spec.Name, err)
	}
	if err == nil {
		observed := observeContainer(existing)
		reason := "left behind by an earlier session"
		if spec.Persistent {
			reason = observed.recreateReason(spec)
			if reason == "" {
				return cm.reuseContainer(ctx, existing, observed, spec)
			}
		}
		log.Info("removing existing container", "id", existing.ID, "reason", reason)
		if err := cm.dockerClient.ContainerRemove(ctx, existing.ID, container.RemoveOptions{Force: true}); err != nil {
			return RunningContainer{}, fmt.Errorf("failed to remove container %s: %w", spec.Name, err)
		}
	}

	exposedPorts := nat.PortSet{}
	portBindings := nat.PortMap{}
	for _, p := range spec.Ports {
		port := natPort(p.ContainerPort)
		exposedPorts[port] = struct{}{}
		hostPort := ""
		if p.HostPort > 0 {
			hostPort = strconv.Itoa(p.HostPort)
		}
		portBindings[port] = []nat.PortBinding{{HostIP: cm.publishHost, HostPort: hostPort}}
	}

	mounts := make([]mount.Mount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeVolume,
			Source:   m.Name,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
		Mounts:       mounts,
	}
	if spec.Persistent {
		hostConfig.RestartPolicy = container.RestartPolicy{Name: container.RestartPolicyUnlessStopped}
	}

	var networking *network.NetworkingConfig
	if spec.Network != "" {
		networking = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.Network: {Aliases: spec.Aliases},
			},
		}
	}

	resp, err := cm.dockerClient.ContainerCreate(
		ctx,
		&container.Config{
			Image:        spec.Image,
			Env:          envList(spec.Env),
			ExposedPorts: exposedPorts,
			Labels:       spec.Labels,
		},
		hostConfig,
		networking,
		nil,
		spec.Name,
	)
	if err != nil {
		return RunningContainer{}, fmt.Errorf("failed to create container %s: %w", spec.Name, err)
	}
	log.Info("container created", "id", resp.ID)

	if err := cm.dockerClient.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if rmErr := cm.dockerClient.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true}); rmErr != nil {
			log.Warn("failed to remove container after failed start", "id", resp.ID, "error", rmErr)
		}
		return RunningContainer{}, fmt.Errorf("failed to start container %s: %w", spec.Name, err)
	}

	ports, err := cm.waitForPorts(ctx, resp.ID, spec.Ports)
	if err != nil {
		if stopErr := cm.StopContainer(context.Background(), resp.ID); stopErr != nil {
			log.Warn("failed to stop container after port lookup failure", "id", resp.ID, "error", stopErr)
		}
		return RunningContainer{}, err
	}

	log.Info("container started", "id", resp.ID, "ports", ports)
	return RunningContainer{ID: resp.ID, HostPorts: ports}, nil
}

// reuseContainer starts a kept container if needed and attaches it to the
// requested network.
func (cm *ContainerManager) reuseContainer(ctx context.Context, existing container.InspectResponse, observed observedContainer, spec ContainerSpec) (RunningContainer, error) {
	log := cm.logger.With("container", spec.Name, "id", existing.ID)

	if observed.needsNetwork(spec) {
		log.Info("connecting container to network", "network", spec.Network, "aliases", spec.Aliases)
		err := cm.dockerClient.NetworkConnect(ctx, spec.Network, existing.ID, &network.EndpointSettings{Aliases: spec.Aliases})
		if err != nil {
			return RunningContainer{}, fmt.Errorf("failed to connect container %s to network %s: %w", spec.Name, spec.Network, err)
		}
	}

	if existing.State == nil || !existing.State.Running {
		log.Info("starting existing container")
		if err := cm.dockerClient.ContainerStart(ctx, existing.ID, container.StartOptions{}); err != nil {
			return RunningContainer{}, fmt.Errorf("failed to start existing container %s: %w", spec.Name, err)
		}
	} else {
		log.Info("reusing running container")
	}

	ports, err := cm.waitForPorts(ctx, existing.ID, spec.Ports)
	if err != nil {
		return RunningContainer{}, err
	}
	return RunningContainer{ID: existing.ID, HostPorts: ports, Reused: true}, nil
}

// observedContainer is the part of an existing container that decides whether
// it can stand in for a spec.
type observedContainer struct {
	Image    string
	Volumes  map[string]string   // Key: mount target, value: volume name
	Networks map[string][]string // Key: network, value: aliases
}

func observeContainer(c container.InspectResponse) observedContainer {
	o := observedContainer{
		Volumes:  make(map[string]string, len(c.Mounts)),
		Networks: map[string][]string{},
	}
	if c.Config != nil {
		o.Image = c.Config.Image
	}
	for _, m := range c.Mounts {
		if m.Type == mount.TypeVolume {
			o.Volumes[m.Destination] = m.Name
		}
	}
	if c.NetworkSettings != nil {
		for name, ep := range c.NetworkSettings.Networks {
			var aliases []string
			if ep != nil {
				aliases = ep.Aliases
			}
			o.Networks[name] = aliases
		}
	}
	return o
}

// recreateReason returns why the container cannot be reused for spec, or ""
// when it can. Volumes the spec does not ask for are ignored, since images
// such as postgres declare anonymous volumes of their own.
func (o observedContainer) recreateReason(spec ContainerSpec) string {
	if o.Image != spec.Image {
		return fmt.Sprintf("image %q differs from %q", o.Image, spec.Image)
	}
	for _, m := range spec.Mounts {
		if got := o.Volumes[m.Target]; got != m.Name {
			return fmt.Sprintf("volume %q is not mounted at %s", m.Name, m.Target)
		}
	}
	return ""
}

// needsNetwork reports whether the container must join spec.Network.
func (o observedContainer) needsNetwork(spec ContainerSpec) bool {
	if spec.Network == "" {
		return false
	}
	_, ok := o.Networks[spec.Network]
	return !ok
}

// waitForPorts inspects the container until every requested port has a host binding.
func (cm *ContainerManager) waitForPorts(ctx context.Context, containerID string, ports []PortSpec) (map[int]int, error) {
	result := make(map[int]int, len(ports))
	if len(ports) == 0 {
		return result, nil
	}

	var inspectData container.InspectResponse
	for i := 0; i < inspectRetries; i++ {
		var inspectErr error
		inspectData, inspectErr = cm.dockerClient.ContainerInspect(ctx, containerID)
		if inspectErr != nil && i == inspectRetries-1 {
			return nil, fmt.Errorf("failed to inspect container %s after %d attempts: %w", containerID, inspectRetries, inspectErr)
		}

		if inspectErr == nil && inspectData.NetworkSettings != nil {
			for _, p := range ports {
				bindings := inspectData.NetworkSettings.Ports[natPort(p.ContainerPort)]
				if len(bindings) == 0 || bindings[0].HostPort == "" {
					continue
				}
				hostPort, err := nat.ParsePort(bindings[0].HostPort)
				if err != nil {
					return nil, fmt.Errorf("failed to parse host port %s: %w", bindings[0].HostPort, err)
				}
				result[p.ContainerPort] = hostPort
			}
			if len(result) == len(ports) {
				return result, nil
			}
		}

		cm.logger.Debug("host ports not bound yet", "id", containerID, "attempt", i+1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(inspectRetryDelay):
		}
	}

	state := "unknown"
	if inspectData.State != nil {
		state = fmt.Sprintf("status=%s exit=%d error=%q", inspectData.State.Status, inspectData.State.ExitCode, inspectData.State.Error)
	}
	return nil, fmt.Errorf("could not find host port bindings for container %s after %d retries (%s)", containerID, inspectRetries, state)
}

// StopContainer stops and removes a Docker container by its ID.
func (cm *ContainerManager) StopContainer(ctx context.Context, containerID string) error {
	if err := cm.dockerClient.ContainerStop(ctx, containerID, container.StopOptions{}); err != nil {
		if client.IsErrNotFound(err) {
			cm.logger.Info("container not found during stop", "id", containerID)
			return nil
		}
		cm.logger.Warn("failed to stop container", "id", containerID, "error", err)
	}

	if err := cm.dockerClient.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		if !client.IsErrNotFound(err) {
			return fmt.Errorf("failed to remove container %s: %w", containerID, err)
		}
	}
	cm.logger.Info("container stopped and removed", "id", containerID)
	return nil
}

func natPort(port int) nat.Port {
	return nat.Port(fmt.Sprintf("%d/tcp", port))
}

// envList renders env in KEY=value form, sorted for stable container configs.
func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
