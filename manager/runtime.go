package manager

import (
	"context"

	"apphost/types"
)

// Labels attached to everything the host creates.
const (
	LabelTopology = "apphost.topology"
	LabelResource = "apphost.resource"
	LabelSession  = "apphost.session"
)

// PortSpec maps a container port to a host port. HostPort 0 asks the runtime
// for a dynamic port.
type PortSpec struct {
	ContainerPort int
	HostPort      int
}

// ContainerSpec describes a container to run.
type ContainerSpec struct {
	Name    string // Container name
	Image   string
	Env     map[string]string
	Ports   []PortSpec
	Mounts  []types.VolumeMount
	Network string
	Aliases []string // DNS names on Network
	Labels  map[string]string
	// Persistent containers are reused when one with the same name exists and
	// survive host shutdown.
	Persistent bool
}

// RunningContainer is the result of RunContainer.
type RunningContainer struct {
	ID        string
	HostPorts map[int]int // Key: container port
	Reused    bool
}

// Runtime is the container engine the orchestrator drives.
type Runtime interface {
	EnsureNetwork(ctx context.Context, name string, labels map[string]string) error
	EnsureVolume(ctx context.Context, name string, labels map[string]string) error
	PullImage(ctx context.Context, ref string) error
	RunContainer(ctx context.Context, spec ContainerSpec) (RunningContainer, error)
	StopContainer(ctx context.Context, containerID string) error
}
