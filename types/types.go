package types

import "time"

// ResourceState represents the lifecycle state of a materialized resource.
type ResourceState string

const (
	// Resource lifecycle states
	StateIdle     ResourceState = "idle"     // Declared, not started yet
	StateStarting ResourceState = "starting" // In process of starting
	StateRunning  ResourceState = "running"  // Running and ready
	StateFailed   ResourceState = "failed"   // Start or readiness check failed
	StateStopping ResourceState = "stopping" // In process of stopping
	StateStopped  ResourceState = "stopped"  // Stopped
)

// Allocation is the address the host assigned to a resource endpoint.
// Host and Port are reachable from other resources on the same network,
// PublishedHost and PublishedPort from the machine running the host.
type Allocation struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	PublishedHost string `json:"published_host,omitempty"`
	PublishedPort int    `json:"published_port,omitempty"`
}

// ResourceStatus holds the runtime state of one resource.
type ResourceStatus struct {
	Name        string                `json:"name"`
	Kind        ResourceKind          `json:"kind"`
	State       ResourceState         `json:"state"`
	ContainerID string                `json:"container_id,omitempty"` // Empty for resources without a container
	Error       string                `json:"error,omitempty"`
	Endpoints   map[string]Allocation `json:"endpoints,omitempty"`
	UpdatedAt   time.Time             `json:"updated_at"`
}
