package topology

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDescriptor is wrapped by every error Build reports.
var ErrInvalidDescriptor = errors.New("invalid descriptor")

// UndeclaredResourceError means a handle or value names a resource the
// builder never declared.
type UndeclaredResourceError struct {
	Name string
	By   string // operation or resource that holds the reference
}

func (e UndeclaredResourceError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("undeclared resource referenced by %s", e.By)
	}
	return fmt.Sprintf("undeclared resource %q referenced by %s", e.Name, e.By)
}

func (e UndeclaredResourceError) Unwrap() error { return ErrInvalidDescriptor }

// DuplicateResourceError means two resources share a name.
type DuplicateResourceError struct {
	Name string
}

func (e DuplicateResourceError) Error() string {
	return fmt.Sprintf("duplicate resource: %q", e.Name)
}

func (e DuplicateResourceError) Unwrap() error { return ErrInvalidDescriptor }

// DuplicateEnvironmentError means an environment key is set twice on one container.
type DuplicateEnvironmentError struct {
	Container string
	Key       string
}

func (e DuplicateEnvironmentError) Error() string {
	return fmt.Sprintf("duplicate environment variable %q on container %q", e.Key, e.Container)
}

func (e DuplicateEnvironmentError) Unwrap() error { return ErrInvalidDescriptor }

// UnknownEndpointError means a value references an endpoint the resource does not expose.
type UnknownEndpointError struct {
	Resource string
	Endpoint string
}

func (e UnknownEndpointError) Error() string {
	return fmt.Sprintf("resource %q has no endpoint %q", e.Resource, e.Endpoint)
}

func (e UnknownEndpointError) Unwrap() error { return ErrInvalidDescriptor }

// InvalidResourceError reports a malformed declaration.
type InvalidResourceError struct {
	Name   string
	Reason string
}

func (e InvalidResourceError) Error() string {
	return fmt.Sprintf("invalid resource %q: %s", e.Name, e.Reason)
}

func (e InvalidResourceError) Unwrap() error { return ErrInvalidDescriptor }

// CycleDetectedError means the dependency edges form a cycle.
type CycleDetectedError struct {
	Path []string
}

func (e CycleDetectedError) Error() string {
	if len(e.Path) == 0 {
		return "resource dependency cycle detected"
	}
	return "resource dependency cycle detected: " + strings.Join(e.Path, " -> ")
}

func (e CycleDetectedError) Unwrap() error { return ErrInvalidDescriptor }

// NotProvisionedError means a deferred value was resolved before the resource
// it depends on was provisioned.
type NotProvisionedError struct {
	Resource string
}

func (e NotProvisionedError) Error() string {
	return fmt.Sprintf("resource %q is not provisioned", e.Resource)
}
