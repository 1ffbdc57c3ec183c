package topology

import (
	"fmt"
	"strconv"

	"apphost/types"
)

// Resolver exposes the values a host assigns while provisioning.
type Resolver interface {
	// Provisioned reports whether the resource is ready for its values to be read.
	Provisioned(resource string) bool
	Endpoint(resource, endpoint string) (types.Allocation, error)
	Parameter(resource, name string) (string, error)
}

// ResolveEnvironment returns the concrete environment of the named container.
// A deferred value fails with NotProvisionedError when its resource is not
// provisioned yet; the endpoint is not read in that case.
func ResolveEnvironment(g *ResourceGraph, container string, r Resolver) (map[string]string, error) {
	ctr, ok := g.Container(container)
	if !ok {
		return nil, UndeclaredResourceError{Name: container, By: "ResolveEnvironment"}
	}
	env := make(map[string]string, len(ctr.Env))
	for _, e := range ctr.Env {
		v, err := resolveValue(g, e.Value, r)
		if err != nil {
			return nil, fmt.Errorf("resolve %s for %s: %w", e.Name, container, err)
		}
		env[e.Name] = v
	}
	return env, nil
}

func resolveValue(g *ResourceGraph, v types.Value, r Resolver) (string, error) {
	if !v.Deferred() {
		return v.Literal, nil
	}
	if !r.Provisioned(v.Resource) {
		return "", NotProvisionedError{Resource: v.Resource}
	}

	if v.Kind == types.ValueParameter {
		return r.Parameter(v.Resource, v.Parameter)
	}

	alloc, err := r.Endpoint(v.Resource, v.Endpoint)
	if err != nil {
		return "", err
	}
	switch v.Property {
	case types.EndpointHost:
		return alloc.Host, nil
	case types.EndpointPort:
		return strconv.Itoa(alloc.Port), nil
	case types.EndpointURL:
		return fmt.Sprintf("%s://%s:%d", endpointScheme(g, v.Resource, v.Endpoint), alloc.Host, alloc.Port), nil
	default:
		return "", fmt.Errorf("unknown endpoint property %q", v.Property)
	}
}

func endpointScheme(g *ResourceGraph, resource, endpoint string) string {
	if ctr, ok := g.Container(resource); ok {
		if ep, ok := ctr.Endpoint(endpoint); ok && ep.Scheme != "" {
			return ep.Scheme
		}
	}
	return "tcp"
}
