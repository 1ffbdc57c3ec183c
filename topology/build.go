package topology

import (
	"errors"
	"fmt"

	"apphost/types"
)

// Build validates every declaration and reference and returns the finished
// graph. All problems found are returned together, each wrapping
// ErrInvalidDescriptor. Build does not modify the builder and returns an
// identical graph when called again.
func (b *Builder) Build() (*ResourceGraph, error) {
	errs := append([]error(nil), b.errs...)

	for _, name := range b.order {
		ctr, ok := b.containers[name]
		if !ok {
			continue
		}
		for _, dep := range ctr.WaitFor {
			if _, ok := b.kinds[dep]; !ok {
				errs = append(errs, UndeclaredResourceError{Name: dep, By: fmt.Sprintf("wait-for on %q", ctr.Name)})
			}
		}
		for _, dep := range ctr.References {
			if _, ok := b.kinds[dep]; !ok {
				errs = append(errs, UndeclaredResourceError{Name: dep, By: fmt.Sprintf("reference on %q", ctr.Name)})
			}
		}
		for _, env := range ctr.Env {
			if err := b.checkValue(ctr.Name, env); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	g := &ResourceGraph{Name: b.name}
	for _, name := range b.order {
		kind := b.kinds[name]
		g.Nodes = append(g.Nodes, Node{Name: name, Kind: kind})

		switch kind {
		case types.KindEnvironment:
			g.Environments = append(g.Environments, *b.environments[name])
		case types.KindDatabaseServer:
			g.Servers = append(g.Servers, cloneServer(*b.servers[name]))
		case types.KindDatabase:
			db := *b.databases[name]
			g.Databases = append(g.Databases, db)
			g.addEdge(name, db.Server, EdgeParent)
		case types.KindContainer:
			ctr := cloneContainer(*b.containers[name])
			g.Containers = append(g.Containers, ctr)
			for _, dep := range ctr.WaitFor {
				g.addEdge(name, dep, EdgeWaitFor)
			}
			for _, dep := range ctr.References {
				g.addEdge(name, dep, EdgeReference)
			}
			for _, env := range ctr.Env {
				if env.Value.Deferred() && env.Value.Resource != name {
					g.addEdge(name, env.Value.Resource, EdgeValue)
				}
			}
		}
	}

	topo, err := topoSort(b.order, g.Edges)
	if err != nil {
		return nil, err
	}
	g.TopoOrder = topo
	return g, nil
}

func (b *Builder) checkValue(container string, env types.EnvVar) error {
	v := env.Value
	by := fmt.Sprintf("environment variable %q of %q", env.Name, container)
	switch v.Kind {
	case types.ValueLiteral:
		return nil
	case types.ValueEndpoint:
		kind, ok := b.kinds[v.Resource]
		if !ok {
			return UndeclaredResourceError{Name: v.Resource, By: by}
		}
		switch kind {
		case types.KindDatabaseServer:
			if v.Endpoint != types.PostgresEndpointName {
				return UnknownEndpointError{Resource: v.Resource, Endpoint: v.Endpoint}
			}
		case types.KindContainer:
			if _, ok := b.containers[v.Resource].Endpoint(v.Endpoint); !ok {
				return UnknownEndpointError{Resource: v.Resource, Endpoint: v.Endpoint}
			}
		default:
			return UnknownEndpointError{Resource: v.Resource, Endpoint: v.Endpoint}
		}
		switch v.Property {
		case types.EndpointHost, types.EndpointPort, types.EndpointURL:
			return nil
		default:
			return InvalidResourceError{Name: container, Reason: fmt.Sprintf("%s: unknown endpoint property %q", by, v.Property)}
		}
	case types.ValueParameter:
		kind, ok := b.kinds[v.Resource]
		if !ok {
			return UndeclaredResourceError{Name: v.Resource, By: by}
		}
		if kind != types.KindDatabaseServer {
			return InvalidResourceError{Name: container, Reason: fmt.Sprintf("%s: %q has no parameters", by, v.Resource)}
		}
		if v.Parameter != types.ParamUserName && v.Parameter != types.ParamPassword {
			return InvalidResourceError{Name: container, Reason: fmt.Sprintf("%s: unknown parameter %q", by, v.Parameter)}
		}
		return nil
	default:
		return InvalidResourceError{Name: container, Reason: fmt.Sprintf("%s: unknown value kind %q", by, v.Kind)}
	}
}

func topoSort(order []string, edges []Edge) ([]string, error) {
	const (
		stateNew uint8 = iota
		stateVisiting
		stateDone
	)

	deps := make(map[string][]string, len(order))
	for _, e := range edges {
		deps[e.From] = appendUnique(deps[e.From], e.To)
	}

	state := make(map[string]uint8, len(order))
	stack := make([]string, 0, len(order))
	stackPos := make(map[string]int, len(order))
	topo := make([]string, 0, len(order))

	var dfs func(name string) error
	dfs = func(name string) error {
		state[name] = stateVisiting
		stackPos[name] = len(stack)
		stack = append(stack, name)

		for _, dep := range deps[name] {
			switch state[dep] {
			case stateDone:
				continue
			case stateVisiting:
				cycle := append([]string(nil), stack[stackPos[dep]:]...)
				cycle = append(cycle, dep)
				return CycleDetectedError{Path: cycle}
			}
			if err := dfs(dep); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		delete(stackPos, name)
		state[name] = stateDone
		topo = append(topo, name)
		return nil
	}

	for _, name := range order {
		if state[name] == stateDone {
			continue
		}
		if err := dfs(name); err != nil {
			return nil, err
		}
	}
	return topo, nil
}

func cloneServer(s types.DatabaseServer) types.DatabaseServer {
	if s.DataVolume != nil {
		vol := *s.DataVolume
		s.DataVolume = &vol
	}
	return s
}

func cloneContainer(c types.Container) types.Container {
	c.Endpoints = append([]types.Endpoint(nil), c.Endpoints...)
	c.Env = append([]types.EnvVar(nil), c.Env...)
	c.Volumes = append([]types.VolumeMount(nil), c.Volumes...)
	c.WaitFor = append([]string(nil), c.WaitFor...)
	c.References = append([]string(nil), c.References...)
	return c
}
