// Package topology declares deployment topologies and compiles them into a
// ResourceGraph.
//
// A Descriptor runs against a Builder, which records database servers,
// logical databases, containers and compute environments together with their
// endpoints, environment variables, volumes and startup dependencies. Build
// validates every reference before anything is provisioned and returns an
// immutable graph whose TopoOrder lists dependencies first.
//
// Environment values that point at another resource's endpoint or
// credentials stay unresolved in the graph. A host resolves them with
// ResolveEnvironment once the referenced resources report provisioned.
package topology
