package topology

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"apphost/types"
)

// EdgeKind describes why one resource depends on another.
type EdgeKind string

const (
	EdgeParent    EdgeKind = "parent"    // logical database on its server
	EdgeWaitFor   EdgeKind = "wait-for"  // start only after the target is ready
	EdgeReference EdgeKind = "reference" // consumes the target
	EdgeValue     EdgeKind = "value"     // an environment value resolves against the target
)

type Node struct {
	Name string             `json:"name" yaml:"name"`
	Kind types.ResourceKind `json:"kind" yaml:"kind"`
}

// Edge means "From depends on To".
type Edge struct {
	From string   `json:"from" yaml:"from"`
	To   string   `json:"to" yaml:"to"`
	Kind EdgeKind `json:"kind" yaml:"kind"`
}

// ResourceGraph is the validated output of a descriptor, ready to hand to a host.
type ResourceGraph struct {
	Name         string                     `json:"name" yaml:"name"`
	Environments []types.ComputeEnvironment `json:"environments,omitempty" yaml:"environments,omitempty"`
	Servers      []types.DatabaseServer     `json:"servers,omitempty" yaml:"servers,omitempty"`
	Databases    []types.Database           `json:"databases,omitempty" yaml:"databases,omitempty"`
	Containers   []types.Container          `json:"containers,omitempty" yaml:"containers,omitempty"`
	Nodes        []Node                     `json:"nodes" yaml:"nodes"`
	Edges        []Edge                     `json:"edges" yaml:"edges"`
	TopoOrder    []string                   `json:"topo_order" yaml:"topo_order"`
}

func (g *ResourceGraph) addEdge(from, to string, kind EdgeKind) {
	for _, e := range g.Edges {
		if e.From == from && e.To == to && e.Kind == kind {
			return
		}
	}
	g.Edges = append(g.Edges, Edge{From: from, To: to, Kind: kind})
}

// Node returns the node with the given name.
func (g *ResourceGraph) Node(name string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// Server returns the database server with the given name.
func (g *ResourceGraph) Server(name string) (types.DatabaseServer, bool) {
	for _, s := range g.Servers {
		if s.Name == name {
			return s, true
		}
	}
	return types.DatabaseServer{}, false
}

// Database returns the logical database with the given name.
func (g *ResourceGraph) Database(name string) (types.Database, bool) {
	for _, d := range g.Databases {
		if d.Name == name {
			return d, true
		}
	}
	return types.Database{}, false
}

// Container returns the container with the given name.
func (g *ResourceGraph) Container(name string) (types.Container, bool) {
	for _, c := range g.Containers {
		if c.Name == name {
			return c, true
		}
	}
	return types.Container{}, false
}

// DependenciesOf lists the resources name depends on directly, in edge order.
func (g *ResourceGraph) DependenciesOf(name string) []string {
	var deps []string
	for _, e := range g.Edges {
		if e.From == name {
			deps = appendUnique(deps, e.To)
		}
	}
	return deps
}

// Format is an export format for a ResourceGraph.
type Format string

const (
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatDOT     Format = "dot"
	FormatMermaid Format = "mermaid"
)

// Encode writes the graph to w in the given format.
func (g *ResourceGraph) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(g)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(g); err != nil {
			return err
		}
		return enc.Close()
	case FormatDOT:
		_, err := io.WriteString(w, g.DOT())
		return err
	case FormatMermaid:
		_, err := io.WriteString(w, g.Mermaid())
		return err
	default:
		return fmt.Errorf("unknown graph format %q", format)
	}
}

// DOT exports Graphviz DOT text.
func (g *ResourceGraph) DOT() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("digraph %q {\n", g.Name))
	b.WriteString("  rankdir=LR;\n")

	aliases := make(map[string]string, len(g.Nodes))
	for i, n := range g.Nodes {
		alias := fmt.Sprintf("n%d", i)
		aliases[n.Name] = alias
		label := escapeDOT(n.Name) + "\\n(" + escapeDOT(string(n.Kind)) + ")"
		b.WriteString(fmt.Sprintf("  %s [label=\"%s\"];\n", alias, label))
	}
	for _, e := range g.Edges {
		from, okFrom := aliases[e.From]
		to, okTo := aliases[e.To]
		if !okFrom || !okTo {
			continue
		}
		b.WriteString(fmt.Sprintf("  %s -> %s [label=\"%s\"];\n", from, to, escapeDOT(string(e.Kind))))
	}
	b.WriteString("}\n")
	return b.String()
}

// Mermaid exports Mermaid graph text.
func (g *ResourceGraph) Mermaid() string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	aliases := make(map[string]string, len(g.Nodes))
	for i, n := range g.Nodes {
		alias := fmt.Sprintf("n%d", i)
		aliases[n.Name] = alias
		label := escapeMermaid(n.Name) + "<br/>(" + escapeMermaid(string(n.Kind)) + ")"
		b.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", alias, label))
	}
	for _, e := range g.Edges {
		from, okFrom := aliases[e.From]
		to, okTo := aliases[e.To]
		if !okFrom || !okTo {
			continue
		}
		b.WriteString(fmt.Sprintf("    %s -->|%s| %s\n", from, escapeMermaid(string(e.Kind)), to))
	}
	return b.String()
}

func escapeDOT(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	return strings.ReplaceAll(s, "\"", "\\\"")
}

func escapeMermaid(s string) string {
	return strings.ReplaceAll(s, "\"", "#quot;")
}
