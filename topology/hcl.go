package topology

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"apphost/types"
)

// hclRoot is decoded from a descriptor file.
type hclRoot struct {
	Name         string           `hcl:"name,optional"`
	Environments []hclEnvironment `hcl:"environment,block"`
	Servers      []hclServer      `hcl:"postgres,block"`
	Containers   []hclContainer   `hcl:"container,block"`
}

type hclEnvironment struct {
	Name string `hcl:"name,label"`
}

type hclServer struct {
	Name       string         `hcl:"name,label"`
	Auth       string         `hcl:"auth,optional"`
	Lifetime   string         `hcl:"lifetime,optional"`
	Backend    string         `hcl:"backend,optional"`
	Image      string         `hcl:"image,optional"`
	Tag        string         `hcl:"tag,optional"`
	DataVolume *hclDataVolume `hcl:"data_volume,block"`
	Databases  []hclDatabase  `hcl:"database,block"`
}

type hclDataVolume struct {
	Name     string `hcl:"name,optional"`
	Path     string `hcl:"path,optional"`
	ReadOnly bool   `hcl:"read_only,optional"`
}

type hclDatabase struct {
	Name string `hcl:"name,label"`
}

type hclContainer struct {
	Name       string         `hcl:"name,label"`
	Image      string         `hcl:"image"`
	Tag        string         `hcl:"tag,optional"`
	Env        hcl.Expression `hcl:"env,optional"`
	Endpoints  []hclEndpoint  `hcl:"http_endpoint,block"`
	Volumes    []hclVolume    `hcl:"volume,block"`
	WaitFor    []string       `hcl:"wait_for,optional"`
	References []string       `hcl:"references,optional"`
}

type hclEndpoint struct {
	Name       string `hcl:"name,label"`
	Port       int    `hcl:"port"`
	TargetPort int    `hcl:"target_port"`
}

type hclVolume struct {
	Name string `hcl:"name,label"`
	Path string `hcl:"path"`
}

// LoadHCLFile reads a descriptor file and builds its graph.
func LoadHCLFile(path string) (*ResourceGraph, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor %s: %w", path, err)
	}
	name, d, err := ParseHCL(src, path)
	if err != nil {
		return nil, err
	}
	return Evaluate(name, d)
}

// ParseHCL decodes an HCL descriptor into a Descriptor. Syntax errors are
// returned immediately; reference errors surface from Build.
func ParseHCL(src []byte, filename string) (string, Descriptor, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return "", nil, fmt.Errorf("%w: parse %s: %w", ErrInvalidDescriptor, filename, diags)
	}

	var root hclRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return "", nil, fmt.Errorf("%w: decode %s: %w", ErrInvalidDescriptor, filename, diags)
	}

	name := root.Name
	if name == "" {
		name = "apphost"
	}
	return name, root.declare, nil
}

func (root hclRoot) declare(b *Builder) {
	for _, env := range root.Environments {
		b.DeclareEnvironment(env.Name)
	}

	for _, s := range root.Servers {
		spec := ServerSpec{
			Auth:     types.AuthMode(s.Auth),
			Lifetime: types.Lifetime(s.Lifetime),
			Backend:  types.Backend(s.Backend),
			Image:    s.Image,
			Tag:      s.Tag,
		}
		if s.DataVolume != nil {
			spec.DataVolume = &types.VolumeMount{
				Name:     s.DataVolume.Name,
				Target:   s.DataVolume.Path,
				ReadOnly: s.DataVolume.ReadOnly,
			}
		}
		server := b.DeclareDatabaseServer(s.Name, spec)
		for _, db := range s.Databases {
			b.DeclareDatabase(server, db.Name)
		}
	}

	for _, c := range root.Containers {
		ctr := b.DeclareContainer(c.Name, c.Image, c.Tag)
		for _, ep := range c.Endpoints {
			b.AddHTTPEndpoint(ctr, ep.Port, ep.TargetPort, ep.Name)
		}
		if c.Env != nil {
			pairs, diags := hcl.ExprMap(c.Env)
			if diags.HasErrors() {
				// An absent optional attribute decodes to a null expression.
				if v, vdiags := c.Env.Value(nil); vdiags.HasErrors() || !v.IsNull() {
					b.fail(InvalidResourceError{Name: c.Name, Reason: "env must be an object: " + diags.Error()})
				}
			}
			for _, pair := range pairs {
				key, value, err := envPair(pair)
				if err != nil {
					b.fail(InvalidResourceError{Name: c.Name, Reason: err.Error()})
					continue
				}
				b.SetEnvironment(ctr, key, value)
			}
		}
		for _, v := range c.Volumes {
			b.AttachVolume(ctr, v.Name, v.Path)
		}
		for _, dep := range c.WaitFor {
			b.AddStartupDependency(ctr, b.Lookup(dep))
		}
		for _, dep := range c.References {
			b.AddReference(ctr, b.Lookup(dep))
		}
	}
}

func envPair(pair hcl.KeyValuePair) (string, types.Value, error) {
	keyVal, diags := pair.Key.Value(nil)
	if diags.HasErrors() {
		return "", types.Value{}, fmt.Errorf("env key: %s", diags.Error())
	}
	key, err := ctyString(keyVal)
	if err != nil {
		return "", types.Value{}, fmt.Errorf("env key: %w", err)
	}

	// Keyword literals such as false also convert to traversals, so only
	// variable references take the reference path.
	if expr, ok := pair.Value.(*hclsyntax.ScopeTraversalExpr); ok {
		v, err := traversalValue(expr.Traversal)
		if err != nil {
			return "", types.Value{}, fmt.Errorf("env %s: %w", key, err)
		}
		return key, v, nil
	}

	val, diags := pair.Value.Value(nil)
	if diags.HasErrors() {
		return "", types.Value{}, fmt.Errorf("env %s: %s", key, diags.Error())
	}
	s, err := ctyString(val)
	if err != nil {
		return "", types.Value{}, fmt.Errorf("env %s: %w", key, err)
	}
	return key, types.Literal(s), nil
}

// traversalValue maps <resource>.endpoint.<name>.<property> and
// <resource>.username|password onto deferred values.
func traversalValue(t hcl.Traversal) (types.Value, error) {
	attrs := make([]string, 0, len(t))
	attrs = append(attrs, t.RootName())
	for _, step := range t[1:] {
		attr, ok := step.(hcl.TraverseAttr)
		if !ok {
			return types.Value{}, fmt.Errorf("unsupported reference %s", formatTraversal(t))
		}
		attrs = append(attrs, attr.Name)
	}

	switch {
	case len(attrs) == 4 && attrs[1] == "endpoint":
		return types.EndpointValue(attrs[0], attrs[2], types.EndpointProperty(attrs[3])), nil
	case len(attrs) == 2 && (attrs[1] == types.ParamUserName || attrs[1] == types.ParamPassword):
		return types.ParameterValue(attrs[0], attrs[1]), nil
	default:
		return types.Value{}, fmt.Errorf("unsupported reference %s", formatTraversal(t))
	}
}

func ctyString(v cty.Value) (string, error) {
	if v.IsNull() || !v.IsKnown() {
		return "", fmt.Errorf("value must be known and not null")
	}
	s, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", err
	}
	return s.AsString(), nil
}

func formatTraversal(t hcl.Traversal) string {
	out := t.RootName()
	for _, step := range t[1:] {
		switch s := step.(type) {
		case hcl.TraverseAttr:
			out += "." + s.Name
		case hcl.TraverseIndex:
			out += "[...]"
		}
	}
	return out
}
