package types

import "fmt"

// ValueKind discriminates the variants of Value.
type ValueKind string

const (
	ValueLiteral   ValueKind = "literal"
	ValueEndpoint  ValueKind = "endpoint"
	ValueParameter ValueKind = "parameter"
)

// EndpointProperty selects one part of a resolved endpoint.
type EndpointProperty string

const (
	EndpointHost EndpointProperty = "host"
	EndpointPort EndpointProperty = "port"
	EndpointURL  EndpointProperty = "url"
)

const (
	ParamUserName = "username"
	ParamPassword = "password"
)

// Value is an environment value that is either known when the descriptor is
// written or bound to another resource and resolved once that resource is
// provisioned.
type Value struct {
	Kind      ValueKind        `json:"kind" yaml:"kind"`
	Literal   string           `json:"literal,omitempty" yaml:"literal,omitempty"`
	Resource  string           `json:"resource,omitempty" yaml:"resource,omitempty"`
	Endpoint  string           `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Property  EndpointProperty `json:"property,omitempty" yaml:"property,omitempty"`
	Parameter string           `json:"parameter,omitempty" yaml:"parameter,omitempty"`
}

// Literal returns a Value that resolves to s.
func Literal(s string) Value {
	return Value{Kind: ValueLiteral, Literal: s}
}

// EndpointValue returns a Value bound to a property of a resource endpoint.
func EndpointValue(resource, endpoint string, property EndpointProperty) Value {
	return Value{Kind: ValueEndpoint, Resource: resource, Endpoint: endpoint, Property: property}
}

// ParameterValue returns a Value bound to a resource parameter such as its password.
func ParameterValue(resource, name string) Value {
	return Value{Kind: ValueParameter, Resource: resource, Parameter: name}
}

// Deferred reports whether the value can only be resolved after provisioning.
func (v Value) Deferred() bool {
	return v.Kind == ValueEndpoint || v.Kind == ValueParameter
}

func (v Value) String() string {
	switch v.Kind {
	case ValueEndpoint:
		return fmt.Sprintf("{%s.endpoint.%s.%s}", v.Resource, v.Endpoint, v.Property)
	case ValueParameter:
		return fmt.Sprintf("{%s.%s}", v.Resource, v.Parameter)
	default:
		return v.Literal
	}
}
