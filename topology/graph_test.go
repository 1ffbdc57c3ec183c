package topology

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestGraphExports(t *testing.T) {
	g, err := Evaluate("sample", sampleDescriptor)
	require.NoError(t, err)

	dot := g.DOT()
	assert.True(t, strings.HasPrefix(dot, `digraph "sample" {`))
	assert.Contains(t, dot, `n2 -> n1 [label="wait-for"];`)
	assert.Contains(t, dot, `n1 -> n0 [label="parent"];`)

	mermaid := g.Mermaid()
	assert.True(t, strings.HasPrefix(mermaid, "graph TD\n"))
	assert.Contains(t, mermaid, `n2 -->|wait-for| n1`)
	assert.Contains(t, mermaid, `n0["postgres<br/>(postgres)"]`)
}

func TestGraphEncodeRoundTrip(t *testing.T) {
	g, err := Evaluate("sample", sampleDescriptor)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, g.Encode(&buf, FormatJSON))
	var fromJSON ResourceGraph
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fromJSON))
	assert.Equal(t, g.TopoOrder, fromJSON.TopoOrder)
	assert.Equal(t, g.Containers, fromJSON.Containers)

	buf.Reset()
	require.NoError(t, g.Encode(&buf, FormatYAML))
	var fromYAML ResourceGraph
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Equal(t, g.Edges, fromYAML.Edges)
	assert.Equal(t, g.Servers, fromYAML.Servers)

	assert.Error(t, g.Encode(&buf, Format("xml")))
}
