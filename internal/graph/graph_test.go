// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_IdempotentNodeAndEdgeInsertion(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "method:A::m", Kind: NodeMethod})
	g.AddNode(Node{ID: "method:A::m", Kind: NodeMethod, Label: "dup"})
	assert.Equal(t, 1, g.NodeCount())
	assert.Equal(t, "", g.Nodes()[0].Label)

	e := Edge{From: "method:A::m", To: "method:B::m", Kind: EdgeMethodCall, Dir: Downstream}
	g.AddEdge(e)
	g.AddEdge(e)
	assert.Equal(t, 1, g.EdgeCount())
}

// TestGraph_Cycle grounds S6: A::m <-> B::m both directions, detected once.
func TestGraph_Cycle(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "method:A::m", Kind: NodeMethod})
	g.AddNode(Node{ID: "method:B::m", Kind: NodeMethod})
	g.AddEdge(Edge{From: "method:A::m", To: "method:B::m", Kind: EdgeMethodCall, Dir: Downstream})
	g.AddEdge(Edge{From: "method:B::m", To: "method:A::m", Kind: EdgeMethodCall, Dir: Downstream})

	cycles := g.Cycles()
	require.Len(t, cycles, 1)
	assert.ElementsMatch(t, []string{"method:A::m", "method:B::m"}, cycles[0])
}

func TestGraph_SelfLoopIsACycle(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "method:A::m", Kind: NodeMethod})
	g.AddEdge(Edge{From: "method:A::m", To: "method:A::m", Kind: EdgeMethodCall, Dir: Downstream})

	cycles := g.Cycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"method:A::m"}, cycles[0])
}

func TestGraph_NoCycleForAcyclicGraph(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "method:A::m", Kind: NodeMethod})
	g.AddNode(Node{ID: "method:B::m", Kind: NodeMethod})
	g.AddEdge(Edge{From: "method:A::m", To: "method:B::m", Kind: EdgeMethodCall, Dir: Downstream})
	assert.Empty(t, g.Cycles())
}

func TestGraph_JSONRoundTrip(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "method:A::m", Kind: NodeMethod, Label: "A::m"})
	g.AddNode(Node{ID: "method:B::m", Kind: NodeMethod, Label: "B::m"})
	g.AddEdge(Edge{From: "method:A::m", To: "method:B::m", Kind: EdgeMethodCall, Dir: Downstream})

	data, err := MarshalJSON(g)
	require.NoError(t, err)

	g2, err := UnmarshalJSON(data)
	require.NoError(t, err)

	assert.ElementsMatch(t, g.Nodes(), g2.Nodes())
	assert.ElementsMatch(t, g.Edges(), g2.Edges())
}

func TestWriteDOT_ContainsStyledNodesAndEdges(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "method:A::m", Kind: NodeMethod})
	g.AddNode(Node{ID: "http:GET:svc/users", Kind: NodeHttpEndpoint})
	g.AddEdge(Edge{From: "http:GET:svc/users", To: "method:A::m", Kind: EdgeHttpCall, Dir: Upstream})

	dot := WriteDOT(g)
	assert.Contains(t, dot, "digraph impact")
	assert.Contains(t, dot, "method:A::m")
	assert.Contains(t, dot, "shape=ellipse")
	assert.Contains(t, dot, "color=blue")
}

func TestWriteMermaid_StableIDs(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "method:A::m", Kind: NodeMethod})
	g.AddNode(Node{ID: "method:B::m", Kind: NodeMethod})
	g.AddEdge(Edge{From: "method:A::m", To: "method:B::m", Kind: EdgeMethodCall, Dir: Downstream})

	out1 := WriteMermaid(g)
	out2 := WriteMermaid(g)
	assert.Equal(t, out1, out2)
	assert.Contains(t, out1, "graph TD")
}
