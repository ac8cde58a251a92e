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

import "encoding/json"

// jsonNode/jsonEdge/jsonDocument mirror the §6 "Graph emission" JSON shape.
type jsonNode struct {
	ID       string            `json:"id"`
	Kind     NodeKind          `json:"kind"`
	Label    string            `json:"label,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type jsonEdge struct {
	From      string            `json:"from"`
	To        string            `json:"to"`
	Kind      EdgeKind          `json:"kind"`
	Direction Direction         `json:"direction"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type jsonStatistics struct {
	NodeCount  int `json:"node_count"`
	EdgeCount  int `json:"edge_count"`
	CycleCount int `json:"cycle_count"`
}

type jsonDocument struct {
	Nodes      []jsonNode     `json:"nodes"`
	Edges      []jsonEdge     `json:"edges"`
	Cycles     [][]string     `json:"cycles"`
	Statistics jsonStatistics `json:"statistics"`
}

// MarshalJSON renders g as the canonical {nodes, edges, cycles, statistics}
// document, with node/edge order stable across calls for the round-trip law
// (§8 "Graph -> JSON -> Graph is identity up to node/edge set equality").
func MarshalJSON(g *Graph) ([]byte, error) {
	doc := toDocument(g)
	return json.MarshalIndent(doc, "", "  ")
}

func toDocument(g *Graph) jsonDocument {
	nodes := g.Nodes()
	edges := g.Edges()
	cycles := g.Cycles()

	doc := jsonDocument{
		Nodes:  make([]jsonNode, len(nodes)),
		Edges:  make([]jsonEdge, len(edges)),
		Cycles: cycles,
		Statistics: jsonStatistics{
			NodeCount:  len(nodes),
			EdgeCount:  len(edges),
			CycleCount: len(cycles),
		},
	}
	for i, n := range nodes {
		doc.Nodes[i] = jsonNode{ID: n.ID, Kind: n.Kind, Label: n.Label, Metadata: n.Metadata}
	}
	for i, e := range edges {
		doc.Edges[i] = jsonEdge{From: e.From, To: e.To, Kind: e.Kind, Direction: e.Dir, Metadata: e.Metadata}
	}
	if doc.Cycles == nil {
		doc.Cycles = [][]string{}
	}
	return doc
}

// UnmarshalJSON parses data produced by MarshalJSON back into a Graph,
// reconstructing nodes and edges (cycles are derived, not carried back in —
// they're recomputed by Graph.Cycles on the reconstructed structure).
func UnmarshalJSON(data []byte) (*Graph, error) {
	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	g := New()
	for _, n := range doc.Nodes {
		g.AddNode(Node{ID: n.ID, Kind: n.Kind, Label: n.Label, Metadata: n.Metadata})
	}
	for _, e := range doc.Edges {
		g.AddEdge(Edge{From: e.From, To: e.To, Kind: e.Kind, Dir: e.Direction, Metadata: e.Metadata})
	}
	return g, nil
}
