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
	"fmt"
	"strings"
)

// nodeShapes and edgeColors tie visual style to node/edge kind (§6 "DOT:
// each node on its own line with shape/style tied to node kind; edges
// styled by edge_kind"). No ecosystem DOT-writer library appears anywhere
// in this codebase's dependency surface, so the format is emitted directly
// as text (see design notes on hand-written serializers).
var nodeShapes = map[NodeKind]string{
	NodeMethod:        "box",
	NodeHttpEndpoint:  "ellipse",
	NodeKafkaTopic:    "hexagon",
	NodeDatabaseTable: "cylinder",
	NodeRedisPrefix:   "diamond",
}

var edgeColors = map[EdgeKind]string{
	EdgeMethodCall:          "black",
	EdgeHttpCall:            "blue",
	EdgeKafkaProduceConsume: "orange",
	EdgeDatabaseReadWrite:   "green",
	EdgeRedisReadWrite:      "red",
}

// WriteDOT renders g as a Graphviz DOT digraph.
func WriteDOT(g *Graph) string {
	var b strings.Builder
	b.WriteString("digraph impact {\n")

	for _, n := range g.Nodes() {
		shape := nodeShapes[n.Kind]
		if shape == "" {
			shape = "box"
		}
		fmt.Fprintf(&b, "  %q [shape=%s, label=%q];\n", n.ID, shape, dotLabel(n))
	}

	for _, e := range g.Edges() {
		color := edgeColors[e.Kind]
		if color == "" {
			color = "black"
		}
		style := "solid"
		if e.Dir == Upstream {
			style = "dashed"
		}
		fmt.Fprintf(&b, "  %q -> %q [color=%s, style=%s, label=%q];\n", e.From, e.To, color, style, string(e.Kind))
	}

	b.WriteString("}\n")
	return b.String()
}

func dotLabel(n Node) string {
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}
