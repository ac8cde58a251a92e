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
	"regexp"
	"strings"
)

var mermaidIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// mermaidNodeID maps a graph node id to a Mermaid-safe identifier, stable
// across emissions for the same input so diffing two emitted graphs is
// meaningful (§6 "node ids stable across emissions for diffing").
func mermaidNodeID(id string) string {
	return "n" + mermaidIDSanitizer.ReplaceAllString(id, "_")
}

var edgeArrows = map[EdgeKind]string{
	EdgeMethodCall:          "-->",
	EdgeHttpCall:            "-.->",
	EdgeKafkaProduceConsume: "==>",
	EdgeDatabaseReadWrite:   "-->",
	EdgeRedisReadWrite:      "-->",
}

// WriteMermaid renders g as a Mermaid `graph TD` flowchart.
func WriteMermaid(g *Graph) string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	for _, n := range g.Nodes() {
		label := n.Label
		if label == "" {
			label = n.ID
		}
		fmt.Fprintf(&b, "  %s[%q]\n", mermaidNodeID(n.ID), label)
	}

	for _, e := range g.Edges() {
		arrow := edgeArrows[e.Kind]
		if arrow == "" {
			arrow = "-->"
		}
		fmt.Fprintf(&b, "  %s %s|%s| %s\n", mermaidNodeID(e.From), arrow, string(e.Kind), mermaidNodeID(e.To))
	}

	return b.String()
}
