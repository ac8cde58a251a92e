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

import "sort"

// tarjan is a single run of Tarjan's strongly-connected-components
// algorithm over g's adjacency list.
type tarjan struct {
	adj      map[string][]string
	index    map[string]int
	lowlink  map[string]int
	onStack  map[string]bool
	stack    []string
	counter  int
	sccs     [][]string
	selfLoop map[string]bool
}

// Cycles returns the strongly-connected components of size ≥ 2, plus any
// self-loop, each as a sorted node-id slice (§4.5 "Cycle detection on
// export"). Components are returned sorted by their first element for
// determinism.
func (g *Graph) Cycles() [][]string {
	t := &tarjan{
		adj:      g.adjacency(),
		index:    make(map[string]int),
		lowlink:  make(map[string]int),
		onStack:  make(map[string]bool),
		selfLoop: make(map[string]bool),
	}

	for _, to := range g.Edges() {
		if to.From == to.To {
			t.selfLoop[to.From] = true
		}
	}

	nodeIDs := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	for _, v := range nodeIDs {
		if _, visited := t.index[v]; !visited {
			t.strongConnect(v)
		}
	}

	var cycles [][]string
	for _, scc := range t.sccs {
		sort.Strings(scc)
		if len(scc) >= 2 {
			cycles = append(cycles, scc)
		} else if len(scc) == 1 && t.selfLoop[scc[0]] {
			cycles = append(cycles, scc)
		}
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}

func (t *tarjan) strongConnect(v string) {
	t.index[v] = t.counter
	t.lowlink[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.adj[v] {
		if _, visited := t.index[w]; !visited {
			t.strongConnect(w)
			if t.lowlink[w] < t.lowlink[v] {
				t.lowlink[v] = t.lowlink[w]
			}
		} else if t.onStack[w] {
			if t.index[w] < t.lowlink[v] {
				t.lowlink[v] = t.index[w]
			}
		}
	}

	if t.lowlink[v] == t.index[v] {
		var scc []string
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		t.sccs = append(t.sccs, scc)
	}
}
