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

// Package tracer implements the bounded bidirectional impact trace (§4.3):
// starting from a seed set of changed methods, it expands through direct
// calls and cross-service resource edges (HTTP, Kafka, DB, Redis) up to a
// configured depth, producing a typed ImpactGraph.
package tracer

import (
	"context"
	"fmt"
	"sort"

	"github.com/paxoscn/code-impact-analyzer/internal/graph"
	"github.com/paxoscn/code-impact-analyzer/internal/index"
	"github.com/paxoscn/code-impact-analyzer/internal/model"
)

// Config controls one trace run (§4.3 "a configuration").
type Config struct {
	MaxDepth          int
	TraceUpstream     bool
	TraceDownstream   bool
	TraceCrossService bool
}

// DefaultConfig matches the CLI's default (§6 "--max-depth N (default 10)"),
// with both directions and cross-service expansion enabled.
func DefaultConfig() Config {
	return Config{
		MaxDepth:          10,
		TraceUpstream:     true,
		TraceDownstream:   true,
		TraceCrossService: true,
	}
}

// DeadEndSeed is recorded when a seed method is absent from the index (§7
// "Trace dead-end").
type DeadEndSeed struct {
	Method string
}

// Tracer runs bounded bidirectional expansion over an immutable CodeIndex.
type Tracer struct {
	Index *index.CodeIndex
}

// New creates a Tracer over idx. idx must not be mutated while in use (§5
// "CodeIndex is exclusive to one owner during build; after build it is
// immutable").
func New(idx *index.CodeIndex) *Tracer {
	return &Tracer{Index: idx}
}

// Result is the outcome of a Trace call: the built graph plus any dead-end
// seeds encountered.
type Result struct {
	Graph    *graph.Graph
	DeadEnds []DeadEndSeed
}

// visitKey disambiguates a method visited in the upstream direction from
// the same method visited downstream — both directions share one overall
// visited set per §4.3 "sharing a single visited set across seeds", but a
// method can legitimately be expanded once per direction within one trace.
type visitKey struct {
	method string
	dir    graph.Direction
}

// trace carries the mutable state of one Trace call.
type trace struct {
	idx     *index.CodeIndex
	cfg     Config
	g       *graph.Graph
	visited map[visitKey]bool
	ctx     context.Context
}

// Trace runs the configured expansion from every seed, sharing a single
// visited set across all seeds (§4.3 "Algorithm"). Cancellation is checked
// between node expansions (§5 "Cancellation"); if ctx is cancelled mid-trace,
// Trace returns the context error and no partial graph (§4.3 "No partial
// graph is emitted on cancellation").
func Trace(ctx context.Context, idx *index.CodeIndex, cfg Config, seeds []string) (*Result, error) {
	t := &trace{
		idx:     idx,
		cfg:     cfg,
		g:       graph.New(),
		visited: make(map[visitKey]bool),
		ctx:     ctx,
	}

	sortedSeeds := make([]string, len(seeds))
	copy(sortedSeeds, seeds)
	sort.Strings(sortedSeeds)

	var deadEnds []DeadEndSeed
	for _, seed := range sortedSeeds {
		if !idx.HasMethod(seed) {
			deadEnds = append(deadEnds, DeadEndSeed{Method: seed})
			continue
		}
		t.g.AddNode(graph.Node{ID: graph.MethodNodeID(seed), Kind: graph.NodeMethod, Label: seed})

		if cfg.TraceUpstream {
			if err := t.expandUpstream(seed, 0); err != nil {
				return nil, err
			}
		}
		if cfg.TraceDownstream {
			if err := t.expandDownstream(seed, 0); err != nil {
				return nil, err
			}
		}
	}

	return &Result{Graph: t.g, DeadEnds: deadEnds}, nil
}

func (t *trace) checkCancel() error {
	select {
	case <-t.ctx.Done():
		return t.ctx.Err()
	default:
		return nil
	}
}

// expandUpstream implements §4.3's upstream expansion of method M at depth d.
func (t *trace) expandUpstream(method string, depth int) error {
	if err := t.checkCancel(); err != nil {
		return err
	}
	key := visitKey{method: method, dir: graph.Upstream}
	if depth >= t.cfg.MaxDepth || t.visited[key] {
		return nil
	}
	t.visited[key] = true

	m, ok := t.idx.Methods[method]
	if !ok {
		return nil
	}

	for _, caller := range t.idx.CallersOf(method) {
		if !t.idx.HasMethod(caller) {
			continue
		}
		t.g.AddNode(graph.Node{ID: graph.MethodNodeID(caller), Kind: graph.NodeMethod, Label: caller})
		t.g.AddNode(graph.Node{ID: graph.MethodNodeID(method), Kind: graph.NodeMethod, Label: method})
		t.g.AddEdge(graph.Edge{
			From: graph.MethodNodeID(caller),
			To:   graph.MethodNodeID(method),
			Kind: graph.EdgeMethodCall,
			Dir:  graph.Upstream,
		})
		if err := t.expandUpstream(caller, depth+1); err != nil {
			return err
		}
	}

	if !t.cfg.TraceCrossService {
		return nil
	}

	if m.IsProvider() {
		if err := t.expandHTTPUpstream(m, depth); err != nil {
			return err
		}
	}
	if err := t.expandKafkaUpstream(m, depth); err != nil {
		return err
	}
	if err := t.expandDBUpstream(m, depth); err != nil {
		return err
	}
	if err := t.expandRedisUpstream(m, depth); err != nil {
		return err
	}

	return nil
}

// expandDownstream implements §4.3's downstream expansion, symmetric to
// expandUpstream.
func (t *trace) expandDownstream(method string, depth int) error {
	if err := t.checkCancel(); err != nil {
		return err
	}
	key := visitKey{method: method, dir: graph.Downstream}
	if depth >= t.cfg.MaxDepth || t.visited[key] {
		return nil
	}
	t.visited[key] = true

	m, ok := t.idx.Methods[method]
	if !ok {
		return nil
	}

	for _, callee := range t.idx.ForwardCalleesOf(method) {
		if !t.idx.HasMethod(callee) {
			continue
		}
		t.g.AddNode(graph.Node{ID: graph.MethodNodeID(method), Kind: graph.NodeMethod, Label: method})
		t.g.AddNode(graph.Node{ID: graph.MethodNodeID(callee), Kind: graph.NodeMethod, Label: callee})
		t.g.AddEdge(graph.Edge{
			From: graph.MethodNodeID(method),
			To:   graph.MethodNodeID(callee),
			Kind: graph.EdgeMethodCall,
			Dir:  graph.Downstream,
		})
		if err := t.expandDownstream(callee, depth+1); err != nil {
			return err
		}
	}

	if !t.cfg.TraceCrossService {
		return nil
	}

	if m.IsFeignConsumer() {
		if err := t.expandHTTPDownstream(m, depth); err != nil {
			return err
		}
	}
	if err := t.expandKafkaDownstream(m, depth); err != nil {
		return err
	}
	if err := t.expandDBDownstream(m, depth); err != nil {
		return err
	}
	if err := t.expandRedisDownstream(m, depth); err != nil {
		return err
	}

	return nil
}

// expandHTTPUpstream adds endpoint -> method (HttpCall, Upstream) and
// recurses on each Feign consumer of the endpoint (§4.3 step 6).
func (t *trace) expandHTTPUpstream(m model.MethodInfo, depth int) error {
	endpoint, ok := index.Endpoint(m)
	if !ok {
		return nil
	}
	endpointID := graph.HttpNodeID(endpoint.Verb, endpoint.Path)
	t.g.AddNode(graph.Node{ID: endpointID, Kind: graph.NodeHttpEndpoint, Label: endpoint.String()})
	t.g.AddNode(graph.Node{ID: graph.MethodNodeID(m.QualifiedName), Kind: graph.NodeMethod, Label: m.QualifiedName})
	t.g.AddEdge(graph.Edge{From: endpointID, To: graph.MethodNodeID(m.QualifiedName), Kind: graph.EdgeHttpCall, Dir: graph.Upstream})

	for _, consumer := range t.Index().ConsumersOf(endpoint) {
		if !t.idx.HasMethod(consumer) {
			continue
		}
		// The consumer's own Feign call is itself a downstream HTTP edge
		// back to this endpoint (§4.3 scenario "provider -> consumer ->
		// consumer's callers" must round-trip through both directions).
		if err := t.expandHTTPDownstream(t.idx.Methods[consumer], depth+1); err != nil {
			return err
		}
		if err := t.expandUpstream(consumer, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// expandHTTPDownstream adds method -> endpoint (HttpCall, Downstream) and
// recurses on the endpoint's provider (§4.3 downstream step 4).
func (t *trace) expandHTTPDownstream(m model.MethodInfo, depth int) error {
	endpoint, ok := index.Endpoint(m)
	if !ok {
		return nil
	}
	endpointID := graph.HttpNodeID(endpoint.Verb, endpoint.Path)
	t.g.AddNode(graph.Node{ID: graph.MethodNodeID(m.QualifiedName), Kind: graph.NodeMethod, Label: m.QualifiedName})
	t.g.AddNode(graph.Node{ID: endpointID, Kind: graph.NodeHttpEndpoint, Label: endpoint.String()})
	t.g.AddEdge(graph.Edge{From: graph.MethodNodeID(m.QualifiedName), To: endpointID, Kind: graph.EdgeHttpCall, Dir: graph.Downstream})

	provider, ok := t.idx.ProviderOf(endpoint)
	if !ok || !t.idx.HasMethod(provider) {
		return nil
	}
	return t.expandDownstream(provider, depth+1)
}

// expandKafkaUpstream handles consume ops: edge topic -> method, recurse on
// producers (§4.3 step 7).
func (t *trace) expandKafkaUpstream(m model.MethodInfo, depth int) error {
	for _, op := range m.KafkaOps {
		if op.Kind != model.OpConsume {
			continue
		}
		topicID := graph.KafkaNodeID(op.Topic)
		t.g.AddNode(graph.Node{ID: topicID, Kind: graph.NodeKafkaTopic, Label: op.Topic})
		t.g.AddNode(graph.Node{ID: graph.MethodNodeID(m.QualifiedName), Kind: graph.NodeMethod, Label: m.QualifiedName})
		t.g.AddEdge(graph.Edge{From: topicID, To: graph.MethodNodeID(m.QualifiedName), Kind: graph.EdgeKafkaProduceConsume, Dir: graph.Upstream})

		for _, producer := range t.idx.KafkaProducersOf(op.Topic) {
			if !t.idx.HasMethod(producer) {
				continue
			}
			if err := t.expandUpstream(producer, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// expandKafkaDownstream handles produce ops: edges method -> topic ->
// consumer, recurse on consumers.
func (t *trace) expandKafkaDownstream(m model.MethodInfo, depth int) error {
	for _, op := range m.KafkaOps {
		if op.Kind != model.OpProduce {
			continue
		}
		topicID := graph.KafkaNodeID(op.Topic)
		t.g.AddNode(graph.Node{ID: graph.MethodNodeID(m.QualifiedName), Kind: graph.NodeMethod, Label: m.QualifiedName})
		t.g.AddNode(graph.Node{ID: topicID, Kind: graph.NodeKafkaTopic, Label: op.Topic})
		t.g.AddEdge(graph.Edge{From: graph.MethodNodeID(m.QualifiedName), To: topicID, Kind: graph.EdgeKafkaProduceConsume, Dir: graph.Downstream})

		for _, consumer := range t.idx.KafkaConsumersOf(op.Topic) {
			if !t.idx.HasMethod(consumer) {
				continue
			}
			t.g.AddNode(graph.Node{ID: graph.MethodNodeID(consumer), Kind: graph.NodeMethod, Label: consumer})
			t.g.AddEdge(graph.Edge{From: topicID, To: graph.MethodNodeID(consumer), Kind: graph.EdgeKafkaProduceConsume, Dir: graph.Downstream})
			if err := t.expandDownstream(consumer, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// expandDBUpstream handles Select ops: edge table -> method, recurse on
// writers.
func (t *trace) expandDBUpstream(m model.MethodInfo, depth int) error {
	for _, op := range m.DBOps {
		if op.Kind != model.OpSelect {
			continue
		}
		tableID := graph.DBNodeID(op.Table)
		t.g.AddNode(graph.Node{ID: tableID, Kind: graph.NodeDatabaseTable, Label: op.Table})
		t.g.AddNode(graph.Node{ID: graph.MethodNodeID(m.QualifiedName), Kind: graph.NodeMethod, Label: m.QualifiedName})
		t.g.AddEdge(graph.Edge{From: tableID, To: graph.MethodNodeID(m.QualifiedName), Kind: graph.EdgeDatabaseReadWrite, Dir: graph.Upstream})

		for _, writer := range t.idx.DBWritersOf(op.Table) {
			if !t.idx.HasMethod(writer) {
				continue
			}
			if err := t.expandUpstream(writer, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// expandDBDownstream handles Insert/Update/Delete ops: edge method -> table,
// recurse on readers.
func (t *trace) expandDBDownstream(m model.MethodInfo, depth int) error {
	for _, op := range m.DBOps {
		if op.Kind != model.OpInsert && op.Kind != model.OpUpdate && op.Kind != model.OpDelete {
			continue
		}
		tableID := graph.DBNodeID(op.Table)
		t.g.AddNode(graph.Node{ID: graph.MethodNodeID(m.QualifiedName), Kind: graph.NodeMethod, Label: m.QualifiedName})
		t.g.AddNode(graph.Node{ID: tableID, Kind: graph.NodeDatabaseTable, Label: op.Table})
		t.g.AddEdge(graph.Edge{From: graph.MethodNodeID(m.QualifiedName), To: tableID, Kind: graph.EdgeDatabaseReadWrite, Dir: graph.Downstream})

		for _, reader := range t.idx.DBReadersOf(op.Table) {
			if !t.idx.HasMethod(reader) {
				continue
			}
			if err := t.expandDownstream(reader, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// expandRedisUpstream handles Get ops: edge key-pattern -> method, recurse
// on prefix-matching writers (§4.4).
func (t *trace) expandRedisUpstream(m model.MethodInfo, depth int) error {
	for _, op := range m.RedisOps {
		if op.Kind != model.OpGet {
			continue
		}
		patternID := graph.RedisNodeID(op.Pattern)
		t.g.AddNode(graph.Node{ID: patternID, Kind: graph.NodeRedisPrefix, Label: op.Pattern})
		t.g.AddNode(graph.Node{ID: graph.MethodNodeID(m.QualifiedName), Kind: graph.NodeMethod, Label: m.QualifiedName})
		t.g.AddEdge(graph.Edge{From: patternID, To: graph.MethodNodeID(m.QualifiedName), Kind: graph.EdgeRedisReadWrite, Dir: graph.Upstream})

		for _, writer := range t.idx.RedisWritersMatching(op.Pattern) {
			if !t.idx.HasMethod(writer) {
				continue
			}
			if err := t.expandUpstream(writer, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// expandRedisDownstream handles Set/Delete ops: edge method -> key-pattern,
// recurse on prefix-matching readers.
func (t *trace) expandRedisDownstream(m model.MethodInfo, depth int) error {
	for _, op := range m.RedisOps {
		if op.Kind != model.OpSet && op.Kind != model.OpDelete {
			continue
		}
		patternID := graph.RedisNodeID(op.Pattern)
		t.g.AddNode(graph.Node{ID: graph.MethodNodeID(m.QualifiedName), Kind: graph.NodeMethod, Label: m.QualifiedName})
		t.g.AddNode(graph.Node{ID: patternID, Kind: graph.NodeRedisPrefix, Label: op.Pattern})
		t.g.AddEdge(graph.Edge{From: graph.MethodNodeID(m.QualifiedName), To: patternID, Kind: graph.EdgeRedisReadWrite, Dir: graph.Downstream})

		for _, reader := range t.idx.RedisReadersMatching(op.Pattern) {
			if !t.idx.HasMethod(reader) {
				continue
			}
			if err := t.expandDownstream(reader, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// Index exposes the underlying CodeIndex, used by the small set of helper
// expansion methods that need direct map access beyond what Config exposes.
func (t *trace) Index() *index.CodeIndex { return t.idx }

// String renders a DeadEndSeed for log lines.
func (d DeadEndSeed) String() string {
	return fmt.Sprintf("seed not present in index: %s", d.Method)
}
