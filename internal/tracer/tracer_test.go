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

package tracer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paxoscn/code-impact-analyzer/internal/graph"
	"github.com/paxoscn/code-impact-analyzer/internal/index"
	"github.com/paxoscn/code-impact-analyzer/internal/model"
)

func buildIndex(t *testing.T, files ...*model.ParsedFile) *index.CodeIndex {
	t.Helper()
	return index.BuildFromParsedFiles(files)
}

// TestTrace_SimpleDownstream grounds S1.
func TestTrace_SimpleDownstream(t *testing.T) {
	foo := &model.ParsedFile{Classes: []model.ClassInfo{{
		Name:    "Foo",
		Methods: []model.MethodInfo{{QualifiedName: "Foo::bar"}},
	}}}
	main := &model.ParsedFile{Classes: []model.ClassInfo{{
		Name: "Main",
		Methods: []model.MethodInfo{{
			QualifiedName: "Main::go",
			Calls:         []model.MethodCall{{Target: "Foo::bar", Line: 1}},
		}},
	}}}

	idx := buildIndex(t, foo, main)
	result, err := Trace(context.Background(), idx, DefaultConfig(), []string{"Main::go"})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Graph.NodeCount())
	assert.Equal(t, 1, result.Graph.EdgeCount())

	edges := result.Graph.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, graph.MethodNodeID("Main::go"), edges[0].From)
	assert.Equal(t, graph.MethodNodeID("Foo::bar"), edges[0].To)
	assert.Equal(t, graph.EdgeMethodCall, edges[0].Kind)
	assert.Equal(t, graph.Downstream, edges[0].Dir)
}

// TestTrace_InterfaceResolutionUpstream grounds S2.
func TestTrace_InterfaceResolutionUpstream(t *testing.T) {
	iface := &model.ParsedFile{Classes: []model.ClassInfo{{Name: "UserService", IsInterface: true}}}
	impl := &model.ParsedFile{Classes: []model.ClassInfo{{
		Name:       "UserServiceImpl",
		Implements: []string{"UserService"},
		Methods:    []model.MethodInfo{{QualifiedName: "UserServiceImpl::save"}},
	}}}
	ctrl := &model.ParsedFile{Classes: []model.ClassInfo{{
		Name: "Ctrl",
		Methods: []model.MethodInfo{{
			QualifiedName: "Ctrl::create",
			Calls:         []model.MethodCall{{Target: "UserService::save", Line: 1}},
		}},
	}}}

	idx := buildIndex(t, iface, impl, ctrl)
	cfg := Config{MaxDepth: 10, TraceUpstream: true}
	result, err := Trace(context.Background(), idx, cfg, []string{"UserServiceImpl::save"})
	require.NoError(t, err)

	found := false
	for _, e := range result.Graph.Edges() {
		if e.From == graph.MethodNodeID("Ctrl::create") && e.To == graph.MethodNodeID("UserServiceImpl::save") {
			found = true
		}
	}
	assert.True(t, found, "expected Ctrl::create -> UserServiceImpl::save edge, got %+v", result.Graph.Edges())
}

// TestTrace_KafkaProducerConsumer grounds S5.
func TestTrace_KafkaProducerConsumer(t *testing.T) {
	producer := &model.ParsedFile{Classes: []model.ClassInfo{{
		Name: "P",
		Methods: []model.MethodInfo{{
			QualifiedName: "P::emit",
			KafkaOps:      []model.KafkaOperation{{Kind: model.OpProduce, Topic: "user-events", Line: 1}},
		}},
	}}}
	consumer := &model.ParsedFile{Classes: []model.ClassInfo{{
		Name: "C",
		Methods: []model.MethodInfo{{
			QualifiedName: "C::handle",
			KafkaOps:      []model.KafkaOperation{{Kind: model.OpConsume, Topic: "user-events", Line: 1}},
		}},
	}}}

	idx := buildIndex(t, producer, consumer)
	cfg := Config{MaxDepth: 10, TraceDownstream: true, TraceCrossService: true}
	result, err := Trace(context.Background(), idx, cfg, []string{"P::emit"})
	require.NoError(t, err)

	topicID := graph.KafkaNodeID("user-events")
	assert.True(t, result.Graph.HasNode(topicID))

	var toTopic, fromTopic bool
	for _, e := range result.Graph.Edges() {
		if e.From == graph.MethodNodeID("P::emit") && e.To == topicID {
			toTopic = true
		}
		if e.From == topicID && e.To == graph.MethodNodeID("C::handle") {
			fromTopic = true
		}
	}
	assert.True(t, toTopic)
	assert.True(t, fromTopic)
}

// TestTrace_Cycle grounds S6.
func TestTrace_Cycle(t *testing.T) {
	a := &model.ParsedFile{Classes: []model.ClassInfo{{
		Name: "A",
		Methods: []model.MethodInfo{{
			QualifiedName: "A::m",
			Calls:         []model.MethodCall{{Target: "B::m", Line: 1}},
		}},
	}}}
	bFile := &model.ParsedFile{Classes: []model.ClassInfo{{
		Name: "B",
		Methods: []model.MethodInfo{{
			QualifiedName: "B::m",
			Calls:         []model.MethodCall{{Target: "A::m", Line: 1}},
		}},
	}}}

	idx := buildIndex(t, a, bFile)
	cfg := Config{MaxDepth: 10, TraceDownstream: true}
	result, err := Trace(context.Background(), idx, cfg, []string{"A::m"})
	require.NoError(t, err)

	require.Len(t, result.Graph.Edges(), 2)
	cycles := result.Graph.Cycles()
	require.Len(t, cycles, 1)
	assert.ElementsMatch(t, []string{graph.MethodNodeID("A::m"), graph.MethodNodeID("B::m")}, cycles[0])
}

// TestTrace_HTTPFeignRoundTrip grounds S4: seeding a provider endpoint must
// surface both the provider-side HTTP edge and the consumer's own downstream
// HTTP edge, plus whoever calls the Feign client method.
func TestTrace_HTTPFeignRoundTrip(t *testing.T) {
	ctrl := &model.ParsedFile{Classes: []model.ClassInfo{{
		Name: "Ctrl",
		Methods: []model.MethodInfo{{
			QualifiedName:  "Ctrl::get",
			HTTPAnnotation: &model.HTTPAnnotation{Verb: "GET", Path: "/users/{id}"},
		}},
	}}}
	client := &model.ParsedFile{Classes: []model.ClassInfo{{
		Name: "Client",
		Methods: []model.MethodInfo{{
			QualifiedName:  "Client::get",
			HTTPAnnotation: &model.HTTPAnnotation{Verb: "GET", Path: "/users/{id}", IsFeignClient: true},
		}},
	}}}
	caller := &model.ParsedFile{Classes: []model.ClassInfo{{
		Name: "Caller",
		Methods: []model.MethodInfo{{
			QualifiedName: "Caller::use",
			Calls:         []model.MethodCall{{Target: "Client::get", Line: 1}},
		}},
	}}}

	idx := buildIndex(t, ctrl, client, caller)
	result, err := Trace(context.Background(), idx, DefaultConfig(), []string{"Ctrl::get"})
	require.NoError(t, err)

	endpointID := graph.HttpNodeID("GET", "/users/{id}")

	var endpointToCtrl, clientToEndpoint, callerToClient bool
	for _, e := range result.Graph.Edges() {
		switch {
		case e.From == endpointID && e.To == graph.MethodNodeID("Ctrl::get") && e.Dir == graph.Upstream:
			endpointToCtrl = true
		case e.From == graph.MethodNodeID("Client::get") && e.To == endpointID && e.Dir == graph.Downstream:
			clientToEndpoint = true
		case e.From == graph.MethodNodeID("Caller::use") && e.To == graph.MethodNodeID("Client::get") && e.Dir == graph.Upstream:
			callerToClient = true
		}
	}

	assert.True(t, endpointToCtrl, "expected endpoint -> Ctrl::get (Upstream), got %+v", result.Graph.Edges())
	assert.True(t, clientToEndpoint, "expected Client::get -> endpoint (Downstream), got %+v", result.Graph.Edges())
	assert.True(t, callerToClient, "expected Caller::use -> Client::get (Upstream), got %+v", result.Graph.Edges())
}

func TestTrace_DeadEndSeed(t *testing.T) {
	idx := buildIndex(t)
	result, err := Trace(context.Background(), idx, DefaultConfig(), []string{"Missing::method"})
	require.NoError(t, err)
	require.Len(t, result.DeadEnds, 1)
	assert.Equal(t, "Missing::method", result.DeadEnds[0].Method)
	assert.Equal(t, 0, result.Graph.NodeCount())
}

func TestTrace_MaxDepthZeroOnlySeeds(t *testing.T) {
	foo := &model.ParsedFile{Classes: []model.ClassInfo{{
		Name:    "Foo",
		Methods: []model.MethodInfo{{QualifiedName: "Foo::bar"}},
	}}}
	main := &model.ParsedFile{Classes: []model.ClassInfo{{
		Name: "Main",
		Methods: []model.MethodInfo{{
			QualifiedName: "Main::go",
			Calls:         []model.MethodCall{{Target: "Foo::bar", Line: 1}},
		}},
	}}}

	idx := buildIndex(t, foo, main)
	cfg := Config{MaxDepth: 0, TraceDownstream: true}
	result, err := Trace(context.Background(), idx, cfg, []string{"Main::go"})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Graph.EdgeCount())
}

func TestTrace_CancellationReturnsError(t *testing.T) {
	main := &model.ParsedFile{Classes: []model.ClassInfo{{
		Name:    "Main",
		Methods: []model.MethodInfo{{QualifiedName: "Main::go"}},
	}}}
	idx := buildIndex(t, main)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Trace(ctx, idx, DefaultConfig(), []string{"Main::go"})
	assert.Error(t, err)
}
