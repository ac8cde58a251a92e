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

// Package index builds and holds the global cross-file semantic model (§3,
// §4.2): the code index builder folds the parallel parser output into a set
// of lookup maps, once per run, then hands out an immutable view to the
// tracer.
package index

import (
	"sort"
	"strings"

	"github.com/paxoscn/code-impact-analyzer/internal/model"
)

// CodeIndex is the global semantic model built from a workspace's parsed
// files (§3). Every map here uses insertion-order-irrelevant semantics;
// callers needing determinism sort keys themselves (§5 "Ordering
// guarantees").
//
// A CodeIndex is built once, is immutable during tracing, and is exclusive
// to its builder until construction completes — after that it is freely
// shareable by reference.
type CodeIndex struct {
	Methods                  map[string]model.MethodInfo
	ForwardCalls             map[string]map[string]struct{}
	ReverseCalls             map[string]map[string]struct{}
	InterfaceImplementations map[string][]string
	ClassInterfaces          map[string][]string

	HTTPProviders map[model.HttpEndpoint]string
	HTTPConsumers map[model.HttpEndpoint]map[string]struct{}

	KafkaProducers map[string]map[string]struct{}
	KafkaConsumers map[string]map[string]struct{}

	DBWriters map[string]map[string]struct{}
	DBReaders map[string]map[string]struct{}

	RedisWriters map[string]map[string]struct{}
	RedisReaders map[string]map[string]struct{}

	FileCount   int
	MethodCount int
}

// Warning is a single non-fatal fault accumulated during index build (§7
// "Index collision", and HTTP provider collisions).
type Warning struct {
	Kind    string
	Message string
}

func newCodeIndex() *CodeIndex {
	return &CodeIndex{
		Methods:                  make(map[string]model.MethodInfo),
		ForwardCalls:             make(map[string]map[string]struct{}),
		ReverseCalls:             make(map[string]map[string]struct{}),
		InterfaceImplementations: make(map[string][]string),
		ClassInterfaces:          make(map[string][]string),
		HTTPProviders:            make(map[model.HttpEndpoint]string),
		HTTPConsumers:            make(map[model.HttpEndpoint]map[string]struct{}),
		KafkaProducers:           make(map[string]map[string]struct{}),
		KafkaConsumers:           make(map[string]map[string]struct{}),
		DBWriters:                make(map[string]map[string]struct{}),
		DBReaders:                make(map[string]map[string]struct{}),
		RedisWriters:             make(map[string]map[string]struct{}),
		RedisReaders:             make(map[string]map[string]struct{}),
	}
}

// splitQualifiedMethod splits "<class>::<method>" into its two parts. When
// target carries no "::" separator (a bare, unresolved name), class is empty
// and method is target itself.
func splitQualifiedMethod(target string) (class, method string) {
	idx := strings.LastIndex(target, "::")
	if idx < 0 {
		return "", target
	}
	return target[:idx], target[idx+2:]
}

// ResolveInterfaceCall implements §4.2's resolve_interface_call: if class is
// an interface with exactly one implementation, rewrite the target to that
// implementation's method; otherwise return target unchanged. Idempotent by
// construction (P8's "round-trip" companion law) — the resolved target's
// class is a concrete implementation, never itself a key of
// InterfaceImplementations with exactly one entry pointing elsewhere, since a
// class only appears there. Calling it a second time on its own result is
// always a no-op because a concrete class has no entry in
// InterfaceImplementations.
func (idx *CodeIndex) ResolveInterfaceCall(target string) string {
	class, method := splitQualifiedMethod(target)
	if class == "" {
		return target
	}
	impls, ok := idx.InterfaceImplementations[class]
	if !ok || len(impls) != 1 {
		return target
	}
	return impls[0] + "::" + method
}

// sortedKeys returns the keys of a set in stable ascending order, for
// deterministic iteration (§5).
func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ForwardCalleesOf returns the resolved, deduplicated callee set of method in
// sorted order (§4.3 downstream step 2): every raw forward-call target is
// passed through ResolveInterfaceCall before dedup.
func (idx *CodeIndex) ForwardCalleesOf(method string) []string {
	raw, ok := idx.ForwardCalls[method]
	if !ok {
		return nil
	}
	resolved := make(map[string]struct{}, len(raw))
	for target := range raw {
		resolved[idx.ResolveInterfaceCall(target)] = struct{}{}
	}
	return sortedKeys(resolved)
}

// CallersOf returns method's callers widened by interface dispatch (§4.3
// upstream steps 3-4): the raw reverse-call set plus, for each interface the
// method's class implements, that interface's own reverse-call set for the
// same method name.
func (idx *CodeIndex) CallersOf(method string) []string {
	callers := make(map[string]struct{})
	if set, ok := idx.ReverseCalls[method]; ok {
		for c := range set {
			callers[c] = struct{}{}
		}
	}
	class, name := splitQualifiedMethod(method)
	if class != "" {
		for _, iface := range idx.ClassInterfaces[class] {
			if set, ok := idx.ReverseCalls[iface+"::"+name]; ok {
				for c := range set {
					callers[c] = struct{}{}
				}
			}
		}
	}
	return sortedKeys(callers)
}

// HasMethod reports whether qualifiedName is present in the index — the
// external-call filter's sole test (§4.3 "External-call filter").
func (idx *CodeIndex) HasMethod(qualifiedName string) bool {
	_, ok := idx.Methods[qualifiedName]
	return ok
}

// Endpoint derives the canonical HttpEndpoint key for a method carrying an
// HTTPAnnotation, or the zero value and false if it has none.
func Endpoint(m model.MethodInfo) (model.HttpEndpoint, bool) {
	if m.HTTPAnnotation == nil {
		return model.HttpEndpoint{}, false
	}
	return model.HttpEndpoint{Verb: m.HTTPAnnotation.Verb, Path: m.HTTPAnnotation.Path}, true
}

// ConsumersOf returns, in sorted order, the methods registered as Feign
// consumers of endpoint.
func (idx *CodeIndex) ConsumersOf(endpoint model.HttpEndpoint) []string {
	set, ok := idx.HTTPConsumers[endpoint]
	if !ok {
		return nil
	}
	return sortedKeys(set)
}

// ProviderOf returns the provider method registered for endpoint, if any.
func (idx *CodeIndex) ProviderOf(endpoint model.HttpEndpoint) (string, bool) {
	m, ok := idx.HTTPProviders[endpoint]
	return m, ok
}

// KafkaProducersOf / KafkaConsumersOf / DBWritersOf / DBReadersOf expose
// sorted views of their respective multi-value maps.
func (idx *CodeIndex) KafkaProducersOf(topic string) []string { return sortedKeys(idx.KafkaProducers[topic]) }
func (idx *CodeIndex) KafkaConsumersOf(topic string) []string { return sortedKeys(idx.KafkaConsumers[topic]) }
func (idx *CodeIndex) DBWritersOf(table string) []string      { return sortedKeys(idx.DBWriters[table]) }
func (idx *CodeIndex) DBReadersOf(table string) []string      { return sortedKeys(idx.DBReaders[table]) }

// RedisWritersMatching returns the sorted, deduplicated set of methods
// registered as writers of any key pattern that symmetrically prefix-matches
// pattern (§4.4).
func (idx *CodeIndex) RedisWritersMatching(pattern string) []string {
	return idx.redisMatching(idx.RedisWriters, pattern)
}

// RedisReadersMatching is the reader-side counterpart of RedisWritersMatching.
func (idx *CodeIndex) RedisReadersMatching(pattern string) []string {
	return idx.redisMatching(idx.RedisReaders, pattern)
}

func (idx *CodeIndex) redisMatching(table map[string]map[string]struct{}, pattern string) []string {
	matched := make(map[string]struct{})
	for candidate, methods := range table {
		if RedisPatternsMatch(pattern, candidate) {
			for m := range methods {
				matched[m] = struct{}{}
			}
		}
	}
	return sortedKeys(matched)
}

// RedisPatternsMatch implements §4.4's symmetric prefix matching: strip any
// trailing '*' from each side, then the patterns match iff one prefix is a
// prefix of the other AND at least one side carried the wildcard, or the
// patterns are equal outright.
func RedisPatternsMatch(a, b string) bool {
	if a == b {
		return true
	}
	aWild := strings.HasSuffix(a, "*")
	bWild := strings.HasSuffix(b, "*")
	if !aWild && !bWild {
		return false
	}
	aPrefix := strings.TrimSuffix(a, "*")
	bPrefix := strings.TrimSuffix(b, "*")
	return strings.HasPrefix(aPrefix, bPrefix) || strings.HasPrefix(bPrefix, aPrefix)
}
