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

package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paxoscn/code-impact-analyzer/internal/model"
)

func newTestIndex(t *testing.T, files ...*model.ParsedFile) *CodeIndex {
	t.Helper()
	idx := newCodeIndex()
	var warnings []Warning
	for _, pf := range files {
		idx.FileCount++
		foldFile(idx, pf, &warnings, testLogger())
	}
	return idx
}

// TestBuilder_SimpleDownstream grounds S1: Foo.bar called from Main.go.
func TestBuilder_SimpleDownstream(t *testing.T) {
	foo := &model.ParsedFile{
		FilePath: "Foo.java",
		Classes: []model.ClassInfo{{
			Name: "Foo",
			Methods: []model.MethodInfo{
				{QualifiedName: "Foo::bar", FilePath: "Foo.java"},
			},
		}},
	}
	main := &model.ParsedFile{
		FilePath: "Main.java",
		Classes: []model.ClassInfo{{
			Name: "Main",
			Methods: []model.MethodInfo{
				{
					QualifiedName: "Main::go",
					FilePath:      "Main.java",
					Calls:         []model.MethodCall{{Target: "Foo::bar", Line: 1}},
				},
			},
		}},
	}

	idx := newTestIndex(t, foo, main)

	require.Contains(t, idx.Methods, "Foo::bar")
	require.Contains(t, idx.Methods, "Main::go")

	callees := idx.ForwardCalleesOf("Main::go")
	assert.Equal(t, []string{"Foo::bar"}, callees)

	callers := idx.CallersOf("Foo::bar")
	assert.Equal(t, []string{"Main::go"}, callers)
}

// TestBuilder_InterfaceResolutionUniqueImpl grounds S2.
func TestBuilder_InterfaceResolutionUniqueImpl(t *testing.T) {
	iface := &model.ParsedFile{
		FilePath: "UserService.java",
		Classes: []model.ClassInfo{{
			Name:        "UserService",
			IsInterface: true,
			Methods: []model.MethodInfo{
				{QualifiedName: "UserService::save", FilePath: "UserService.java"},
			},
		}},
	}
	impl := &model.ParsedFile{
		FilePath: "UserServiceImpl.java",
		Classes: []model.ClassInfo{{
			Name:       "UserServiceImpl",
			Implements: []string{"UserService"},
			Methods: []model.MethodInfo{
				{QualifiedName: "UserServiceImpl::save", FilePath: "UserServiceImpl.java"},
			},
		}},
	}
	ctrl := &model.ParsedFile{
		FilePath: "Ctrl.java",
		Classes: []model.ClassInfo{{
			Name: "Ctrl",
			Methods: []model.MethodInfo{
				{
					QualifiedName: "Ctrl::create",
					FilePath:      "Ctrl.java",
					Calls:         []model.MethodCall{{Target: "UserService::save", Line: 3}},
				},
			},
		}},
	}

	idx := newTestIndex(t, iface, impl, ctrl)

	assert.Equal(t, []string{"UserServiceImpl"}, idx.InterfaceImplementations["UserService"])
	assert.Equal(t, "UserServiceImpl::save", idx.ResolveInterfaceCall("UserService::save"))

	callers := idx.CallersOf("UserServiceImpl::save")
	assert.Contains(t, callers, "Ctrl::create")
}

// TestBuilder_InterfaceTwoImplsNoWidening grounds S3: with two
// implementations, resolution must not collapse to either one.
func TestBuilder_InterfaceTwoImplsNoWidening(t *testing.T) {
	iface := &model.ParsedFile{
		FilePath: "UserService.java",
		Classes: []model.ClassInfo{{Name: "UserService", IsInterface: true}},
	}
	implA := &model.ParsedFile{
		FilePath: "A.java",
		Classes: []model.ClassInfo{{Name: "UserServiceA", Implements: []string{"UserService"}}},
	}
	implB := &model.ParsedFile{
		FilePath: "B.java",
		Classes: []model.ClassInfo{{Name: "UserServiceB", Implements: []string{"UserService"}}},
	}
	ctrl := &model.ParsedFile{
		FilePath: "Ctrl.java",
		Classes: []model.ClassInfo{{
			Name: "Ctrl",
			Methods: []model.MethodInfo{
				{
					QualifiedName: "Ctrl::create",
					Calls:         []model.MethodCall{{Target: "UserService::save", Line: 1}},
				},
			},
		}},
	}

	idx := newTestIndex(t, iface, implA, implB, ctrl)

	assert.ElementsMatch(t, []string{"UserServiceA", "UserServiceB"}, idx.InterfaceImplementations["UserService"])
	assert.Equal(t, "UserService::save", idx.ResolveInterfaceCall("UserService::save"))
	assert.Equal(t, []string{"UserService::save"}, idx.ForwardCalleesOf("Ctrl::create"))
}

func TestBuilder_DuplicateMethodWarnsLastWriterWins(t *testing.T) {
	first := &model.ParsedFile{
		FilePath: "a.java",
		Classes: []model.ClassInfo{{
			Name:    "X",
			Methods: []model.MethodInfo{{QualifiedName: "X::m", FilePath: "a.java"}},
		}},
	}
	second := &model.ParsedFile{
		FilePath: "b.java",
		Classes: []model.ClassInfo{{
			Name:    "X",
			Methods: []model.MethodInfo{{QualifiedName: "X::m", FilePath: "b.java"}},
		}},
	}

	idx := newCodeIndex()
	var warnings []Warning
	foldFile(idx, first, &warnings, testLogger())
	foldFile(idx, second, &warnings, testLogger())

	require.Len(t, warnings, 1)
	assert.Equal(t, "index_collision", warnings[0].Kind)
	assert.Equal(t, "b.java", idx.Methods["X::m"].FilePath)
}

func TestBuilder_HTTPProviderCollisionWarns(t *testing.T) {
	endpoint := model.HttpEndpoint{Verb: "GET", Path: "svc/users"}
	a := &model.ParsedFile{
		Classes: []model.ClassInfo{{
			Name: "A",
			Methods: []model.MethodInfo{{
				QualifiedName:  "A::get",
				HTTPAnnotation: &model.HTTPAnnotation{Verb: endpoint.Verb, Path: endpoint.Path},
			}},
		}},
	}
	b := &model.ParsedFile{
		Classes: []model.ClassInfo{{
			Name: "B",
			Methods: []model.MethodInfo{{
				QualifiedName:  "B::get",
				HTTPAnnotation: &model.HTTPAnnotation{Verb: endpoint.Verb, Path: endpoint.Path},
			}},
		}},
	}

	idx := newCodeIndex()
	var warnings []Warning
	foldFile(idx, a, &warnings, testLogger())
	foldFile(idx, b, &warnings, testLogger())

	require.Len(t, warnings, 1)
	assert.Equal(t, "http_provider_collision", warnings[0].Kind)
	assert.Equal(t, "B::get", idx.HTTPProviders[endpoint])
}

func TestRedisPatternsMatch(t *testing.T) {
	cases := []struct {
		a, b  string
		match bool
	}{
		{"user:*", "user:123", true},
		{"user:123", "user:*", true},
		{"user:*", "order:*", false},
		{"user:1", "user:1", true},
		{"user:1", "user:2", false},
		{"user:*", "user:*", true},
	}
	for _, c := range cases {
		assert.Equal(t, c.match, RedisPatternsMatch(c.a, c.b), "a=%s b=%s", c.a, c.b)
	}
}
