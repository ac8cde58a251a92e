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

package parser

// Environment is the name -> qualified-type table a language parser builds
// while walking one method body (§4.1.1). It is seeded from class fields,
// then widened with local variable declarations encountered depth-first.
//
// Method parameters are deliberately never added here. The source this
// engine was modeled on treats parameter receivers as unresolved (see
// DESIGN.md's Open Question resolution), and the external-call filter downstream
// means that limitation never produces a spurious edge — it just means a
// call through a parameter-typed receiver resolves to a bare method name.
type Environment struct {
	vars    map[string]string // local/field name -> qualified type
	imports map[string]string // simple class name -> qualified name
}

// NewEnvironment creates an environment seeded with a file's import map.
func NewEnvironment(imports map[string]string) *Environment {
	if imports == nil {
		imports = map[string]string{}
	}
	return &Environment{
		vars:    make(map[string]string),
		imports: imports,
	}
}

// Bind records that name has the given qualified type, from a field
// declaration or a local variable declaration.
func (e *Environment) Bind(name, qualifiedType string) {
	if name == "" || qualifiedType == "" {
		return
	}
	e.vars[name] = qualifiedType
}

// ResolveTarget computes the call target for `receiver.method(...)` per
// §4.1.1: an environment hit wins, then an import-map hit (static-style
// call), otherwise the bare method name.
func (e *Environment) ResolveTarget(receiver, method string) string {
	if receiver == "" {
		return method
	}
	if qt, ok := e.vars[receiver]; ok {
		return qt + "::" + method
	}
	if qt, ok := e.imports[receiver]; ok {
		return qt + "::" + method
	}
	return method
}

// ResolveChain decomposes a chained call `a.b().c()` into its constituent
// invocations, each resolved independently. receivers is the ordered list of
// receiver expressions preceding each method name in links; an unknown
// intermediate receiver produces a bare-name target for that link only,
// without poisoning resolution of the other links.
func (e *Environment) ResolveChain(receivers []string, methods []string) []string {
	targets := make([]string, len(methods))
	for i, m := range methods {
		var recv string
		if i < len(receivers) {
			recv = receivers[i]
		}
		targets[i] = e.ResolveTarget(recv, m)
	}
	return targets
}
