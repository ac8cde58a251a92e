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

// Package parser defines the language-parser contract (§4.1) and the
// registry that dispatches a source file to the parser registered for its
// extension. Parsers never do I/O beyond reading the file they were handed
// and, for companion application-config discovery (§4.1.3), sibling config
// files located by an upward directory search.
package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/paxoscn/code-impact-analyzer/internal/model"
)

// ParseError is a structured, non-fatal parse failure (§7 "Parse fault").
// The indexer logs it and drops the file's facts; the run continues.
type ParseError struct {
	FilePath string
	Line     int
	Reason   string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.FilePath, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.FilePath, e.Reason)
}

// LanguageParser is the capability set every language implementation must
// satisfy (§4.1): identify itself, claim a set of extensions, and turn file
// content into a ParsedFile. ParseFile must never panic on malformed input.
// For a syntax error the Java and Go parsers return the partial ParsedFile
// tree-sitter recovers, with a nil error, so the file's recovered facts are
// indexed; they return a *ParseError only when tree-sitter yields no tree.
type LanguageParser interface {
	Language() string
	Extensions() []string
	ParseFile(path string, content []byte) (*model.ParsedFile, error)
}

// Registry dispatches files to the parser registered for their extension.
type Registry struct {
	byExt map[string]LanguageParser
}

// NewRegistry builds a registry from the given parsers, indexing each by
// every extension it claims. A later parser registering an already-claimed
// extension replaces the earlier one.
func NewRegistry(parsers ...LanguageParser) *Registry {
	r := &Registry{byExt: make(map[string]LanguageParser)}
	for _, p := range parsers {
		for _, ext := range p.Extensions() {
			r.byExt[ext] = p
		}
	}
	return r
}

// For returns the parser registered for path's extension, or nil if the
// extension is not claimed by any registered parser.
func (r *Registry) For(path string) LanguageParser {
	ext := strings.ToLower(filepath.Ext(path))
	return r.byExt[ext]
}

// Extensions returns every extension the registry can dispatch, in
// insertion-order-irrelevant (map) order; callers needing determinism sort
// the result themselves.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	return exts
}
