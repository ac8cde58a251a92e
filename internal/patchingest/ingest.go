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

package patchingest

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// Result is the outcome of ingesting a directory or single patch file: the
// union of every changed method found, plus the per-file faults
// encountered (§7 "Patch-format fault ... the remaining patches continue").
type Result struct {
	Changes []ChangedMethod
	Errors  []*ParseError
}

// IngestPath ingests either a single `.patch` file or every `.patch` file
// in a directory (§6 "Input is a directory containing files with the
// .patch extension, or a single patch file"), in sorted order for
// deterministic seed ordering downstream. oldLookup may be nil, in which
// case deleted methods are never detected (§6 "deleted").
func IngestPath(path string, lookup SourceLookup, oldLookup SourceLookup, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var patchFiles []string
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && filepath.Ext(e.Name()) == ".patch" {
				patchFiles = append(patchFiles, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(patchFiles)
	} else {
		patchFiles = []string{path}
	}

	result := &Result{}
	for _, pf := range patchFiles {
		content, err := os.ReadFile(pf)
		if err != nil {
			result.Errors = append(result.Errors, &ParseError{PatchFile: pf, Reason: err.Error()})
			logger.Warn("patchingest.read.error", "path", pf, "err", err)
			continue
		}

		changes, err := IngestFile(pf, string(content), lookup, oldLookup)
		if err != nil {
			if pe, ok := err.(*ParseError); ok {
				result.Errors = append(result.Errors, pe)
			} else {
				result.Errors = append(result.Errors, &ParseError{PatchFile: pf, Reason: err.Error()})
			}
			logger.Warn("patchingest.parse.error", "path", pf, "err", err)
			continue
		}

		result.Changes = append(result.Changes, changes...)
	}

	return result, nil
}

// SeedMethods extracts the deduplicated, sorted set of qualified method
// names from r.Changes, ready to hand to the tracer as seeds.
func (r *Result) SeedMethods() []string {
	set := make(map[string]struct{})
	for _, c := range r.Changes {
		set[c.QualifiedName] = struct{}{}
	}
	seeds := make([]string, 0, len(set))
	for s := range set {
		seeds = append(seeds, s)
	}
	sort.Strings(seeds)
	return seeds
}
