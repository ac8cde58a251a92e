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

// Package patchingest turns unified-diff patch files into the set of
// changed methods that seed an impact trace (§6 "Patch ingest contract").
// No unified-diff-parsing library appears anywhere in this codebase's
// dependency surface (see DESIGN.md), so hunks are parsed directly from
// text here.
package patchingest

import (
	"bufio"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/paxoscn/code-impact-analyzer/internal/model"
)

// ChangeKind classifies how a method was touched by a patch (§6).
type ChangeKind string

const (
	Added    ChangeKind = "added"
	Modified ChangeKind = "modified"
	Deleted  ChangeKind = "deleted"
)

// ChangedMethod is one tuple of patch ingest's contract: "{file,
// qualified_method_name, kind}" (§1).
type ChangedMethod struct {
	File          string
	QualifiedName string
	Kind          ChangeKind
}

// ParseError is a patch-format fault (§7 "Patch-format fault"): surfaced per
// file, never fatal to the overall run.
type ParseError struct {
	PatchFile string
	Reason    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.PatchFile, e.Reason)
}

// hunk is one `@@ -old,oldlen +new,newlen @@` block's old- and new-side
// line ranges, both inclusive.
type hunk struct {
	oldStart, oldEnd int
	newStart, newEnd int
}

// fileDiff is one `--- a/X` / `+++ b/X` section of a patch.
type fileDiff struct {
	oldPath string // the "a/<relpath>" source, without the "a/" prefix
	newPath string // the "b/<relpath>" target, without the "b/" prefix
	isNew   bool   // the file did not exist pre-patch (§6 "added")
	isDel   bool   // the file is removed by the patch
	hunks   []hunk
}

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// stripSignatureFooter removes a trailing `-- \n<version>\n` block (§6, §8
// P8) a patch may carry (e.g. produced by `git format-patch`), which a
// unified-diff parser would otherwise choke on.
func stripSignatureFooter(content string) string {
	marker := "\n-- \n"
	idx := strings.LastIndex(content, marker)
	if idx < 0 {
		return content
	}
	return content[:idx+1]
}

// parsePatch splits raw patch text into per-file diffs.
func parsePatch(patchFile, content string) ([]fileDiff, error) {
	content = stripSignatureFooter(content)

	var diffs []fileDiff
	var current *fileDiff
	var currentHunk *hunk

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "--- "):
			if current != nil {
				diffs = append(diffs, *current)
			}
			current = &fileDiff{}
			currentHunk = nil
			src := strings.TrimPrefix(line, "--- ")
			src = strings.Fields(src)[0] // drop any trailing timestamp
			if src == "/dev/null" {
				current.isNew = true
			} else {
				current.oldPath = strings.TrimPrefix(src, "a/")
			}
		case strings.HasPrefix(line, "+++ "):
			if current == nil {
				return nil, &ParseError{PatchFile: patchFile, Reason: "+++ line without preceding --- line"}
			}
			dst := strings.TrimPrefix(line, "+++ ")
			dst = strings.Fields(dst)[0]
			if dst == "/dev/null" {
				current.isDel = true
			} else {
				current.newPath = strings.TrimPrefix(dst, "b/")
			}
		case strings.HasPrefix(line, "@@ "):
			if current == nil {
				return nil, &ParseError{PatchFile: patchFile, Reason: "hunk header without preceding file header"}
			}
			m := hunkHeaderRe.FindStringSubmatch(line)
			if m == nil {
				return nil, &ParseError{PatchFile: patchFile, Reason: "malformed hunk header: " + line}
			}
			oldStart, _ := strconv.Atoi(m[1])
			oldLen := 1
			if m[2] != "" {
				oldLen, _ = strconv.Atoi(m[2])
			}
			newStart, _ := strconv.Atoi(m[3])
			newLen := 1
			if m[4] != "" {
				newLen, _ = strconv.Atoi(m[4])
			}
			h := hunk{
				oldStart: oldStart, oldEnd: oldStart + oldLen - 1,
				newStart: newStart, newEnd: newStart + newLen - 1,
			}
			if oldLen == 0 {
				// A zero-length old side (pure addition hunk) has no old
				// lines at all; keep a non-overlapping empty range.
				h.oldEnd = oldStart - 1
			}
			if newLen == 0 {
				// A zero-length new side (pure deletion hunk) has no new
				// lines at all; keep a non-overlapping empty range.
				h.newEnd = newStart - 1
			}
			current.hunks = append(current.hunks, h)
			currentHunk = &current.hunks[len(current.hunks)-1]
		default:
			_ = currentHunk // hunk body lines carry no further state we need
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{PatchFile: patchFile, Reason: err.Error()}
	}
	if current != nil {
		diffs = append(diffs, *current)
	}

	return diffs, nil
}

// SourceLookup resolves a workspace-relative path to a version's parsed
// facts, so changed line ranges can be intersected with method ranges. A
// missing file (e.g. it does not exist on that side of the patch) returns
// ok=false.
type SourceLookup func(relPath string) (*model.ParsedFile, bool)

// IngestFile parses one patch file's text and derives its changed methods.
// lookup fetches each touched file's post-image (current) parsed facts,
// used for the added/modified refinement; oldLookup fetches the pre-image
// (pre-patch) parsed facts, the only source that can tell a method removed
// by the patch from one simply left untouched (§6, §1 "deleted"): a method
// present pre-patch but absent from the post-image, and overlapping a hunk,
// is deleted.
func IngestFile(patchFile, content string, lookup SourceLookup, oldLookup SourceLookup) ([]ChangedMethod, error) {
	projectPrefix := strings.TrimSuffix(filepath.Base(patchFile), filepath.Ext(patchFile))

	diffs, err := parsePatch(patchFile, content)
	if err != nil {
		return nil, err
	}

	var changes []ChangedMethod
	for _, d := range diffs {
		var postNames map[string]bool

		if d.newPath != "" {
			relPath := filepath.ToSlash(filepath.Join(projectPrefix, d.newPath))

			if pf, ok := lookup(relPath); ok && pf != nil {
				postNames = make(map[string]bool)
				for _, mi := range allMethods(pf) {
					postNames[mi.QualifiedName] = true
					kind, touched := classify(mi.LineRange, d)
					if touched {
						changes = append(changes, ChangedMethod{File: relPath, QualifiedName: mi.QualifiedName, Kind: kind})
					}
				}
			}
		}

		if d.oldPath == "" || oldLookup == nil {
			continue // added file (or caller supplied no pre-image source); nothing to diff against
		}
		oldRelPath := filepath.ToSlash(filepath.Join(projectPrefix, d.oldPath))
		oldPf, ok := oldLookup(oldRelPath)
		if !ok || oldPf == nil {
			continue
		}

		for _, mi := range allMethods(oldPf) {
			if postNames[mi.QualifiedName] {
				continue // still present post-patch; not a deletion
			}
			if !overlapsOldSide(mi.LineRange, d) {
				continue // untouched by this patch
			}
			changes = append(changes, ChangedMethod{File: oldRelPath, QualifiedName: mi.QualifiedName, Kind: Deleted})
		}
	}

	return changes, nil
}

func allMethods(pf *model.ParsedFile) []model.MethodInfo {
	var all []model.MethodInfo
	for _, cls := range pf.Classes {
		all = append(all, cls.Methods...)
	}
	for _, fn := range pf.Functions {
		all = append(all, model.MethodInfo{
			QualifiedName: fn.QualifiedName,
			FilePath:      fn.FilePath,
			LineRange:     fn.LineRange,
		})
	}
	return all
}

// classify implements §6's per-method refinement on the post-image side: a
// method whose range overlaps any hunk's new-side lines is touched, and
// reads as added when the whole file is new, modified otherwise. A whole-file
// deletion (d.newPath == "") never reaches here — IngestFile only calls
// classify against the lookup'd post-image, which a deleted file doesn't
// have; that case, and a method removed from an otherwise-surviving file, is
// handled by IngestFile's pre-image comparison instead.
func classify(methodRange model.LineRange, d fileDiff) (ChangeKind, bool) {
	overlaps := false
	for _, h := range d.hunks {
		if h.newEnd < h.newStart {
			continue // pure-deletion hunk, no new-side lines to intersect
		}
		if methodRange.Overlaps(model.LineRange{Start: h.newStart, End: h.newEnd}) {
			overlaps = true
			break
		}
	}
	if !overlaps {
		return "", false
	}

	if d.isNew {
		return Added, true
	}
	return Modified, true
}

// overlapsOldSide reports whether methodRange overlaps any hunk's old-side
// lines, the pre-image analogue of classify's new-side check.
func overlapsOldSide(methodRange model.LineRange, d fileDiff) bool {
	for _, h := range d.hunks {
		if h.oldEnd < h.oldStart {
			continue // pure-addition hunk, no old-side lines to intersect
		}
		if methodRange.Overlaps(model.LineRange{Start: h.oldStart, End: h.oldEnd}) {
			return true
		}
	}
	return false
}
