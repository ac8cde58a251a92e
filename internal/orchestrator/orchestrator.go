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

// Package orchestrator wires the pipeline stages together (§2's data-flow
// diagram): patch ingest, workspace parsing, index build-or-load, impact
// trace, and graph serialization. It is the one place that knows the order
// those stages run in; every stage itself stays ignorant of its neighbors.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/paxoscn/code-impact-analyzer/internal/config"
	apperrors "github.com/paxoscn/code-impact-analyzer/internal/errors"
	"github.com/paxoscn/code-impact-analyzer/internal/graph"
	"github.com/paxoscn/code-impact-analyzer/internal/index"
	"github.com/paxoscn/code-impact-analyzer/internal/metrics"
	"github.com/paxoscn/code-impact-analyzer/internal/model"
	"github.com/paxoscn/code-impact-analyzer/internal/parser"
	"github.com/paxoscn/code-impact-analyzer/internal/patchingest"
	"github.com/paxoscn/code-impact-analyzer/internal/storage"
	"github.com/paxoscn/code-impact-analyzer/internal/tracer"
)

// Options controls one end-to-end run (§6 "CLI surface").
type Options struct {
	Workspace     string
	DiffPath      string
	MaxDepth      int
	RebuildIndex  bool
	ClearIndex    bool
	IndexInfoOnly bool
	VerifyOnly    bool
	Workers       int
	Progress      index.ProgressFunc
	Logger        *slog.Logger
}

// Report is the outcome of a Run call: the traced graph plus the warnings
// and dead-end seeds accumulated along the way (§7 "Policy: all non-fatal
// faults accumulate into a warning log and a final summary").
type Report struct {
	Graph          *graph.Graph
	Warnings       []index.Warning
	DeadEnds       []tracer.DeadEndSeed
	PatchFaults    []*patchingest.ParseError
	SeedCount      int
	UsedCache      bool
	FilesIndexed   int
	MethodsIndexed int
}

// Registry is the parser registry every Run uses, built once at package
// load from the two language parsers this engine ships.
var Registry = parser.NewRegistry(parser.NewJavaParser(), parser.NewGoParser())

func indexDirectory(workspace string, cfg *config.Config) string {
	return filepath.Join(workspace, cfg.IndexDir)
}

func extensionSet() map[string]bool {
	set := make(map[string]bool)
	for _, ext := range Registry.Extensions() {
		set[ext] = true
	}
	return set
}

// collectFiles walks the workspace collecting every file whose extension a
// registered parser claims, skipping anything matched by the built-in or
// configured exclude globs (§5 "workspace excludes").
func collectFiles(workspace string, excludes []string) ([]string, error) {
	exts := extensionSet()
	patterns := append(append([]string{}, config.DefaultExcludes...), excludes...)
	var files []string
	err := filepath.Walk(workspace, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(workspace, path)
		if relErr == nil && isExcluded(filepath.ToSlash(rel), patterns) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if exts[filepath.Ext(path)] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// isExcluded reports whether any path segment of relPath equals one of the
// patterns with its leading and trailing '*' and '/' characters trimmed, so
// "**/vendor/**" excludes a vendor directory at any depth. No other glob
// syntax is evaluated: a pattern whose trimmed form still contains a '/' or
// a wildcard never matches.
func isExcluded(relPath string, patterns []string) bool {
	for _, pattern := range patterns {
		trimmed := strings.Trim(pattern, "*/")
		if trimmed == "" {
			continue
		}
		for _, part := range strings.Split(relPath, "/") {
			if part == trimmed {
				return true
			}
		}
	}
	return false
}

// buildOrLoadIndex implements §4.6's cache-first policy: validate the
// persisted index against a freshly computed checksum, reusing it on a
// match unless the caller forced a rebuild.
func buildOrLoadIndex(ctx context.Context, opts Options, cfg *config.Config) (*index.CodeIndex, []index.Warning, bool, error) {
	dir := indexDirectory(opts.Workspace, cfg)

	if opts.ClearIndex {
		if err := storage.Clear(dir); err != nil {
			return nil, nil, false, err
		}
	}

	stats, err := storage.StatWorkspace(opts.Workspace, extensionSet())
	if err != nil {
		return nil, nil, false, err
	}
	checksum := storage.Checksum(stats)

	if !opts.RebuildIndex && !opts.ClearIndex && storage.Validate(dir, opts.Workspace, checksum) {
		idx, _, ok, err := storage.Load(dir, opts.Workspace)
		if err == nil && ok {
			metrics.RecordCacheHit()
			return idx, nil, true, nil
		}
	}
	metrics.RecordCacheMiss()

	files, err := collectFiles(opts.Workspace, cfg.Exclude)
	if err != nil {
		return nil, nil, false, err
	}

	builder := index.NewBuilder(Registry)
	if opts.Workers > 0 {
		builder.Workers = opts.Workers
	} else {
		builder.Workers = cfg.Workers
	}
	if opts.Logger != nil {
		builder.Logger = opts.Logger
	}
	builder.Progress = opts.Progress

	start := time.Now()
	result, err := builder.Build(ctx, files)
	if err != nil {
		return nil, nil, false, err
	}
	metrics.ObserveIndexDuration(time.Since(start).Seconds())
	metrics.RecordMethodsIndexed(result.Index.MethodCount)

	if err := storage.Save(dir, opts.Workspace, result.Index, checksum, time.Now()); err != nil {
		if opts.Logger != nil {
			opts.Logger.Warn("orchestrator.index.persist.error", "err", err)
		}
	}

	return result.Index, result.Warnings, false, nil
}

// sourceLookup resolves a workspace-relative path to its parsed facts,
// re-parsing the file directly (the persisted index has already folded its
// facts away by the time patch ingest runs).
func sourceLookup(workspace string) patchingest.SourceLookup {
	return func(relPath string) (*model.ParsedFile, bool) {
		full := filepath.Join(workspace, relPath)
		p := Registry.For(full)
		if p == nil {
			return nil, false
		}
		content, err := os.ReadFile(full)
		if err != nil {
			return nil, false
		}
		pf, err := p.ParseFile(full, content)
		if err != nil {
			return nil, false
		}
		return pf, true
	}
}

// oldSourceLookup resolves a workspace-relative path to its pre-patch parsed
// facts via `git show HEAD:<path>` (mirroring the teacher's
// exec.Command("git", ...) delta-detection pattern), the only way to see a
// file as it stood before a patch that has already been applied to the
// working tree. If the workspace is not a git repository, or the path has
// no HEAD blob (e.g. it was untracked before the patch added it), the
// lookup reports ok=false and deleted-method detection is simply skipped
// for that file (§7 "non-fatal").
func oldSourceLookup(workspace string) patchingest.SourceLookup {
	return func(relPath string) (*model.ParsedFile, bool) {
		p := Registry.For(relPath)
		if p == nil {
			return nil, false
		}
		cmd := exec.Command("git", "show", "HEAD:"+filepath.ToSlash(relPath))
		cmd.Dir = workspace
		content, err := cmd.Output()
		if err != nil {
			return nil, false
		}
		pf, err := p.ParseFile(relPath, content)
		if err != nil {
			return nil, false
		}
		return pf, true
	}
}

// Run executes one full pipeline: ingest the patch set, build or load the
// code index, trace impact from the changed methods, and return the
// resulting graph (§2).
func Run(ctx context.Context, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	cfg, err := config.Load(opts.Workspace)
	if err != nil {
		return nil, apperrors.NewConfigError(
			"cannot read .impactanalyzer.yaml",
			err.Error(),
			"fix the YAML syntax or remove the file to use defaults",
			err,
		)
	}

	if opts.IndexInfoOnly {
		meta, err := storage.ReadMeta(indexDirectory(opts.Workspace, cfg))
		if err != nil {
			return nil, apperrors.NewNotFoundError(
				"no persisted index found",
				err.Error(),
				"run analyze once to build an index",
			)
		}
		logger.Info("index.info", "file_count", meta.FileCount, "method_count", meta.MethodCount, "checksum", meta.Checksum)
		return &Report{FilesIndexed: meta.FileCount, MethodsIndexed: meta.MethodCount}, nil
	}

	idx, warnings, usedCache, err := buildOrLoadIndex(ctx, opts, cfg)
	if err != nil {
		return nil, apperrors.NewIOError(
			"cannot build or load the code index",
			err.Error(),
			"check that the workspace path exists and is readable",
			err,
		)
	}

	if opts.VerifyOnly {
		return &Report{Warnings: warnings, UsedCache: usedCache, FilesIndexed: idx.FileCount, MethodsIndexed: idx.MethodCount}, nil
	}

	ingestResult, err := patchingest.IngestPath(opts.DiffPath, sourceLookup(opts.Workspace), oldSourceLookup(opts.Workspace), logger)
	if err != nil {
		return nil, apperrors.NewNotFoundError(
			"cannot read patch path",
			err.Error(),
			fmt.Sprintf("check that %s exists", opts.DiffPath),
		)
	}
	if len(ingestResult.Changes) == 0 && len(ingestResult.Errors) > 0 {
		return nil, apperrors.NewPatchError(
			"every supplied patch failed to parse",
			fmt.Sprintf("%d patch file(s) rejected", len(ingestResult.Errors)),
			"check the patch files are valid unified diffs",
			nil,
		)
	}

	seeds := ingestResult.SeedMethods()

	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = cfg.MaxDepth
	}
	traceCfg := tracer.DefaultConfig()
	traceCfg.MaxDepth = maxDepth

	start := time.Now()
	traceResult, err := tracer.Trace(ctx, idx, traceCfg, seeds)
	if err != nil {
		return nil, apperrors.NewInternalError(
			"trace was cancelled",
			err.Error(),
			"re-run the analysis",
			err,
		)
	}
	metrics.ObserveTraceDuration(time.Since(start).Seconds())
	metrics.RecordGraph(traceResult.Graph.NodeCount(), traceResult.Graph.EdgeCount(), len(traceResult.Graph.Cycles()))
	for i := len(traceResult.DeadEnds); i < len(seeds); i++ {
		metrics.RecordSeedTraced()
	}
	for range traceResult.DeadEnds {
		metrics.RecordSeedDeadEnd()
	}

	return &Report{
		Graph:          traceResult.Graph,
		Warnings:       warnings,
		DeadEnds:       traceResult.DeadEnds,
		PatchFaults:    ingestResult.Errors,
		SeedCount:      len(seeds),
		UsedCache:      usedCache,
		FilesIndexed:   idx.FileCount,
		MethodsIndexed: idx.MethodCount,
	}, nil
}
