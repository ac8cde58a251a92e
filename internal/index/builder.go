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
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paxoscn/code-impact-analyzer/internal/metrics"
	"github.com/paxoscn/code-impact-analyzer/internal/model"
	"github.com/paxoscn/code-impact-analyzer/internal/parser"
)

// ParseCache is the capability a Builder uses to skip re-parsing unchanged
// files (§4.2 "fetched from the parse cache or parsed fresh"). Callers pass
// nil to disable caching; every file is then parsed fresh.
type ParseCache interface {
	Get(path string) (*model.ParsedFile, bool)
	Put(path string, pf *model.ParsedFile)
}

// memParseCache is a simple mutex-guarded in-memory ParseCache, sufficient
// for a single run (§5 "the parse cache is the only shared mutable state").
type memParseCache struct {
	mu    sync.Mutex
	files map[string]*model.ParsedFile
}

// NewMemParseCache creates an empty in-process parse cache.
func NewMemParseCache() ParseCache {
	return &memParseCache{files: make(map[string]*model.ParsedFile)}
}

func (c *memParseCache) Get(path string) (*model.ParsedFile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pf, ok := c.files[path]
	return pf, ok
}

func (c *memParseCache) Put(path string, pf *model.ParsedFile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[path] = pf
}

// ProgressFunc is invoked once per completed parse (success or failure),
// with the number of files completed so far, to drive a cooperative
// progress reporter (§4.2 "Progress reporting is cooperative"). It may be
// nil.
type ProgressFunc func(done, total int)

// Builder constructs a CodeIndex from a workspace's source files (§4.2).
type Builder struct {
	Registry *parser.Registry
	Cache    ParseCache
	Workers  int
	Logger   *slog.Logger
	Progress ProgressFunc
}

// NewBuilder creates a Builder with sane defaults: an in-memory cache if
// none is supplied, 4 workers, and a logger that writes warnings and errors
// to stderr.
func NewBuilder(registry *parser.Registry) *Builder {
	return &Builder{
		Registry: registry,
		Cache:    NewMemParseCache(),
		Workers:  4,
		Logger:   slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
}

// Result is the outcome of a Build call: the assembled index plus the
// non-fatal faults accumulated along the way (§7).
type Result struct {
	Index    *CodeIndex
	Warnings []Warning
}

// BuildFromParsedFiles folds already-parsed files directly into a CodeIndex,
// bypassing file I/O and the parser registry. It is the entry point for
// callers that already hold ParsedFile values — notably the tracer's tests
// and any future incremental-update path that re-parses a subset of files.
func BuildFromParsedFiles(files []*model.ParsedFile) *CodeIndex {
	idx := newCodeIndex()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	var warnings []Warning
	for _, pf := range files {
		idx.FileCount++
		foldFile(idx, pf, &warnings, logger)
	}
	return idx
}

// parseOutcome pairs one file's path with its parse result, preserving the
// file's position in the input slice so the later fold stays
// deterministic (§5 "stable sorted order").
type parseOutcome struct {
	path string
	pf   *model.ParsedFile
	err  error
}

// Build parses every file in files (in parallel, one task per file) and
// folds the results into a CodeIndex (§4.2). Parse failures are logged and
// the offending file contributes nothing; they never abort the run.
func (b *Builder) Build(ctx context.Context, files []string) (*Result, error) {
	sorted := make([]string, len(files))
	copy(sorted, files)
	sort.Strings(sorted)

	outcomes := b.parseAll(ctx, sorted)

	idx := newCodeIndex()
	var warnings []Warning

	for _, o := range outcomes {
		if o.err != nil {
			b.Logger.Warn("index.parse.error", "path", o.path, "err", o.err)
			continue
		}
		if o.pf == nil {
			continue
		}
		idx.FileCount++
		foldFile(idx, o.pf, &warnings, b.Logger)
	}

	return &Result{Index: idx, Warnings: warnings}, nil
}

// parseAll dispatches one parse task per file across Workers goroutines,
// falling back to sequential parsing for small file sets, mirroring the
// worker-pool shape used elsewhere in this codebase for CPU-bound fan-out.
func (b *Builder) parseAll(ctx context.Context, files []string) []parseOutcome {
	outcomes := make([]parseOutcome, len(files))
	if len(files) == 0 {
		return outcomes
	}

	workers := b.Workers
	if workers <= 1 || len(files) < 10 {
		for i, path := range files {
			select {
			case <-ctx.Done():
				outcomes[i] = parseOutcome{path: path, err: ctx.Err()}
				continue
			default:
			}
			outcomes[i] = b.parseOne(path)
			if b.Progress != nil {
				b.Progress(i+1, len(files))
			}
		}
		return outcomes
	}

	jobs := make(chan int, len(files))
	var done int32
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					outcomes[i] = parseOutcome{path: files[i], err: ctx.Err()}
					continue
				default:
				}
				outcomes[i] = b.parseOne(files[i])
				n := atomic.AddInt32(&done, 1)
				if b.Progress != nil {
					b.Progress(int(n), len(files))
				}
			}
		}()
	}

	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return outcomes
}

func (b *Builder) parseOne(path string) parseOutcome {
	if b.Cache != nil {
		if pf, ok := b.Cache.Get(path); ok {
			return parseOutcome{path: path, pf: pf}
		}
	}

	p := b.Registry.For(path)
	if p == nil {
		return parseOutcome{path: path}
	}

	start := time.Now()
	content, err := os.ReadFile(path)
	if err != nil {
		metrics.RecordParseError()
		return parseOutcome{path: path, err: err}
	}

	pf, err := p.ParseFile(path, content)
	metrics.ObserveParseDuration(time.Since(start).Seconds())
	if err != nil {
		metrics.RecordParseError()
		return parseOutcome{path: path, err: err}
	}
	metrics.RecordFileParsed()

	if b.Cache != nil {
		b.Cache.Put(path, pf)
	}
	return parseOutcome{path: path, pf: pf}
}

// foldFile merges one parsed file's facts into idx, per §4.2's procedure.
func foldFile(idx *CodeIndex, pf *model.ParsedFile, warnings *[]Warning, logger *slog.Logger) {
	for _, cls := range pf.Classes {
		for _, iface := range cls.Implements {
			idx.InterfaceImplementations[iface] = append(idx.InterfaceImplementations[iface], cls.Name)
			idx.ClassInterfaces[cls.Name] = append(idx.ClassInterfaces[cls.Name], iface)
		}
		for _, m := range cls.Methods {
			registerMethod(idx, m, warnings, logger)
		}
	}
	for _, fn := range pf.Functions {
		registerMethod(idx, functionAsMethod(fn), warnings, logger)
	}
}

func functionAsMethod(fn model.FunctionInfo) model.MethodInfo {
	return model.MethodInfo{
		QualifiedName:  fn.QualifiedName,
		FilePath:       fn.FilePath,
		LineRange:      fn.LineRange,
		Calls:          fn.Calls,
		HTTPAnnotation: fn.HTTPAnnotation,
		KafkaOps:       fn.KafkaOps,
		DBOps:          fn.DBOps,
		RedisOps:       fn.RedisOps,
	}
}

func registerMethod(idx *CodeIndex, m model.MethodInfo, warnings *[]Warning, logger *slog.Logger) {
	if _, exists := idx.Methods[m.QualifiedName]; exists {
		msg := "duplicate method qualified name, last writer wins: " + m.QualifiedName
		*warnings = append(*warnings, Warning{Kind: "index_collision", Message: msg})
		logger.Warn("index.collision", "qualified_name", m.QualifiedName, "file", m.FilePath)
		metrics.RecordIndexCollision()
	}
	idx.Methods[m.QualifiedName] = m
	idx.MethodCount = len(idx.Methods)

	for _, call := range m.Calls {
		addEdge(idx.ForwardCalls, m.QualifiedName, call.Target)
		addEdge(idx.ReverseCalls, call.Target, m.QualifiedName)

		resolved := idx.ResolveInterfaceCall(call.Target)
		if resolved != call.Target {
			addEdge(idx.ReverseCalls, resolved, m.QualifiedName)
		}
	}

	if m.HTTPAnnotation != nil {
		endpoint := model.HttpEndpoint{Verb: m.HTTPAnnotation.Verb, Path: m.HTTPAnnotation.Path}
		if m.HTTPAnnotation.IsFeignClient {
			if idx.HTTPConsumers[endpoint] == nil {
				idx.HTTPConsumers[endpoint] = make(map[string]struct{})
			}
			idx.HTTPConsumers[endpoint][m.QualifiedName] = struct{}{}
		} else {
			if existing, ok := idx.HTTPProviders[endpoint]; ok && existing != m.QualifiedName {
				msg := "duplicate HTTP provider for endpoint " + endpoint.String() + ": " + existing + " and " + m.QualifiedName
				*warnings = append(*warnings, Warning{Kind: "http_provider_collision", Message: msg})
				logger.Warn("index.http_provider_collision", "endpoint", endpoint.String(), "existing", existing, "new", m.QualifiedName)
			}
			idx.HTTPProviders[endpoint] = m.QualifiedName
		}
	}

	for _, op := range m.KafkaOps {
		switch op.Kind {
		case model.OpProduce:
			addEdge(idx.KafkaProducers, op.Topic, m.QualifiedName)
		case model.OpConsume:
			addEdge(idx.KafkaConsumers, op.Topic, m.QualifiedName)
		}
	}

	for _, op := range m.DBOps {
		switch op.Kind {
		case model.OpSelect:
			addEdge(idx.DBReaders, op.Table, m.QualifiedName)
		case model.OpInsert, model.OpUpdate, model.OpDelete:
			addEdge(idx.DBWriters, op.Table, m.QualifiedName)
		}
	}

	for _, op := range m.RedisOps {
		switch op.Kind {
		case model.OpGet:
			addEdge(idx.RedisReaders, op.Pattern, m.QualifiedName)
		case model.OpSet, model.OpDelete:
			addEdge(idx.RedisWriters, op.Pattern, m.QualifiedName)
		}
	}
}

func addEdge(m map[string]map[string]struct{}, key, value string) {
	if m[key] == nil {
		m[key] = make(map[string]struct{})
	}
	m[key][value] = struct{}{}
}
