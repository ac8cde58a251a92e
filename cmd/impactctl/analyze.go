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

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/paxoscn/code-impact-analyzer/internal/errors"
	"github.com/paxoscn/code-impact-analyzer/internal/graph"
	"github.com/paxoscn/code-impact-analyzer/internal/orchestrator"
	"github.com/paxoscn/code-impact-analyzer/internal/output"
	"github.com/paxoscn/code-impact-analyzer/internal/ui"
)

type analyzeFlags struct {
	workspace    string
	diff         string
	outputPath   string
	outputFormat string
	maxDepth     int
	rebuildIndex bool
	clearIndex   bool
	indexInfo    bool
	verifyIndex  bool
	workers      int
	json         bool
	quiet        bool
	noColor      bool
}

func parseAnalyzeFlags(args []string, name string) *analyzeFlags {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	f := &analyzeFlags{}

	fs.StringVar(&f.workspace, "workspace", "", "Workspace root directory (required)")
	fs.StringVar(&f.diff, "diff", "", "Patch file or directory of .patch files")
	fs.StringVar(&f.outputPath, "output", "", "Output file path (default: stdout)")
	fs.StringVar(&f.outputFormat, "output-format", "dot", "Output format: dot, json, or mermaid")
	fs.IntVar(&f.maxDepth, "max-depth", 0, "Maximum trace depth in each direction (default from .impactanalyzer.yaml or 10)")
	fs.BoolVar(&f.rebuildIndex, "rebuild-index", false, "Force a full index rebuild, ignoring the persisted cache")
	fs.BoolVar(&f.clearIndex, "clear-index", false, "Delete the persisted index before running")
	fs.BoolVar(&f.indexInfo, "index-info", false, "Print persisted-index summary statistics and exit")
	fs.BoolVar(&f.verifyIndex, "verify-index", false, "Validate the persisted index against the workspace and exit")
	fs.IntVar(&f.workers, "workers", 0, "Parser worker count (default from .impactanalyzer.yaml or 4)")
	fs.BoolVar(&f.json, "json", false, "Emit machine-readable JSON to stdout")
	fs.BoolVar(&f.quiet, "q", false, "Suppress progress output")
	fs.BoolVar(&f.noColor, "no-color", false, "Disable colored output")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: impactctl %s [options]

Traces the cross-service impact of a patch set against a workspace: finds
every method, HTTP endpoint, Kafka topic, database table, and Redis key
pattern reachable from the patch's changed methods.

Options:
`, name)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  impactctl analyze --workspace . --diff change.patch
  impactctl analyze --workspace . --diff changes/ --output-format mermaid --output impact.mmd
  impactctl analyze --workspace . --diff change.patch --rebuild-index
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	return f
}

func (f *analyzeFlags) globals() GlobalFlags {
	return GlobalFlags{JSON: f.json, Quiet: f.quiet, NoColor: f.noColor}
}

func runAnalyze(args []string) {
	f := parseAnalyzeFlags(args, "analyze")
	runWithFlags(f)
}

// runAnalyzeSubcommand backs index-info/verify-index/clear-index: each is
// the analyze flag surface with the matching boolean forced on, so every
// variant shares one implementation (§6 folds them into `analyze`'s flags).
func runAnalyzeSubcommand(args []string, name string) {
	f := parseAnalyzeFlags(args, name)
	switch name {
	case "index-info":
		f.indexInfo = true
	case "verify-index":
		f.verifyIndex = true
	case "clear-index":
		f.clearIndex = true
	}
	runWithFlags(f)
}

func runWithFlags(f *analyzeFlags) {
	globals := f.globals()
	ui.InitColors(globals.NoColor)

	if f.workspace == "" {
		errors.FatalError(errors.NewInputError(
			"--workspace is required",
			"no workspace directory was given",
			"pass --workspace <dir> pointing at the code to analyze",
		), globals.JSON)
	}
	if f.diff == "" && !f.indexInfo && !f.verifyIndex && !f.clearIndex {
		errors.FatalError(errors.NewInputError(
			"--diff is required",
			"no patch file or directory was given",
			"pass --diff <file|dir> pointing at a unified-diff patch set",
		), globals.JSON)
	}

	logLevel := slog.LevelWarn
	if !globals.Quiet {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	progressCfg := NewProgressConfig(globals)
	var bar *progressBarAdapter
	progressFn := func(done, total int) {
		if bar == nil {
			b := NewProgressBar(progressCfg, int64(total), "parsing")
			if b == nil {
				return
			}
			bar = &progressBarAdapter{bar: b}
		}
		bar.set(done)
	}

	opts := orchestrator.Options{
		Workspace:     f.workspace,
		DiffPath:      f.diff,
		MaxDepth:      f.maxDepth,
		RebuildIndex:  f.rebuildIndex,
		ClearIndex:    f.clearIndex,
		IndexInfoOnly: f.indexInfo,
		VerifyOnly:    f.verifyIndex,
		Workers:       f.workers,
		Progress:      progressFn,
		Logger:        logger,
	}

	report, err := orchestrator.Run(context.Background(), opts)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	switch {
	case f.indexInfo:
		printIndexInfo(report, globals)
	case f.verifyIndex:
		printVerifyResult(report, globals)
	default:
		printAnalyzeResult(report, f, globals)
	}
}

func printIndexInfo(report *orchestrator.Report, globals GlobalFlags) {
	if globals.JSON {
		_ = output.JSON(map[string]any{
			"files_indexed":   report.FilesIndexed,
			"methods_indexed": report.MethodsIndexed,
		})
		return
	}
	ui.Header("Index Info")
	fmt.Printf("Files indexed:   %d\n", report.FilesIndexed)
	fmt.Printf("Methods indexed: %d\n", report.MethodsIndexed)
}

func printVerifyResult(report *orchestrator.Report, globals GlobalFlags) {
	if globals.JSON {
		_ = output.JSON(map[string]any{
			"used_cache":      report.UsedCache,
			"files_indexed":   report.FilesIndexed,
			"methods_indexed": report.MethodsIndexed,
			"warnings":        len(report.Warnings),
		})
		return
	}
	if report.UsedCache {
		ui.Success("Persisted index is up to date")
	} else {
		ui.Warning("Persisted index was stale and has been rebuilt")
	}
	fmt.Printf("Files indexed:   %d\n", report.FilesIndexed)
	fmt.Printf("Methods indexed: %d\n", report.MethodsIndexed)
}

func printAnalyzeResult(report *orchestrator.Report, f *analyzeFlags, globals GlobalFlags) {
	var rendered string
	switch f.outputFormat {
	case "json":
		data, err := graph.MarshalJSON(report.Graph)
		if err != nil {
			errors.FatalError(errors.NewInternalError(
				"failed to marshal graph as JSON", err.Error(), "", err,
			), globals.JSON)
		}
		rendered = string(data)
	case "mermaid":
		rendered = graph.WriteMermaid(report.Graph)
	case "dot", "":
		rendered = graph.WriteDOT(report.Graph)
	default:
		errors.FatalError(errors.NewInputError(
			"unknown --output-format",
			fmt.Sprintf("%q is not one of dot, json, mermaid", f.outputFormat),
			"pass --output-format dot, json, or mermaid",
		), globals.JSON)
	}

	if f.outputPath != "" {
		if err := os.WriteFile(f.outputPath, []byte(rendered), 0644); err != nil {
			errors.FatalError(errors.NewIOError(
				"cannot write output file", err.Error(), "check the path is writable", err,
			), globals.JSON)
		}
	} else {
		fmt.Println(rendered)
	}

	if !globals.Quiet && !globals.JSON {
		ui.Success(fmt.Sprintf("Traced %d seed method(s), %d node(s), %d edge(s)",
			report.SeedCount, report.Graph.NodeCount(), report.Graph.EdgeCount()))
		for _, d := range report.DeadEnds {
			ui.Warning(d.String())
		}
		for _, pf := range report.PatchFaults {
			ui.Warning(pf.Error())
		}
	}
}
