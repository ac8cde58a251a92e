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

// Package config reads impactctl's top-level analyzer configuration, a
// `.impactanalyzer.yaml` file at the workspace root following the same
// project-config convention as the companion application-config file the
// parser package reads (internal/parser's ConfigLookup).
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the analyzer-wide configuration a workspace may carry in
// `.impactanalyzer.yaml`. Every field has a sane zero-value default so a
// workspace without the file behaves identically to Default.
type Config struct {
	// OutputFormat names an output format (dot, json, or mermaid). It is
	// read from the file but analyze does not consult it: --output-format
	// defaults to dot whatever this field holds.
	OutputFormat string `yaml:"output_format"`

	// MaxDepth is the default --max-depth when the flag is absent.
	MaxDepth int `yaml:"max_depth"`

	// Exclude holds additional glob patterns excluded from the workspace
	// file walk, beyond the built-in defaults (vendor/, node_modules/, .git/,
	// target/, build/).
	Exclude []string `yaml:"exclude"`

	// IndexDir overrides the persisted-index subdirectory name under the
	// workspace root (default ".impactanalyzer").
	IndexDir string `yaml:"index_dir"`

	// Workers is the default parser worker count when --workers is absent.
	Workers int `yaml:"workers"`
}

// FileName is the conventional config file name searched for at the
// workspace root.
const FileName = ".impactanalyzer.yaml"

// DefaultExcludes are the glob patterns walked workspaces always skip,
// independent of any Exclude entries from the config file.
var DefaultExcludes = []string{
	"**/vendor/**",
	"**/node_modules/**",
	"**/.git/**",
	"**/target/**",
	"**/build/**",
}

// Default returns the configuration a workspace with no `.impactanalyzer.yaml`
// uses.
func Default() *Config {
	return &Config{
		OutputFormat: "dot",
		MaxDepth:     10,
		IndexDir:     ".impactanalyzer",
		Workers:      4,
	}
}

// Load reads `.impactanalyzer.yaml` from workspaceRoot, falling back to
// Default() (never an error) when the file is absent. A malformed file is a
// configuration fault, reported to the caller to decide how to exit.
func Load(workspaceRoot string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(workspaceRoot, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "dot"
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = 10
	}
	if cfg.IndexDir == "" {
		cfg.IndexDir = ".impactanalyzer"
	}
	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
	return cfg, nil
}
