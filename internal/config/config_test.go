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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_PartialFileFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	content := "max_depth: 3\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxDepth)
	assert.Equal(t, "dot", cfg.OutputFormat)
	assert.Equal(t, ".impactanalyzer", cfg.IndexDir)
}

func TestLoad_FullFile(t *testing.T) {
	dir := t.TempDir()
	content := `
output_format: json
max_depth: 5
exclude:
  - "**/generated/**"
index_dir: ".cache"
workers: 8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, 5, cfg.MaxDepth)
	assert.Equal(t, []string{"**/generated/**"}, cfg.Exclude)
	assert.Equal(t, ".cache", cfg.IndexDir)
	assert.Equal(t, 8, cfg.Workers)
}

func TestLoad_MalformedFileIsError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("not: [valid"), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}
