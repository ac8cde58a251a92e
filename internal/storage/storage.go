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

// Package storage implements the on-disk code-index persistence sidecar
// (§3 "Persistence sidecar", §4.6): a small JSON header (index.meta) plus a
// gob-encoded CodeIndex (index.data), written atomically via temp+rename,
// invalidated by a checksum over every source file's (path, mtime, size).
package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/paxoscn/code-impact-analyzer/internal/index"
)

// FormatVersion is the on-disk format's major version (§4.6 "a mismatch
// forces a rebuild"). Bump it whenever Meta or the encoded CodeIndex shape
// changes incompatibly.
const FormatVersion = 1

const (
	metaFileName = "index.meta"
	dataFileName = "index.data"
)

// Meta is the small structured header stored in index.meta (§3).
type Meta struct {
	FormatVersion int       `json:"format_version"`
	WorkspacePath string    `json:"workspace_path"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	FileCount     int       `json:"file_count"`
	MethodCount   int       `json:"method_count"`
	Checksum      string    `json:"checksum"`
}

// FileStat is the (relative_path, mtime_nanos, size) tuple the checksum is
// computed over (§3).
type FileStat struct {
	RelPath   string
	MtimeNano int64
	Size      int64
}

// Checksum computes the deterministic digest of stats, sorted by relative
// path so that enumeration order never affects the result (§5 "Ordering
// guarantees").
func Checksum(stats []FileStat) string {
	sorted := make([]FileStat, len(stats))
	copy(sorted, stats)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RelPath < sorted[j].RelPath })

	h := sha256.New()
	for _, s := range sorted {
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", s.RelPath, s.MtimeNano, s.Size)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// StatWorkspace walks root collecting a FileStat for every regular file
// whose extension is in extensions, relative to root.
func StatWorkspace(root string, extensions map[string]bool) ([]FileStat, error) {
	var stats []FileStat
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !extensions[filepath.Ext(path)] {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		stats = append(stats, FileStat{
			RelPath:   filepath.ToSlash(rel),
			MtimeNano: info.ModTime().UnixNano(),
			Size:      info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Save writes index.data then index.meta into directory atomically (temp +
// rename for each), per §4.6. directory is created if absent.
func Save(directory, workspacePath string, idx *index.CodeIndex, checksum string, createdAt time.Time) error {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	meta := Meta{
		FormatVersion: FormatVersion,
		WorkspacePath: workspacePath,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
		FileCount:     idx.FileCount,
		MethodCount:   idx.MethodCount,
		Checksum:      checksum,
	}

	var dataBuf bytes.Buffer
	if err := gob.NewEncoder(&dataBuf).Encode(idx); err != nil {
		return fmt.Errorf("encode index data: %w", err)
	}

	if err := writeAtomic(filepath.Join(directory, dataFileName), dataBuf.Bytes()); err != nil {
		return fmt.Errorf("write index data: %w", err)
	}

	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index meta: %w", err)
	}
	if err := writeAtomic(filepath.Join(directory, metaFileName), metaBytes); err != nil {
		return fmt.Errorf("write index meta: %w", err)
	}

	return nil
}

func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Load reads and validates index.meta, then decodes index.data (§4.6). On
// any I/O or deserialization fault — including a missing directory, a
// format-version mismatch, or a workspace-path mismatch — it returns
// (nil, nil, false, nil): absent, not an error. The orchestrator is
// expected to proceed as if no cache existed (§4.6 "degrade to no cache").
func Load(directory, workspacePath string) (*index.CodeIndex, *Meta, bool, error) {
	metaBytes, err := os.ReadFile(filepath.Join(directory, metaFileName))
	if err != nil {
		return nil, nil, false, nil
	}

	var meta Meta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, nil, false, nil
	}

	if meta.FormatVersion != FormatVersion || meta.WorkspacePath != workspacePath {
		return nil, nil, false, nil
	}

	dataBytes, err := os.ReadFile(filepath.Join(directory, dataFileName))
	if err != nil {
		return nil, nil, false, nil
	}

	var idx index.CodeIndex
	if err := gob.NewDecoder(bytes.NewReader(dataBytes)).Decode(&idx); err != nil {
		return nil, nil, false, nil
	}

	return &idx, &meta, true, nil
}

// Validate compares currentChecksum, which the caller computes from the
// workspace, and the workspace path and format version against the persisted
// meta, without loading index.data (§4.6).
func Validate(directory, workspacePath string, currentChecksum string) bool {
	metaBytes, err := os.ReadFile(filepath.Join(directory, metaFileName))
	if err != nil {
		return false
	}
	var meta Meta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return false
	}
	return meta.FormatVersion == FormatVersion &&
		meta.WorkspacePath == workspacePath &&
		meta.Checksum == currentChecksum
}

// Clear removes both index.meta and index.data from directory (§4.6). A
// missing file is not an error.
func Clear(directory string) error {
	for _, name := range []string{metaFileName, dataFileName} {
		if err := os.Remove(filepath.Join(directory, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

// ReadMeta reads and parses index.meta without validating it against a
// workspace, for the CLI's --index-info surface.
func ReadMeta(directory string) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(directory, metaFileName))
	if err != nil {
		return nil, err
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
