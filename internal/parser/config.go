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

import (
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// AppConfig is the companion application-config fact a parser needs to
// compose an HTTP provider path (§4.1.2): the application name and the
// context path it's served under.
type AppConfig struct {
	ApplicationName string
	ContextPath     string
}

// springConfig mirrors the handful of Spring Boot `application.yml` keys
// this engine cares about. Everything else in the file is ignored.
type springConfig struct {
	Server struct {
		Servlet struct {
			ContextPath string `yaml:"context-path"`
		} `yaml:"servlet"`
	} `yaml:"server"`
	Spring struct {
		Application struct {
			Name string `yaml:"name"`
		} `yaml:"application"`
	} `yaml:"spring"`
}

// companionConfigNames are the conventional locations searched, nearest
// first, relative to each candidate directory.
var companionConfigNames = []string{
	filepath.Join("src", "main", "resources", "application.yml"),
	filepath.Join("src", "main", "resources", "application.yaml"),
	filepath.Join("src", "main", "resources", "bootstrap.yml"),
	"application.yml",
	"application.yaml",
}

// ConfigLookup walks upward from a source file's directory to find its
// project's companion application-config file, caching the result per
// project root so repeated lookups within the same project are free
// (§4.1.3, §9 "Parser-local companion config lookup").
type ConfigLookup struct {
	mu    sync.Mutex
	cache map[string]*AppConfig
}

// NewConfigLookup creates an empty, ready-to-use lookup cache.
func NewConfigLookup() *ConfigLookup {
	return &ConfigLookup{cache: make(map[string]*AppConfig)}
}

// Lookup finds the companion config for the project containing filePath,
// defaulting ApplicationName to the project directory's base name and
// ContextPath to empty when no config file is found or required keys are
// absent (§4.1.2).
func (c *ConfigLookup) Lookup(filePath string) *AppConfig {
	dir := filepath.Dir(filePath)
	root := c.findProjectRoot(dir)

	c.mu.Lock()
	if cfg, ok := c.cache[root]; ok {
		c.mu.Unlock()
		return cfg
	}
	c.mu.Unlock()

	cfg := c.load(root)

	c.mu.Lock()
	c.cache[root] = cfg
	c.mu.Unlock()
	return cfg
}

// findProjectRoot walks upward from dir looking for a directory that
// contains one of the conventional config locations or a go.mod/pom.xml
// marker; it stops at the first match or the filesystem root.
func (c *ConfigLookup) findProjectRoot(dir string) string {
	for {
		for _, rel := range companionConfigNames {
			if _, err := os.Stat(filepath.Join(dir, rel)); err == nil {
				return dir
			}
		}
		for _, marker := range []string{"pom.xml", "go.mod", "build.gradle"} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

func (c *ConfigLookup) load(projectRoot string) *AppConfig {
	cfg := &AppConfig{
		ApplicationName: filepath.Base(projectRoot),
	}

	for _, rel := range companionConfigNames {
		path := filepath.Join(projectRoot, rel)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var sc springConfig
		if err := yaml.Unmarshal(data, &sc); err != nil {
			continue
		}
		if sc.Spring.Application.Name != "" {
			cfg.ApplicationName = sc.Spring.Application.Name
		}
		cfg.ContextPath = sc.Server.Servlet.ContextPath
		return cfg
	}

	return cfg
}
