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

import "strings"

// JoinPathSegments normalizes duplicate or missing slashes between path
// segments, eliding empty ones, and returns a single slash-joined path
// (§4.1.2). Path parameters such as "{id}" are preserved verbatim.
func JoinPathSegments(segments ...string) string {
	var parts []string
	for _, seg := range segments {
		seg = strings.Trim(seg, "/")
		if seg == "" {
			continue
		}
		parts = append(parts, seg)
	}
	return strings.Join(parts, "/")
}

// ProviderPath composes the provider-side path pattern:
// <app-name>/<context-path>/<class-mapping>/<method-mapping>.
func ProviderPath(appName, contextPath, classMapping, methodMapping string) string {
	return JoinPathSegments(appName, contextPath, classMapping, methodMapping)
}

// ConsumerPath composes the Feign-consumer-side path pattern:
// <service-name>/<base-path>/<method-mapping>.
func ConsumerPath(serviceName, basePath, methodMapping string) string {
	return JoinPathSegments(serviceName, basePath, methodMapping)
}

// ExtractPathParams returns the `{name}` segments found in path, in order,
// verbatim (without braces).
func ExtractPathParams(path string) []string {
	var params []string
	for {
		start := strings.Index(path, "{")
		if start < 0 {
			break
		}
		end := strings.Index(path[start:], "}")
		if end < 0 {
			break
		}
		params = append(params, path[start+1:start+end])
		path = path[start+end+1:]
	}
	return params
}
