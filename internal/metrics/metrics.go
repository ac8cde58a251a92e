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

// Package metrics exposes the Prometheus counters and histograms for the
// analyzer's pipeline stages.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// pipelineMetrics holds every Prometheus collector the analyzer registers.
type pipelineMetrics struct {
	once sync.Once

	filesParsed     prometheus.Counter
	parseErrors     prometheus.Counter
	methodsIndexed  prometheus.Counter
	indexCollisions prometheus.Counter

	seedsTraced    prometheus.Counter
	seedsDeadEnd   prometheus.Counter
	nodesEmitted   prometheus.Counter
	edgesEmitted   prometheus.Counter
	cyclesDetected prometheus.Counter

	cacheHits  prometheus.Counter
	cacheMiss  prometheus.Counter

	parseDuration prometheus.Histogram
	indexDuration prometheus.Histogram
	traceDuration prometheus.Histogram
}

var m pipelineMetrics

func (pm *pipelineMetrics) init() {
	pm.once.Do(func() {
		pm.filesParsed = prometheus.NewCounter(prometheus.CounterOpts{Name: "cia_files_parsed_total", Help: "Source files successfully parsed"})
		pm.parseErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "cia_parse_errors_total", Help: "Source files that failed to parse"})
		pm.methodsIndexed = prometheus.NewCounter(prometheus.CounterOpts{Name: "cia_methods_indexed_total", Help: "Methods registered in the code index"})
		pm.indexCollisions = prometheus.NewCounter(prometheus.CounterOpts{Name: "cia_index_collisions_total", Help: "Duplicate qualified-name registrations"})

		pm.seedsTraced = prometheus.NewCounter(prometheus.CounterOpts{Name: "cia_seeds_traced_total", Help: "Seed methods that produced a graph contribution"})
		pm.seedsDeadEnd = prometheus.NewCounter(prometheus.CounterOpts{Name: "cia_seeds_dead_end_total", Help: "Seed methods absent from the index"})
		pm.nodesEmitted = prometheus.NewCounter(prometheus.CounterOpts{Name: "cia_graph_nodes_total", Help: "Nodes emitted across all traces"})
		pm.edgesEmitted = prometheus.NewCounter(prometheus.CounterOpts{Name: "cia_graph_edges_total", Help: "Edges emitted across all traces"})
		pm.cyclesDetected = prometheus.NewCounter(prometheus.CounterOpts{Name: "cia_graph_cycles_total", Help: "Cycles detected across all traces"})

		pm.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "cia_index_cache_hits_total", Help: "Persisted index loads that validated"})
		pm.cacheMiss = prometheus.NewCounter(prometheus.CounterOpts{Name: "cia_index_cache_misses_total", Help: "Persisted index loads that required a rebuild"})

		buckets := []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
		pm.parseDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "cia_parse_seconds", Help: "Wall time spent reading and parsing one source file", Buckets: buckets})
		pm.indexDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "cia_index_build_seconds", Help: "Wall time spent folding parsed files into the index", Buckets: buckets})
		pm.traceDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "cia_trace_seconds", Help: "Wall time spent tracing from seeds", Buckets: buckets})

		prometheus.MustRegister(
			pm.filesParsed, pm.parseErrors, pm.methodsIndexed, pm.indexCollisions,
			pm.seedsTraced, pm.seedsDeadEnd, pm.nodesEmitted, pm.edgesEmitted, pm.cyclesDetected,
			pm.cacheHits, pm.cacheMiss,
			pm.parseDuration, pm.indexDuration, pm.traceDuration,
		)
	})
}

// RecordFileParsed increments the parsed-files counter.
func RecordFileParsed() { m.init(); m.filesParsed.Inc() }

// RecordParseError increments the parse-errors counter.
func RecordParseError() { m.init(); m.parseErrors.Inc() }

// RecordMethodsIndexed adds n to the methods-indexed counter.
func RecordMethodsIndexed(n int) { m.init(); m.methodsIndexed.Add(float64(n)) }

// RecordIndexCollision increments the index-collisions counter.
func RecordIndexCollision() { m.init(); m.indexCollisions.Inc() }

// RecordSeedTraced increments the seeds-traced counter.
func RecordSeedTraced() { m.init(); m.seedsTraced.Inc() }

// RecordSeedDeadEnd increments the seeds-dead-end counter.
func RecordSeedDeadEnd() { m.init(); m.seedsDeadEnd.Inc() }

// RecordGraph adds the given node/edge/cycle counts to their respective
// counters, called once per completed trace.
func RecordGraph(nodes, edges, cycles int) {
	m.init()
	m.nodesEmitted.Add(float64(nodes))
	m.edgesEmitted.Add(float64(edges))
	m.cyclesDetected.Add(float64(cycles))
}

// RecordCacheHit / RecordCacheMiss track persisted-index reuse.
func RecordCacheHit()  { m.init(); m.cacheHits.Inc() }
func RecordCacheMiss() { m.init(); m.cacheMiss.Inc() }

// ObserveParseDuration / ObserveIndexDuration / ObserveTraceDuration record
// stage wall-clock time in seconds.
func ObserveParseDuration(seconds float64) { m.init(); m.parseDuration.Observe(seconds) }
func ObserveIndexDuration(seconds float64) { m.init(); m.indexDuration.Observe(seconds) }
func ObserveTraceDuration(seconds float64) { m.init(); m.traceDuration.Observe(seconds) }
