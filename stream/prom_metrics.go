/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package stream

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Sample outcomes of the fpcql_samples_total counter
const (
	OutcomeAdmitted = "admitted"
	OutcomeFiltered = "filtered"
	OutcomeDropped  = "dropped"
)

// Metrics are the Prometheus collectors shared by the queries of an engine, labelled by
// query name.
type Metrics struct {
	Samples      *prometheus.CounterVec
	Passes       *prometheus.CounterVec
	Rows         *prometheus.CounterVec
	Errors       *prometheus.CounterVec
	BufferLength *prometheus.GaugeVec
	PassLatency  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg leaves them
// unregistered. Collectors already registered by another engine are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fpcql_samples_total",
			Help: "Samples delivered by the samplers, by outcome.",
		}, []string{"query", "outcome"}),
		Passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fpcql_selection_passes_total",
			Help: "Completed selection passes.",
		}, []string{"query"}),
		Rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fpcql_rows_emitted_total",
			Help: "Rows delivered to the downstream handler.",
		}, []string{"query"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fpcql_query_errors_total",
			Help: "Queries stopped by a failure.",
		}, []string{"query"}),
		BufferLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fpcql_buffer_length",
			Help: "Samples currently buffered.",
		}, []string{"query"}),
		PassLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fpcql_selection_pass_seconds",
			Help:    "Duration of a selection pass, snapshot to last row.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}, []string{"query"}),
	}
	if reg == nil {
		return m, nil
	}
	var err error
	if m.Samples, err = register(reg, m.Samples); err != nil {
		return nil, err
	}
	if m.Passes, err = register(reg, m.Passes); err != nil {
		return nil, err
	}
	if m.Rows, err = register(reg, m.Rows); err != nil {
		return nil, err
	}
	if m.Errors, err = register(reg, m.Errors); err != nil {
		return nil, err
	}
	if m.BufferLength, err = register(reg, m.BufferLength); err != nil {
		return nil, err
	}
	if m.PassLatency, err = register(reg, m.PassLatency); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Forget removes the series of a stopped query
func (m *Metrics) Forget(query string) {
	if m == nil {
		return
	}
	for _, outcome := range []string{OutcomeAdmitted, OutcomeFiltered, OutcomeDropped} {
		m.Samples.DeleteLabelValues(query, outcome)
	}
	m.Passes.DeleteLabelValues(query)
	m.Rows.DeleteLabelValues(query)
	m.Errors.DeleteLabelValues(query)
	m.BufferLength.DeleteLabelValues(query)
	m.PassLatency.DeleteLabelValues(query)
}

// queryMetrics are the children of Metrics for one query; the zero value records nothing
type queryMetrics struct {
	admitted, filtered, dropped prometheus.Counter
	passes, rows, errors        prometheus.Counter
	bufferLength                prometheus.Gauge
	passLatency                 prometheus.Observer
}

func (m *Metrics) forQuery(query string) queryMetrics {
	if m == nil {
		return queryMetrics{}
	}
	return queryMetrics{
		admitted:     m.Samples.WithLabelValues(query, OutcomeAdmitted),
		filtered:     m.Samples.WithLabelValues(query, OutcomeFiltered),
		dropped:      m.Samples.WithLabelValues(query, OutcomeDropped),
		passes:       m.Passes.WithLabelValues(query),
		rows:         m.Rows.WithLabelValues(query),
		errors:       m.Errors.WithLabelValues(query),
		bufferLength: m.BufferLength.WithLabelValues(query),
		passLatency:  m.PassLatency.WithLabelValues(query),
	}
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

func (qm queryMetrics) setBufferLength(n int) {
	if qm.bufferLength != nil {
		qm.bufferLength.Set(float64(n))
	}
}

func (qm queryMetrics) addRows(n int) {
	if qm.rows != nil {
		qm.rows.Add(float64(n))
	}
}

func (qm queryMetrics) observePass(seconds float64) {
	if qm.passLatency != nil {
		qm.passLatency.Observe(seconds)
	}
}
