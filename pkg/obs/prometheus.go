// Copyright 2025 Kadir Pekel
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

package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus is a Recorder backed by prometheus/client_golang: a private
// registry and Vec metrics keyed by label.
type Prometheus struct {
	registry *prometheus.Registry

	iterations       *prometheus.CounterVec
	iterationSeconds *prometheus.HistogramVec

	toolCalls        *prometheus.CounterVec
	toolCallSeconds  *prometheus.HistogramVec
	toolErrors       *prometheus.CounterVec

	llmCalls         *prometheus.CounterVec
	llmCallSeconds   *prometheus.HistogramVec
	llmTokensIn      *prometheus.CounterVec
	llmTokensOut     *prometheus.CounterVec

	modeTransitions  *prometheus.CounterVec
}

// NewPrometheus builds a Prometheus recorder registered against its own
// private registry (the caller decides whether/how to expose it, e.g. via
// promhttp.HandlerFor).
func NewPrometheus(namespace string) *Prometheus {
	p := &Prometheus{registry: prometheus.NewRegistry()}

	p.iterations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "kernel", Name: "iterations_total",
		Help: "Total number of reasoning-loop iterations executed.",
	}, []string{"agent"})

	p.iterationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "kernel", Name: "iteration_duration_seconds",
		Help: "Duration of one reasoning-loop iteration.", Buckets: prometheus.DefBuckets,
	}, []string{"agent"})

	p.toolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "tool", Name: "calls_total",
		Help: "Total number of tool invocations.",
	}, []string{"tool"})

	p.toolCallSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "tool", Name: "call_duration_seconds",
		Help: "Duration of one tool invocation.", Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
	}, []string{"tool"})

	p.toolErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "tool", Name: "errors_total",
		Help: "Total number of tool invocations that resulted in an error response.",
	}, []string{"tool"})

	p.llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "llm", Name: "calls_total",
		Help: "Total number of completed LLM calls.",
	}, []string{"model"})

	p.llmCallSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "llm", Name: "call_duration_seconds",
		Help: "Duration of one LLM call.", Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"model"})

	p.llmTokensIn = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "llm", Name: "tokens_prompt_total",
		Help: "Total prompt tokens consumed.",
	}, []string{"model"})

	p.llmTokensOut = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "llm", Name: "tokens_completion_total",
		Help: "Total completion tokens generated.",
	}, []string{"model"})

	p.modeTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "mode", Name: "transitions_total",
		Help: "Total number of mode transitions.",
	}, []string{"from", "to"})

	p.registry.MustRegister(
		p.iterations, p.iterationSeconds,
		p.toolCalls, p.toolCallSeconds, p.toolErrors,
		p.llmCalls, p.llmCallSeconds, p.llmTokensIn, p.llmTokensOut,
		p.modeTransitions,
	)
	return p
}

// Registry exposes the underlying registry for an HTTP handler.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

func (p *Prometheus) RecordIteration(agentName string, _ int, duration time.Duration) {
	p.iterations.WithLabelValues(agentName).Inc()
	p.iterationSeconds.WithLabelValues(agentName).Observe(duration.Seconds())
}

func (p *Prometheus) RecordToolCall(toolName string, duration time.Duration, isError bool) {
	p.toolCalls.WithLabelValues(toolName).Inc()
	p.toolCallSeconds.WithLabelValues(toolName).Observe(duration.Seconds())
	if isError {
		p.toolErrors.WithLabelValues(toolName).Inc()
	}
}

func (p *Prometheus) RecordLLMComplete(modelName string, duration time.Duration, promptTokens, completionTokens int) {
	p.llmCalls.WithLabelValues(modelName).Inc()
	p.llmCallSeconds.WithLabelValues(modelName).Observe(duration.Seconds())
	p.llmTokensIn.WithLabelValues(modelName).Add(float64(promptTokens))
	p.llmTokensOut.WithLabelValues(modelName).Add(float64(completionTokens))
}

func (p *Prometheus) RecordModeTransition(fromMode, toMode string) {
	p.modeTransitions.WithLabelValues(fromMode, toMode).Inc()
}

var _ Recorder = (*Prometheus)(nil)
