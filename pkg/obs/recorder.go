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

// Package obs defines the Recorder port: metrics sinks are an external
// collaborator, but the kernel still calls a small fixed set of
// instrumentation points (execute:iteration, tool:call, llm:complete)
// around its own event loop. NoOp is the default; Prometheus wires a
// concrete prometheus/client_golang backend without requiring a live
// scrape target.
package obs

import "time"

// Recorder is the kernel-facing observability port.
type Recorder interface {
	RecordIteration(agentName string, iteration int, duration time.Duration)
	RecordToolCall(toolName string, duration time.Duration, isError bool)
	RecordLLMComplete(modelName string, duration time.Duration, promptTokens, completionTokens int)
	RecordModeTransition(fromMode, toMode string)
}

// NoOp is the zero-cost default Recorder; every Agent is constructed with
// this unless a caller supplies another one.
type NoOp struct{}

func (NoOp) RecordIteration(string, int, time.Duration)       {}
func (NoOp) RecordToolCall(string, time.Duration, bool)       {}
func (NoOp) RecordLLMComplete(string, time.Duration, int, int) {}
func (NoOp) RecordModeTransition(string, string)              {}

var _ Recorder = NoOp{}
