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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheus_RecordIteration(t *testing.T) {
	p := NewPrometheus("agentkernel_test")
	p.RecordIteration("agent-a", 0, 10*time.Millisecond)
	p.RecordIteration("agent-a", 1, 10*time.Millisecond)

	if got := testutil.ToFloat64(p.iterations.WithLabelValues("agent-a")); got != 2 {
		t.Fatalf("iterations counter = %v, want 2", got)
	}
}

func TestPrometheus_RecordToolCallTracksErrors(t *testing.T) {
	p := NewPrometheus("agentkernel_test")
	p.RecordToolCall("get_weather", time.Millisecond, false)
	p.RecordToolCall("get_weather", time.Millisecond, true)

	if got := testutil.ToFloat64(p.toolCalls.WithLabelValues("get_weather")); got != 2 {
		t.Fatalf("toolCalls counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.toolErrors.WithLabelValues("get_weather")); got != 1 {
		t.Fatalf("toolErrors counter = %v, want 1", got)
	}
}

func TestPrometheus_RecordLLMCompleteAccumulatesTokens(t *testing.T) {
	p := NewPrometheus("agentkernel_test")
	p.RecordLLMComplete("gpt", time.Millisecond, 10, 5)
	p.RecordLLMComplete("gpt", time.Millisecond, 20, 15)

	if got := testutil.ToFloat64(p.llmTokensIn.WithLabelValues("gpt")); got != 30 {
		t.Fatalf("llmTokensIn = %v, want 30", got)
	}
	if got := testutil.ToFloat64(p.llmTokensOut.WithLabelValues("gpt")); got != 20 {
		t.Fatalf("llmTokensOut = %v, want 20", got)
	}
}

func TestPrometheus_RecordModeTransition(t *testing.T) {
	p := NewPrometheus("agentkernel_test")
	p.RecordModeTransition("", "research")

	if got := testutil.ToFloat64(p.modeTransitions.WithLabelValues("", "research")); got != 1 {
		t.Fatalf("modeTransitions = %v, want 1", got)
	}
}

func TestNoOp_SatisfiesRecorderWithoutPanicking(t *testing.T) {
	var r Recorder = NoOp{}
	r.RecordIteration("a", 0, time.Millisecond)
	r.RecordToolCall("t", time.Millisecond, false)
	r.RecordLLMComplete("m", time.Millisecond, 1, 1)
	r.RecordModeTransition("a", "b")
}
