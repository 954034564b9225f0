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

// Package llmport defines the LanguageModel port: the external
// collaborator boundary the kernel calls through to produce the next
// assistant message. Concrete provider SDKs (OpenAI, Anthropic, Gemini,
// Ollama) are out of scope; this package only fixes the shape: a unified
// streaming/non-streaming call surface over this module's own
// mstore.FormattedMessage and pkg/kconfig.Model types.
package llmport

import (
	"context"
	"iter"

	"github.com/kadirpekel/agentkernel/pkg/kconfig"
	"github.com/kadirpekel/agentkernel/pkg/mstore"
	"github.com/kadirpekel/agentkernel/pkg/toolport"
)

// Request is the input to one LLM turn.
type Request struct {
	Messages          []mstore.FormattedMessage
	Tools             []toolport.Definition
	Config            *kconfig.Model
	SystemInstruction string
}

// Response is one yielded chunk of a Stream call, or the sole result of
// a Complete or Extract call.
type Response struct {
	Text      string
	ToolCalls []mstore.FormattedToolCall
	Reasoning string
	Refusal   string
	Usage     *Usage
	// Partial marks a streaming delta; the final response for a stream has
	// Partial=false and carries the fully aggregated content.
	Partial bool
	// Structured carries decoded output from an Extract call (the kernel
	// uses Extract when ExecuteParams.ResponseSchema is set).
	Structured any
}

// Usage reports token accounting for one Response.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Capability is a feature flag a LanguageModel may or may not support.
type Capability string

const (
	CapabilityToolCalling        Capability = "tool_calling"
	CapabilityStreaming          Capability = "streaming"
	CapabilityStructuredOutput   Capability = "structured_output"
	CapabilityParallelToolCalls  Capability = "parallel_tool_calls"
	CapabilityExtendedThinking   Capability = "extended_thinking"
)

// LLM is the LanguageModel port.
type LLM interface {
	Name() string

	// Supports reports whether this model implementation can honor cap.
	// The Agent kernel does not call it; it is available to callers and
	// event handlers that want to check a capability.
	Supports(cap Capability) bool

	// Complete runs one non-streaming turn and returns the single
	// aggregated Response.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Stream runs one streaming turn: zero or more Partial=true Response
	// values followed by exactly one Partial=false aggregated Response.
	Stream(ctx context.Context, req *Request) iter.Seq2[*Response, error]

	// Extract performs structured extraction against the given schema;
	// structured output is a LanguageModel concern, not the kernel's.
	// Implementations that don't support structured output should return
	// Response.Structured == nil without an error.
	Extract(ctx context.Context, req *Request, schema map[string]any) (*Response, error)

	Close() error
}

// Aggregate drains a Stream call and returns the final aggregated
// Response, for callers that want streaming semantics internally but a
// single result externally.
func Aggregate(ctx context.Context, llm LLM, req *Request) (*Response, error) {
	var final *Response
	for resp, err := range llm.Stream(ctx, req) {
		if err != nil {
			return nil, err
		}
		if !resp.Partial {
			final = resp
		}
	}
	return final, nil
}
