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

package mstore

import (
	"github.com/kadirpekel/agentkernel/pkg/message"
)

// FormattedToolCall is the wire-format shape of an assistant tool call.
type FormattedToolCall struct {
	ID           string
	FunctionName string
	ArgumentsRaw string
}

// FormattedMessage is the wire format for LLM input:
// `{role, content, name?, tool_call_id?, tool_calls?}`. Content is kept as
// the ordered content parts rather than collapsed to a single string —
// providers that need a flat string do that collapsing in the
// LanguageModel port, which already knows the provider's conventions.
type FormattedMessage struct {
	Role       message.Role
	Content    []message.ContentPart
	Name       string
	ToolCallID string
	ToolCalls  []FormattedToolCall
}

// syntheticToolContent is the literal placeholder inserted for an
// unanswered tool call: providers expect a JSON object, so "{}" is used
// verbatim and existing tool content is never re-encoded.
const syntheticToolContent = "{}"

// MaterializeForLLM renders the store's current contents to wire format
// and runs the pairing-repair pass: any assistant tool_call with no
// following Tool answer gets a synthetic Tool{content:"{}"} inserted
// before the next non-tool message. The store itself is never touched by
// this method.
func (s *Store) MaterializeForLLM() []FormattedMessage {
	return Repair(s.Messages())
}

// Repair is the pairing-repair algorithm in isolation, exported so it can
// be tested directly against hand-built message slices without going
// through a live Store.
func Repair(msgs []*message.Message) []FormattedMessage {
	out := make([]FormattedMessage, 0, len(msgs))

	i := 0
	for i < len(msgs) {
		m := msgs[i]
		out = append(out, format(m))
		i++

		if m.Role != message.RoleAssistant || len(m.ToolCalls) == 0 {
			continue
		}

		covered := make(map[string]bool, len(m.ToolCalls))
		// Consume immediately-following Tool messages, whichever of this
		// assistant's call IDs they answer.
		for i < len(msgs) && msgs[i].Role == message.RoleTool {
			t := msgs[i]
			out = append(out, format(t))
			covered[t.ToolCallID] = true
			i++
		}

		// Insert synthetic placeholders, in tool_calls order, for any
		// call ID this run of Tool messages never covered.
		for _, tc := range m.ToolCalls {
			if covered[tc.ID] {
				continue
			}
			out = append(out, FormattedMessage{
				Role:       message.RoleTool,
				Content:    []message.ContentPart{message.Text{Value: syntheticToolContent}},
				ToolCallID: tc.ID,
			})
		}
	}

	return out
}

func format(m *message.Message) FormattedMessage {
	f := FormattedMessage{
		Role:    m.Role,
		Content: m.Parts,
		Name:    m.Name,
	}
	if m.Role == message.RoleTool {
		f.ToolCallID = m.ToolCallID
	}
	if len(m.ToolCalls) > 0 {
		calls := make([]FormattedToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			calls[i] = FormattedToolCall{ID: tc.ID, FunctionName: tc.FunctionName, ArgumentsRaw: tc.ArgumentsRaw}
		}
		f.ToolCalls = calls
	}
	return f
}
