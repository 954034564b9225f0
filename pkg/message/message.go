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

// Package message implements the conversation data model: the Message
// sum type and its ContentPart variants. The ordered message store built
// on top of them lives in pkg/mstore.
package message

import (
	"fmt"
	"time"
	"weak"
)

// agentBackref is a weak back-reference from a Message to its owning
// Agent, letting a message reach back to the agent that produced it
// without the pair forming a reference cycle the garbage collector can't
// clear. It is typed as weak.Pointer[any] rather than a concrete Agent
// type to avoid an import cycle (the kernel package imports message, not
// the reverse); the kernel package is the only caller that ever
// dereferences it, and it does the type assertion back to its own Agent
// type.
type agentBackref = weak.Pointer[any]

// Role discriminates the Message sum type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one entry in an Assistant message's ordered tool_calls list.
type ToolCall struct {
	ID           string
	FunctionName string
	ArgumentsRaw string // raw JSON, validated lazily by the tool port
}

// Usage carries token accounting; the kernel never computes these values
// itself, since cost/token accounting is an external LanguageModel-port
// concern, it only stores what the port reports.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Message is the single closed representation of every conversation role.
// Which fields are meaningful depends on Role; use the New*Message
// constructors rather than building a Message by hand so invariants hold
// (e.g. a Tool message always carries ToolCallID and ToolName).
type Message struct {
	ID        ID
	Role      Role
	Timestamp time.Time
	Name      string
	Parts     []ContentPart

	// RenderContext snapshots template variables resolved at construction
	// time, consulted only when re-rendering a Template part later.
	RenderContext map[string]any

	Usage *Usage

	// Assistant-only fields.
	ToolCalls []ToolCall
	Reasoning string
	Refusal   string
	Citations []string
	Annotations map[string]any
	// Structured carries the validated typed payload for an
	// AssistantStructured variant (response_model calls); nil otherwise.
	Structured any

	// Tool-only fields.
	ToolCallID string
	ToolName   string

	agentRef agentBackref
}

// Text is a convenience accessor returning the concatenation of every
// Text content part, the common case for single-part messages.
func (m *Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if t, ok := p.(Text); ok {
			out += t.Value
		}
	}
	return out
}

// SetAgentRef installs the weak back-reference to the owning Agent. Only
// the kernel package calls this, immediately after registering a message.
func (m *Message) SetAgentRef(ref weak.Pointer[any]) { m.agentRef = ref }

// AgentRef returns the weak back-reference installed by SetAgentRef, or
// the zero value if none was ever set (e.g. a message built in a test
// without an owning Agent).
func (m *Message) AgentRef() weak.Pointer[any] { return m.agentRef }

// HasPendingToolCalls reports whether m is an assistant message with at
// least one tool call. It is a cheap structural check: it does not look
// for Tool messages that already answer those calls.
func (m *Message) HasPendingToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

func newBase(role Role, parts []ContentPart) Message {
	return Message{
		ID:        NextID(),
		Role:      role,
		Timestamp: time.Now().UTC(),
		Parts:     parts,
	}
}

// NewSystemMessage constructs a System message from plain text.
func NewSystemMessage(text string) *Message {
	m := newBase(RoleSystem, []ContentPart{Text{Value: text}})
	return &m
}

// NewUserMessage constructs a User message from one or more content parts.
func NewUserMessage(parts ...ContentPart) *Message {
	m := newBase(RoleUser, parts)
	return &m
}

// NewUserText is sugar for NewUserMessage(Text{Value: text}).
func NewUserText(text string) *Message {
	return NewUserMessage(Text{Value: text})
}

// NewAssistantMessage constructs an Assistant message. toolCalls may be
// empty for a final-turn response.
func NewAssistantMessage(text string, toolCalls []ToolCall) *Message {
	m := newBase(RoleAssistant, []ContentPart{Text{Value: text}})
	m.ToolCalls = toolCalls
	return &m
}

// NewAssistantStructured constructs the AssistantStructured variant:
// an Assistant message additionally carrying a validated typed payload.
func NewAssistantStructured(text string, payload any) *Message {
	m := newBase(RoleAssistant, []ContentPart{Text{Value: text}})
	m.Structured = payload
	return &m
}

// NewToolMessage constructs a Tool message answering toolCallID.
func NewToolMessage(toolCallID, toolName, content string) (*Message, error) {
	if toolCallID == "" {
		return nil, fmt.Errorf("message: tool message requires a non-empty tool_call_id")
	}
	if toolName == "" {
		return nil, fmt.Errorf("message: tool message requires a non-empty tool_name")
	}
	m := newBase(RoleTool, []ContentPart{Text{Value: content}})
	m.ToolCallID = toolCallID
	m.ToolName = toolName
	return &m, nil
}

// RenderForStorage produces a JSON-compatible snapshot of m, including
// each template part's context snapshot. It is one-way: no function in
// this package rebuilds a Message from the map, and inline image or file
// bytes are recorded only by their length.
func (m *Message) RenderForStorage() map[string]any {
	parts := make([]map[string]any, 0, len(m.Parts))
	for _, p := range m.Parts {
		parts = append(parts, renderPart(p))
	}

	out := map[string]any{
		"id":        m.ID.String(),
		"role":      string(m.Role),
		"timestamp": m.Timestamp.Format(time.RFC3339Nano),
		"parts":     parts,
	}
	if m.Name != "" {
		out["name"] = m.Name
	}
	if len(m.ToolCalls) > 0 {
		calls := make([]map[string]any, 0, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			calls = append(calls, map[string]any{
				"id": tc.ID, "function_name": tc.FunctionName, "arguments": tc.ArgumentsRaw,
			})
		}
		out["tool_calls"] = calls
	}
	if m.ToolCallID != "" {
		out["tool_call_id"] = m.ToolCallID
		out["tool_name"] = m.ToolName
	}
	if m.Structured != nil {
		out["structured"] = m.Structured
	}
	return out
}

func renderPart(p ContentPart) map[string]any {
	switch v := p.(type) {
	case Text:
		return map[string]any{"type": "text", "text": v.Value}
	case Template:
		out := map[string]any{
			"type":          "template",
			"template":      v.TemplateString,
			"required_vars": v.RequiredVars,
		}
		if v.ContextSnapshot != nil {
			out["context_snapshot"] = v.ContextSnapshot
		}
		return out
	case Image:
		out := map[string]any{"type": "image_url", "detail": string(v.Detail)}
		if v.URL != "" {
			out["url"] = v.URL
		} else {
			out["bytes_len"] = len(v.Bytes)
		}
		return out
	case File:
		out := map[string]any{"type": "file", "name": v.Name}
		if v.Path != "" {
			out["path"] = v.Path
		} else {
			out["bytes_len"] = len(v.Bytes)
		}
		return out
	default:
		return map[string]any{"type": p.Kind()}
	}
}
