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

package event

// Stable event names shared across the kernel's subsystems, following a
// colon-delimited <object>:<action>[:<phase>] convention.
const (
	MessageAppend = "message:append"
	ToolCall      = "tool:call"
	LLMComplete   = "llm:complete"
	Execute       = "execute"
	ExecuteIter   = "execute:iteration"
	ModeEntering  = "mode:entering"
	ModeEntered   = "mode:entered"
	ModeExiting   = "mode:exiting"
	ModeExited    = "mode:exited"
	ModeError     = "mode:error"
	ModeTransition = "mode:transition"
	AgentVersionChange = "agent:version:change"
	AgentClose    = "agent:close"
)
