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
	"testing"

	"github.com/kadirpekel/agentkernel/pkg/message"
)

func TestRepair_FullyAnsweredPassesThrough(t *testing.T) {
	assistant := message.NewAssistantMessage("", []message.ToolCall{{ID: "c1", FunctionName: "f", ArgumentsRaw: "{}"}})
	tool, _ := message.NewToolMessage("c1", "f", `{"ok":true}`)

	out := Repair([]*message.Message{assistant, tool})
	if len(out) != 2 {
		t.Fatalf("Repair() len = %d, want 2", len(out))
	}
	if out[1].ToolCallID != "c1" || out[1].Content[0].(message.Text).Value != `{"ok":true}` {
		t.Fatalf("existing tool content must be passed through unmodified, got %+v", out[1])
	}
}

func TestRepair_InsertsSyntheticForUnanswered(t *testing.T) {
	assistant := message.NewAssistantMessage("", []message.ToolCall{{ID: "c1", FunctionName: "f", ArgumentsRaw: "{}"}})

	out := Repair([]*message.Message{assistant})
	if len(out) != 2 {
		t.Fatalf("Repair() len = %d, want 2 (assistant + synthetic tool)", len(out))
	}
	synthetic := out[1]
	if synthetic.Role != message.RoleTool || synthetic.ToolCallID != "c1" {
		t.Fatalf("synthetic entry = %+v, want a Tool entry for c1", synthetic)
	}
	if synthetic.Content[0].(message.Text).Value != "{}" {
		t.Fatalf("synthetic content = %v, want literal {}", synthetic.Content)
	}
}

func TestRepair_PartiallyAnsweredFillsOnlyTheGap(t *testing.T) {
	assistant := message.NewAssistantMessage("", []message.ToolCall{
		{ID: "c1", FunctionName: "f", ArgumentsRaw: "{}"},
		{ID: "c2", FunctionName: "g", ArgumentsRaw: "{}"},
	})
	tool1, _ := message.NewToolMessage("c1", "f", `"answered"`)

	out := Repair([]*message.Message{assistant, tool1})
	if len(out) != 3 {
		t.Fatalf("Repair() len = %d, want 3", len(out))
	}
	if out[1].ToolCallID != "c1" {
		t.Fatalf("real tool response for c1 must be preserved at its original position, got %+v", out[1])
	}
	if out[2].ToolCallID != "c2" || out[2].Content[0].(message.Text).Value != "{}" {
		t.Fatalf("c2 must get a synthetic placeholder, got %+v", out[2])
	}
}

func TestRepair_StoreIsNeverMutated(t *testing.T) {
	assistant := message.NewAssistantMessage("", []message.ToolCall{{ID: "c1", FunctionName: "f", ArgumentsRaw: "{}"}})
	msgs := []*message.Message{assistant}

	Repair(msgs)

	if len(msgs) != 1 {
		t.Fatal("Repair must never append to the caller's slice in place")
	}
	if assistant.HasPendingToolCalls() == false {
		t.Fatal("Repair must not mark the original assistant message as resolved")
	}
}

func TestStore_MaterializeForLLMRunsRepair(t *testing.T) {
	s := newStore()
	assistant := message.NewAssistantMessage("", []message.ToolCall{{ID: "c1", FunctionName: "f", ArgumentsRaw: "{}"}})
	s.Append(assistant)

	out := s.MaterializeForLLM()
	if len(out) != 2 {
		t.Fatalf("MaterializeForLLM() len = %d, want 2 (assistant + synthetic tool)", len(out))
	}
	if s.Len() != 1 {
		t.Fatal("MaterializeForLLM must not commit the synthetic repair back to the store")
	}
}
