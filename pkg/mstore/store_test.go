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
	"github.com/kadirpekel/agentkernel/pkg/versioning"
)

func newStore() *Store {
	reg := versioning.NewMessageRegistry()
	vm := versioning.NewManager(reg)
	return New(reg, vm)
}

func TestStore_AppendAndOrder(t *testing.T) {
	s := newStore()
	s.Append(message.NewUserText("one"))
	s.Append(message.NewUserText("two"))

	got := s.Messages()
	if len(got) != 2 || got[0].Text() != "one" || got[1].Text() != "two" {
		t.Fatalf("Messages() = %v, want [one, two] in order", got)
	}
}

func TestStore_ExtendCommitsOneVersionForTheWholeBatch(t *testing.T) {
	s := newStore()
	before := s.versioning.HeadID()
	s.Extend([]*message.Message{message.NewUserText("a"), message.NewUserText("b")})
	after := s.versioning.HeadID()

	if after-before != 1 {
		t.Fatalf("Extend must create exactly one version, head moved by %d", after-before)
	}
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
}

func TestStore_ReplaceAt(t *testing.T) {
	s := newStore()
	s.Append(message.NewUserText("one"))
	s.Append(message.NewUserText("two"))

	if err := s.ReplaceAt(0, message.NewUserText("replaced")); err != nil {
		t.Fatalf("ReplaceAt() error = %v", err)
	}
	got := s.Messages()
	if got[0].Text() != "replaced" || got[1].Text() != "two" {
		t.Fatalf("Messages() after ReplaceAt = %v", got)
	}
}

func TestStore_ReplaceAtOutOfRange(t *testing.T) {
	s := newStore()
	s.Append(message.NewUserText("one"))
	if err := s.ReplaceAt(5, message.NewUserText("x")); err == nil {
		t.Fatal("ReplaceAt with an out-of-range index must fail")
	}
}

func TestStore_Prepend(t *testing.T) {
	s := newStore()
	s.Append(message.NewUserText("second"))
	s.Prepend(message.NewUserText("first"))

	got := s.Messages()
	if len(got) != 2 || got[0].Text() != "first" || got[1].Text() != "second" {
		t.Fatalf("Messages() after Prepend = %v", got)
	}
}

func TestStore_Clear(t *testing.T) {
	s := newStore()
	s.Append(message.NewUserText("one"))
	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("Len() after Clear() = %d, want 0", s.Len())
	}
}

func TestStore_FilterByRole(t *testing.T) {
	s := newStore()
	s.Append(message.NewSystemMessage("sys"))
	s.Append(message.NewUserText("hi"))
	s.Append(message.NewAssistantMessage("hello", nil))

	if got := s.User().Items(); len(got) != 1 || got[0].Text() != "hi" {
		t.Fatalf("User() = %v", got)
	}
	if got := s.Assistant().Last(); got == nil || got.Text() != "hello" {
		t.Fatalf("Assistant().Last() = %v", got)
	}
}

func TestRoleView_AppendSugar(t *testing.T) {
	s := newStore()
	m, err := s.Assistant().Append("hi")
	if err != nil {
		t.Fatalf("Assistant().Append() error = %v", err)
	}
	if m.Role != message.RoleAssistant {
		t.Fatalf("role = %v, want assistant", m.Role)
	}
	if s.Len() != 1 {
		t.Fatal("Append via RoleView must commit to the store")
	}
}

func TestRoleView_AppendRejectsToolRole(t *testing.T) {
	s := newStore()
	if _, err := s.Tool().Append("x"); err == nil {
		t.Fatal("Tool role has no content-only Append and must error")
	}
}

func TestStore_RevertIsVisibleImmediately(t *testing.T) {
	s := newStore()
	s.Append(message.NewUserText("one"))
	v1 := s.versioning.HeadID()
	s.Append(message.NewUserText("two"))

	if s.Len() != 2 {
		t.Fatal("expected two messages before reverting")
	}
	if _, err := s.versioning.RevertToVersion(v1); err != nil {
		t.Fatalf("RevertToVersion() error = %v", err)
	}
	if s.Len() != 1 || s.Messages()[0].Text() != "one" {
		t.Fatalf("Messages() after revert = %v, want just [one]", s.Messages())
	}
}
