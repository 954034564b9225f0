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

// Package mstore implements the ordered conversation log, coordinated
// with the VersioningManager on every mutation, plus role-filtered views
// and LLM materialization.
//
// Callers are expected to serialize mutations through the Agent kernel's
// guard; Store itself only guarantees that a single call to one of its
// mutating methods is atomic with respect to its own version commit, not
// that concurrent callers can't interleave two such calls.
package mstore

import (
	"fmt"

	"github.com/kadirpekel/agentkernel/pkg/message"
	"github.com/kadirpekel/agentkernel/pkg/versioning"
)

// Store is the MessageStore. It holds no message data directly — it asks
// the VersioningManager to materialize the head version on every read, so
// a revert is instantly visible with no separate cache to invalidate.
type Store struct {
	registry   *versioning.MessageRegistry
	versioning *versioning.Manager
}

// New creates an empty Store backed by registry and vm. Both are normally
// owned exclusively by one Agent.
func New(registry *versioning.MessageRegistry, vm *versioning.Manager) *Store {
	return &Store{registry: registry, versioning: vm}
}

// Messages returns the current, ordered, read-only contents: the
// materialization of head's message_ids.
func (s *Store) Messages() []*message.Message {
	return s.versioning.Materialize()
}

// Len returns the number of messages in the current head version.
func (s *Store) Len() int { return len(s.Messages()) }

func (s *Store) commit(msgs []*message.Message) {
	ids := make([]message.ID, len(msgs))
	for i, m := range msgs {
		s.registry.Register(m)
		ids[i] = m.ID
	}
	s.versioning.Commit(ids)
}

// Append adds msg to the end of the log, creating one new version. The
// new version copies the current ID list, so the cost grows with the
// length of the log.
func (s *Store) Append(msg *message.Message) {
	cur := s.Messages()
	s.commit(append(cur, msg))
}

// Extend adds msgs as a single batch, creating exactly one new version for
// the whole batch.
func (s *Store) Extend(msgs []*message.Message) {
	if len(msgs) == 0 {
		return
	}
	cur := s.Messages()
	s.commit(append(cur, msgs...))
}

// ReplaceAt overwrites the message at index i, creating a new version that
// shares every other ID.
func (s *Store) ReplaceAt(i int, msg *message.Message) error {
	cur := s.Messages()
	if i < 0 || i >= len(cur) {
		return fmt.Errorf("mstore: index %d out of range [0,%d)", i, len(cur))
	}
	next := make([]*message.Message, len(cur))
	copy(next, cur)
	next[i] = msg
	s.commit(next)
	return nil
}

// Prepend adds msg to the front of the log, creating one new version;
// like every mutation here it copies the current ID list, so it is O(n).
func (s *Store) Prepend(msg *message.Message) {
	cur := s.Messages()
	next := make([]*message.Message, 0, len(cur)+1)
	next = append(next, msg)
	next = append(next, cur...)
	s.commit(next)
}

// Clear empties the log, creating a new, empty version.
func (s *Store) Clear() {
	s.commit(nil)
}

// FilterByRole returns a read-only, role-typed view over the current
// contents. The scan is O(n); views never mutate the store.
func (s *Store) FilterByRole(role message.Role) *RoleView {
	cur := s.Messages()
	out := make([]*message.Message, 0, len(cur))
	for _, m := range cur {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return &RoleView{role: role, store: s, items: out}
}

// System, User, Assistant and Tool are sugar over FilterByRole for the
// four fixed roles, matching an `agent.user` / `agent.assistant` style
// call surface.
func (s *Store) System() *RoleView    { return s.FilterByRole(message.RoleSystem) }
func (s *Store) User() *RoleView      { return s.FilterByRole(message.RoleUser) }
func (s *Store) Assistant() *RoleView { return s.FilterByRole(message.RoleAssistant) }
func (s *Store) Tool() *RoleView      { return s.FilterByRole(message.RoleTool) }

// RoleView is a read-only, role-typed iterator over a Store snapshot.
type RoleView struct {
	role  message.Role
	store *Store
	items []*message.Message
}

// Items returns the filtered messages in store order.
func (v *RoleView) Items() []*message.Message { return v.items }

// Last returns the most recent message in the view, or nil if empty.
func (v *RoleView) Last() *message.Message {
	if len(v.items) == 0 {
		return nil
	}
	return v.items[len(v.items)-1]
}

// Append constructs the right Message variant for this view's role and
// delegates to Store.Append — sugar for e.g. store.Assistant().Append(...).
func (v *RoleView) Append(text string) (*message.Message, error) {
	var m *message.Message
	switch v.role {
	case message.RoleSystem:
		m = message.NewSystemMessage(text)
	case message.RoleUser:
		m = message.NewUserText(text)
	case message.RoleAssistant:
		m = message.NewAssistantMessage(text, nil)
	default:
		return nil, fmt.Errorf("mstore: role %q has no content-only Append; use Store.Append with message.NewToolMessage", v.role)
	}
	v.store.Append(m)
	return m, nil
}
