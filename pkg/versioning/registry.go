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

// Package versioning implements the VersioningManager and MessageRegistry:
// O(1) snapshots via message-ID lists, and a registry that owns messages
// strongly so versions can stay cheap ID lists. The registry follows a
// generic map+RWMutex shape, keyed by message.ID.
package versioning

import (
	"sync"

	"github.com/kadirpekel/agentkernel/pkg/message"
)

// MessageRegistry owns every Message ever appended to any store, keyed by
// ID. Messages are never deleted from it; a Version only ever references
// IDs, so replaying an old version costs one map lookup per ID and never
// resurrects deleted data because nothing is ever deleted.
type MessageRegistry struct {
	mu    sync.RWMutex
	items map[message.ID]*message.Message
}

// NewMessageRegistry creates an empty registry.
func NewMessageRegistry() *MessageRegistry {
	return &MessageRegistry{items: make(map[message.ID]*message.Message)}
}

// Register inserts msg into the registry, keyed by its own ID. Registering
// the same ID twice is a no-op (idempotent) rather than an error: replaying
// a version re-registers IDs that are already present.
func (r *MessageRegistry) Register(msg *message.Message) {
	if msg == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[msg.ID]; !exists {
		r.items[msg.ID] = msg
	}
}

// Lookup returns the message for id, or (nil, false) if it was never
// registered.
func (r *MessageRegistry) Lookup(id message.ID) (*message.Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.items[id]
	return m, ok
}

// LookupAll resolves a list of IDs in order, skipping any ID that the
// registry has no entry for (defensive; under normal operation every ID a
// Version carries was registered at append time).
func (r *MessageRegistry) LookupAll(ids []message.ID) []*message.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*message.Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := r.items[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Count returns the number of distinct messages ever registered.
func (r *MessageRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
