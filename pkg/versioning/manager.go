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

package versioning

import (
	"fmt"
	"sync"
	"time"

	"github.com/kadirpekel/agentkernel/pkg/message"
)

// VersionID identifies a Version; monotonically increasing, never reused.
type VersionID uint64

// Version is an immutable, append-only list of message IDs.
type Version struct {
	ID        VersionID
	MessageIDs []message.ID
	CreatedAt time.Time
}

// Manager keeps the full version history and the current head pointer,
// and rebuilds a message slice from the MessageRegistry on demand. It is
// a thin orchestration layer over storage and recovery: an in-memory,
// append-only history rather than a persisted checkpoint store.
type Manager struct {
	mu       sync.RWMutex
	registry *MessageRegistry
	history  []Version
	head     VersionID
	nextID   VersionID

	// onRevert is invoked with (from, to) immediately before head changes,
	// letting the kernel emit an agent:version:change signal event without
	// this package depending on the event router.
	onRevert func(from, to VersionID)
}

// NewManager creates a Manager with an empty initial version (version 0,
// no messages) already at head.
func NewManager(registry *MessageRegistry) *Manager {
	m := &Manager{registry: registry}
	m.history = []Version{{ID: 0, MessageIDs: nil, CreatedAt: time.Now()}}
	m.head = 0
	m.nextID = 1
	return m
}

// OnRevert installs the callback fired by RevertToVersion before the head
// pointer moves.
func (m *Manager) OnRevert(fn func(from, to VersionID)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRevert = fn
}

// Commit appends a new version built from ids and makes it head. Every
// MessageStore mutation (append/extend/replace_at/prepend/clear) calls
// this exactly once, so a single emission always corresponds to exactly
// one new Version.
func (m *Manager) Commit(ids []message.ID) Version {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := Version{ID: m.nextID, MessageIDs: ids, CreatedAt: time.Now()}
	m.nextID++
	m.history = append(m.history, v)
	m.head = v.ID
	return v
}

// Head returns the current head version.
func (m *Manager) Head() Version {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history[m.indexOf(m.head)]
}

// HeadID returns just the head version's ID, the cheap form of Head()
// callers poll to detect whether anything changed.
func (m *Manager) HeadID() VersionID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.head
}

// History returns every version ever committed, oldest first. The slice
// is a copy; callers cannot mutate internal state through it.
func (m *Manager) History() []Version {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Version, len(m.history))
	copy(out, m.history)
	return out
}

// Materialize resolves the head version's message IDs into live messages
// via the registry, in version order — the store's contents equal this
// result at all times.
func (m *Manager) Materialize() []*message.Message {
	m.mu.RLock()
	ids := m.history[m.indexOf(m.head)].MessageIDs
	m.mu.RUnlock()
	return m.registry.LookupAll(ids)
}

// RevertToVersion implements revert_to_version. This does NOT rewind
// head in place: it appends a brand-new version whose message-ID list
// equals target's, keeping history strictly append-only. Two versions
// then carry identical message lists, which is an intentional tradeoff.
func (m *Manager) RevertToVersion(target VersionID) (Version, error) {
	m.mu.Lock()
	idx := m.indexOfLocked(target)
	if idx < 0 {
		m.mu.Unlock()
		return Version{}, fmt.Errorf("versioning: no such version %d", target)
	}
	from := m.head
	targetIDs := append([]message.ID(nil), m.history[idx].MessageIDs...)
	onRevert := m.onRevert
	m.mu.Unlock()

	if onRevert != nil {
		onRevert(from, target)
	}

	return m.Commit(targetIDs), nil
}

func (m *Manager) indexOf(id VersionID) int {
	return m.indexOfLocked(id)
}

func (m *Manager) indexOfLocked(id VersionID) int {
	// Versions are committed in strictly increasing ID order starting at
	// 0, so the slice index equals the ID; guard against the invariant
	// ever drifting (e.g. a future compaction pass) with a fallback scan.
	if int(id) < len(m.history) && m.history[id].ID == id {
		return int(id)
	}
	for i, v := range m.history {
		if v.ID == id {
			return i
		}
	}
	return -1
}
