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

package message

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

// ID is a 128-bit lexicographically sortable message identifier. IDs must
// be globally monotonically increasing and never reused; ULID gives both
// properties cheaply, unlike a plain UUIDv4 which carries no ordering.
type ID ulid.ULID

// String renders the canonical ULID text form.
func (id ID) String() string { return ulid.ULID(id).String() }

// Compare orders two IDs; a negative result means id sorts before other.
func (id ID) Compare(other ID) int {
	return ulid.ULID(id).Compare(ulid.ULID(other))
}

// IsZero reports whether id is the zero value (never assigned).
func (id ID) IsZero() bool {
	var zero ulid.ULID
	return ulid.ULID(id) == zero
}

// idGenerator produces monotonically increasing IDs process-wide. A single
// entropy source guarded by a mutex is the simplest way to satisfy "never
// reordered, never reused" under concurrent appends.
type idGenerator struct {
	mu     sync.Mutex
	source *ulid.MonotonicEntropy
}

func newIDGenerator() *idGenerator {
	return &idGenerator{source: ulid.Monotonic(rand.Reader, 0)}
}

func (g *idGenerator) next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	u := ulid.MustNew(ulid.Timestamp(time.Now()), g.source)
	return ID(u)
}

// defaultIDs is the process-wide generator used by the New*Message
// constructors. No constructor takes a caller-chosen ID, so tests assert
// on relative Compare() ordering rather than literal values.
var defaultIDs = newIDGenerator()

// NextID returns the next monotonic message ID from the process-wide
// generator. Exposed for callers (e.g. the versioning tests) that need
// to mint IDs outside a constructor.
func NextID() ID { return defaultIDs.next() }
