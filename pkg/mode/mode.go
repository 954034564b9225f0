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

// Package mode implements a stack of named frames, each contributing
// handlers for the lifetime of the frame and removing them on exit,
// with four isolation levels controlling how much of the
// enclosing event-handler set and agent-level state a frame can see and
// mutate. A mode "runs" as a two-stage generator: it yields control once
// for setup, once for cleanup, mirroring a single step of a reasoning
// loop.
package mode

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/kadirpekel/agentkernel/pkg/event"
	"github.com/kadirpekel/agentkernel/pkg/logging"
)

// Isolation controls how a mode frame's handlers and agent-level state
// (generation config, version history) interact with the enclosing
// scope.
type Isolation int

const (
	// IsolationNone shares the live router and agent state; handlers
	// registered by the frame are visible globally the instant they're
	// added and removed globally on exit, and any config/version mutation
	// a handler makes persists after exit.
	IsolationNone Isolation = iota
	// IsolationConfig shares the router but snapshots the owning Agent's
	// generation config on entry and restores it on exit, so a frame may
	// freely mutate temperature/model/etc. for its own duration only.
	IsolationConfig
	// IsolationThread gives the frame its own child router seeded from a
	// snapshot of the parent's handlers at push time (registrations
	// inside the frame are invisible outside it), plus everything
	// IsolationConfig restores, plus a message-store version snapshot:
	// on exit the owning Agent is reverted to the version captured at
	// entry, undoing any messages appended during the frame.
	IsolationThread
	// IsolationFork runs the mode against a forked Agent entirely — a
	// cloned message head, shared tool registry, and a router seeded
	// from the parent's handlers at fork time — so nothing the frame
	// does touches the parent until exit, at which point the frame's
	// State["fork_merge"] decision (bool) determines whether the fork's
	// resulting messages are merged back or discarded.
	IsolationFork
)

// Generator is the setup/cleanup pair a mode contributes, modeled as a
// two-yield iter.Seq2: the first yield is "entered", the second is
// "about to exit". A generator that yields more than twice is a usage
// error.
type Generator func(ctx context.Context, fr *Frame) iter.Seq2[Stage, error]

// Stage marks which point in a Generator's lifecycle a yield represents.
type Stage int

const (
	StageEntered Stage = iota
	StageExiting
)

// Frame is one entry on the mode stack.
type Frame struct {
	Name      string
	Params    any
	State     map[string]any
	Isolation Isolation

	router *event.Router // the router this frame's handlers were registered on
	owned  []*event.Handler
	next   next // set once the generator's first yield has happened

	configSnapshot  any
	versionSnapshot any
	fork            *ForkHandle
}

type next func() (Stage, error, bool)

// ForkHandle is what AgentHooks.Fork returns: the router handlers
// register against while a fork-isolated mode runs, and a Resolve
// callback invoked exactly once on exit with the frame's merge
// decision (State["fork_merge"]).
type ForkHandle struct {
	Router *event.Router
	// Agent is an opaque handle to the forked Agent itself, surfaced on
	// the frame as State["fork_agent"] so a handler running inside the
	// mode can address the fork directly (append to it, invoke tools
	// against it) instead of the parent.
	Agent   any
	Resolve func(merge bool) error
}

// AgentHooks lets an owning Agent kernel participate in isolation
// without pkg/mode importing the kernel's concrete config/versioning
// types: every value crossing the boundary is an opaque snapshot the
// Agent itself produced and later consumes. A Manager built without
// hooks (the zero value, e.g. in a standalone test) still isolates
// routers correctly; it just has nothing to snapshot/restore/fork, so
// IsolationConfig/IsolationThread behave like IsolationNone for
// anything beyond routing, and IsolationFork falls back to a
// router-only clone of the parent.
type AgentHooks struct {
	SnapshotConfig  func() any
	RestoreConfig   func(snapshot any)
	SnapshotVersion func() any
	RevertToVersion func(snapshot any)
	Fork            func(name string) (*ForkHandle, error)
}

// Transition records one mode-stack transition (an Enter push or an Exit
// pop); History returns the log oldest first. ReturnToPrevious and Switch
// work from the stack itself, not from this log.
type Transition struct {
	From string
	To   string
	At   time.Time
}

// Manager is the ModeManager.
type Manager struct {
	mu      sync.Mutex
	root    *event.Router
	stack   []*Frame
	history []Transition
	hooks   AgentHooks
	logger  *slog.Logger
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithAgentHooks installs the snapshot/restore/fork hooks an owning
// Agent kernel uses to give IsolationConfig, IsolationThread and
// IsolationFork their agent-level effects.
func WithAgentHooks(h AgentHooks) Option {
	return func(m *Manager) { m.hooks = h }
}

// New creates a Manager whose base frame dispatches against root.
func New(root *event.Router, opts ...Option) *Manager {
	m := &Manager{root: root, logger: logging.With("mode_manager")}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Current returns the router the top-of-stack frame should register
// against and emit through — the live frame's isolation level determines
// whether that's the shared root or a private child.
func (m *Manager) Current() *event.Router {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stack) == 0 {
		return m.root
	}
	top := m.stack[len(m.stack)-1]
	if top.router != nil {
		return top.router
	}
	return m.root
}

// Depth reports how many frames are on the stack.
func (m *Manager) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stack)
}

// CurrentFrame returns the top-of-stack frame, or nil if the stack is
// empty.
func (m *Manager) CurrentFrame() *Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stack) == 0 {
		return nil
	}
	return m.stack[len(m.stack)-1]
}

// Stack returns every frame currently pushed, bottom (outermost) first.
// The slice is a copy; callers cannot mutate the Manager's stack
// through it, though the *Frame values themselves are shared (State is
// meant to be read and written live).
func (m *Manager) Stack() []*Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Frame, len(m.stack))
	copy(out, m.stack)
	return out
}

// History returns every transition recorded so far, oldest first.
func (m *Manager) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// Enter pushes a new frame, runs the generator's setup half, and returns
// the Frame so callers can later Exit it. IsolationThread frames get a
// private child router; IsolationFork frames run against a forked Agent
// when AgentHooks.Fork is installed (falling back to a router-only
// clone otherwise); IsolationConfig/IsolationThread additionally
// snapshot agent-level state for Exit to restore.
func (m *Manager) Enter(ctx context.Context, name string, params any, isolation Isolation, gen Generator) (*Frame, error) {
	m.mu.Lock()
	var parentRouter *event.Router
	parentName := ""
	if len(m.stack) == 0 {
		parentRouter = m.root
	} else {
		top := m.stack[len(m.stack)-1]
		parentName = top.Name
		if top.router != nil {
			parentRouter = top.router
		} else {
			parentRouter = m.root
		}
	}
	m.mu.Unlock()

	fr := &Frame{Name: name, Params: params, State: make(map[string]any), Isolation: isolation, router: parentRouter}

	switch isolation {
	case IsolationConfig:
		if m.hooks.SnapshotConfig != nil {
			fr.configSnapshot = m.hooks.SnapshotConfig()
		}
	case IsolationThread:
		fr.router = cloneRouter(parentRouter)
		if m.hooks.SnapshotConfig != nil {
			fr.configSnapshot = m.hooks.SnapshotConfig()
		}
		if m.hooks.SnapshotVersion != nil {
			fr.versionSnapshot = m.hooks.SnapshotVersion()
		}
	case IsolationFork:
		if m.hooks.Fork != nil {
			handle, err := m.hooks.Fork(name)
			if err != nil {
				return nil, fmt.Errorf("mode: %q fork failed: %w", name, err)
			}
			fr.fork = handle
			fr.router = handle.Router
			if handle.Agent != nil {
				fr.State["fork_agent"] = handle.Agent
			}
		} else {
			fr.router = cloneRouter(parentRouter)
		}
	}

	m.root.Do(event.ModeEntering, event.Before, fr)

	seq := gen(ctx, fr)
	pull, stop := iter.Pull2(seq)
	stage, err, ok := pull()
	if err != nil {
		stop()
		m.root.Do(event.ModeError, event.After, map[string]any{"mode": name, "err": err})
		return nil, fmt.Errorf("mode: %q setup failed: %w", name, err)
	}
	if !ok || stage != StageEntered {
		stop()
		return nil, fmt.Errorf("mode: %q generator did not yield StageEntered on setup", name)
	}

	fr.next = func() (Stage, error, bool) {
		s, e, o := pull()
		if !o {
			stop()
		}
		return s, e, o
	}

	m.mu.Lock()
	m.stack = append(m.stack, fr)
	m.history = append(m.history, Transition{From: parentName, To: name, At: time.Now()})
	m.mu.Unlock()

	m.root.Do(event.ModeEntered, event.After, fr)
	return fr, nil
}

// Exit pops the top frame (it must be fr — LIFO is enforced), runs the
// generator's cleanup half, removes every handler the frame owned, and
// restores whatever the frame's isolation level snapshotted on entry.
func (m *Manager) Exit(ctx context.Context, fr *Frame) error {
	m.mu.Lock()
	if len(m.stack) == 0 || m.stack[len(m.stack)-1] != fr {
		m.mu.Unlock()
		return fmt.Errorf("mode: %q is not the top frame", fr.Name)
	}
	m.stack = m.stack[:len(m.stack)-1]
	newTop := ""
	if len(m.stack) > 0 {
		newTop = m.stack[len(m.stack)-1].Name
	}
	m.history = append(m.history, Transition{From: fr.Name, To: newTop, At: time.Now()})
	m.mu.Unlock()

	m.root.Do(event.ModeExiting, event.Before, fr)

	var genErr error
	if fr.next != nil {
		_, genErr, _ = fr.next()
	}

	for _, h := range fr.owned {
		fr.router.Off(h)
	}

	m.restore(fr)

	if genErr != nil {
		m.root.Do(event.ModeError, event.After, map[string]any{"mode": fr.Name, "err": genErr})
	}
	m.root.Do(event.ModeExited, event.After, fr)
	return genErr
}

// restore reverses whatever Enter snapshotted for fr's isolation level.
// Errors from hooks are logged, not propagated: exit must never fail to
// pop the frame, it can only fail to fully undo the frame's effects.
func (m *Manager) restore(fr *Frame) {
	switch fr.Isolation {
	case IsolationConfig:
		if m.hooks.RestoreConfig != nil && fr.configSnapshot != nil {
			m.hooks.RestoreConfig(fr.configSnapshot)
		}
	case IsolationThread:
		if m.hooks.RestoreConfig != nil && fr.configSnapshot != nil {
			m.hooks.RestoreConfig(fr.configSnapshot)
		}
		if m.hooks.RevertToVersion != nil && fr.versionSnapshot != nil {
			m.hooks.RevertToVersion(fr.versionSnapshot)
		}
	case IsolationFork:
		if fr.fork == nil || fr.fork.Resolve == nil {
			return
		}
		merge, _ := fr.State["fork_merge"].(bool)
		if err := fr.fork.Resolve(merge); err != nil {
			m.logger.Warn("mode: fork resolve failed", "mode", fr.Name, "error", err)
		}
	}
}

// Switch replaces the top frame with a new one in a single transition:
// exit the current frame, then enter the new one. On setup failure the
// old frame is NOT restored — it stays popped and the new frame is never
// pushed, so the stack is left one frame shorter than before.
func (m *Manager) Switch(ctx context.Context, name string, params any, isolation Isolation, gen Generator) (*Frame, error) {
	m.mu.Lock()
	hasTop := len(m.stack) > 0
	var top *Frame
	if hasTop {
		top = m.stack[len(m.stack)-1]
	}
	m.mu.Unlock()

	if hasTop {
		if err := m.Exit(ctx, top); err != nil {
			m.logger.Warn("mode: cleanup error during switch", "from", top.Name, "error", err)
		}
	}
	m.root.Do(event.ModeTransition, event.After, map[string]any{"from": frameName(top), "to": name})
	return m.Enter(ctx, name, params, isolation, gen)
}

// ReturnToPrevious exits the top frame only; the next frame down becomes
// current automatically once the stack shrinks.
func (m *Manager) ReturnToPrevious(ctx context.Context) error {
	m.mu.Lock()
	if len(m.stack) == 0 {
		m.mu.Unlock()
		return fmt.Errorf("mode: no active frame to return from")
	}
	top := m.stack[len(m.stack)-1]
	m.mu.Unlock()
	return m.Exit(ctx, top)
}

func frameName(fr *Frame) string {
	if fr == nil {
		return ""
	}
	return fr.Name
}

// RegisterOwned registers a handler on fr's router and records it as
// owned by the frame so Exit removes it automatically.
func (fr *Frame) RegisterOwned(h *event.Handler) {
	fr.owned = append(fr.owned, h)
}

func cloneRouter(parent *event.Router) *event.Router {
	clone := event.New()
	parent.CopyHandlersInto(clone)
	return clone
}
