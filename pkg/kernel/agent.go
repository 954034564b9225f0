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

// Package kernel implements the Agent kernel: the lifecycle state
// machine, the serialized-mutation guard, and the `Call`/`Execute`
// drivers that own every other component (EventRouter, MessageStore,
// VersioningManager, ToolExecutor, ModeManager).
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"weak"

	"github.com/google/uuid"

	"github.com/kadirpekel/agentkernel/pkg/event"
	"github.com/kadirpekel/agentkernel/pkg/kconfig"
	"github.com/kadirpekel/agentkernel/pkg/llmport"
	"github.com/kadirpekel/agentkernel/pkg/logging"
	"github.com/kadirpekel/agentkernel/pkg/message"
	"github.com/kadirpekel/agentkernel/pkg/mode"
	"github.com/kadirpekel/agentkernel/pkg/mstore"
	"github.com/kadirpekel/agentkernel/pkg/obs"
	"github.com/kadirpekel/agentkernel/pkg/toolexec"
	"github.com/kadirpekel/agentkernel/pkg/toolport"
	"github.com/kadirpekel/agentkernel/pkg/versioning"
)

// Agent is the kernel: a conversational state machine wrapping a message
// log, an event router, versioning, tool execution, and stackable modes
// behind a deliberately small public surface.
type Agent struct {
	id           string
	name         string
	sessionID    string
	systemPrompt string

	state stateBox
	mu    sync.Mutex // serializes mutating operations

	router     *event.Router
	registry   *versioning.MessageRegistry
	versioning *versioning.Manager
	store      *mstore.Store
	tools      *toolRegistry
	executor   *toolexec.Executor
	modes      *mode.Manager
	tasks      *Tasks

	llm    llmport.LLM
	config *kconfig.Model

	recorder obs.Recorder
	logger   *slog.Logger

	closeHooks []func(context.Context) error

	pendingTransition *transitionRequest

	// selfBox is the stable, Agent-lifetime-bound storage location every
	// message's weak back-reference points at. weak.Make needs a
	// long-lived address to go weak against; a freshly
	// boxed local variable would be collected immediately since nothing
	// else retains it, so the box lives as a field on the Agent itself.
	selfBox any
}

// Option configures an Agent at construction.
type Option func(*Agent)

// WithRecorder installs a non-default Recorder.
func WithRecorder(r obs.Recorder) Option {
	return func(a *Agent) { a.recorder = r }
}

// WithSessionID sets an externally-assigned session identifier.
func WithSessionID(id string) Option {
	return func(a *Agent) { a.sessionID = id }
}

// New constructs an Agent in the Created state. Call Initialize before
// Call/Execute.
func New(name, systemPrompt string, cfg *kconfig.Model, llm llmport.LLM, opts ...Option) *Agent {
	registry := versioning.NewMessageRegistry()
	vm := versioning.NewManager(registry)
	router := event.New()

	a := &Agent{
		id:           uuid.NewString(),
		name:         name,
		sessionID:    uuid.NewString(),
		systemPrompt: systemPrompt,
		router:       router,
		registry:     registry,
		versioning:   vm,
		store:        mstore.New(registry, vm),
		tools:        newToolRegistry(),
		tasks:        newTasks(),
		llm:          llm,
		config:       cfg,
		recorder:     obs.NoOp{},
		logger:       logging.With("agent").With("agent_name", name),
	}
	if a.config == nil {
		a.config = kconfig.Default()
	}
	a.modes = mode.New(router, mode.WithAgentHooks(a.modeHooks()))
	a.executor = toolexec.New(a.tools, router)

	vm.OnRevert(func(from, to versioning.VersionID) {
		router.Do(event.AgentVersionChange, event.After, map[string]any{
			"agent": a.id, "from": from, "to": to,
		})
	})

	for _, o := range opts {
		o(a)
	}
	a.selfBox = a
	a.state.store(StateCreated)
	return a
}

// ID returns the Agent's unique identifier.
func (a *Agent) ID() string { return a.id }

// Name returns the Agent's name.
func (a *Agent) Name() string { return a.name }

// SessionID returns the session this Agent belongs to.
func (a *Agent) SessionID() string { return a.sessionID }

// State returns the current lifecycle state. Always lock-free.
func (a *Agent) State() State { return a.state.load() }

// IsReady reports whether the Agent will currently accept mutations.
func (a *Agent) IsReady() bool { return a.state.load() == StateReady }

// Initialize appends the system prompt (if any) as the first message and
// transitions Created -> Initializing -> Ready. It does not resolve tools
// or validate modes. Calling Initialize twice is a no-op once the Agent
// is already Ready.
func (a *Agent) Initialize(ctx context.Context) error {
	if a.state.load() == StateReady {
		return nil
	}
	if !a.state.cas(StateCreated, StateInitializing) {
		return newError("Agent", "Initialize", fmt.Errorf("cannot initialize from state %s", a.state.load()))
	}

	if a.systemPrompt != "" {
		a.store.Append(message.NewSystemMessage(a.systemPrompt))
	}

	a.state.store(StateReady)
	a.logger.Info("agent initialized", "id", a.id)
	return nil
}

// requireMutable refuses requests outside Ready (for mutations) and
// Executing (during a turn).
func (a *Agent) requireMutable() error {
	switch a.state.load() {
	case StateReady, StateExecuting:
		return nil
	case StateClosed, StateClosing:
		return ErrAgentClosed
	default:
		return ErrNotReady
	}
}

// Messages returns the current, ordered conversation contents. Read-only
// operations never take the mutation guard.
func (a *Agent) Messages() []*message.Message { return a.store.Messages() }

func (a *Agent) System() *mstore.RoleView    { return a.store.System() }
func (a *Agent) User() *mstore.RoleView      { return a.store.User() }
func (a *Agent) Assistant() *mstore.RoleView { return a.store.Assistant() }
func (a *Agent) Tool() *mstore.RoleView      { return a.store.Tool() }

// Append adds one message of the given role, guarded. For Tool messages
// use AppendTool.
func (a *Agent) Append(role message.Role, text string) (*message.Message, error) {
	if err := a.requireMutable(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	view := a.store.FilterByRole(role)
	m, err := view.Append(text)
	if err != nil {
		return nil, err
	}
	a.attachBackref(m)
	return m, nil
}

// AppendTool adds a Tool message answering toolCallID.
func (a *Agent) AppendTool(toolCallID, toolName, content string) (*message.Message, error) {
	if err := a.requireMutable(); err != nil {
		return nil, err
	}
	m, err := message.NewToolMessage(toolCallID, toolName, content)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attachBackref(m)
	a.store.Append(m)
	return m, nil
}

// ReplaceAt overwrites the message at index i.
func (a *Agent) ReplaceAt(i int, msg *message.Message) error {
	if err := a.requireMutable(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attachBackref(msg)
	return a.store.ReplaceAt(i, msg)
}

// Prepend adds msg to the front of the log (O(n)).
func (a *Agent) Prepend(msg *message.Message) error {
	if err := a.requireMutable(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attachBackref(msg)
	a.store.Prepend(msg)
	return nil
}

// Clear empties the conversation log.
func (a *Agent) Clear() error {
	if err := a.requireMutable(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.store.Clear()
	return nil
}

// attachBackref installs the weak agent back-reference; called under the
// mutation guard whenever a message not already carrying one is about to
// enter the store.
func (a *Agent) attachBackref(m *message.Message) {
	if m.AgentRef().Value() != nil {
		return
	}
	m.SetAgentRef(weak.Make(&a.selfBox))
}

// ownerOf resolves a message's weak back-reference to its owning Agent,
// or nil if the message was never attached to one or the Agent has since
// been collected.
func ownerOf(m *message.Message) *Agent {
	box := m.AgentRef().Value()
	if box == nil {
		return nil
	}
	if ag, ok := (*box).(*Agent); ok {
		return ag
	}
	return nil
}

// RegisterTool adds t to the Agent's tool registry, replacing any tool of
// the same name; UnregisterTool removes one; ToolDefinitions lists them.
func (a *Agent) RegisterTool(t toolport.Tool) { a.tools.Register(t) }
func (a *Agent) UnregisterTool(name string)   { a.tools.Unregister(name) }
func (a *Agent) ToolDefinitions() []toolport.Definition { return a.tools.Definitions() }

// Invoke runs a single tool call directly.
func (a *Agent) Invoke(ctx context.Context, id, name string, args map[string]any) (*message.Message, error) {
	resp := a.executor.Invoke(ctx, toolexec.Call{ID: id, Name: name, Args: args})
	msgs, err := toolexec.ToolMessages([]toolexec.Response{resp})
	if err != nil {
		return nil, err
	}
	return msgs[0], nil
}

// InvokeMany runs N tool calls concurrently, emitted in submission order.
func (a *Agent) InvokeMany(ctx context.Context, calls []toolexec.Call) ([]*message.Message, error) {
	responses := a.executor.InvokeMany(ctx, calls)
	return toolexec.ToolMessages(responses)
}

// On registers a synchronous handler on whatever router is current for
// the active mode frame.
func (a *Agent) On(eventName string, phase event.Phase, priority int32, fn func(*event.Context) error, predicate func(event.Params) bool) *event.Handler {
	return a.modes.Current().On(eventName, phase, priority, fn, predicate)
}

// OnAsync registers an asynchronous handler, same routing as On.
func (a *Agent) OnAsync(eventName string, phase event.Phase, priority int32, fn func(context.Context, *event.Context) error, predicate func(event.Params) bool) *event.Handler {
	return a.modes.Current().OnAsync(eventName, phase, priority, fn, predicate)
}

// Apply dispatches an event on the current mode frame's router, awaiting
// every handler.
func (a *Agent) Apply(ctx context.Context, name string, phase event.Phase, params event.Params) *event.Context {
	return a.modes.Current().Apply(ctx, name, phase, params)
}

// Do dispatches an event on the current mode frame's router without
// awaiting async handlers.
func (a *Agent) Do(name string, phase event.Phase, params event.Params) *event.Context {
	return a.modes.Current().Do(name, phase, params)
}

// VersionID returns the current version head.
func (a *Agent) VersionID() versioning.VersionID { return a.versioning.HeadID() }

// VersionHistory returns every version ever committed.
func (a *Agent) VersionHistory() []versioning.Version { return a.versioning.History() }

// RevertToVersion reverts the message log to an earlier version, guarded.
func (a *Agent) RevertToVersion(v versioning.VersionID) (versioning.Version, error) {
	if err := a.requireMutable(); err != nil {
		return versioning.Version{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.versioning.RevertToVersion(v)
}

// Tasks exposes the cross-thread submission surface.
func (a *Agent) Tasks() *Tasks { return a.tasks }

// OnClose registers a cleanup hook run in reverse install order during
// Close.
func (a *Agent) OnClose(fn func(context.Context) error) {
	a.closeHooks = append(a.closeHooks, fn)
}

// Close transitions Closing -> Closed, running cleanup hooks in reverse
// install order between the agent:close:before/after signals.
func (a *Agent) Close(ctx context.Context) error {
	prev := a.state.load()
	if prev == StateClosed {
		return nil
	}
	a.state.store(StateClosing)
	a.router.Do(event.AgentClose, event.Before, a.id)

	var firstErr error
	for i := len(a.closeHooks) - 1; i >= 0; i-- {
		if err := a.closeHooks[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.llm != nil {
		if err := a.llm.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	a.state.store(StateClosed)
	a.router.Do(event.AgentClose, event.After, a.id)
	return firstErr
}

// modeHooks builds the mode.AgentHooks this Agent installs on its own
// Manager: IsolationConfig/IsolationThread snapshot and restore this
// Agent's own config (and, for IsolationThread, its version head) across
// the frame's lifetime; IsolationFork runs the mode against a real Fork
// of this Agent and, on exit, merges the fork's new tail messages back
// in or discards them per the frame's State["fork_merge"] decision.
func (a *Agent) modeHooks() mode.AgentHooks {
	return mode.AgentHooks{
		SnapshotConfig: func() any { return a.config.Clone() },
		RestoreConfig: func(snapshot any) {
			if cfg, ok := snapshot.(*kconfig.Model); ok {
				a.config = cfg
			}
		},
		SnapshotVersion: func() any { return a.versioning.HeadID() },
		RevertToVersion: func(snapshot any) {
			v, ok := snapshot.(versioning.VersionID)
			if !ok {
				return
			}
			if _, err := a.versioning.RevertToVersion(v); err != nil {
				a.logger.Warn("mode: thread-isolation version restore failed", "error", err)
			}
		},
		Fork: func(name string) (*mode.ForkHandle, error) {
			forked := a.Fork(a.name + ":" + name)
			baseline := len(forked.store.Messages())
			return &mode.ForkHandle{
				Router: forked.router,
				Agent:  forked,
				Resolve: func(merge bool) error {
					if !merge {
						return nil
					}
					tail := forked.store.Messages()
					if len(tail) <= baseline {
						return nil
					}
					add := make([]*message.Message, len(tail)-baseline)
					copy(add, tail[baseline:])
					for _, m := range add {
						m.SetAgentRef(weak.Make(&a.selfBox))
					}
					a.store.Extend(add)
					return nil
				},
			}, nil
		},
	}
}

// Fork creates a new Agent that starts from this Agent's current message
// head and tool definitions, but owns an independent event router (a
// snapshot clone: later registrations on either side never leak to the
// other) and an independent version history. Used directly by callers
// that want a standalone sibling, and by mode's fork isolation (via
// modeHooks) to run a mode against an isolated copy of this Agent.
func (a *Agent) Fork(name string) *Agent {
	forked := New(name, a.systemPrompt, a.config.Clone(), a.llm)
	a.router.CopyHandlersInto(forked.router)

	cur := a.store.Messages()
	msgs := make([]*message.Message, len(cur))
	copy(msgs, cur)
	if len(msgs) > 0 {
		forked.mu.Lock()
		forked.store.Extend(msgs)
		forked.mu.Unlock()
	}
	forked.state.store(StateReady)

	a.tools.mu.RLock()
	for _, t := range a.tools.tools {
		forked.tools.Register(t)
	}
	a.tools.mu.RUnlock()

	return forked
}
