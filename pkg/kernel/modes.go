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

package kernel

import (
	"context"
	"fmt"

	"github.com/kadirpekel/agentkernel/pkg/event"
	"github.com/kadirpekel/agentkernel/pkg/mode"
)

// transitionKind distinguishes the three mode-transition verbs (enter,
// switch, return-to-previous); a handler or an invoked enter_<mode> tool
// requests one mid-turn, and the Execute loop applies it at the top of
// its next iteration.
type transitionKind int

const (
	transitionEnter transitionKind = iota
	transitionSwitch
	transitionReturn
)

type transitionRequest struct {
	kind      transitionKind
	name      string
	params    any
	isolation mode.Isolation
	gen       mode.Generator
}

// Mode enters a new mode frame immediately, guarded by the mutation lock.
// Use RequestMode from inside a running turn instead, so the transition
// happens between iterations rather than concurrently with an in-flight
// LLM/tool await.
func (a *Agent) Mode(ctx context.Context, name string, params any, isolation mode.Isolation, gen mode.Generator) (*mode.Frame, error) {
	if err := a.requireMutable(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.modes.Enter(ctx, name, params, isolation, gen)
}

// ModeSwitch replaces the current top mode frame with a new one.
func (a *Agent) ModeSwitch(ctx context.Context, name string, params any, isolation mode.Isolation, gen mode.Generator) (*mode.Frame, error) {
	if err := a.requireMutable(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.modes.Switch(ctx, name, params, isolation, gen)
}

// ModeExit exits the given frame, which must be the current top of stack.
func (a *Agent) ModeExit(ctx context.Context, fr *mode.Frame) error {
	if err := a.requireMutable(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.modes.Exit(ctx, fr)
}

// ModeReturnToPrevious exits the current top mode frame only.
func (a *Agent) ModeReturnToPrevious(ctx context.Context) error {
	if err := a.requireMutable(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.modes.ReturnToPrevious(ctx)
}

// ModeDepth reports how many mode frames are currently on the stack.
func (a *Agent) ModeDepth() int { return a.modes.Depth() }

// ModeStack returns every mode frame currently pushed, bottom first.
func (a *Agent) ModeStack() []*mode.Frame { return a.modes.Stack() }

// ModeHistory returns every transition recorded on the mode stack so
// far, oldest first.
func (a *Agent) ModeHistory() []mode.Transition { return a.modes.History() }

// RegisterMode registers a mode definition. When invokable is true, the
// Agent additionally exposes a synthetic enter_<name> tool so the LLM
// can request entry via an ordinary tool call; registering with
// invokable=false is a no-op, since non-invokable modes are only ever
// entered by a handler or caller calling Mode/RequestMode directly.
func (a *Agent) RegisterMode(name string, isolation mode.Isolation, gen mode.Generator, invokable bool) {
	if !invokable {
		return
	}
	a.tools.Register(&enterModeTool{agent: a, name: name, isolation: isolation, gen: gen})
}

// enterModeTool is the synthetic tool an invokable mode registration
// exposes to the LLM.
type enterModeTool struct {
	agent     *Agent
	name      string
	isolation mode.Isolation
	gen       mode.Generator
}

func (t *enterModeTool) Name() string { return "enter_" + t.name }

func (t *enterModeTool) Description() string {
	return fmt.Sprintf("Switch the conversation into the %q mode.", t.name)
}

func (t *enterModeTool) Schema() map[string]any {
	return map[string]any{"type": "object", "additionalProperties": true}
}

// Call validates nothing beyond args being a plain argument map — a
// mode's own Params shape, if it has one, is the Generator's concern on
// entry. It emits mode:transition as a signal and defers the actual
// switch to the top of the next Execute iteration rather than entering
// mid-resolve.
func (t *enterModeTool) Call(_ context.Context, args map[string]any) (any, error) {
	t.agent.router.Do(event.ModeTransition, event.After, map[string]any{
		"from": t.agent.currentModeName(), "to": t.name, "via": "tool",
	})
	t.agent.RequestMode(t.name, args, t.isolation, t.gen)
	return map[string]any{"status": "queued", "mode": t.name}, nil
}

// RequestMode queues a mode entry to take effect at the top of the next
// Execute iteration, the mechanism an invokable `enter_<mode>` tool or an
// event handler uses instead of racing the in-flight turn.
func (a *Agent) RequestMode(name string, params any, isolation mode.Isolation, gen mode.Generator) {
	a.pendingTransition = &transitionRequest{kind: transitionEnter, name: name, params: params, isolation: isolation, gen: gen}
}

// RequestModeSwitch is the switch_mode analogue of RequestMode.
func (a *Agent) RequestModeSwitch(name string, params any, isolation mode.Isolation, gen mode.Generator) {
	a.pendingTransition = &transitionRequest{kind: transitionSwitch, name: name, params: params, isolation: isolation, gen: gen}
}

// RequestModeReturn is the return_to_previous analogue of RequestMode.
func (a *Agent) RequestModeReturn() {
	a.pendingTransition = &transitionRequest{kind: transitionReturn}
}

// applyPendingTransition runs and clears any queued transition, called at
// the top of each Execute iteration.
func (a *Agent) applyPendingTransition(ctx context.Context) error {
	req := a.pendingTransition
	if req == nil {
		return nil
	}
	a.pendingTransition = nil

	a.mu.Lock()
	defer a.mu.Unlock()

	before := a.currentModeName()
	var err error
	switch req.kind {
	case transitionEnter:
		_, err = a.modes.Enter(ctx, req.name, req.params, req.isolation, req.gen)
	case transitionSwitch:
		_, err = a.modes.Switch(ctx, req.name, req.params, req.isolation, req.gen)
	case transitionReturn:
		err = a.modes.ReturnToPrevious(ctx)
	}
	if err == nil {
		a.recorder.RecordModeTransition(before, a.currentModeName())
	}
	return err
}

func (a *Agent) currentModeName() string {
	if fr := a.modes.CurrentFrame(); fr != nil {
		return fr.Name
	}
	return ""
}

// hasPendingTransition reports whether a transition is queued, used by
// the Execute loop's continuation condition: loop until max_iterations is
// reached or the last assistant message has no pending tool calls and no
// pending mode transition.
func (a *Agent) hasPendingTransition() bool { return a.pendingTransition != nil }
