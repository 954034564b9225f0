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

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/kadirpekel/agentkernel/pkg/logging"
)

// Handler is a registered callback. Sync handlers implement Func; async
// handlers implement AsyncFunc. Exactly one of the two is set per
// registration — On and OnAsync each set the right one.
type Handler struct {
	Name     string
	Event    string
	Phase    Phase
	Priority int32
	Predicate func(Params) bool

	fn      func(*Context) error
	asyncFn func(context.Context, *Context) error

	seq int64 // registration order, used as the stable-sort tiebreaker
}

// Router dispatches named events to registered handlers in priority order.
type Router struct {
	mu       sync.RWMutex
	handlers map[string][]*Handler // keyed by Name+"/"+string(Phase)
	seq      int64

	logger *slog.Logger

	// asyncPool bounds the goroutines Do schedules for async handlers;
	// a buffered channel acts as a simple semaphore.
	asyncPool chan struct{}

	swallowErrors map[string]bool
}

// Option configures a Router at construction.
type Option func(*Router)

// WithAsyncPoolSize bounds how many async handlers Do may have in flight
// at once. Default 32.
func WithAsyncPoolSize(n int) Option {
	return func(r *Router) { r.asyncPool = make(chan struct{}, n) }
}

// WithSwallowErrors marks the given event names as swallow-errors: a
// handler panic/error for these names is logged and the matching *:error
// signal is not fired. A Before-phase error still interrupts the
// dispatch, so the emitter sees Interrupted() and InterruptErr().
func WithSwallowErrors(names ...string) Option {
	return func(r *Router) {
		for _, n := range names {
			r.swallowErrors[n] = true
		}
	}
}

// New creates an empty Router.
func New(opts ...Option) *Router {
	r := &Router{
		handlers:      make(map[string][]*Handler),
		logger:        logging.With("event_router"),
		swallowErrors: make(map[string]bool),
	}
	for _, o := range opts {
		o(r)
	}
	if r.asyncPool == nil {
		r.asyncPool = make(chan struct{}, 32)
	}
	return r
}

func key(name string, phase Phase) string { return name + "/" + string(phase) }

// On registers a synchronous handler. Equal-priority handlers run in
// registration order; priority otherwise sorts strictly descending.
func (r *Router) On(eventName string, phase Phase, priority int32, fn func(*Context) error, predicate func(Params) bool) *Handler {
	h := &Handler{Name: eventName, Event: eventName, Phase: phase, Priority: priority, Predicate: predicate, fn: fn}
	r.register(key(eventName, phase), h)
	return h
}

// OnAsync registers an asynchronous handler. Apply awaits it; Do schedules
// it on the bounded pool without awaiting completion.
func (r *Router) OnAsync(eventName string, phase Phase, priority int32, fn func(context.Context, *Context) error, predicate func(Params) bool) *Handler {
	h := &Handler{Name: eventName, Event: eventName, Phase: phase, Priority: priority, Predicate: predicate, asyncFn: fn}
	r.register(key(eventName, phase), h)
	return h
}

func (r *Router) register(k string, h *Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h.seq = r.seq
	r.seq++
	r.handlers[k] = append(r.handlers[k], h)
}

// Off removes a previously registered handler. Safe to call while other
// handlers are firing (registration list reads are always snapshotted).
func (r *Router) Off(h *Handler) {
	if h == nil {
		return
	}
	k := key(h.Event, h.Phase)
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.handlers[k]
	for i, existing := range list {
		if existing == h {
			r.handlers[k] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// snapshot returns a sorted copy of the handler list for (name, phase);
// the router holds the read lock only for this copy, never across handler
// execution.
func (r *Router) snapshot(name string, phase Phase) []*Handler {
	r.mu.RLock()
	list := r.handlers[key(name, phase)]
	out := make([]*Handler, len(list))
	copy(out, list)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// Apply dispatches (name, phase) and awaits every handler, sync or async,
// in priority order.
func (r *Router) Apply(ctx context.Context, name string, phase Phase, params Params) *Context {
	ec := &Context{Name: name, Phase: phase, Params: params}
	for _, h := range r.snapshot(name, phase) {
		if h.Predicate != nil && !h.Predicate(params) {
			continue
		}
		if err := r.invoke(ctx, h, ec); err != nil {
			r.handleErr(ctx, name, ec, err)
			if phase == Before {
				return ec
			}
		}
		if ec.interrupted && phase == Before {
			return ec
		}
	}
	return ec
}

// Do dispatches (name, phase) inline for sync handlers only; async
// handlers registered for (name, phase) are scheduled on the bounded pool
// and NOT awaited — Do returns once submission (not completion) is done.
// This is fire-and-forget for async handlers by design.
func (r *Router) Do(name string, phase Phase, params Params) *Context {
	ec := &Context{Name: name, Phase: phase, Params: params}
	for _, h := range r.snapshot(name, phase) {
		if h.Predicate != nil && !h.Predicate(params) {
			continue
		}
		if h.fn != nil {
			if err := safeCall(h, ec); err != nil {
				r.handleErr(context.Background(), name, ec, err)
			}
		} else if h.asyncFn != nil {
			r.scheduleAsync(h, ec)
		}
		if ec.interrupted && phase == Before {
			return ec
		}
	}
	return ec
}

func (r *Router) scheduleAsync(h *Handler, ec *Context) {
	select {
	case r.asyncPool <- struct{}{}:
	default:
		r.logger.Warn("event: async pool saturated, dropping fire-and-forget handler",
			"event", h.Event, "handler", h.Name)
		return
	}
	go func() {
		defer func() { <-r.asyncPool }()
		if err := h.asyncFn(context.Background(), ec); err != nil {
			r.logger.Error("event: async handler (via Do) failed", "event", h.Event, "error", err)
		}
	}()
}

func (r *Router) invoke(ctx context.Context, h *Handler, ec *Context) error {
	if h.fn != nil {
		return safeCall(h, ec)
	}
	return h.asyncFn(ctx, ec)
}

func safeCall(h *Handler, ec *Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("event: handler %q panicked: %v", h.Name, p)
		}
	}()
	return h.fn(ec)
}

// handleErr turns a Before-phase handler error into an Interrupt carrying
// the error, and fires the matching *:error signal (unless the event name
// opted into swallow-errors).
func (r *Router) handleErr(ctx context.Context, name string, ec *Context, err error) {
	if ec.Phase == Before {
		ec.Interrupt("handler_error", err)
	}
	if r.swallowErrors[name] {
		r.logger.Warn("event: swallowed handler error", "event", name, "error", err)
		return
	}
	errName := name + ":error"
	errCtx := &Context{Name: errName, Phase: Error, Params: ec.Params, interruptErr: err}
	for _, h := range r.snapshot(errName, Error) {
		_ = r.invoke(ctx, h, errCtx)
	}
}

// CopyHandlersInto clones every currently-registered handler onto dst,
// preserving registration order. Used by mode.IsolationFork to snapshot
// the handler set at fork time so later registrations on the source
// router never leak into the fork.
func (r *Router) CopyHandlersInto(dst *Router) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for k, list := range r.handlers {
		cp := make([]*Handler, len(list))
		copy(cp, list)
		dst.handlers[k] = cp
	}
	dst.seq = r.seq
}

// HandlerCount returns how many handlers are registered for (name, phase),
// used by tests asserting ordering and by introspection tooling.
func (r *Router) HandlerCount(name string, phase Phase) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[key(name, phase)])
}
